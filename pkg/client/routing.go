package client

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/replicate/batchget/pkg/consistent"
	"github.com/replicate/batchget/pkg/logging"
)

// cacheRoutingTransport sends requests whose URL matches one of the configured
// prefixes to a pull-through cache host, chosen by consistent hashing of the
// URL. The cache is addressed in path-proxy form:
//
//	https://example.com/a/b.bin -> http://<cache-host>/example.com/a/b.bin
//
// When the chosen cache host cannot be reached the next host for the URL is
// tried, and the origin once every cache host has failed.
type cacheRoutingTransport struct {
	next     http.RoundTripper
	ring     *consistent.Ring
	prefixes []*url.URL
}

func newCacheRoutingTransport(next http.RoundTripper, ring *consistent.Ring, prefixes []string) *cacheRoutingTransport {
	return &cacheRoutingTransport{
		next:     next,
		ring:     ring,
		prefixes: parsePrefixes(prefixes),
	}
}

func parsePrefixes(prefixes []string) []*url.URL {
	logger := logging.GetLogger()
	var parsed []*url.URL
	for _, prefix := range prefixes {
		u, err := url.Parse(prefix)
		if err != nil || u.Host == "" {
			logger.Warn().Str("prefix", prefix).Msg("Ignoring invalid cache URI prefix")
			continue
		}
		parsed = append(parsed, u)
	}
	return parsed
}

// cacheable reports whether u is covered by a prefix. No prefixes means every
// URL is cacheable.
func (t *cacheRoutingTransport) cacheable(u *url.URL) bool {
	if len(t.prefixes) == 0 {
		return true
	}
	for _, prefix := range t.prefixes {
		if prefix.Host == u.Host && strings.HasPrefix(u.Path, prefix.Path) {
			return true
		}
	}
	return false
}

func (t *cacheRoutingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.cacheable(req.URL) {
		return t.next.RoundTrip(req)
	}
	logger := logging.GetLogger()
	origin := req.URL.String()
	var unreachable []string
	for {
		cacheHost, err := t.ring.Pick(origin, unreachable...)
		if err != nil {
			if len(unreachable) == 0 {
				return nil, err
			}
			logger.Warn().Str("url", origin).Strs("cache_hosts", unreachable).Msg("No cache host reachable, using origin")
			return t.next.RoundTrip(req)
		}
		if cacheHost == "" || slices.Contains(unreachable, cacheHost) {
			// unfilled slot in an SRV derived host list, or a host listed twice
			return t.next.RoundTrip(req)
		}

		routed := req.Clone(req.Context())
		routed.URL = &url.URL{
			Scheme:   "http",
			Host:     cacheHost,
			Path:     "/" + req.URL.Host + req.URL.Path,
			RawQuery: req.URL.RawQuery,
		}
		routed.Host = cacheHost
		logger.Debug().Str("url", origin).Str("cache_url", routed.URL.String()).Msg("Cache routing")

		resp, err := t.next.RoundTrip(routed)
		if err == nil || !shouldFallback(err) || req.Context().Err() != nil {
			return resp, err
		}
		logger.Warn().Err(err).Str("url", origin).Str("cache_host", cacheHost).Msg("Cache host unavailable")
		unreachable = append(unreachable, cacheHost)
	}
}

// shouldFallback is true for errors that indicate the cache host itself is
// unreachable, as opposed to a failure of the download.
func shouldFallback(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
