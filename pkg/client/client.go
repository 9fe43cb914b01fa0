package client

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/replicate/batchget/pkg/consistent"
	"github.com/replicate/batchget/pkg/logging"
	"github.com/replicate/batchget/pkg/version"
)

const (
	retryMinWait     = 100 * time.Millisecond
	retryMaxWait     = 3000 * time.Millisecond // do not backoff further than 3 seconds
	retrySleepJitter = 500                     // (will add 0-500 additional milliseconds), multiplied by time.Millisecond in backoffFunc
	maxRedirects     = 10
)

// Doer is satisfied by *http.Client. Downloads only ever need Do, which lets
// callers pass their own client through the download options.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Options struct {
	// MaxRetries is the number of transport level retries. Zero means a single
	// attempt per request.
	MaxRetries     int
	ConnectTimeout time.Duration
	MaxConnPerHost int
	ForceHTTP2     bool
	// ResolveOverrides maps host:port to ip:port, bypassing DNS.
	ResolveOverrides map[string]string
	// CacheHosts and CacheURIPrefixes route matching URLs through a pull-through cache.
	CacheHosts       []string
	CacheURIPrefixes []string
	// Transport replaces the default base transport. Used by tests.
	Transport http.RoundTripper
}

// HTTPClient is an http.Client whose transport sets our User-Agent, honors DNS
// overrides and cache routing, and retries failed attempts with jittered backoff.
type HTTPClient struct {
	*http.Client
}

var _ Doer = &HTTPClient{}

type userAgentTransport struct {
	Transport http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", version.UserAgent())
	return t.Transport.RoundTrip(req)
}

// NewHTTPClient builds the client used for every download of a batch.
func NewHTTPClient(opts Options) *HTTPClient {
	var transport http.RoundTripper
	if opts.Transport != nil {
		transport = opts.Transport
	} else {
		transport = newBaseTransport(opts)
	}
	transport = &userAgentTransport{Transport: transport}
	if len(opts.CacheHosts) > 0 {
		transport = newCacheRoutingTransport(transport, consistent.NewRing(opts.CacheHosts), opts.CacheURIPrefixes)
	}

	retryClient := &retryablehttp.Client{
		HTTPClient: &http.Client{
			Transport:     transport,
			CheckRedirect: checkRedirectFunc,
		},
		Logger:       nil,
		RetryWaitMin: retryMinWait,
		RetryWaitMax: retryMaxWait,
		RetryMax:     opts.MaxRetries,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      backoffFunc,
		// Hand the last response back as-is so status codes reach the downloader
		// instead of a generic "giving up" error.
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	return &HTTPClient{Client: retryClient.StandardClient()}
}

func newBaseTransport(opts Options) *http.Transport {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	baseTransport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: transportDialContext(&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}, opts.ResolveOverrides),
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// Bodies are delivered exactly as sent; no transparent gzip decoding.
		DisableCompression: true,
	}
	if opts.MaxConnPerHost > 0 {
		baseTransport.MaxConnsPerHost = opts.MaxConnPerHost
	}
	if opts.ForceHTTP2 {
		protocols := new(http.Protocols)
		protocols.SetHTTP2(true)
		protocols.SetUnencryptedHTTP2(true)
		baseTransport.Protocols = protocols
	}
	return baseTransport
}

// backoffFunc adds a random jitter to retryablehttp.DefaultBackoff so that a
// large parallel batch does not retry in lockstep.
func backoffFunc(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	sleep := time.Duration(rand.Intn(retrySleepJitter)) * time.Millisecond
	sleep += retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
	return sleep
}

// checkRedirectFunc logs redirects and otherwise keeps the default policy.
func checkRedirectFunc(req *http.Request, via []*http.Request) error {
	logger := logging.GetLogger()
	logger.Trace().
		Str("redirect_url", req.URL.String()).
		Str("url", via[0].URL.String()).
		Int("status", req.Response.StatusCode).
		Msg("Redirect")
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return nil
}

// transportDialContext allows for overriding DNS lookups via the values passed to
// `--resolve` without impacting Host and SSL resolution.
func transportDialContext(dialer *net.Dialer, overrides map[string]string) func(context.Context, string, string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if addrOverride := overrides[addr]; addrOverride != "" {
			logger := logging.GetLogger()
			logger.Debug().Str("addr", addr).Str("override", addrOverride).Msg("DNS Override")
			addr = addrOverride
		}
		return dialer.DialContext(ctx, network, addr)
	}
}
