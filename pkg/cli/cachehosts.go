package cli

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// LookupCacheHosts resolves the http SRV record srvName into the slot-ordered
// cache host list used for consistent hashing. A host named cache-N lands in
// slot N; slots nobody answers for stay empty and route to origin.
func LookupCacheHosts(ctx context.Context, srvName string) ([]string, error) {
	_, srvs, err := net.DefaultResolver.LookupSRV(ctx, "http", "tcp", srvName)
	if err != nil {
		return nil, err
	}
	return orderCacheHosts(srvs)
}

var slotSuffix = regexp.MustCompile(`^[a-z0-9-]*-([0-9]+)[.]`)

type cacheSlot struct {
	index int
	host  string
}

func orderCacheHosts(srvs []*net.SRV) ([]string, error) {
	slots := make([]cacheSlot, 0, len(srvs))
	size := 0
	for _, srv := range srvs {
		index, err := slotOf(srv.Target)
		if err != nil {
			return nil, err
		}
		host := strings.TrimSuffix(srv.Target, ".")
		if srv.Port != 80 {
			host = net.JoinHostPort(host, strconv.Itoa(int(srv.Port)))
		}
		slots = append(slots, cacheSlot{index: index, host: host})
		size = max(size, index+1)
	}

	hosts := make([]string, size)
	for _, slot := range slots {
		if hosts[slot.index] != "" {
			return nil, fmt.Errorf("cache slot %d claimed by both %s and %s", slot.index, hosts[slot.index], slot.host)
		}
		hosts[slot.index] = slot.host
	}
	return hosts, nil
}

func slotOf(target string) (int, error) {
	m := slotSuffix.FindStringSubmatch(target)
	if m == nil {
		return -1, fmt.Errorf("cache host %q has no numeric slot suffix", target)
	}
	return strconv.Atoi(m[1])
}
