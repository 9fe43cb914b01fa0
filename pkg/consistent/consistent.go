// Package consistent maps download URLs onto a fixed set of cache hosts.
package consistent

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dgryski/go-jump"
	"github.com/mitchellh/hashstructure/v2"
)

var ErrNoHosts = errors.New("no cache hosts configured")

type cacheKey struct {
	Key     any
	Attempt int
}

// HashBucket returns a bucket from [0,buckets). Buckets listed in previousBuckets
// are never returned, which lets a caller move on to another host after a
// failure. HashBucket sorts previousBuckets in place.
func HashBucket(key any, buckets int, previousBuckets ...int) (int, error) {
	if len(previousBuckets) >= buckets {
		return -1, fmt.Errorf("no more buckets left: %d buckets available but %d already attempted", buckets, len(previousBuckets))
	}
	// IgnoreZeroValue keeps hashes stable when fields are added to the key later.
	// A HashOptions must not be shared between calls.
	hashopts := &hashstructure.HashOptions{IgnoreZeroValue: true}
	hash, err := hashstructure.Hash(cacheKey{Key: key, Attempt: len(previousBuckets)}, hashstructure.FormatV2, hashopts)
	if err != nil {
		return -1, fmt.Errorf("error calculating hash of key: %w", err)
	}

	// Jump Consistent Hash, see http://arxiv.org/abs/1406.2294
	bucket := int(jump.Hash(hash, buckets-len(previousBuckets)))
	slices.Sort(previousBuckets)
	for _, prev := range previousBuckets {
		if bucket >= prev {
			bucket++
		}
	}
	return bucket, nil
}

// Ring is an ordered list of cache hosts. Host order matters: removing a host
// from the end only remaps the keys that hashed to it.
type Ring struct {
	hosts []string
}

func NewRing(hosts []string) *Ring {
	return &Ring{hosts: slices.Clone(hosts)}
}

func (r *Ring) Len() int {
	if r == nil {
		return 0
	}
	return len(r.hosts)
}

// Pick returns the host responsible for key, skipping the hosts in exclude.
func (r *Ring) Pick(key string, exclude ...string) (string, error) {
	if r.Len() == 0 {
		return "", ErrNoHosts
	}
	var previous []int
	for _, host := range exclude {
		if idx := slices.Index(r.hosts, host); idx >= 0 && !slices.Contains(previous, idx) {
			previous = append(previous, idx)
		}
	}
	bucket, err := HashBucket(key, len(r.hosts), previous...)
	if err != nil {
		return "", err
	}
	return r.hosts[bucket], nil
}
