package download

import (
	"net/http"
	"sync"
	"time"

	"github.com/replicate/batchget/pkg/client"
	"github.com/replicate/batchget/pkg/sink"
)

const DefaultTimeout = 60 * time.Second

type Options struct {
	// Timeout bounds the wait for response headers and the gap between any
	// two body chunks. Zero disables it.
	Timeout time.Duration

	// TryTimeout replaces Timeout for tasks run in queue mode.
	TryTimeout time.Duration

	// MaxSize caps the body size in bytes. Zero or negative disables the cap.
	MaxSize int64

	// Sink is shared by every task and receives every body instead of a
	// per-task memory buffer. Writes from parallel tasks interleave, every
	// successful task closes it and any failed task aborts it for all the
	// others. Use NewSink to give each task its own sink.
	Sink sink.Sink

	// NewSink creates a sink for each task once its response is accepted.
	NewSink sink.Factory

	Header http.Header
	Client client.Doer
}

// merge returns a copy of o with every non-zero field of the overrides
// applied in order. Header keys are merged; o itself is never modified.
func (o Options) merge(overrides ...Options) Options {
	merged := o.clone()
	for _, ov := range overrides {
		if ov.Timeout != 0 {
			merged.Timeout = ov.Timeout
		}
		if ov.TryTimeout != 0 {
			merged.TryTimeout = ov.TryTimeout
		}
		if ov.MaxSize != 0 {
			merged.MaxSize = ov.MaxSize
		}
		if ov.Sink != nil {
			merged.Sink = ov.Sink
		}
		if ov.NewSink != nil {
			merged.NewSink = ov.NewSink
		}
		if ov.Client != nil {
			merged.Client = ov.Client
		}
		for k, v := range ov.Header {
			if merged.Header == nil {
				merged.Header = make(http.Header)
			}
			merged.Header[k] = append([]string(nil), v...)
		}
	}
	return merged
}

func (o Options) clone() Options {
	o.Header = o.Header.Clone()
	return o
}

var defaultClient = sync.OnceValue(func() client.Doer {
	return client.NewHTTPClient(client.Options{})
})

func (o Options) client() client.Doer {
	if o.Client != nil {
		return o.Client
	}
	return defaultClient()
}
