package download

import (
	"context"
	"io"
	"time"

	"github.com/replicate/batchget/pkg/sink"
)

// guardedWriter enforces the size cap in front of a sink. A chunk that would
// take the total past the limit is rejected whole, so the sink never holds
// more than limit bytes.
type guardedWriter struct {
	sink    sink.Sink
	limit   int64
	written int64
}

func (g *guardedWriter) Write(p []byte) (int, error) {
	if g.limit > 0 && g.written+int64(len(p)) > g.limit {
		return 0, &SizeLimitError{Limit: g.limit, Received: g.written + int64(len(p))}
	}
	n, err := g.sink.Write(p)
	g.written += int64(n)
	if err != nil {
		return n, &SinkError{Op: "write", Err: err}
	}
	if n != len(p) {
		return n, &SinkError{Op: "write", Err: io.ErrShortWrite}
	}
	return n, nil
}

// idleTimer cancels a request once no progress has been made for d.
type idleTimer struct {
	d time.Duration
	t *time.Timer
}

func newIdleTimer(d time.Duration, cancel context.CancelCauseFunc) *idleTimer {
	if d <= 0 {
		return &idleTimer{}
	}
	return &idleTimer{d: d, t: time.AfterFunc(d, func() { cancel(ErrTimeout) })}
}

func (i *idleTimer) reset() {
	if i.t != nil {
		i.t.Reset(i.d)
	}
}

func (i *idleTimer) stop() {
	if i.t != nil {
		i.t.Stop()
	}
}
