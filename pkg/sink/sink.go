package sink

import (
	"io"
)

// Sink receives the body of a successful response. Close marks the
// download as complete; a sink that is closed has been finalized.
type Sink interface {
	io.Writer
	Close() error
}

// Aborter is implemented by sinks that can discard partial output. Abort is
// called instead of Close when a download fails after writing has started.
type Aborter interface {
	Abort(err error)
}

// Target describes the download a sink is being created for.
type Target struct {
	URL      string
	Filename string
}

// Factory creates a sink for a single download. It is called once per task,
// after the response status has been accepted.
type Factory func(Target) (Sink, error)

// Discard finalizes nothing and drops partial output if s supports it.
func Discard(s Sink, err error) {
	if a, ok := s.(Aborter); ok {
		a.Abort(err)
	}
}
