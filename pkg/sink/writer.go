package sink

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// Writer buffers each body and copies it to a shared io.Writer on Close, so
// concurrent downloads never interleave their output.
type Writer struct {
	out *lockedWriter
	buf bytes.Buffer
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

var _ Sink = &Writer{}
var _ Aborter = &Writer{}

// WriterFactory returns a factory whose sinks all share out.
func WriterFactory(out io.Writer) Factory {
	lw := &lockedWriter{w: out}
	return func(Target) (Sink, error) {
		return &Writer{out: lw}, nil
	}
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.out == nil {
		return 0, ErrClosed
	}
	return w.buf.Write(p)
}

func (w *Writer) Close() error {
	if w.out == nil {
		return ErrClosed
	}
	out := w.out
	w.out = nil
	out.mu.Lock()
	defer out.mu.Unlock()
	if _, err := io.Copy(out.w, &w.buf); err != nil {
		return fmt.Errorf("error writing output: %w", err)
	}
	return nil
}

func (w *Writer) Abort(error) {
	w.out = nil
	w.buf.Reset()
}
