package sink

import (
	"bytes"
	"sync"
)

// Memory buffers the whole body. It is the default sink of a download.
type Memory struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

var _ Sink = &Memory{}
var _ Aborter = &Memory{}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.buf.Write(p)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) Abort(error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.buf.Reset()
}

// Bytes returns the buffered content. The returned slice is never nil.
func (m *Memory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.buf.Bytes()
	if b == nil {
		return []byte{}
	}
	return b
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Len()
}
