package sink

import "errors"

var (
	ErrClosed      = errors.New("sink already closed")
	ErrDestination = errors.New("destination already exists")
)
