package download

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/dustin/go-humanize"
)

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrSizeLimitExceeded = errors.New("size limit exceeded")
	ErrTimeout           = errors.New("timeout exceeded")
)

// ErrorKind classifies the failure of a single task.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindHTTPStatus ErrorKind = "http_status"
	KindSizeLimit  ErrorKind = "size_limit"
	KindSink       ErrorKind = "sink"
	KindUnknown    ErrorKind = "unknown"
)

// ArgumentError is returned synchronously when a registration call is given
// something that is not a URL or a list of URLs.
type ArgumentError struct {
	Value  any
	Reason string
}

var _ error = &ArgumentError{}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %#v: %s", e.Value, e.Reason)
}

func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// NetworkError wraps a transport failure: refused connections, DNS errors,
// and requests that went idle for longer than their timeout.
type NetworkError struct {
	URL string
	Err error
}

var _ error = &NetworkError{}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, ErrTimeout) || errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

type HttpStatusError struct {
	StatusCode int
}

func ErrUnexpectedHTTPStatus(statusCode int) error {
	return HttpStatusError{StatusCode: statusCode}
}

var _ error = &HttpStatusError{}

func (c HttpStatusError) Error() string {
	return fmt.Sprintf("Status code %d", c.StatusCode)
}

// SizeLimitError reports a body that grew past the configured cap. Received
// counts the bytes accepted so far plus the chunk that was rejected.
type SizeLimitError struct {
	Limit    int64
	Received int64
}

var _ error = &SizeLimitError{}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("size limit exceeded: received at least %s, limit is %s",
		humanize.Bytes(uint64(e.Received)), humanize.Bytes(uint64(e.Limit)))
}

func (e *SizeLimitError) Is(target error) bool {
	return target == ErrSizeLimitExceeded
}

// SinkError reports a sink that could not be created, written or closed.
type SinkError struct {
	Op  string
	Err error
}

var _ error = &SinkError{}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s failed: %v", e.Op, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// KindOf classifies err. Errors that did not come from a download are
// KindUnknown.
func KindOf(err error) ErrorKind {
	var (
		statusErr HttpStatusError
		netErr    *NetworkError
		sinkErr   *SinkError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSizeLimitExceeded):
		return KindSizeLimit
	case errors.As(err, &statusErr):
		return KindHTTPStatus
	case errors.As(err, &sinkErr):
		return KindSink
	case errors.As(err, &netErr):
		return KindNetwork
	}
	return KindUnknown
}
