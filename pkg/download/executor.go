package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/replicate/batchget/pkg/logging"
	"github.com/replicate/batchget/pkg/sink"
)

const chunkSize = 32 * humanize.KiByte

func (t *Task) run(ctx context.Context, timeout time.Duration) Outcome {
	if t.onStart != nil {
		t.onStart(t)
	}
	logger := logging.TaskLogger(t.ID, t.URL)
	startTime := time.Now()

	logger.Debug().
		Str("timeout", timeout.String()).
		Int64("max_size", t.opts.MaxSize).
		Msg("Downloading")

	result, written, err := t.fetch(ctx, timeout, logger)
	outcome := Outcome{Bytes: written, Elapsed: time.Since(startTime)}
	if err != nil {
		outcome.Failure = &Failure{URL: t.URL, Err: err}
		logger.Debug().
			Err(err).
			Str("kind", string(KindOf(err))).
			Str("elapsed", fmt.Sprintf("%.3fs", outcome.Elapsed.Seconds())).
			Msg("Failed")
		return outcome
	}
	outcome.Result = result

	throughput := "n/a"
	if secs := outcome.Elapsed.Seconds(); secs > 0 {
		throughput = fmt.Sprintf("%s/s", humanize.Bytes(uint64(float64(written)/secs)))
	}
	logger.Debug().
		Str("filename", result.Filename).
		Str("size", humanize.Bytes(uint64(written))).
		Str("elapsed", fmt.Sprintf("%.3fs", outcome.Elapsed.Seconds())).
		Str("throughput", throughput).
		Msg("Complete")
	return outcome
}

// fetch performs the request and streams the body into the task's sink. The
// request context is cancelled on every return path, which also releases
// the response body.
func (t *Task) fetch(ctx context.Context, timeout time.Duration, logger zerolog.Logger) (*Result, int64, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	idle := newIdleTimer(timeout, cancel)
	defer idle.stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return nil, 0, &NetworkError{URL: t.URL, Err: err}
	}
	for k, v := range t.opts.Header {
		req.Header[k] = v
	}

	resp, err := t.opts.client().Do(req)
	if err != nil {
		return nil, 0, t.networkError(ctx, err)
	}
	defer resp.Body.Close()
	idle.reset()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Debug().Int("status", resp.StatusCode).Msg("Unexpected status")
		return nil, 0, ErrUnexpectedHTTPStatus(resp.StatusCode)
	}

	filename := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	dst, mem, err := t.resolveSink(filename)
	if err != nil {
		return nil, 0, &SinkError{Op: "create", Err: err}
	}

	guard := &guardedWriter{sink: dst, limit: t.opts.MaxSize}
	if err := t.stream(ctx, guard, resp.Body, idle); err != nil {
		// stop the transfer before anything else touches the sink
		cancel(err)
		sink.Discard(dst, err)
		return nil, guard.written, err
	}
	if err := dst.Close(); err != nil {
		return nil, guard.written, &SinkError{Op: "close", Err: err}
	}

	content := []byte{}
	if mem != nil {
		content = mem.Bytes()
	}
	return &Result{URL: t.URL, Filename: filename, Content: content}, guard.written, nil
}

// resolveSink returns the sink for this task. mem is non-nil only when the
// default memory sink is used and its content should be returned.
func (t *Task) resolveSink(filename string) (dst sink.Sink, mem *sink.Memory, err error) {
	switch {
	case t.opts.Sink != nil:
		return t.opts.Sink, nil, nil
	case t.opts.NewSink != nil:
		dst, err = t.opts.NewSink(sink.Target{URL: t.URL, Filename: filename})
		if err != nil {
			return nil, nil, err
		}
		if dst == nil {
			return nil, nil, errors.New("sink factory returned no sink")
		}
		return dst, nil, nil
	}
	mem = sink.NewMemory()
	return mem, mem, nil
}

func (t *Task) stream(ctx context.Context, dst io.Writer, body io.Reader, idle *idleTimer) error {
	buf := make([]byte, chunkSize)
	for {
		nr, rerr := body.Read(buf)
		if nr > 0 {
			idle.reset()
			if _, werr := dst.Write(buf[:nr]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return t.networkError(ctx, rerr)
		}
	}
}

func (t *Task) networkError(ctx context.Context, err error) *NetworkError {
	if cause := context.Cause(ctx); errors.Is(cause, ErrTimeout) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return &NetworkError{URL: t.URL, Err: err}
}
