package download

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task downloads a single URL. Its options are a private copy, so nothing a
// task does is visible to the other tasks of its batch.
type Task struct {
	ID  string
	URL string

	opts    Options
	onStart func(*Task)
}

func newTask(url string, opts Options) *Task {
	return &Task{
		ID:   uuid.NewString(),
		URL:  url,
		opts: opts.clone(),
	}
}

// Options returns a copy of the task's merged options.
func (t *Task) Options() Options {
	return t.opts.clone()
}

// Run downloads the task's URL using its own timeout.
func (t *Task) Run(ctx context.Context) Outcome {
	return t.run(ctx, t.opts.Timeout)
}

// Result is a successful download. Filename is empty when the response had
// no quoted Content-Disposition filename. Content holds the body when the
// default memory sink was used and is empty otherwise.
type Result struct {
	URL      string
	Filename string
	Content  []byte
}

type Failure struct {
	URL string
	Err error
}

func (f Failure) Error() string {
	return f.Err.Error()
}

func (f Failure) Unwrap() error {
	return f.Err
}

func (f Failure) Kind() ErrorKind {
	return KindOf(f.Err)
}

// Outcome is the terminal report of one task. Exactly one of Result and
// Failure is set.
type Outcome struct {
	Result  *Result
	Failure *Failure

	// Bytes counts body bytes accepted by the sink.
	Bytes   int64
	Elapsed time.Duration
}

func (o Outcome) Err() error {
	if o.Failure == nil {
		return nil
	}
	return o.Failure.Err
}
