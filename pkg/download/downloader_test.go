package download

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicate/batchget/pkg/sink"
)

func TestCallbackFiresOnceWithEveryOutcome(t *testing.T) {
	server := newTestServer(t)
	urls := []string{
		server.URL + "/bytes/10",
		server.URL + "/status/404",
		server.URL + "/bytes/2048",
		closedServerURL(),
		server.URL + "/status/500",
		server.URL + "/named/a.txt",
	}

	for _, mode := range []Mode{ModeParallel, ModeQueue} {
		t.Run(string(mode), func(t *testing.T) {
			d := New(Config{Mode: mode})
			require.NoError(t, d.Add(urls))

			errs, results := runBatch(t, d)
			assert.Len(t, errs, 3)
			assert.Len(t, results, 3)
			assert.Equal(t, len(urls), len(errs)+len(results))
		})
	}
}

func TestErrsIsNilWhenEverythingSucceeds(t *testing.T) {
	server := newTestServer(t)
	d := New(Config{})
	require.NoError(t, d.Add([]string{server.URL + "/bytes/1", server.URL + "/bytes/2"}))

	errs, results := runBatch(t, d)
	assert.Nil(t, errs)
	assert.Len(t, results, 2)
}

func TestEmptyBatch(t *testing.T) {
	errs, results := runBatch(t, New(Config{}))
	assert.Nil(t, errs)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestParallelOneFailureTwoSuccesses(t *testing.T) {
	server := newTestServer(t)
	d := New(Config{Mode: ModeParallel})
	require.NoError(t, d.Add([]string{
		server.URL + "/slow/50",
		server.URL + "/status/503",
		server.URL + "/bytes/100",
	}))

	errs, results := runBatch(t, d)
	require.Len(t, errs, 1)
	assert.Len(t, results, 2)
	assert.Equal(t, KindHTTPStatus, errs[0].Kind())
	assert.Equal(t, server.URL+"/status/503", errs[0].URL)
}

func TestQueueRunsInRegistrationOrder(t *testing.T) {
	server := newTestServer(t)
	urls := []string{
		server.URL + "/slow/60",
		server.URL + "/bytes/1",
		server.URL + "/slow/30",
		server.URL + "/bytes/2",
	}
	d := New(Config{Mode: ModeQueue})
	require.NoError(t, d.Add(urls))

	errs, results := runBatch(t, d)
	require.Nil(t, errs)
	require.Len(t, results, len(urls))
	for i, res := range results {
		assert.Equal(t, urls[i], res.URL)
	}
}

func TestQueueIsSequential(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	server := newTestServer(t)
	observer := &funcObserver{
		started: func(*Task) {
			n := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
		},
		finished: func(*Task, Outcome) { inFlight.Add(-1) },
	}
	d := New(Config{Mode: ModeQueue, Observer: observer})
	for range 5 {
		require.NoError(t, d.Add(server.URL+"/slow/10"))
	}
	_, results := runBatch(t, d)
	assert.Len(t, results, 5)
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestQueueTryTimeout(t *testing.T) {
	server := newTestServer(t)
	d := New(Config{Mode: ModeQueue, Options: Options{TryTimeout: 50 * time.Millisecond}})
	require.NoError(t, d.Add([]string{server.URL + "/slow/200", server.URL + "/bytes/5"}))

	start := time.Now()
	errs, results := runBatch(t, d)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, errs, 1)
	var netErr *NetworkError
	require.ErrorAs(t, errs[0].Err, &netErr)
	assert.True(t, netErr.Timeout())
	assert.ErrorIs(t, errs[0].Err, ErrTimeout)
	assert.Equal(t, KindNetwork, errs[0].Kind())

	require.Len(t, results, 1)
	assert.Equal(t, server.URL+"/bytes/5", results[0].URL)
}

func TestTryTimeoutIgnoredInParallelMode(t *testing.T) {
	server := newTestServer(t)
	d := New(Config{Options: Options{TryTimeout: 10 * time.Millisecond}})
	require.NoError(t, d.Add(server.URL+"/slow/100"))

	errs, results := runBatch(t, d)
	assert.Nil(t, errs)
	assert.Len(t, results, 1)
}

func TestAddRejectsInvalidTargets(t *testing.T) {
	tests := []struct {
		name   string
		target any
	}{
		{"int", 42},
		{"nil", nil},
		{"int slice", []int{1, 2}},
		{"map", map[string]string{"a": "b"}},
		{"nil url", (*url.URL)(nil)},
		{"url list with nil", []*url.URL{{Scheme: "http", Host: "a"}, nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(Config{})
			err := d.Add(tt.target)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			var argErr *ArgumentError
			assert.ErrorAs(t, err, &argErr)
			assert.Equal(t, 0, d.Len())
		})
	}
}

func TestAddAcceptsURLs(t *testing.T) {
	d := New(Config{})
	u, _ := url.Parse("http://example.com/a")
	require.NoError(t, d.Add("http://example.com/b"))
	require.NoError(t, d.Add([]string{"http://example.com/c", "http://example.com/c"}))
	require.NoError(t, d.Add(u))
	require.NoError(t, d.Add([]*url.URL{u}))
	require.NoError(t, d.Add([]string{}))
	assert.Equal(t, 5, d.Len())
	assert.Equal(t, "http://example.com/a", d.tasks[3].URL)
}

func TestDownloadConvenience(t *testing.T) {
	server := newTestServer(t)

	called := 0
	err := Download(t.Context(), 3.14, Config{}, func([]Failure, []Result) { called++ })
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 0, called)

	var results []Result
	err = Download(t.Context(), []string{server.URL + "/bytes/3"}, Config{Mode: ModeQueue}, func(e []Failure, r []Result) {
		called++
		assert.Nil(t, e)
		results = r
	})
	require.NoError(t, err)
	assert.Equal(t, 1, called)
	require.Len(t, results, 1)
	assert.Equal(t, []byte("xxx"), results[0].Content)
}

func TestRunClearsRegistrations(t *testing.T) {
	server := newTestServer(t)
	d := New(Config{})
	require.NoError(t, d.Add(server.URL+"/bytes/1"))
	_, results := runBatch(t, d)
	assert.Len(t, results, 1)
	assert.Equal(t, 0, d.Len())

	require.NoError(t, d.Add([]string{server.URL + "/bytes/2", server.URL + "/bytes/3"}))
	_, results = runBatch(t, d)
	assert.Len(t, results, 2)
}

func TestOptionsAreIsolatedPerTask(t *testing.T) {
	server := newTestServer(t)
	defaults := Options{Header: http.Header{"X-Batch": {"default"}}}
	d := New(Config{Mode: ModeQueue, Options: defaults})

	require.NoError(t, d.Add(server.URL+"/echo-header/X-Batch", Options{Header: http.Header{"X-Batch": {"override"}}}))
	require.NoError(t, d.Add([]string{server.URL + "/echo-header/X-Batch", server.URL + "/echo-header/X-Batch"}))

	// mutating one task's options must not leak into its siblings or the defaults
	d.tasks[1].opts.Header.Set("X-Batch", "mutated")
	d.tasks[1].opts.MaxSize = 1
	assert.Equal(t, "default", d.tasks[2].opts.Header.Get("X-Batch"))
	assert.Equal(t, int64(0), d.tasks[2].opts.MaxSize)
	assert.Equal(t, "default", d.defaults.Header.Get("X-Batch"))
	assert.Equal(t, "default", defaults.Header.Get("X-Batch"))

	errs, results := runBatch(t, d)
	require.Len(t, errs, 1)
	assert.Equal(t, KindSizeLimit, errs[0].Kind())
	require.Len(t, results, 2)
	assert.Equal(t, "override", string(results[0].Content))
	assert.Equal(t, "default", string(results[1].Content))
}

func TestDefaultTimeout(t *testing.T) {
	d := New(Config{})
	assert.Equal(t, DefaultTimeout, d.defaults.Timeout)
	assert.Equal(t, ModeParallel, d.mode)

	d = New(Config{Options: Options{Timeout: time.Second}})
	assert.Equal(t, time.Second, d.defaults.Timeout)
}

func TestCancelledContext(t *testing.T) {
	server := newTestServer(t)
	d := New(Config{})
	require.NoError(t, d.Add([]string{server.URL + "/bytes/1", server.URL + "/slow/50"}))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	calls := 0
	d.Run(ctx, func(errs []Failure, results []Result) {
		calls++
		require.Len(t, errs, 2)
		assert.Empty(t, results)
		for _, f := range errs {
			assert.Equal(t, KindNetwork, f.Kind())
			assert.ErrorIs(t, f, context.Canceled)
		}
	})
	assert.Equal(t, 1, calls)
}

type funcObserver struct {
	started  func(*Task)
	finished func(*Task, Outcome)
}

func (f *funcObserver) TaskStarted(task *Task) {
	if f.started != nil {
		f.started(task)
	}
}

func (f *funcObserver) TaskFinished(task *Task, outcome Outcome) {
	if f.finished != nil {
		f.finished(task, outcome)
	}
}

func TestObserverSeesEveryTask(t *testing.T) {
	server := newTestServer(t)
	var (
		mu       sync.Mutex
		started  = map[string]bool{}
		finished = map[string]Outcome{}
	)
	observer := &funcObserver{
		started: func(task *Task) {
			mu.Lock()
			defer mu.Unlock()
			started[task.ID] = true
		},
		finished: func(task *Task, o Outcome) {
			mu.Lock()
			defer mu.Unlock()
			assert.True(t, started[task.ID], "finished before started")
			finished[task.ID] = o
		},
	}
	d := New(Config{Observer: Observers{observer, nil}})
	require.NoError(t, d.Add([]string{server.URL + "/bytes/100", server.URL + "/status/404"}))
	runBatch(t, d)

	assert.Len(t, started, 2)
	require.Len(t, finished, 2)
	var total int64
	for _, o := range finished {
		total += o.Bytes
		assert.True(t, o.Elapsed > 0)
	}
	assert.Equal(t, int64(100), total)
}

func TestSharedSinkReceivesEveryBody(t *testing.T) {
	server := newTestServer(t)
	shared := &recordingSink{}
	d := New(Config{Mode: ModeQueue, Options: Options{Sink: shared}})
	require.NoError(t, d.Add([]string{server.URL + "/bytes/3", server.URL + "/bytes/4"}))

	errs, results := runBatch(t, d)
	require.Nil(t, errs)
	for _, r := range results {
		assert.NotNil(t, r.Content)
		assert.Empty(t, r.Content)
	}
	assert.Equal(t, "xxxxxxx", shared.buf.String())
}

func TestSharedSinkIsClosedAndAbortedByTasks(t *testing.T) {
	server := newTestServer(t)
	shared := &recordingSink{}
	d := New(Config{Mode: ModeParallel, Options: Options{Sink: shared, MaxSize: 5}})
	require.NoError(t, d.Add([]string{server.URL + "/bytes/3", server.URL + "/bytes/10"}))

	errs, results := runBatch(t, d)
	require.Len(t, errs, 1)
	require.Len(t, results, 1)
	assert.ErrorIs(t, errs[0], ErrSizeLimitExceeded)

	shared.mu.Lock()
	defer shared.mu.Unlock()
	assert.True(t, shared.closed)
	assert.True(t, shared.aborted)
}

func TestTaskIDsAreUnique(t *testing.T) {
	d := New(Config{})
	require.NoError(t, d.Add([]string{"http://a", "http://a", "http://a"}))
	seen := map[string]bool{}
	for _, task := range d.tasks {
		assert.False(t, seen[task.ID])
		seen[task.ID] = true
	}
}

func TestFailureUnwraps(t *testing.T) {
	f := Failure{URL: "http://a", Err: &SizeLimitError{Limit: 1, Received: 2}}
	assert.True(t, errors.Is(f, ErrSizeLimitExceeded))
	assert.Equal(t, KindSizeLimit, f.Kind())
	assert.Equal(t, f.Err.Error(), f.Error())
}

var _ sink.Sink = &recordingSink{}
