package download

import (
	"context"
	"net/url"
	"sync"

	"github.com/replicate/batchget/pkg/logging"
)

// Callback receives the outcome of a batch. errs is nil when every task
// succeeded; both slices are in the order outcomes arrived.
type Callback func(errs []Failure, results []Result)

type Config struct {
	// Mode defaults to ModeParallel.
	Mode Mode
	Options
	Observer Observer
}

// Downloader collects tasks with Add and runs them as one batch with Run.
type Downloader struct {
	mode     Mode
	defaults Options
	observer Observer

	mu    sync.Mutex
	tasks []*Task
}

func New(cfg Config) *Downloader {
	defaults := cfg.Options.clone()
	if defaults.Timeout == 0 {
		defaults.Timeout = DefaultTimeout
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeParallel
	}
	return &Downloader{mode: mode, defaults: defaults, observer: cfg.Observer}
}

// Add registers one task per URL in target, which must be a string,
// []string, *url.URL or []*url.URL. overrides are merged over the
// Downloader's defaults for these tasks only. If target is invalid an
// *ArgumentError is returned and nothing is registered.
func (d *Downloader) Add(target any, overrides ...Options) error {
	urls, err := targetURLs(target)
	if err != nil {
		return err
	}
	opts := d.defaults.merge(overrides...)

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range urls {
		d.tasks = append(d.tasks, newTask(u, opts))
	}
	return nil
}

// Len returns the number of registered tasks.
func (d *Downloader) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// Run downloads every registered task, calls done exactly once with the
// aggregated outcome and returns. The registration list is cleared so the
// Downloader can be reused for another batch.
func (d *Downloader) Run(ctx context.Context, done Callback) {
	d.mu.Lock()
	tasks := d.tasks
	d.tasks = nil
	d.mu.Unlock()

	logger := logging.GetLogger()
	logger.Debug().
		Str("mode", string(d.mode)).
		Int("tasks", len(tasks)).
		Msg("Starting batch")

	var agg aggregator
	schedulerFor(d.mode).RunBatch(ctx, d.notifyStart(tasks), func(task *Task, outcome Outcome) {
		agg.record(outcome)
		if d.observer != nil {
			d.observer.TaskFinished(task, outcome)
		}
	})

	errs, results := agg.collect()
	logger.Debug().
		Int("succeeded", len(results)).
		Int("failed", len(errs)).
		Msg("Batch complete")
	if done != nil {
		done(errs, results)
	}
}

// notifyStart makes each task tell the observer when it actually starts,
// which in queue mode is long after it was scheduled.
func (d *Downloader) notifyStart(tasks []*Task) []*Task {
	if d.observer != nil {
		for _, task := range tasks {
			task.onStart = d.observer.TaskStarted
		}
	}
	return tasks
}

// Download registers target with opts on a fresh Downloader and runs it.
// Only an invalid target is returned as an error; download failures are
// passed to done.
func Download(ctx context.Context, target any, opts Config, done Callback) error {
	d := New(opts)
	if err := d.Add(target); err != nil {
		return err
	}
	d.Run(ctx, done)
	return nil
}

func targetURLs(target any) ([]string, error) {
	switch v := target.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return append([]string(nil), v...), nil
	case *url.URL:
		if v == nil {
			return nil, &ArgumentError{Value: target, Reason: "nil URL"}
		}
		return []string{v.String()}, nil
	case []*url.URL:
		urls := make([]string, 0, len(v))
		for _, u := range v {
			if u == nil {
				return nil, &ArgumentError{Value: target, Reason: "nil URL in list"}
			}
			urls = append(urls, u.String())
		}
		return urls, nil
	}
	return nil, &ArgumentError{Value: target, Reason: "expected a URL string or a list of URL strings"}
}
