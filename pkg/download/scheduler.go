package download

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

type Mode string

const (
	ModeParallel Mode = "parallel"
	ModeQueue    Mode = "queue"
)

// Scheduler runs a batch of tasks and reports every outcome exactly once.
// RunBatch returns after the last report.
type Scheduler interface {
	RunBatch(ctx context.Context, tasks []*Task, report func(*Task, Outcome))
}

func schedulers() map[Mode]Scheduler {
	return map[Mode]Scheduler{
		ModeParallel: parallelScheduler{},
		ModeQueue:    queueScheduler{},
	}
}

// ParseMode validates a mode name. The empty string selects ModeParallel.
func ParseMode(name string) (Mode, error) {
	if name == "" {
		return ModeParallel, nil
	}
	mode := Mode(strings.ToLower(name))
	if _, ok := schedulers()[mode]; !ok {
		return "", fmt.Errorf("unknown mode: %s (expected one of %s)", name, strings.Join(modeNames(), ", "))
	}
	return mode, nil
}

func modeNames() []string {
	var names []string
	for mode := range schedulers() {
		names = append(names, string(mode))
	}
	sort.Strings(names)
	return names
}

func schedulerFor(mode Mode) Scheduler {
	if s, ok := schedulers()[mode]; ok {
		return s
	}
	return parallelScheduler{}
}

// parallelScheduler starts every task at once, without a concurrency limit.
type parallelScheduler struct{}

func (parallelScheduler) RunBatch(ctx context.Context, tasks []*Task, report func(*Task, Outcome)) {
	var g errgroup.Group
	for _, task := range tasks {
		g.Go(func() error {
			report(task, task.Run(ctx))
			return nil
		})
	}
	// tasks never return errors; failures are reported as outcomes
	_ = g.Wait()
}

// queueScheduler runs tasks one at a time in registration order. A task's
// TryTimeout, when positive, replaces its Timeout.
type queueScheduler struct{}

func (queueScheduler) RunBatch(ctx context.Context, tasks []*Task, report func(*Task, Outcome)) {
	q := newWorkQueue(len(tasks))
	q.start(ctx)
	for _, task := range tasks {
		q.submit(func(ctx context.Context) {
			timeout := task.opts.Timeout
			if task.opts.TryTimeout > 0 {
				timeout = task.opts.TryTimeout
			}
			report(task, task.run(ctx, timeout))
		})
	}
	q.close()
}
