package batchget

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/replicate/batchget/pkg/download"
	"github.com/replicate/batchget/pkg/logging"
	"github.com/replicate/batchget/pkg/metrics"
)

var ErrBatchFailed = errors.New("one or more downloads failed")

// Getter runs batches on behalf of the CLI: it logs every outcome, summarizes
// the batch and optionally exports metrics.
type Getter struct {
	Config download.Config

	// MetricsFile, when set, receives the batch metrics in the Prometheus
	// textfile format.
	MetricsFile string
}

type Summary struct {
	Succeeded int
	Failed    int
	Bytes     int64
	Elapsed   time.Duration
	Failures  []download.Failure
}

// DownloadBatch downloads urls as a single batch. The returned error wraps
// ErrBatchFailed when any download failed; the Summary is always filled in.
func (g *Getter) DownloadBatch(ctx context.Context, urls []string) (Summary, error) {
	logger := logging.GetLogger()
	var (
		summary Summary
		tracker = &outcomeLogger{}
		obs     = download.Observers{tracker}
		prom    *metrics.Observer
	)
	if g.MetricsFile != "" {
		prom = metrics.New()
		obs = append(obs, prom)
	}
	if g.Config.Observer != nil {
		obs = append(obs, g.Config.Observer)
	}

	cfg := g.Config
	cfg.Observer = obs
	d := download.New(cfg)
	if err := d.Add(urls); err != nil {
		return summary, err
	}

	logger.Info().
		Int("urls", len(urls)).
		Str("mode", string(cmp.Or(cfg.Mode, download.ModeParallel))).
		Msg("Initiating")

	startTime := time.Now()
	d.Run(ctx, func(errs []download.Failure, results []download.Result) {
		summary.Failed = len(errs)
		summary.Succeeded = len(results)
		summary.Failures = errs
	})
	summary.Elapsed = time.Since(startTime)
	summary.Bytes = tracker.bytes.Load()

	throughput := "n/a"
	if secs := summary.Elapsed.Seconds(); secs > 0 {
		throughput = fmt.Sprintf("%s/s", humanize.Bytes(uint64(float64(summary.Bytes)/secs)))
	}
	logger.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Str("total_bytes_downloaded", humanize.Bytes(uint64(summary.Bytes))).
		Str("throughput", throughput).
		Str("elapsed_time", fmt.Sprintf("%.3fs", summary.Elapsed.Seconds())).
		Msg("Metrics")

	if prom != nil {
		if err := prom.WriteToTextfile(g.MetricsFile); err != nil {
			logger.Warn().Err(err).Msg("Metrics")
		}
	}

	if summary.Failed > 0 {
		return summary, fmt.Errorf("%w: %d of %d", ErrBatchFailed, summary.Failed, summary.Failed+summary.Succeeded)
	}
	return summary, nil
}

// outcomeLogger logs each finished download and totals the bytes received.
type outcomeLogger struct {
	bytes atomic.Int64
}

func (l *outcomeLogger) TaskStarted(task *download.Task) {
	logger := logging.TaskLogger(task.ID, task.URL)
	logger.Debug().Msg("Queueing Download")
}

func (l *outcomeLogger) TaskFinished(task *download.Task, outcome download.Outcome) {
	l.bytes.Add(outcome.Bytes)
	logger := logging.TaskLogger(task.ID, task.URL)
	if outcome.Failure != nil {
		logger.Error().
			Err(outcome.Failure.Err).
			Str("kind", string(outcome.Failure.Kind())).
			Msg("Failed")
		return
	}
	logger.Info().
		Str("filename", outcome.Result.Filename).
		Str("size", humanize.Bytes(uint64(outcome.Bytes))).
		Str("elapsed", fmt.Sprintf("%.3fs", outcome.Elapsed.Seconds())).
		Msg("Complete")
}
