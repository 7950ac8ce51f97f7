package jewelgen

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Defaults for batch processing.
const (
	DefaultWorkers = 2
	DefaultTimeout = 600 * time.Second
)

// ProcessFunc handles one inbox file. The context carries the per-file
// deadline.
type ProcessFunc func(ctx context.Context, f InboxFile) (*JobResult, error)

// FileResult pairs an inbox file with its outcome.
type FileResult struct {
	File     InboxFile
	Job      *JobResult
	Err      error
	TimedOut bool
}

// BatchStats aggregates a run.
type BatchStats struct {
	Total     int
	Processed int
	Done      int
	Partial   int
	Failed    int
	Start     time.Time
	End       time.Time
}

// Batch processes independent files on a bounded worker pool. Each file gets
// its own wall-clock timeout covering its whole artifact sequence; failures
// never stop the remaining files.
type Batch struct {
	Workers int
	Timeout time.Duration
	Process ProcessFunc
}

// NewBatch returns a batch runner with default worker count and timeout.
func NewBatch(process ProcessFunc) *Batch {
	return &Batch{Workers: DefaultWorkers, Timeout: DefaultTimeout, Process: process}
}

// Run processes all files and returns per-file results in completion order
// plus aggregate stats.
func (b *Batch) Run(ctx context.Context, files []InboxFile) ([]FileResult, BatchStats) {
	stats := BatchStats{Total: len(files), Start: time.Now()}

	workers := b.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	klog.Infof("starting batch: %d files, %d workers, %s timeout per file", len(files), workers, timeout)

	var mu sync.Mutex
	results := []FileResult{}

	g := new(errgroup.Group)
	g.SetLimit(workers)

	for _, f := range files {
		f := f
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			job, err := b.Process(fctx, f)
			r := FileResult{File: f, Job: job, Err: err}
			if errors.Is(fctx.Err(), context.DeadlineExceeded) {
				r.TimedOut = true
			}

			mu.Lock()
			defer mu.Unlock()
			stats.Processed++
			switch {
			case err == nil && job != nil && job.Status == StatusDone:
				stats.Done++
				klog.Infof("done: %s -> %s", f.Path, job.JobID)
			case r.TimedOut:
				// a timeout is a failed file even when some artifacts
				// landed; the job's meta keeps them for the retry
				stats.Failed++
				klog.Errorf("timeout: %s (>%s)", f.Path, timeout)
			case err == nil && job != nil && job.Status == StatusPartial:
				stats.Partial++
				klog.Warningf("partial: %s -> %s", f.Path, job.JobID)
			default:
				stats.Failed++
				klog.Errorf("failed: %s: %v", f.Path, err)
			}
			results = append(results, r)
			return nil
		})
	}

	// workers never return errors; they record them per file instead
	_ = g.Wait()

	stats.End = time.Now()
	klog.Infof("batch complete: total=%d done=%d partial=%d failed=%d duration=%s",
		stats.Total, stats.Done, stats.Partial, stats.Failed, stats.End.Sub(stats.Start).Round(time.Second))
	return results, stats
}
