package jewelgen

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func inboxFiles(n int) []InboxFile {
	files := make([]InboxFile, n)
	for i := range files {
		files[i] = InboxFile{Path: fmt.Sprintf("/inbox/ring/%02d.jpg", i), Type: "ring"}
	}
	return files
}

func TestBatchProcessesEverything(t *testing.T) {
	var calls atomic.Int32
	b := &Batch{
		Workers: 2,
		Timeout: time.Minute,
		Process: func(_ context.Context, f InboxFile) (*JobResult, error) {
			calls.Add(1)
			return &JobResult{JobID: "J" + f.Path, Status: StatusDone}, nil
		},
	}

	results, stats := b.Run(context.Background(), inboxFiles(7))

	if calls.Load() != 7 || len(results) != 7 {
		t.Fatalf("calls = %d, results = %d, want 7", calls.Load(), len(results))
	}
	if stats.Done != 7 || stats.Failed != 0 || stats.Processed != 7 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBatchContinuesPastFailures(t *testing.T) {
	b := &Batch{
		Workers: 1,
		Timeout: time.Minute,
		Process: func(_ context.Context, f InboxFile) (*JobResult, error) {
			switch f.Path {
			case "/inbox/ring/01.jpg":
				return nil, fmt.Errorf("synthetic failure")
			case "/inbox/ring/02.jpg":
				return &JobResult{Status: StatusPartial}, nil
			}
			return &JobResult{Status: StatusDone}, nil
		},
	}

	_, stats := b.Run(context.Background(), inboxFiles(5))

	if stats.Processed != 5 {
		t.Fatalf("a failure stopped the batch: %+v", stats)
	}
	if stats.Done != 3 || stats.Partial != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBatchWorkerLimit(t *testing.T) {
	var inflight, peak atomic.Int32
	b := &Batch{
		Workers: 2,
		Timeout: time.Minute,
		Process: func(_ context.Context, _ InboxFile) (*JobResult, error) {
			n := inflight.Add(1)
			defer inflight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			return &JobResult{Status: StatusDone}, nil
		},
	}

	b.Run(context.Background(), inboxFiles(8))

	if got := peak.Load(); got > 2 {
		t.Errorf("observed %d concurrent workers, limit is 2", got)
	}
	if got := peak.Load(); got < 2 {
		t.Logf("peak concurrency %d (timing dependent)", got)
	}
}

func TestBatchPerFileTimeout(t *testing.T) {
	b := &Batch{
		Workers: 2,
		Timeout: 30 * time.Millisecond,
		Process: func(ctx context.Context, f InboxFile) (*JobResult, error) {
			switch f.Path {
			case "/inbox/ring/00.jpg":
				// nothing produced before the deadline
				<-ctx.Done()
				return nil, ctx.Err()
			case "/inbox/ring/01.jpg":
				// deadline hit mid-job, some artifacts already landed
				<-ctx.Done()
				return &JobResult{Status: StatusPartial, Artifacts: map[string]int{"desc": 1}}, nil
			}
			return &JobResult{Status: StatusDone}, nil
		},
	}

	results, stats := b.Run(context.Background(), inboxFiles(3))

	// both timeout shapes count as failed, even the one with artifacts
	if stats.Failed != 2 || stats.Done != 1 || stats.Partial != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	for _, r := range results {
		switch r.File.Path {
		case "/inbox/ring/00.jpg", "/inbox/ring/01.jpg":
			if !r.TimedOut {
				t.Errorf("%s not marked as timed out", r.File.Path)
			}
		}
	}
}

func TestBatchDefaults(t *testing.T) {
	b := NewBatch(func(_ context.Context, _ InboxFile) (*JobResult, error) {
		return &JobResult{Status: StatusDone}, nil
	})
	if b.Workers != DefaultWorkers || b.Timeout != DefaultTimeout {
		t.Errorf("defaults = %d workers, %s timeout", b.Workers, b.Timeout)
	}

	// zero-valued knobs fall back to defaults rather than hanging
	z := &Batch{Process: b.Process}
	_, stats := z.Run(context.Background(), inboxFiles(1))
	if stats.Done != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
