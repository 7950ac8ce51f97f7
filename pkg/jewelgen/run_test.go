package jewelgen

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"
)

func TestNewRunID(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	id := NewRunID(ts)

	if ok, _ := regexp.MatchString(`^run_20260314_092653_[0-9a-f]{8}$`, id); !ok {
		t.Errorf("id = %q", id)
	}
	if NewRunID(ts) == id {
		t.Error("two ids from the same instant collide")
	}
}

func TestNewRunSummary(t *testing.T) {
	stats := BatchStats{
		Start:     time.Now().Add(-time.Minute),
		End:       time.Now(),
		Total:     3,
		Processed: 3,
		Done:      1,
		Partial:   1,
		Failed:    1,
	}
	results := []FileResult{
		{
			File: InboxFile{Path: "/in/ring/a.jpg", Type: "ring"},
			Job:  &JobResult{JobID: "Jaaaaaaaaaaa", Status: StatusDone, Artifacts: map[string]int{"desc": 1}},
		},
		{
			File: InboxFile{Path: "/in/ring/b.jpg", Type: "ring"},
			Job: &JobResult{
				JobID:  "Jbbbbbbbbbbb",
				Status: StatusPartial,
				Errors: []ErrorEntry{{Artifact: "wear", Error: "boom", Timestamp: time.Now()}},
			},
		},
		{
			File:     InboxFile{Path: "/in/necklace/c.jpg", Type: "necklace"},
			Err:      fmt.Errorf("deadline exceeded"),
			TimedOut: true,
		},
	}

	s := NewRunSummary("run_x", "/in", "folder", []string{"necklace", "ring"}, results, stats)

	if s.Success != 1 || s.Partial != 1 || s.Failed != 1 || s.TotalFiles != 3 {
		t.Errorf("counts = %+v", s)
	}
	if len(s.Jobs) != 3 {
		t.Fatalf("jobs = %d", len(s.Jobs))
	}
	if s.Jobs[0].File != "a.jpg" || s.Jobs[0].Status != StatusDone {
		t.Errorf("job 0 = %+v", s.Jobs[0])
	}
	// a file that produced no job at all reports as failed with its error
	if s.Jobs[2].Status != StatusFailed || !s.Jobs[2].TimedOut || len(s.Jobs[2].Errors) != 1 {
		t.Errorf("job 2 = %+v", s.Jobs[2])
	}
}

func TestRunSummarySave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs")
	s := &RunSummary{RunID: "run_20260314_092653_deadbeef", Mode: "flat", Jobs: []JobRecord{}}

	p, err := s.Save(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(p) != s.RunID+".json" {
		t.Errorf("path = %q", p)
	}

	bs, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	var got RunSummary
	if err := json.Unmarshal(bs, &got); err != nil {
		t.Fatal(err)
	}
	if got.RunID != s.RunID || got.Mode != "flat" {
		t.Errorf("round trip = %+v", got)
	}
}

func TestArchiveSuccess(t *testing.T) {
	root := t.TempDir()
	cfg := &Config{Root: root, OutRoot: "out"}

	src := filepath.Join(cfg.InboxDir(), "ring", "a.jpg")
	writeFile(t, src, "bytes")

	if err := ArchiveSuccess(cfg, "run_x", InboxFile{Path: src, Type: "ring"}); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(cfg.ArchiveDir(), "success", "run_x", "ring", "a.jpg")
	bs, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("archived file missing: %v", err)
	}
	if string(bs) != "bytes" {
		t.Errorf("content = %q", bs)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source still in inbox after archive")
	}
}
