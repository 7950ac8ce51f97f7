package jewelgen

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/otiai10/copy"
	"k8s.io/klog/v2"
)

// JobRecord is one file's entry in a run summary.
type JobRecord struct {
	File        string         `json:"file"`
	JewelryType string         `json:"jewelry_type"`
	JobID       string         `json:"job_id,omitempty"`
	Status      string         `json:"status"`
	Artifacts   map[string]int `json:"artifacts,omitempty"`
	Errors      []ErrorEntry   `json:"errors,omitempty"`
	TimedOut    bool           `json:"timed_out,omitempty"`
}

// RunSummary is the persisted record of one batch run, written to
// runs/<run_id>.json.
type RunSummary struct {
	RunID      string      `json:"run_id"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    time.Time   `json:"end_time"`
	Duration   string      `json:"duration"`
	InputDir   string      `json:"input_dir"`
	Mode       string      `json:"processing_mode"`
	Types      []string    `json:"jewelry_types,omitempty"`
	TotalFiles int         `json:"total_files"`
	Processed  int         `json:"processed"`
	Success    int         `json:"success"`
	Partial    int         `json:"partial"`
	Failed     int         `json:"failed"`
	Jobs       []JobRecord `json:"jobs"`
}

// NewRunID returns a sortable, collision-safe run identifier.
func NewRunID(t time.Time) string {
	return fmt.Sprintf("run_%s_%s", t.Format("20060102_150405"), uuid.NewString()[:8])
}

// NewRunSummary seeds a summary from batch results.
func NewRunSummary(runID, inputDir, mode string, types []string, results []FileResult, stats BatchStats) *RunSummary {
	s := &RunSummary{
		RunID:      runID,
		StartTime:  stats.Start,
		EndTime:    stats.End,
		Duration:   stats.End.Sub(stats.Start).Round(time.Millisecond).String(),
		InputDir:   inputDir,
		Mode:       mode,
		Types:      types,
		TotalFiles: stats.Total,
		Processed:  stats.Processed,
		Success:    stats.Done,
		Partial:    stats.Partial,
		Failed:     stats.Failed,
		Jobs:       []JobRecord{},
	}

	for _, r := range results {
		rec := JobRecord{
			File:        filepath.Base(r.File.Path),
			JewelryType: r.File.Type,
			Status:      StatusFailed,
			TimedOut:    r.TimedOut,
		}
		if r.Job != nil {
			rec.JobID = r.Job.JobID
			rec.Status = r.Job.Status
			rec.Artifacts = r.Job.Artifacts
			rec.Errors = r.Job.Errors
		}
		if r.Err != nil {
			rec.Errors = append(rec.Errors, ErrorEntry{Error: r.Err.Error(), Timestamp: time.Now()})
		}
		s.Jobs = append(s.Jobs, rec)
	}
	return s
}

// Save writes the summary into runsDir and returns the file path.
func (s *RunSummary) Save(runsDir string) (string, error) {
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	p := filepath.Join(runsDir, s.RunID+".json")
	bs, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(p, bs, 0o644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return p, nil
}

// ArchiveSuccess moves a fully-done input out of the inbox into
// archive/success/<run_id>/<type>/. Partial and failed inputs stay in the
// inbox for a later retry.
func ArchiveSuccess(cfg *Config, runID string, f InboxFile) error {
	dest := filepath.Join(cfg.ArchiveDir(), "success", runID, f.Type, filepath.Base(f.Path))
	if err := moveFile(f.Path, dest); err != nil {
		return fmt.Errorf("archive %s: %w", f.Path, err)
	}
	klog.Infof("archived to: %s", dest)
	return nil
}

// moveFile renames src to dest, falling back to copy+remove across devices.
func moveFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	if err := copy.Copy(src, dest); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	return os.Remove(src)
}
