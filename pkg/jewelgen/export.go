package jewelgen

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/otiai10/copy"
	"k8s.io/klog/v2"
)

// ExportedArtifact records one copied file in a manifest.
type ExportedArtifact struct {
	Type        string `json:"type"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// Manifest describes what an export produced.
type Manifest struct {
	JobID      string             `json:"job_id"`
	ItemType   string             `json:"item_type"`
	ExportedAt time.Time          `json:"exported_at"`
	SourceJob  string             `json:"source_job"`
	Artifacts  []ExportedArtifact `json:"artifacts"`
}

// Export copies the latest version of each artifact of a job into destDir
// under stable names (description.md, styled.png, ...) and writes a
// manifest.json next to them. Artifacts with no successful version are
// skipped.
func Export(cfg *Config, jobID string, destDir string) (*Manifest, error) {
	jobDir := cfg.JobDir(jobID)
	meta, err := LoadMeta(filepath.Join(jobDir, "meta.json"))
	if err != nil {
		return nil, fmt.Errorf("job %s not found: %w", jobID, err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	manifest := &Manifest{
		JobID:      meta.JobID,
		ItemType:   meta.Type,
		ExportedAt: time.Now(),
		SourceJob:  jobDir,
		Artifacts:  []ExportedArtifact{},
	}

	for _, artifact := range ArtifactsFor(meta.Type) {
		rel := meta.LatestPath(artifact)
		if rel == "" {
			continue
		}

		src := filepath.Join(jobDir, rel)
		if _, err := os.Stat(src); err != nil {
			klog.Warningf("latest version missing on disk: %s", src)
			continue
		}

		name := artifact + ".png"
		if artifact == ArtifactDesc {
			name = "description.md"
		}
		dest := filepath.Join(destDir, name)

		if err := copy.Copy(src, dest); err != nil {
			return nil, fmt.Errorf("copy %s: %w", src, err)
		}
		manifest.Artifacts = append(manifest.Artifacts, ExportedArtifact{
			Type:        artifact,
			Source:      src,
			Destination: dest,
		})
		klog.Infof("exported %s -> %s", artifact, dest)
	}

	bs, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(destDir, "manifest.json"), bs, 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	return manifest, nil
}
