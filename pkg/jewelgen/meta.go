package jewelgen

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"k8s.io/klog/v2"
)

// Version is one generated revision of an artifact.
type Version struct {
	V         int       `json:"v"`
	Path      string    `json:"path"`
	Prompt    string    `json:"prompt,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ArtifactLog tracks the version history of one artifact type. Latest is
// always the highest version number; the on-disk symlink mirrors it.
type ArtifactLog struct {
	Latest   int       `json:"latest"`
	Versions []Version `json:"versions"`
}

// ErrorEntry is a recorded artifact failure.
type ErrorEntry struct {
	Artifact  string    `json:"artifact"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Meta is the persistent per-job record stored as meta.json in the job's
// output directory.
type Meta struct {
	JobID       string                  `json:"job_id"`
	SrcName     string                  `json:"src_name"`
	Type        string                  `json:"type"`
	Status      string                  `json:"status"`
	CreatedAt   time.Time               `json:"created_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	InputPath   string                  `json:"input_path"`
	Camera      CameraInfo              `json:"camera,omitempty"`
	Artifacts   map[string]*ArtifactLog `json:"artifacts"`
	Errors      []ErrorEntry            `json:"errors"`
}

// NewMeta initializes a job record with empty version tables for every
// artifact the jewelry type will produce.
func NewMeta(jobID, inputPath, jewelryType string) *Meta {
	m := &Meta{
		JobID:     jobID,
		SrcName:   filepath.Base(inputPath),
		Type:      jewelryType,
		Status:    StatusProcessing,
		CreatedAt: time.Now(),
		InputPath: inputPath,
		Artifacts: map[string]*ArtifactLog{},
		Errors:    []ErrorEntry{},
	}
	for _, a := range ArtifactsFor(jewelryType) {
		m.Artifacts[a] = &ArtifactLog{Versions: []Version{}}
	}
	return m
}

// LoadMeta reads a meta.json. Artifact tables present in the file are kept
// as-is, unknown keys included.
func LoadMeta(path string) (*Meta, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}

	m := &Meta{}
	if err := json.Unmarshal(bs, m); err != nil {
		return nil, fmt.Errorf("parse meta: %w", err)
	}
	if m.Artifacts == nil {
		m.Artifacts = map[string]*ArtifactLog{}
	}
	return m, nil
}

// Save writes the record to path.
func (m *Meta) Save(path string) error {
	bs, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	return os.WriteFile(path, bs, 0o644)
}

// artifactFileName returns the stable "latest" name for an artifact.
func artifactFileName(artifact string) string {
	if artifact == ArtifactDesc {
		return "desc.md"
	}
	return artifact + ".png"
}

// versionFileName returns the versioned file name for an artifact revision.
func versionFileName(artifact string, v int) string {
	if artifact == ArtifactDesc {
		return fmt.Sprintf("desc_v%d.md", v)
	}
	return fmt.Sprintf("%s_v%d.png", artifact, v)
}

// RecordVersion promotes a freshly produced file to the next version of an
// artifact: the file is renamed to its versioned name inside jobDir, the
// version table is appended, and the "latest" symlink is repointed. Returns
// the new version number.
func (m *Meta) RecordVersion(jobDir, artifact, producedFile, promptName string) (int, error) {
	log := m.Artifacts[artifact]
	if log == nil {
		log = &ArtifactLog{Versions: []Version{}}
		m.Artifacts[artifact] = log
	}

	// a symlink here means the producer wrote through the "latest" pointer;
	// renaming it would chain versions onto each other
	if fi, err := os.Lstat(producedFile); err != nil {
		return 0, fmt.Errorf("stat produced file: %w", err)
	} else if fi.Mode()&os.ModeSymlink != 0 {
		return 0, fmt.Errorf("produced file is a symlink, not a new revision: %s", producedFile)
	}

	v := log.Latest + 1
	relPath := filepath.Join(artifact, versionFileName(artifact, v))
	dest := filepath.Join(jobDir, relPath)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}
	if err := os.Rename(producedFile, dest); err != nil {
		return 0, fmt.Errorf("promote %s: %w", producedFile, err)
	}

	link := filepath.Join(jobDir, artifact, artifactFileName(artifact))
	if _, err := os.Lstat(link); err == nil {
		if err := os.Remove(link); err != nil {
			return 0, fmt.Errorf("remove old link: %w", err)
		}
	}
	// relative link, valid when the job directory moves
	if err := os.Symlink(versionFileName(artifact, v), link); err != nil {
		return 0, fmt.Errorf("symlink: %w", err)
	}

	log.Versions = append(log.Versions, Version{
		V:         v,
		Path:      relPath,
		Prompt:    promptName,
		CreatedAt: time.Now(),
	})
	log.Latest = v

	klog.Infof("%s: %s now at v%d", m.JobID, artifact, v)
	return v, nil
}

// RecordError appends a structured failure entry.
func (m *Meta) RecordError(artifact string, err error) {
	m.Errors = append(m.Errors, ErrorEntry{
		Artifact:  artifact,
		Error:     err.Error(),
		Timestamp: time.Now(),
	})
}

// Finish recomputes the job status from the artifact tables and stamps the
// completion time. A job is done only when every expected artifact has at
// least one version.
func (m *Meta) Finish() {
	done := true
	any := false
	for _, a := range ArtifactsFor(m.Type) {
		log := m.Artifacts[a]
		if log == nil || log.Latest == 0 {
			done = false
			continue
		}
		any = true
	}

	switch {
	case done:
		m.Status = StatusDone
	case any:
		m.Status = StatusPartial
	default:
		m.Status = StatusFailed
	}

	now := time.Now()
	m.CompletedAt = &now
}

// LatestPath returns the job-relative path of an artifact's newest version,
// or "" if none exists.
func (m *Meta) LatestPath(artifact string) string {
	log := m.Artifacts[artifact]
	if log == nil || log.Latest == 0 {
		return ""
	}
	for _, v := range log.Versions {
		if v.V == log.Latest {
			return v.Path
		}
	}
	return ""
}
