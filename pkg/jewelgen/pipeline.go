package jewelgen

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"
)

// JobID derives a content-addressed job identifier from the file bytes and
// the declared jewelry type. The same photo submitted as the same type
// always lands in the same job directory.
func JobID(path string, jewelryType string) (string, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	h := sha1.New()
	h.Write(bs)
	h.Write([]byte(jewelryType))
	sum := fmt.Sprintf("%x", h.Sum(nil))
	return "J" + sum[:11], nil
}

// Runner dispatches one artifact generation. The production implementation
// shells out to the per-artifact binaries; tests substitute their own.
type Runner interface {
	Run(ctx context.Context, artifact, imagePath, jewelryType, outDir string) error
}

// artifactBinaries maps artifact types to the worker binary that produces
// them. The styled variations reuse the styled binary.
var artifactBinaries = map[string]string{
	ArtifactDesc:    "gen-desc",
	ArtifactStyled:  "gen-styled",
	ArtifactStyled2: "gen-styled",
	ArtifactStyled3: "gen-styled",
	ArtifactWear:    "gen-wear",
	ArtifactCloseup: "gen-closeup",
}

// ExecRunner runs artifact binaries as subprocesses. Binaries are looked up
// next to the current executable first, then on PATH.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, artifact, imagePath, jewelryType, outDir string) error {
	name, ok := artifactBinaries[artifact]
	if !ok {
		return fmt.Errorf("unknown artifact type %q", artifact)
	}

	bin := name
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), name)
		if _, err := os.Stat(sibling); err == nil {
			bin = sibling
		}
	}

	cmd := exec.CommandContext(ctx, bin,
		"--image", imagePath,
		"--type", jewelryType,
		"--out", outDir,
	)

	var stderr bytes.Buffer
	cmd.Stdout = os.Stdout
	cmd.Stderr = &stderr

	klog.V(1).Infof("running %s --image %s --type %s --out %s", bin, imagePath, jewelryType, outDir)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fmt.Errorf("%s: %w: %s", name, err, tail(msg, 3))
	}
	return nil
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " / ")
}

// JobResult summarizes one completed (or attempted) job.
type JobResult struct {
	JobID     string         `json:"job_id"`
	OutDir    string         `json:"out_dir"`
	Status    string         `json:"status"`
	Artifacts map[string]int `json:"artifacts"`
	Errors    []ErrorEntry   `json:"errors"`
}

// Pipeline turns one input photo into its full artifact set.
type Pipeline struct {
	Cfg    *Config
	Runner Runner
}

// NewPipeline builds a pipeline using subprocess dispatch.
func NewPipeline(cfg *Config) *Pipeline {
	return &Pipeline{Cfg: cfg, Runner: ExecRunner{}}
}

// GenerateAll runs every artifact for one input photo, serially, recording
// successes and failures into the job's meta.json as it goes. A failing
// artifact never aborts the job; the final status reflects what survived.
func (p *Pipeline) GenerateAll(ctx context.Context, inputPath string, jewelryType string) (*JobResult, error) {
	jobID, err := JobID(inputPath, jewelryType)
	if err != nil {
		return nil, err
	}

	jobDir := p.Cfg.JobDir(jobID)
	workImage := filepath.Join(p.Cfg.JobWorkDir(jobID), "input.png")

	if err := PrepareInput(inputPath, workImage); err != nil {
		return nil, fmt.Errorf("prepare input: %w", err)
	}

	meta := NewMeta(jobID, inputPath, jewelryType)
	meta.Camera = ReadCameraInfo(inputPath)
	metaPath := filepath.Join(jobDir, "meta.json")
	if err := meta.Save(metaPath); err != nil {
		return nil, err
	}

	klog.Infof("job %s: processing %s (%s)", jobID, filepath.Base(inputPath), jewelryType)

	result := &JobResult{
		JobID:     jobID,
		OutDir:    jobDir,
		Artifacts: map[string]int{},
	}

	for _, artifact := range ArtifactsFor(jewelryType) {
		if err := p.runArtifact(ctx, meta, jobDir, artifact, workImage, jewelryType); err != nil {
			klog.Warningf("job %s: %s failed: %v", jobID, artifact, err)
			meta.RecordError(artifact, err)
		} else {
			result.Artifacts[artifact] = meta.Artifacts[artifact].Latest
		}
		if err := meta.Save(metaPath); err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			// deadline hit mid-job: leave the remaining artifacts for a retry
			break
		}
	}

	meta.Finish()
	if err := meta.Save(metaPath); err != nil {
		return nil, err
	}

	result.Status = meta.Status
	result.Errors = meta.Errors
	klog.Infof("job %s: %s (%d/%d artifacts)", jobID, meta.Status,
		len(result.Artifacts), len(ArtifactsFor(jewelryType)))
	return result, nil
}

// Regenerate re-runs a single artifact for an existing job and bumps its
// version. The work image is rebuilt from the recorded input when the work
// directory has been cleaned.
func (p *Pipeline) Regenerate(ctx context.Context, jobID string, artifact string) (*Meta, error) {
	metaPath := filepath.Join(p.Cfg.JobDir(jobID), "meta.json")
	meta, err := LoadMeta(metaPath)
	if err != nil {
		return nil, fmt.Errorf("job %s not found: %w", jobID, err)
	}

	workImage := filepath.Join(p.Cfg.JobWorkDir(jobID), "input.png")
	if _, err := os.Stat(workImage); err != nil {
		klog.Infof("work image missing, rebuilding from %s", meta.InputPath)
		if _, err := os.Stat(meta.InputPath); err != nil {
			return nil, fmt.Errorf("original input not found: %s", meta.InputPath)
		}
		if err := PrepareInput(meta.InputPath, workImage); err != nil {
			return nil, fmt.Errorf("prepare input: %w", err)
		}
	}

	jobDir := p.Cfg.JobDir(jobID)
	if err := p.runArtifact(ctx, meta, jobDir, artifact, workImage, meta.Type); err != nil {
		meta.RecordError(artifact, err)
		if serr := meta.Save(metaPath); serr != nil {
			return nil, serr
		}
		return nil, err
	}

	meta.Finish()
	if err := meta.Save(metaPath); err != nil {
		return nil, err
	}
	return meta, nil
}

// runArtifact dispatches one artifact subprocess and promotes its output to
// the next version.
func (p *Pipeline) runArtifact(ctx context.Context, meta *Meta, jobDir, artifact, workImage, jewelryType string) error {
	outDir := filepath.Join(jobDir, artifact)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	if err := p.Runner.Run(ctx, artifact, workImage, jewelryType, outDir); err != nil {
		return err
	}

	produced, err := producedFile(outDir, artifact)
	if err != nil {
		return err
	}

	if _, err := meta.RecordVersion(jobDir, artifact, produced, promptNameFor(artifact)); err != nil {
		return err
	}
	return nil
}

// producedFile locates the file an artifact binary just wrote into outDir.
func producedFile(outDir string, artifact string) (string, error) {
	var patterns []string
	switch {
	case artifact == ArtifactDesc:
		patterns = []string{"desc.md"}
	case artifact == ArtifactCloseup:
		patterns = []string{"wear_closeup_*_*.png"}
	case strings.HasPrefix(artifact, ArtifactStyled):
		patterns = []string{"*_2x3_*.png", "*_3x4_*.png"}
	default:
		patterns = []string{"*_2x3_*.png", "*_3x4_*.png"}
	}

	for _, pat := range patterns {
		ms, err := filepath.Glob(filepath.Join(outDir, pat))
		if err != nil {
			return "", err
		}
		if len(ms) > 0 {
			return ms[0], nil
		}
	}
	return "", fmt.Errorf("no output produced in %s for %s", outDir, artifact)
}

// promptNameFor maps an artifact to the prompt template it was built with.
func promptNameFor(artifact string) string {
	switch {
	case artifact == ArtifactDesc:
		return "desc"
	case artifact == ArtifactCloseup:
		return "wear_closeup"
	case strings.HasPrefix(artifact, ArtifactStyled):
		return "styled"
	case artifact == ArtifactWear:
		return "wear"
	}
	return artifact
}
