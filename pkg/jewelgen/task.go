package jewelgen

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"k8s.io/klog/v2"
)

// taskMeta records what a single artifact invocation did. It sits next to
// the produced file, separate from the job-level meta.json.
type taskMeta struct {
	Task        string    `json:"task"`
	InputImage  string    `json:"input_image"`
	JewelryType string    `json:"jewelry_type"`
	OutputDir   string    `json:"output_directory"`
	ModelText   string    `json:"model_text"`
	ModelImage  string    `json:"model_image"`
	Timestamp   time.Time `json:"timestamp"`
}

// ValidateImagePath checks that path exists and looks like a supported image.
func ValidateImagePath(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("image not found: %w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("path is not a file: %s", path)
	}
	if !IsImage(path) {
		return fmt.Errorf("unsupported image format: %s", filepath.Ext(path))
	}
	return nil
}

// ProcessDescription generates a product description and writes desc.md to
// outDir.
func ProcessDescription(ctx context.Context, cfg *Config, imagePath, jewelryType, outDir string) error {
	if err := ValidateImagePath(imagePath); err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	desc, err := GenerateDescription(ctx, cfg, imagePath, jewelryType)
	if err != nil {
		return err
	}

	p := filepath.Join(outDir, "desc.md")
	// on regeneration outDir holds the "latest" symlink under this name;
	// writing through it would clobber the previous version
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale description: %w", err)
	}
	if err := os.WriteFile(p, []byte(desc+"\n"), 0o644); err != nil {
		return fmt.Errorf("write description: %w", err)
	}
	klog.Infof("description saved: %s", p)

	return writeTaskMeta(cfg, "description", imagePath, jewelryType, outDir)
}

// ProcessShot generates one styled/wear/closeup image into outDir.
func ProcessShot(ctx context.Context, cfg *Config, style, imagePath, jewelryType, outDir string) error {
	if err := ValidateImagePath(imagePath); err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	if _, err := GenerateShot(ctx, cfg, style, imagePath, jewelryType, outDir); err != nil {
		return err
	}

	return writeTaskMeta(cfg, style+"_shot", imagePath, jewelryType, outDir)
}

func writeTaskMeta(cfg *Config, task, imagePath, jewelryType, outDir string) error {
	tm := taskMeta{
		Task:        task,
		InputImage:  imagePath,
		JewelryType: jewelryType,
		OutputDir:   outDir,
		ModelText:   cfg.ModelText,
		ModelImage:  cfg.ModelImage,
		Timestamp:   time.Now(),
	}

	bs, err := json.MarshalIndent(tm, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal task meta: %w", err)
	}
	return os.WriteFile(filepath.Join(outDir, "task.json"), bs, 0o644)
}
