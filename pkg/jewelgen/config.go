package jewelgen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"k8s.io/klog/v2"
)

// Config holds workspace paths and generation settings.
type Config struct {
	// Root is the workspace directory containing inbox/, out/, work/ etc.
	Root string

	// APIKeys are Gemini API keys, tried in order on rate limiting.
	APIKeys []string

	ModelText  string
	ModelImage string

	OutRoot string
}

// LoadConfig reads settings from .env and the environment. Missing API keys
// are not an error here: commands that never call the API (dry-run, export)
// work without one.
func LoadConfig(root string) *Config {
	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil {
		klog.V(1).Infof(".env not loaded: %v", err)
	}

	keys := []string{}
	for _, k := range strings.Split(getEnv("GEMINI_API_KEY", ""), ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}

	return &Config{
		Root:       root,
		APIKeys:    keys,
		ModelText:  getEnv("MODEL_TEXT", "gemini-2.5-flash"),
		ModelImage: getEnv("MODEL_IMAGE", "gemini-2.5-flash-image"),
		OutRoot:    getEnv("DEFAULT_OUT_ROOT", "out"),
	}
}

// RequireAPIKey returns an error if no Gemini API key is configured.
func (c *Config) RequireAPIKey() error {
	if len(c.APIKeys) == 0 {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	return nil
}

func (c *Config) InboxDir() string   { return filepath.Join(c.Root, "inbox") }
func (c *Config) OutDir() string     { return filepath.Join(c.Root, c.OutRoot) }
func (c *Config) WorkDir() string    { return filepath.Join(c.Root, "work") }
func (c *Config) RunsDir() string    { return filepath.Join(c.Root, "runs") }
func (c *Config) LogsDir() string    { return filepath.Join(c.Root, "logs") }
func (c *Config) ArchiveDir() string { return filepath.Join(c.Root, "archive") }
func (c *Config) ExportDir() string  { return filepath.Join(c.Root, "export") }

// JobDir returns the output directory for a job.
func (c *Config) JobDir(jobID string) string {
	return filepath.Join(c.OutDir(), jobID)
}

// JobWorkDir returns the scratch directory for a job.
func (c *Config) JobWorkDir(jobID string) string {
	return filepath.Join(c.WorkDir(), jobID)
}

// EnsureWorkspace creates the workspace folder skeleton under base and
// returns the directories it had to create.
func EnsureWorkspace(base string) ([]string, error) {
	dirs := []string{
		"inbox",
		"out",
		"export",
		"logs",
		"work",
		"runs",
		"archive/success",
		"archive/failed",
	}
	for _, t := range StandardTypes {
		dirs = append(dirs, filepath.Join("inbox", t))
	}
	dirs = append(dirs, filepath.Join("inbox", "other"))

	created := []string{}
	for _, d := range dirs {
		p := filepath.Join(base, d)
		if _, err := os.Stat(p); err == nil {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return created, fmt.Errorf("mkdir %s: %w", p, err)
		}
		created = append(created, d)
	}
	return created, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
