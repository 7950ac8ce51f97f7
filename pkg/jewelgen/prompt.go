package jewelgen

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed prompts/*.md
var promptFS embed.FS

// LoadPrompt returns the named prompt template with the jewelry type
// substituted in. Names match the files under prompts/ (desc, styled, wear,
// wear_closeup).
func LoadPrompt(name string, jewelryType string) (string, error) {
	bs, err := promptFS.ReadFile(fmt.Sprintf("prompts/%s.md", name))
	if err != nil {
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}
	return strings.ReplaceAll(string(bs), "{JEWELRY_TYPE}", jewelryType), nil
}
