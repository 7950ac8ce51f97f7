package jewelgen

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
	"k8s.io/klog/v2"
)

// GenerateDescription produces a Markdown product description for a jewelry
// photo via a multimodal Gemini call.
func GenerateDescription(ctx context.Context, cfg *Config, imagePath string, jewelryType string) (string, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return "", err
	}

	prompt, err := LoadPrompt("desc", jewelryType)
	if err != nil {
		return "", err
	}

	bs, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	klog.Infof("generating description with %s for %s", cfg.ModelText, imagePath)

	content := &genai.Content{
		Parts: []*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(bs, "image/png"),
		},
	}

	resp, err := generateWithRetry(ctx, cfg.APIKeys, cfg.ModelText,
		[]*genai.Content{content},
		&genai.GenerateContentConfig{Temperature: floatPtr(0.7)})
	if err != nil {
		return "", fmt.Errorf("generate description: %w", err)
	}

	var sb strings.Builder
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p.Text != "" {
				sb.WriteString(p.Text)
			}
		}
		break
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("no text returned for %s", imagePath)
	}

	klog.Infof("description generated: %d chars", len(text))
	return text, nil
}
