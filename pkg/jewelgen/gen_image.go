package jewelgen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/genai"
	"k8s.io/klog/v2"
)

// shotSpec describes one image artifact style.
type shotSpec struct {
	promptName string
	filePrefix string
	variation  string
}

var shotSpecs = map[string]shotSpec{
	"styled": {
		promptName: "styled",
		filePrefix: "styled",
		variation:  "Render a polished 2:3 editorial shot of this %s.",
	},
	"wear": {
		promptName: "wear",
		filePrefix: "wear",
		variation:  "Render a natural 2:3 shot of this %s being worn.",
	},
	"closeup": {
		promptName: "wear_closeup",
		filePrefix: "wear_closeup",
		variation:  "Render a detailed 2:3 close-up of this %s being worn.",
	},
}

// GenerateShot produces one 2:3 marketing image for the given style
// ("styled", "wear", or "closeup") and writes it into outDir. Returns the
// written path.
func GenerateShot(ctx context.Context, cfg *Config, style string, imagePath string, jewelryType string, outDir string) (string, error) {
	spec, ok := shotSpecs[style]
	if !ok {
		return "", fmt.Errorf("unknown shot style %q", style)
	}

	if err := cfg.RequireAPIKey(); err != nil {
		return "", err
	}

	prompt, err := LoadPrompt(spec.promptName, jewelryType)
	if err != nil {
		return "", err
	}
	prompt = prompt + "\n\n" + fmt.Sprintf(spec.variation, jewelryType)

	bs, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	klog.Infof("generating %s shot with %s for %s", style, cfg.ModelImage, imagePath)

	content := &genai.Content{
		Parts: []*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(bs, "image/png"),
		},
	}

	// the 2:3 ratio is requested in the prompt; SaveShot enforces the exact
	// output dimensions either way
	resp, err := generateWithRetry(ctx, cfg.APIKeys, cfg.ModelImage,
		[]*genai.Content{content},
		&genai.GenerateContentConfig{Temperature: floatPtr(0.7)})
	if err != nil {
		return "", fmt.Errorf("generate %s shot: %w", style, err)
	}

	data := inlineImage(resp)
	if data == nil {
		return "", fmt.Errorf("no image returned for %s shot of %s", style, imagePath)
	}

	out := filepath.Join(outDir, fmt.Sprintf("%s_2x3_01.png", spec.filePrefix))
	if err := SaveShot(data, Out2x3W, Out2x3H, out); err != nil {
		return "", fmt.Errorf("save %s shot: %w", style, err)
	}

	klog.Infof("%s shot written: %s (%d bytes in)", style, out, len(data))
	return out, nil
}

// inlineImage pulls the first inline image payload out of a response.
func inlineImage(resp *genai.GenerateContentResponse) []byte {
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return p.InlineData.Data
			}
		}
	}
	return nil
}
