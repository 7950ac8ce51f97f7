package jewelgen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
	"k8s.io/klog/v2"
)

const maxAttemptsPerKey = 3

var retryBackoff = 2 * time.Second

// generateWithRetry calls the Gemini API, rotating through the configured
// API keys when one is rate limited. Each key gets maxAttemptsPerKey tries;
// non-quota errors fail immediately.
func generateWithRetry(
	ctx context.Context,
	apiKeys []string,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	if len(apiKeys) == 0 {
		return nil, fmt.Errorf("no API keys provided")
	}

	var lastErr error

	for ki, key := range apiKeys {
		for attempt := 1; attempt <= maxAttemptsPerKey; attempt++ {
			client, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  key,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				lastErr = err
				klog.Warningf("client with key #%d failed: %v", ki+1, err)
				continue
			}

			result, err := client.Models.GenerateContent(ctx, model, contents, config)
			if err == nil {
				return result, nil
			}
			lastErr = err

			if !isQuotaError(err) {
				return nil, err
			}

			klog.Warningf("key #%d rate limited (attempt %d/%d)", ki+1, attempt, maxAttemptsPerKey)
			if attempt < maxAttemptsPerKey {
				select {
				case <-time.After(retryBackoff):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
		}
		klog.Warningf("key #%d exhausted, trying next key", ki+1)
	}

	return nil, fmt.Errorf("all %d API keys exhausted: %w", len(apiKeys), lastErr)
}

// isQuotaError reports whether err looks like a 429 / quota failure.
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "quota")
}

func floatPtr(f float32) *float32 {
	return &f
}
