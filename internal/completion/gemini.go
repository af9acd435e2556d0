package completion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"parley/internal/logging"
)

// =============================================================================
// GEMINI CLIENT
// =============================================================================

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// GeminiClient implements Service against the Gemini API via the genai SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
	log    *zap.SugaredLogger
}

// NewGeminiClient creates a Gemini-backed completion client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiClient{
		client: client,
		model:  cfg.Model,
		log:    logging.Named(logging.CategoryCompletion),
	}, nil
}

// Complete sends one generation request. No retry.
func (c *GeminiClient) Complete(ctx context.Context, systemPrompt, userContent string) (Result, error) {
	start := time.Now()

	contents := []*genai.Content{
		genai.NewContentFromText(userContent, genai.RoleUser),
	}
	var config *genai.GenerateContentConfig
	if systemPrompt != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return Result{}, fmt.Errorf("gemini completion failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Result{}, fmt.Errorf("no completion returned")
	}

	res := Result{Text: text}
	if resp.UsageMetadata != nil {
		res.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	c.log.Debugw("completion", "model", c.model, "elapsed", time.Since(start),
		"prompt_tokens", res.Usage.PromptTokens, "completion_tokens", res.Usage.CompletionTokens)
	return res, nil
}
