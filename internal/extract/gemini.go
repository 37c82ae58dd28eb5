package extract

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when GeminiConfig.Model is empty.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiConfig configures the Gemini API model.
type GeminiConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	// BaseURL overrides the API endpoint.
	BaseURL string
}

// Gemini completes prompts with a Gemini model.
type Gemini struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

var _ Model = (*Gemini)(nil)

// NewGemini creates a Gemini-backed Model. An API key is required.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("extract: gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("extract: gemini client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model, maxTokens: int32(cfg.MaxTokens)}, nil
}

// Complete sends prompt as a single user turn and returns the reply text.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(float32(0.1)),
			MaxOutputTokens: g.maxTokens,
		},
	)
	if err != nil {
		return "", fmt.Errorf("extract: gemini: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("extract: gemini: empty reply")
	}
	return text, nil
}
