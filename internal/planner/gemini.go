package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini defaults.
const (
	DefaultGeminiModel       = "gemini-2.5-flash"
	DefaultGeminiTemperature = 0.2
)

// GeminiConfig configures GeminiGenerator. Temperature is used as given, zero included.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
}

// GeminiGenerator calls the Gemini API in JSON response mode.
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiGenerator creates a generator backed by the Gemini API.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &GeminiGenerator{
		client:      client,
		model:       model,
		temperature: cfg.Temperature,
	}, nil
}

// Generate sends the instructions and context as two user turns and returns
// the response text.
func (g *GeminiGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(p.Instructions, genai.RoleUser),
		genai.NewContentFromText(p.Context, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.temperature),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	return resp.Text(), nil
}

// Model returns the configured model name.
func (g *GeminiGenerator) Model() string {
	return g.model
}
