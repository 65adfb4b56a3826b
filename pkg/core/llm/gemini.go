package llm

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/versevox/versevox/pkg/core"
)

const (
	// DefaultModel is the generation model used when none is configured.
	DefaultModel = "gemini-2.0-flash"

	defaultTemperature = float32(0.3)
)

// GeminiConfig holds Gemini client configuration.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature *float32
}

// Gemini is an llm.Client backed by the Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGemini creates a Gemini generation client.
func NewGemini(ctx context.Context, config GeminiConfig) (*Gemini, error) {
	if config.APIKey == "" {
		return nil, core.NewAuthenticationError("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, core.NewProviderError("gemini", err)
	}

	model := config.Model
	if model == "" {
		model = DefaultModel
	}
	temperature := defaultTemperature
	if config.Temperature != nil {
		temperature = *config.Temperature
	}

	return &Gemini{
		client:      client,
		model:       model,
		temperature: temperature,
	}, nil
}

// Generate produces a completion for the prompt.
func (g *Gemini) Generate(ctx context.Context, system, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return "", core.NewProviderError("gemini", err)
	}

	return strings.TrimSpace(resp.Text()), nil
}
