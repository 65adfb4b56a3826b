package embed

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/versevox/versevox/pkg/core"
)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = "gemini-embedding-001"

	// Dimensions is the vector width requested from the provider. Stores
	// assume all vectors in a corpus share this width.
	Dimensions = 768
)

// GeminiConfig holds Gemini embedder configuration.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Gemini is an Embedder backed by the Gemini embedding API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini embedder.
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

	return &Gemini{client: client, model: model}, nil
}

// EmbedQuery embeds a retrieval query.
func (g *Gemini) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments embeds a batch of corpus passages.
func (g *Gemini) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return g.embed(ctx, texts, "RETRIEVAL_DOCUMENT")
}

func (g *Gemini) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: genai.Ptr(int32(Dimensions)),
	})
	if err != nil {
		return nil, core.NewProviderError("gemini", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, core.NewProviderError("gemini", fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings)))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}
