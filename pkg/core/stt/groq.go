package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/versevox/versevox/pkg/core"
)

const (
	groqBaseURL      = "https://api.groq.com/openai/v1"
	groqDefaultModel = "whisper-large-v3-turbo"

	// contextPrompt steers the model toward scripture vocabulary.
	contextPrompt = "This conversation is about Bible translations such as the " +
		"King James Version, New International Version, and English Standard Version. " +
		"Common topics: books, chapters, verses, passages, Psalms, Genesis, John, " +
		"Corinthians, comparing translations."
)

// GroqProvider implements the STT Provider interface using Groq's Whisper API.
type GroqProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGroq creates a new Groq STT provider.
func NewGroq(apiKey string) *GroqProvider {
	return &GroqProvider{
		apiKey:     apiKey,
		baseURL:    groqBaseURL,
		httpClient: &http.Client{},
	}
}

// NewGroqWithClient creates a new Groq STT provider with a custom HTTP client.
func NewGroqWithClient(apiKey string, client *http.Client) *GroqProvider {
	return &GroqProvider{
		apiKey:     apiKey,
		baseURL:    groqBaseURL,
		httpClient: client,
	}
}

// Name returns the provider identifier.
func (p *GroqProvider) Name() string {
	return "groq"
}

// Transcribe converts audio to text using Groq's Whisper API.
func (p *GroqProvider) Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error) {
	audioData, err := io.ReadAll(audio)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	ext := opts.Format
	if ext == "" {
		ext = "wav"
	}
	fw, err := mw.CreateFormFile("file", "audio."+ext)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(audioData); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = groqDefaultModel
	}
	language := opts.Language
	if language == "" {
		language = "en"
	}

	fields := map[string]string{
		"model":           model,
		"language":        language,
		"prompt":          contextPrompt,
		"temperature":     "0",
		"response_format": "verbose_json",
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write %s field: %w", name, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, core.NewProviderError("groq", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, core.NewProviderError("groq", fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var groqResp groqTranscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&groqResp); err != nil {
		return nil, core.NewProviderError("groq", fmt.Errorf("decode response: %w", err))
	}

	return &Transcript{
		Text:     FixCommonMistakes(groqResp.Text),
		Language: groqResp.Language,
		Duration: groqResp.Duration,
	}, nil
}

type groqTranscriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}
