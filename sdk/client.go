// Package versevox provides the Go client for the VerseVox gateway.
//
// A Client owns one session at a time: CreateSession obtains a bearer token
// and every later call presents it until EndSession invalidates it.
package versevox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/versevox/versevox/pkg/core"
	"github.com/versevox/versevox/pkg/core/types"
)

// Client talks to a VerseVox gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.Mutex
	token string
}

// NewClient creates a client for the gateway at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newDefaultHTTPClient(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current session token, or "" when no session is open.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// CreateSession opens a new session and stores its token on the client.
func (c *Client) CreateSession(ctx context.Context) (*types.CreateSessionResponse, error) {
	var resp types.CreateSessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", nil, &resp); err != nil {
		return nil, err
	}
	c.setToken(resp.Token)
	return &resp, nil
}

// EndSession invalidates the current session token.
func (c *Client) EndSession(ctx context.Context) error {
	if c.Token() == "" {
		return nil
	}
	var resp types.OKResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/v1/sessions", nil, &resp); err != nil {
		return err
	}
	c.setToken("")
	return nil
}

// ListSources returns the gateway's source catalog. No session required.
func (c *Client) ListSources(ctx context.Context) ([]types.Source, error) {
	var resp types.ListSourcesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sources", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sources, nil
}

// SelectSources sets the session's mode and source selection.
func (c *Client) SelectSources(ctx context.Context, mode types.Mode, sourceIDs []string) error {
	req := types.SelectSourcesRequest{Mode: mode, SourceIDs: sourceIDs}
	return c.doJSON(ctx, http.MethodPost, "/v1/sessions/select", req, nil)
}

// Query asks a question against the session's single-mode source.
// k <= 0 uses the server default.
func (c *Client) Query(ctx context.Context, question string, k int) (*types.QueryResponse, error) {
	req := types.QueryRequest{Question: question, K: k}
	var resp types.QueryResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/query", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Compare asks a question across sources. sourceIDs may be nil to use the
// session's compare selection.
func (c *Client) Compare(ctx context.Context, question string, sourceIDs []string, k int) (*types.CompareResponse, error) {
	req := types.CompareRequest{Question: question, SourceIDs: sourceIDs, K: k}
	var resp types.CompareResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/compare", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Transcribe uploads raw audio and returns the transcript. contentType should
// name the audio container (e.g. "audio/wav").
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, contentType string) (*types.TranscribeResponse, error) {
	if contentType == "" {
		contentType = "audio/wav"
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/transcribe", audio)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: http.MethodPost, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var out types.TranscribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, core.NewAPIError(fmt.Sprintf("decoding transcribe response: %v", err))
	}
	return &out, nil
}

// Synthesize converts text to audio and returns the MP3 stream. The caller
// must close the returned reader.
func (c *Client) Synthesize(ctx context.Context, sreq types.SynthesizeRequest) (io.ReadCloser, error) {
	raw, err := json.Marshal(sreq)
	if err != nil {
		return nil, core.NewAPIError(fmt.Sprintf("encoding synthesize request: %v", err))
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/synthesize", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: http.MethodPost, URL: req.URL.String(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp.Body, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, core.NewAPIError(fmt.Sprintf("building request: %v", err))
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return core.NewAPIError(fmt.Sprintf("encoding request: %v", err))
		}
		body = bytes.NewReader(raw)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: method, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.NewAPIError(fmt.Sprintf("decoding response: %v", err))
	}
	return nil
}
