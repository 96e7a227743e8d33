package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteConfig points at an HTTP classification endpoint.
type RemoteConfig struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
	// Client overrides the HTTP client; nil builds one with Timeout.
	Client *http.Client
}

// Remote scores text by POSTing {"text": ...} and reading {"label", "score"}.
type Remote struct {
	endpoint string
	token    string
	client   *http.Client
}

type remoteRequest struct {
	Text string `json:"text"`
}

type remoteResponse struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// NewRemote validates cfg.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("sentiment endpoint is required")
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Remote{endpoint: cfg.Endpoint, token: cfg.Token, client: client}, nil
}

// Score implements Scorer.
func (r *Remote) Score(ctx context.Context, text string) (Result, error) {
	body, err := json.Marshal(remoteRequest{Text: text})
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("sentiment request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("sentiment endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	return Result{Label: ParseLabel(out.Label), Confidence: out.Score}, nil
}
