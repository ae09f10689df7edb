package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/auditlab/auditoria/internal/logging"
)

// maxRetries is deliberately 1: documentation is best-effort and a second
// failure falls back to the templated summary instead of stalling the job.
const maxRetries = 1

// Config holds the Ollama connection options.
type Config struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// OllamaClient implements Gateway against an Ollama-compatible
// /api/generate endpoint.
type OllamaClient struct {
	cfg    Config
	client *http.Client
	logger logging.Logger
}

// NewOllamaClient creates a client. httpClient may be nil, in which case a
// default client with the configured timeout is used.
func NewOllamaClient(cfg Config, logger logging.Logger, httpClient *http.Client) *OllamaClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OllamaClient{
		cfg:    cfg,
		client: httpClient,
		logger: logger.With(logging.Field{Key: "component", Value: "ollama"}),
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Generate sends the prompt and returns the generated text. Transport errors
// get exactly one retry; after that the error is wrapped in
// ErrGenerationFailed for the orchestrator to degrade on.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying generation",
				logging.Field{Key: "attempt", Value: attempt},
				logging.Field{Key: "error", Value: lastErr.Error()})
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrGenerationFailed, ctx.Err())
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		text, err := c.generateOnce(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
	}

	return "", fmt.Errorf("%w: %v", ErrGenerationFailed, lastErr)
}

func (c *OllamaClient) generateOnce(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  c.cfg.Model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.Endpoint, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncateForLog(body))
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("backend error: %s", out.Error)
	}

	return out.Response, nil
}

func truncateForLog(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
