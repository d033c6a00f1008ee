package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"PatentReporter/internal/config"
	"PatentReporter/internal/ports"
)

// Client talks to a self-hosted inference service for summarization and classification.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.TextGenerator = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(cfg config.InferenceConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		endpoint: strings.TrimSuffix(cfg.URL, "/"),
		apiKey:   cfg.APIKey,
		http:     httpClient,
	}
}

// GenerateSummary posts the abstract to /summarize.
func (c *Client) GenerateSummary(ctx context.Context, title, text string) (string, error) {
	payload := map[string]any{
		"title":   title,
		"content": text,
	}

	var resp struct {
		Summary string `json:"summary"`
	}
	if err := c.post(ctx, "/summarize", payload, &resp); err != nil {
		return "", err
	}
	return resp.Summary, nil
}

// ClassifyCategory posts the summary and the allowed labels to /classify.
func (c *Client) ClassifyCategory(ctx context.Context, title, text string, allowedLabels []string) (string, error) {
	payload := map[string]any{
		"title":  title,
		"text":   text,
		"labels": allowedLabels,
	}

	var resp struct {
		Category string `json:"category"`
	}
	if err := c.post(ctx, "/classify", payload, &resp); err != nil {
		return "", err
	}
	return resp.Category, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
