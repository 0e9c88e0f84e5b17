// Package memoryidx wraps the external memory/indexing HTTP service.
package memoryidx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"muppetd/internal/apperrors"
)

type Config struct {
	BaseURL     string
	APIKey      string
	HTTPClient  *http.Client
	MaxRetries  int
	BackoffBase time.Duration
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 400 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{cfg: cfg}
}

type IndexRequest struct {
	ConversationID string            `json:"conversation_id"`
	Content        string            `json:"content"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type IndexResponse struct {
	ID string `json:"id"`
}

type QueryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type QueryResult struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type QueryResponse struct {
	Results []QueryResult `json:"results"`
}

// Index submits content for indexing.
func (c *Client) Index(ctx context.Context, req IndexRequest) (IndexResponse, error) {
	if strings.TrimSpace(req.Content) == "" {
		return IndexResponse{}, apperrors.InvalidArg("index content is empty")
	}
	var out IndexResponse
	if err := c.post(ctx, "index", req, &out); err != nil {
		return IndexResponse{}, err
	}
	return out, nil
}

// Query retrieves previously indexed content ranked by relevance.
func (c *Client) Query(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return QueryResponse{}, apperrors.InvalidArg("memory query is empty")
	}
	var out QueryResponse
	if err := c.post(ctx, "query", req, &out); err != nil {
		return QueryResponse{}, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	if strings.TrimSpace(c.cfg.BaseURL) == "" {
		return apperrors.InvalidArg("memory service is not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", path, err)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, path)
	if err != nil {
		return fmt.Errorf("build %s url: %w", path, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		retry, err := c.callOnce(ctx, endpoint, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == c.cfg.MaxRetries {
			break
		}
		backoff := c.cfg.BackoffBase * (1 << attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

func (c *Client) callOnce(ctx context.Context, endpoint string, body []byte, out any) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.cfg.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return false, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return true, fmt.Errorf("memory service temporary status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("memory service status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return false, fmt.Errorf("decode memory service response: %w", err)
	}
	return false, nil
}
