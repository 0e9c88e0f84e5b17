// Package search wraps the Exa web-search HTTP API.
package search

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

const (
	maxQueryLen       = 2000
	maxNumResults     = 25
	defaultNumResults = 10
)

type Config struct {
	BaseURL     string
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
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.exa.ai"
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 400 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{cfg: cfg}
}

type Request struct {
	Query      string `json:"query"`
	NumResults int    `json:"numResults,omitempty"`
}

type Result struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	PublishedDate string `json:"publishedDate,omitempty"`
	Text          string `json:"text,omitempty"`
}

type Response struct {
	Results []Result `json:"results"`
}

// Search posts the query to the Exa search endpoint. The API key is passed
// per call because it lives in the settings cache and can change at
// runtime. Temporary upstream failures (5xx, 429) are retried with
// exponential backoff.
func (c *Client) Search(ctx context.Context, apiKey string, req Request) (Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return Response{}, apperrors.InvalidArg("search query is empty")
	}
	if len(req.Query) > maxQueryLen {
		return Response{}, apperrors.InvalidArg(fmt.Sprintf("search query exceeds maximum length of %d characters", maxQueryLen))
	}
	if req.NumResults < 0 || req.NumResults > maxNumResults {
		return Response{}, apperrors.InvalidArg(fmt.Sprintf("numResults must be between 0 and %d", maxNumResults))
	}
	if req.NumResults == 0 {
		req.NumResults = defaultNumResults
	}
	if strings.TrimSpace(apiKey) == "" {
		return Response{}, apperrors.InvalidArg("search API key is not configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal search payload: %w", err)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "search")
	if err != nil {
		return Response{}, fmt.Errorf("build search url: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		resp, retry, err := c.callOnce(ctx, endpoint, apiKey, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retry || attempt == c.cfg.MaxRetries {
			break
		}
		backoff := c.cfg.BackoffBase * (1 << attempt)
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return Response{}, lastErr
}

func (c *Client) callOnce(ctx context.Context, endpoint, apiKey string, body []byte) (out Response, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return Response{}, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Response{}, false, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return Response{}, true, fmt.Errorf("search temporary status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, false, fmt.Errorf("search status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, &out); err != nil {
		return Response{}, false, fmt.Errorf("decode search response: %w", err)
	}
	return out, false, nil
}
