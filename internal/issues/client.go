// Package issues is a thin client for the source-hosting platform's issue
// API. It is a synchronous collaborator of the worker; all failure handling
// beyond a single HTTP call belongs to the job queue's retry policy.
package issues

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL points at the public GitHub REST API.
const DefaultBaseURL = "https://api.github.com"

// Config holds issue API client configuration
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Issue is a created issue as reported by the platform.
type Issue struct {
	URL    string `json:"html_url"`
	Number int    `json:"number"`
}

// Client creates issues over the GitHub REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

// NewClient creates a new issue API client
func NewClient(config *Config, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		token:      config.Token,
		logger:     logger,
	}
}

// CreateIssue opens an issue titled title with the given markdown body on
// repository ("owner/name").
func (c *Client) CreateIssue(ctx context.Context, repository, title, body string) (*Issue, error) {
	if !strings.Contains(repository, "/") {
		return nil, fmt.Errorf("invalid repository %q: expected owner/name", repository)
	}

	payload, err := json.Marshal(map[string]string{
		"title": title,
		"body":  body,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode issue request: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/issues", c.baseURL, repository)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build issue request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("issue request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("issue request returned %d: %s", resp.StatusCode, string(snippet))
	}

	var issue Issue
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return nil, fmt.Errorf("failed to decode issue response: %w", err)
	}

	c.logger.Info("Issue created",
		slog.String("repository", repository),
		slog.Int("issue_number", issue.Number),
		slog.String("issue_url", issue.URL),
	)

	return &issue, nil
}
