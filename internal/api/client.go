// Package api is the HTTP client for the automation backend.
package api

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

	"github.com/tender-automation/dashboard/internal/models"
)

const (
	// DefaultTimeout bounds quick requests (source list, results).
	DefaultTimeout = 30 * time.Second
	// DefaultStartTimeout bounds the start request. The backend answers only
	// after the job has finished, so it is deliberately long.
	DefaultStartTimeout = 2 * time.Hour

	maxErrorBody = 512
)

// Client talks to the backend REST endpoints.
type Client struct {
	base         *url.URL
	http         *http.Client
	startTimeout time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithStartTimeout overrides DefaultStartTimeout.
func WithStartTimeout(d time.Duration) Option {
	return func(c *Client) { c.startTimeout = d }
}

// NewClient creates a client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base:         u,
		http:         &http.Client{},
		startTimeout: DefaultStartTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// ResolveURL turns a download reference into an absolute URL.
// Absolute references are returned unchanged.
func (c *Client) ResolveURL(ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parsing reference %q: %w", ref, err)
	}
	if r.IsAbs() {
		return r.String(), nil
	}
	return c.base.ResolveReference(r).String(), nil
}

type sourcesResponse struct {
	Sources []models.SourceOption `json:"sources"`
	Banks   []models.SourceOption `json:"banks"`
	Error   string                `json:"error"`
}

// ListSources fetches GET /api/sources. An empty list is not an error.
func (c *Client) ListSources(ctx context.Context) ([]models.SourceOption, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var body sourcesResponse
	status, err := c.getJSON(ctx, "/api/sources", &body)
	if err != nil {
		return nil, err
	}
	if body.Error != "" {
		return nil, NewBackendError(status, body.Error)
	}
	if body.Sources != nil {
		return body.Sources, nil
	}
	return body.Banks, nil
}

type startRequest struct {
	SourceID string `json:"source_id"`
}

type startResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Start issues POST /api/start and waits for the backend to acknowledge.
func (c *Client) Start(ctx context.Context, sourceID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.startTimeout)
	defer cancel()

	payload, err := json.Marshal(startRequest{SourceID: sourceID})
	if err != nil {
		return fmt.Errorf("encoding start request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/start"), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating start request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var body startResponse
	status, err := c.doJSON(req, &body)
	if err != nil {
		return err
	}
	if body.Status == "error" {
		return NewBackendError(status, body.Message)
	}
	return nil
}

type resultsResponse struct {
	Results []models.ResultRow `json:"results"`
	Error   string             `json:"error"`
}

// Results fetches GET /api/results.
func (c *Client) Results(ctx context.Context) ([]models.ResultRow, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var body resultsResponse
	status, err := c.getJSON(ctx, "/api/results", &body)
	if err != nil {
		return nil, err
	}
	if body.Error != "" {
		return nil, NewBackendError(status, body.Error)
	}
	if body.Results == nil {
		return []models.ResultRow{}, nil
	}
	return body.Results, nil
}

// Download opens the archive behind ref. The caller must close the reader.
func (c *Client) Download(ctx context.Context, ref string) (io.ReadCloser, error) {
	target, err := c.ResolveURL(ref)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, NewHTTPStatusError(resp.StatusCode, readSnippet(resp.Body))
	}
	// The backend reports a missing archive as a JSON body with 200.
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		defer resp.Body.Close()
		var body struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, NewDecodeError(resp.StatusCode, err)
		}
		return nil, NewBackendError(resp.StatusCode, body.Error)
	}
	return resp.Body, nil
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

func (c *Client) getJSON(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return 0, fmt.Errorf("creating request for %s: %w", path, err)
	}
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) (int, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, NewHTTPStatusError(resp.StatusCode, readSnippet(resp.Body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, NewDecodeError(resp.StatusCode, err)
	}
	return resp.StatusCode, nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(b))
}
