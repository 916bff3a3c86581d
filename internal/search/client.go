// Package search provides a narrow client for the Tavily search API.
//
// Only the parts of the API the web-search tool needs are modeled:
// a query with a result cap and domain allow-list, returning an optional
// direct answer plus scored results.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/campusaid/campusaid/internal/log"
)

// ErrNotConfigured indicates the client has no API key.
var ErrNotConfigured = errors.New("search client not configured")

// MaxResults is the provider-side cap on results per query.
const MaxResults = 10

// Request describes one search query.
type Request struct {
	Query          string
	MaxResults     int
	IncludeDomains []string
}

// Result is a single search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Response is the provider's answer to a query.
type Response struct {
	Answer  string   `json:"answer"`
	Results []Result `json:"results"`
}

// Client calls the search provider over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     log.Logger
}

// NewClient creates a search client. An empty apiKey yields a client
// whose Configured() reports false; Search then fails fast.
func NewClient(baseURL, apiKey string, logger log.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// Configured reports whether the client holds an API key.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// searchPayload is the provider's request body.
type searchPayload struct {
	APIKey            string   `json:"api_key"`
	Query             string   `json:"query"`
	SearchDepth       string   `json:"search_depth"`
	IncludeAnswer     bool     `json:"include_answer"`
	IncludeImages     bool     `json:"include_images"`
	IncludeRawContent bool     `json:"include_raw_content"`
	MaxResults        int      `json:"max_results"`
	IncludeDomains    []string `json:"include_domains,omitempty"`
}

// Search runs one query against the provider.
func (c *Client) Search(ctx context.Context, req Request) (*Response, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	maxResults := req.MaxResults
	if maxResults < 1 {
		maxResults = 5
	}
	if maxResults > MaxResults {
		maxResults = MaxResults
	}

	payload := searchPayload{
		APIKey:         c.apiKey,
		Query:          req.Query,
		SearchDepth:    "basic",
		IncludeAnswer:  true,
		MaxResults:     maxResults,
		IncludeDomains: req.IncludeDomains,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling search provider: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("closing search response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		// Read a bounded amount for diagnostics.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search provider returned %d: %s", resp.StatusCode, msg)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	c.logger.Debug("web search completed",
		"query", req.Query,
		"results", len(out.Results),
		"duration", time.Since(start),
	)
	return &out, nil
}
