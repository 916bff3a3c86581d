package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/campusaid/campusaid/internal/log"
	"github.com/campusaid/campusaid/internal/search"
)

// WebSearchInput is the model-facing input schema.
type WebSearchInput struct {
	Query      string `json:"query" jsonschema_description:"The web search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema_description:"Maximum number of results to return"`
}

// Searcher is the part of the search client this adapter uses.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

// WebSearch queries the web search provider, restricted to the
// configured domain allow-list.
type WebSearch struct {
	client  Searcher
	domains []string
	logger  log.Logger
}

// NewWebSearch creates the web search adapter.
func NewWebSearch(client Searcher, domains []string, logger log.Logger) *WebSearch {
	return &WebSearch{client: client, domains: domains, logger: logger}
}

// Run executes one web search.
func (w *WebSearch) Run(ctx context.Context, input WebSearchInput) Output {
	maxResults := input.MaxResults
	if maxResults < 1 {
		maxResults = 5
	}

	resp, err := w.client.Search(ctx, search.Request{
		Query:          input.Query,
		MaxResults:     maxResults,
		IncludeDomains: w.domains,
	})
	if err != nil {
		if errors.Is(err, search.ErrNotConfigured) {
			return Output{Text: "Web search is not configured. TAVILY_API_KEY environment variable is required."}
		}
		w.logger.Error("web search failed", "query", input.Query, "error", err)
		return Output{Text: fmt.Sprintf("Error performing web search: %v. Please rely on the knowledge base or contact the campus support center directly.", err)}
	}

	if len(resp.Results) == 0 {
		return Output{Text: fmt.Sprintf("No web search results found for %q. The information may not be available online or may require accessing the knowledge base.", input.Query)}
	}

	results := resp.Results
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	var blocks []string
	sources := make([]Source, 0, len(results))
	for i, r := range results {
		blocks = append(blocks, fmt.Sprintf("Result %d:\nTitle: %s\nContent: %s\nURL: %s\nScore: %g\n---",
			i+1, r.Title, r.Content, r.URL, r.Score))
		sources = append(sources, Source{Source: r.Title, URL: r.URL, Score: r.Score})
	}

	text := fmt.Sprintf("Found %d web search results for %q:\n\n%s", len(resp.Results), input.Query, strings.Join(blocks, "\n\n"))
	if resp.Answer != "" {
		text = fmt.Sprintf("Direct Answer: %s\n\n%s", resp.Answer, text)
	}

	return Output{Text: text, Sources: sources}
}
