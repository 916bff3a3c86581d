package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/campusaid/campusaid/internal/knowledge"
	"github.com/campusaid/campusaid/internal/log"
)

// DefaultTopK is the passage count when the model omits k.
const DefaultTopK = 5

// maxTopK bounds a single knowledge base query.
const maxTopK = 20

// PassageSearcher is the part of the knowledge store this adapter uses.
type PassageSearcher interface {
	Search(ctx context.Context, query string, k int) ([]knowledge.Passage, error)
}

// KnowledgeInput is the model-facing input schema.
type KnowledgeInput struct {
	Query string `json:"query" jsonschema_description:"The search query for the knowledge base"`
	K     int    `json:"k,omitempty" jsonschema_description:"Number of results to return (default: 5)"`
}

// Knowledge searches the campus knowledge base.
//
// A nil store puts the adapter in degraded mode: every query returns a
// static fallback pointing at the canonical campus resources and the
// web search tool. The service stays up when the database is down.
type Knowledge struct {
	store        PassageSearcher
	fallbackURLs []string
	logger       log.Logger
}

// NewKnowledge creates the knowledge base adapter. store may be nil.
func NewKnowledge(store PassageSearcher, fallbackURLs []string, logger log.Logger) *Knowledge {
	return &Knowledge{store: store, fallbackURLs: fallbackURLs, logger: logger}
}

// Run executes one knowledge base query.
func (k *Knowledge) Run(ctx context.Context, input KnowledgeInput) Output {
	topK := input.K
	if topK < 1 {
		topK = DefaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	if k.store == nil {
		k.logger.Warn("knowledge base unavailable, returning fallback", "query", input.Query)
		return Output{Text: k.fallbackText(input.Query)}
	}

	passages, err := k.store.Search(ctx, input.Query, topK)
	if err != nil {
		k.logger.Error("knowledge base search failed", "query", input.Query, "error", err)
		return Output{Text: fmt.Sprintf("Error searching knowledge base: %v. Please try the web search tool or contact the campus support center directly.", err)}
	}

	if len(passages) == 0 {
		return Output{Text: "No relevant information found in the knowledge base for this query. Consider using the web search tool for additional information."}
	}

	var blocks []string
	sources := make([]Source, 0, len(passages))
	for i, p := range passages {
		source := p.Source
		if source == "" {
			source = "Unknown source"
		}
		block := fmt.Sprintf("Result %d:\nContent: %s\nSource: %s", i+1, p.Content, source)
		if p.URL != "" {
			block += "\nURL: " + p.URL
		}
		blocks = append(blocks, block+"\n---")

		sources = append(sources, Source{Source: source, URL: p.URL, Score: p.Score})
	}

	return Output{
		Text:    fmt.Sprintf("Found %d relevant results from the knowledge base:\n\n%s", len(passages), strings.Join(blocks, "\n\n")),
		Sources: sources,
	}
}

// fallbackText is the degraded-mode response.
func (k *Knowledge) fallbackText(query string) string {
	var sb strings.Builder
	sb.WriteString("Knowledge base is not currently available.\n\n")
	fmt.Fprintf(&sb, "For information about %q, I recommend:\n", query)
	sb.WriteString("1. Visiting the official campus website\n")
	sb.WriteString("2. Contacting the campus support center directly\n")
	sb.WriteString("3. Using the web search tool for current information\n")

	if len(k.fallbackURLs) > 0 {
		sb.WriteString("\nHelpful campus resources:\n")
		for _, u := range k.fallbackURLs {
			sb.WriteString("- " + u + "\n")
		}
	}

	sb.WriteString("\nPlease try the web search tool for more specific information.")
	return sb.String()
}
