// Package knowledge implements the campus knowledge base backed by
// PostgreSQL + pgvector.
//
// Passages are embedded once at ingestion time; queries embed the
// question and rank passages by cosine similarity. The store is the data
// layer only; result formatting for the agent lives in the tool adapter.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"

	"github.com/campusaid/campusaid/internal/log"
)

// VectorDimension is the embedding dimensionality. Must match the
// vector(N) column in the passages migration.
const VectorDimension int32 = 768

// EmbedTimeout bounds a single embedding call.
const EmbedTimeout = 15 * time.Second

// QueryTimeout bounds a single vector search.
const QueryTimeout = 10 * time.Second

// ErrEmptyEmbedding indicates the embedder returned no vector.
var ErrEmptyEmbedding = errors.New("empty embedding response")

// Passage is one knowledge base document fragment.
type Passage struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	URL     string  `json:"url"`
	Score   float64 `json:"score"`
}

// Store manages passages with vector search.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   log.Logger
}

// NewStore creates a knowledge Store.
func NewStore(pool *pgxpool.Pool, embedder ai.Embedder, logger log.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// embed generates a vector embedding for the given text.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	dim := VectorDimension
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, ErrEmptyEmbedding
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// Search returns up to k passages most similar to the query, best first.
// An empty result is not an error.
func (s *Store) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	if k < 1 {
		k = 5
	}

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()
	vec, err := s.embed(embedCtx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	rows, err := s.pool.Query(queryCtx,
		`SELECT id, content, source, url, 1 - (embedding <=> $1) AS score
		 FROM passages
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		vec, k,
	)
	if err != nil {
		return nil, fmt.Errorf("querying passages: %w", err)
	}
	defer rows.Close()

	var passages []Passage
	for rows.Next() {
		var p Passage
		if err := rows.Scan(&p.ID, &p.Content, &p.Source, &p.URL, &p.Score); err != nil {
			return nil, fmt.Errorf("scanning passage: %w", err)
		}
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading passages: %w", err)
	}

	s.logger.Debug("knowledge search", "query_length", len(query), "hits", len(passages))
	return passages, nil
}

// Index embeds and upserts passages. Used by ingestion tooling; the
// serving path only reads.
func (s *Store) Index(ctx context.Context, passages []Passage) error {
	for _, p := range passages {
		if p.ID == "" || p.Content == "" {
			return fmt.Errorf("passage requires id and content")
		}

		embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
		vec, err := s.embed(embedCtx, p.Content)
		cancel()
		if err != nil {
			return fmt.Errorf("embedding passage %q: %w", p.ID, err)
		}

		_, err = s.pool.Exec(ctx,
			`INSERT INTO passages (id, content, source, url, embedding)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO UPDATE
			 SET content = EXCLUDED.content,
			     source = EXCLUDED.source,
			     url = EXCLUDED.url,
			     embedding = EXCLUDED.embedding`,
			p.ID, p.Content, p.Source, p.URL, vec,
		)
		if err != nil {
			return fmt.Errorf("upserting passage %q: %w", p.ID, err)
		}
	}

	s.logger.Info("indexed passages", "count", len(passages))
	return nil
}

// Count returns the number of stored passages.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM passages`).Scan(&count)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("counting passages: %w", err)
	}
	return count, nil
}

// Ping verifies database connectivity, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging knowledge database: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
