// Package index stores reference material and retrieves it by semantic
// similarity. It is the retrieval half of the explanation service: documents
// are embedded on write, queries are embedded on read, and PostgreSQL with
// pgvector does the nearest-neighbor work.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// ErrEmptyContent indicates an attempt to index an empty document.
var ErrEmptyContent = errors.New("document content cannot be empty")

// Document is one indexed piece of reference material.
type Document struct {
	ID        uuid.UUID
	Topic     string
	Content   string
	CreatedAt time.Time
}

// Result is a retrieved document with its similarity to the query.
// Similarity is cosine similarity: 1 is identical, 0 is orthogonal.
type Result struct {
	Document
	Similarity float64
}

// UpsertParams carries a document and its embedding to the querier.
type UpsertParams struct {
	ID        uuid.UUID
	Topic     string
	Content   string
	Embedding pgvector.Vector
	CreatedAt time.Time
}

// SearchRow is one row returned by a vector search.
type SearchRow struct {
	ID         uuid.UUID
	Topic      string
	Content    string
	CreatedAt  time.Time
	Similarity float64
}

// Querier defines the database operations the Store needs.
// Consumer-defined; the pgx implementation lives in postgres.go.
type Querier interface {
	UpsertDocument(ctx context.Context, arg UpsertParams) error
	SearchDocuments(ctx context.Context, embedding pgvector.Vector, limit int32) ([]SearchRow, error)
	CountDocuments(ctx context.Context) (int64, error)
	DeleteAllDocuments(ctx context.Context) error
}

// searchTimeout bounds vector search queries so a slow index cannot hang
// a request.
const searchTimeout = 10 * time.Second

// Store manages the document index.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	querier  Querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a Store over the given querier and embedder.
func New(querier Querier, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{querier: querier, embedder: embedder, logger: logger}
}

// Add embeds and indexes one document. A zero ID gets a fresh UUID.
func (s *Store) Add(ctx context.Context, doc Document) error {
	if doc.Content == "" {
		return ErrEmptyContent
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	embedding, err := s.embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embed document: %w", err)
	}

	if err := s.querier.UpsertDocument(ctx, UpsertParams{
		ID:        doc.ID,
		Topic:     doc.Topic,
		Content:   doc.Content,
		Embedding: embedding,
		CreatedAt: doc.CreatedAt,
	}); err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}

	s.logger.Debug("indexed document",
		"id", doc.ID, "topic", doc.Topic, "content_length", len(doc.Content))
	return nil
}

// Retrieve returns the topK documents most similar to the query, ordered by
// similarity descending. An empty index returns an empty slice, not an error.
func (s *Store) Retrieve(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = 5
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embedding, err := s.embed(queryCtx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.querier.SearchDocuments(queryCtx, embedding, int32(topK))
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, Result{
			Document: Document{
				ID:        row.ID,
				Topic:     row.Topic,
				Content:   row.Content,
				CreatedAt: row.CreatedAt,
			},
			Similarity: row.Similarity,
		})
	}

	s.logger.Debug("retrieved documents", "query_length", len(query), "count", len(results))
	return results, nil
}

// HasAny reports whether the index contains any documents at all.
func (s *Store) HasAny(ctx context.Context) (bool, error) {
	count, err := s.querier.CountDocuments(ctx)
	if err != nil {
		return false, fmt.Errorf("count documents: %w", err)
	}
	return count > 0, nil
}

// Count returns the number of indexed documents.
func (s *Store) Count(ctx context.Context) (int64, error) {
	count, err := s.querier.CountDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// Clear removes every document from the index.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.querier.DeleteAllDocuments(ctx); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	s.logger.Info("cleared document index")
	return nil
}

func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return pgvector.Vector{}, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, errors.New("embedder returned empty embedding")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}
