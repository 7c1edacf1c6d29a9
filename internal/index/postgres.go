package index

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresQuerier implements Querier on a pgx connection pool with pgvector.
type PostgresQuerier struct {
	pool *pgxpool.Pool
}

// NewPostgresQuerier creates a PostgresQuerier.
func NewPostgresQuerier(pool *pgxpool.Pool) *PostgresQuerier {
	return &PostgresQuerier{pool: pool}
}

var _ Querier = (*PostgresQuerier)(nil)

// UpsertDocument inserts or replaces one document with its embedding.
func (q *PostgresQuerier) UpsertDocument(ctx context.Context, arg UpsertParams) error {
	const query = `
		INSERT INTO documents (id, topic, content, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			topic = EXCLUDED.topic,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`

	_, err := q.pool.Exec(ctx, query,
		arg.ID, arg.Topic, arg.Content, arg.Embedding, arg.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// SearchDocuments runs a cosine nearest-neighbor search.
// The <=> operator is cosine distance; similarity is 1 - distance.
func (q *PostgresQuerier) SearchDocuments(ctx context.Context, embedding pgvector.Vector, limit int32) ([]SearchRow, error) {
	const query = `
		SELECT id, topic, content, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM documents
		ORDER BY embedding <=> $1
		LIMIT $2`

	rows, err := q.pool.Query(ctx, query, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []SearchRow
	for rows.Next() {
		var r SearchRow
		if err := rows.Scan(&r.ID, &r.Topic, &r.Content, &r.CreatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return out, nil
}

// CountDocuments returns the total number of indexed documents.
func (q *PostgresQuerier) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	if err := q.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// DeleteAllDocuments empties the index.
func (q *PostgresQuerier) DeleteAllDocuments(ctx context.Context) error {
	if _, err := q.pool.Exec(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}
