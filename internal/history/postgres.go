package history

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresQuerier implements Querier on a pgx connection pool.
type PostgresQuerier struct {
	pool *pgxpool.Pool
}

// NewPostgresQuerier creates a PostgresQuerier.
func NewPostgresQuerier(pool *pgxpool.Pool) *PostgresQuerier {
	return &PostgresQuerier{pool: pool}
}

var _ Querier = (*PostgresQuerier)(nil)

// InsertEntry appends one history row.
func (q *PostgresQuerier) InsertEntry(ctx context.Context, entry Entry) error {
	const query = `
		INSERT INTO history_entries (id, user_id, topics, answer, badge, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := q.pool.Exec(ctx, query,
		entry.ID, entry.UserID, entry.Topics, entry.Answer, entry.Badge, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// ListEntries returns all rows oldest first.
func (q *PostgresQuerier) ListEntries(ctx context.Context) ([]Entry, error) {
	const query = `
		SELECT id, user_id, topics, answer, badge, created_at
		FROM history_entries
		ORDER BY created_at ASC, id ASC`

	rows, err := q.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Topics, &e.Answer, &e.Badge, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// DeleteEntry removes one row by ID.
func (q *PostgresQuerier) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	if _, err := q.pool.Exec(ctx, `DELETE FROM history_entries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete history entry: %w", err)
	}
	return nil
}

// DeleteAllEntries empties the table.
func (q *PostgresQuerier) DeleteAllEntries(ctx context.Context) error {
	if _, err := q.pool.Exec(ctx, `DELETE FROM history_entries`); err != nil {
		return fmt.Errorf("delete history entries: %w", err)
	}
	return nil
}
