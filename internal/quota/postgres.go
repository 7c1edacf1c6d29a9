package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
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

// GetUser returns the user row, or ErrUserNotFound.
func (q *PostgresQuerier) GetUser(ctx context.Context, id string) (User, error) {
	const query = `
		SELECT id, display_name, created_at, total_requests, total_tokens
		FROM users WHERE id = $1`

	var u User
	err := q.pool.QueryRow(ctx, query, id).
		Scan(&u.ID, &u.DisplayName, &u.CreatedAt, &u.TotalRequests, &u.TotalTokens)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// CreateUser inserts the user if absent and returns the stored row.
func (q *PostgresQuerier) CreateUser(ctx context.Context, id string) (User, error) {
	const query = `
		INSERT INTO users (id, display_name) VALUES ($1, $1)
		ON CONFLICT (id) DO NOTHING`

	if _, err := q.pool.Exec(ctx, query, id); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return q.GetUser(ctx, id)
}

// AddUserUsage adds to the user's lifetime totals.
func (q *PostgresQuerier) AddUserUsage(ctx context.Context, id string, requests, tokens int) error {
	const query = `
		UPDATE users
		SET total_requests = total_requests + $2,
		    total_tokens = total_tokens + $3
		WHERE id = $1`

	tag, err := q.pool.Exec(ctx, query, id, requests, tokens)
	if err != nil {
		return fmt.Errorf("update user totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetDailyQuota returns the day counter row, or ErrQuotaNotFound.
func (q *PostgresQuerier) GetDailyQuota(ctx context.Context, userID string, day time.Time) (DailyQuota, error) {
	const query = `
		SELECT user_id, day, requests_used, tokens_used
		FROM daily_quotas WHERE user_id = $1 AND day = $2`

	var dq DailyQuota
	err := q.pool.QueryRow(ctx, query, userID, DayOf(day)).
		Scan(&dq.UserID, &dq.Day, &dq.RequestsUsed, &dq.TokensUsed)
	if errors.Is(err, pgx.ErrNoRows) {
		return DailyQuota{}, ErrQuotaNotFound
	}
	if err != nil {
		return DailyQuota{}, fmt.Errorf("query daily quota: %w", err)
	}
	dq.Day = DayOf(dq.Day)
	return dq, nil
}

// CreateDailyQuota inserts a zero counter row if absent and returns the
// stored row.
func (q *PostgresQuerier) CreateDailyQuota(ctx context.Context, userID string, day time.Time) (DailyQuota, error) {
	const query = `
		INSERT INTO daily_quotas (user_id, day) VALUES ($1, $2)
		ON CONFLICT (user_id, day) DO NOTHING`

	if _, err := q.pool.Exec(ctx, query, userID, DayOf(day)); err != nil {
		return DailyQuota{}, fmt.Errorf("insert daily quota: %w", err)
	}
	return q.GetDailyQuota(ctx, userID, day)
}

// AddDailyUsage atomically adds to the day counters and returns the updated
// row. Single-statement update, so concurrent charges never lose increments.
func (q *PostgresQuerier) AddDailyUsage(ctx context.Context, userID string, day time.Time, requests, tokens int) (DailyQuota, error) {
	const query = `
		UPDATE daily_quotas
		SET requests_used = requests_used + $3,
		    tokens_used = tokens_used + $4
		WHERE user_id = $1 AND day = $2
		RETURNING user_id, day, requests_used, tokens_used`

	var dq DailyQuota
	err := q.pool.QueryRow(ctx, query, userID, DayOf(day), requests, tokens).
		Scan(&dq.UserID, &dq.Day, &dq.RequestsUsed, &dq.TokensUsed)
	if errors.Is(err, pgx.ErrNoRows) {
		return DailyQuota{}, ErrQuotaNotFound
	}
	if err != nil {
		return DailyQuota{}, fmt.Errorf("update daily quota: %w", err)
	}
	dq.Day = DayOf(dq.Day)
	return dq, nil
}

// InsertRequestLog appends one entry to the request ledger.
func (q *PostgresQuerier) InsertRequestLog(ctx context.Context, entry RequestLog) error {
	const query = `
		INSERT INTO request_log
			(id, user_id, topic, mode, input_tokens, output_tokens, success, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	id := entry.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := q.pool.Exec(ctx, query,
		id, entry.UserID, entry.Topic, entry.Mode,
		entry.InputTokens, entry.OutputTokens,
		entry.Success, entry.ErrorMessage, createdAt)
	if err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

// ListRequestLogs returns the user's newest entries first.
func (q *PostgresQuerier) ListRequestLogs(ctx context.Context, userID string, limit int32) ([]RequestLog, error) {
	const query = `
		SELECT id, user_id, topic, mode, input_tokens, output_tokens,
		       success, error_message, created_at
		FROM request_log
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := q.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query request log: %w", err)
	}
	defer rows.Close()

	var entries []RequestLog
	for rows.Next() {
		var e RequestLog
		if err := rows.Scan(&e.ID, &e.UserID, &e.Topic, &e.Mode,
			&e.InputTokens, &e.OutputTokens,
			&e.Success, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan request log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate request log: %w", err)
	}
	return entries, nil
}
