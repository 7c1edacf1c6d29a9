package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Querier defines the database operations the Store needs. The interface is
// defined here, by the consumer; the pgx implementation lives in
// postgres.go and tests substitute an in-memory one.
type Querier interface {
	// User operations
	GetUser(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, id string) (User, error)
	AddUserUsage(ctx context.Context, id string, requests, tokens int) error

	// Daily counter operations
	GetDailyQuota(ctx context.Context, userID string, day time.Time) (DailyQuota, error)
	CreateDailyQuota(ctx context.Context, userID string, day time.Time) (DailyQuota, error)
	AddDailyUsage(ctx context.Context, userID string, day time.Time, requests, tokens int) (DailyQuota, error)

	// Request log operations
	InsertRequestLog(ctx context.Context, entry RequestLog) error
	ListRequestLogs(ctx context.Context, userID string, limit int32) ([]RequestLog, error)
}

// Store persists users, day counters and the request log.
//
// Store is safe for concurrent use; all mutation happens through single-row
// atomic updates in the querier.
type Store struct {
	querier Querier
	logger  *slog.Logger
}

// NewStore creates a Store backed by the given querier.
func NewStore(querier Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{querier: querier, logger: logger}
}

// EnsureUser returns the user with the given ID, creating it on first use.
func (s *Store) EnsureUser(ctx context.Context, userID string) (User, error) {
	u, err := s.querier.GetUser(ctx, userID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, fmt.Errorf("get user %s: %w", userID, err)
	}

	u, err = s.querier.CreateUser(ctx, userID)
	if err != nil {
		return User{}, fmt.Errorf("create user %s: %w", userID, err)
	}
	s.logger.Info("registered new user", "user", userID)
	return u, nil
}

// Usage returns the user's day counters for the given day, creating an
// empty row on first touch. The implicit daily reset falls out of keying
// on the day: a new day reads as a fresh zero row.
func (s *Store) Usage(ctx context.Context, userID string, day time.Time) (DailyQuota, error) {
	day = DayOf(day)

	dq, err := s.querier.GetDailyQuota(ctx, userID, day)
	if err == nil {
		return dq, nil
	}
	if !errors.Is(err, ErrQuotaNotFound) {
		return DailyQuota{}, fmt.Errorf("get daily quota for %s: %w", userID, err)
	}

	dq, err = s.querier.CreateDailyQuota(ctx, userID, day)
	if err != nil {
		return DailyQuota{}, fmt.Errorf("create daily quota for %s: %w", userID, err)
	}
	return dq, nil
}

// Charge records one completed request attempt: it appends the log entry and
// adds the entry's request and token cost to both the day counters and the
// user's lifetime totals. Failed attempts are charged like successful ones,
// with whatever tokens they actually consumed.
func (s *Store) Charge(ctx context.Context, entry RequestLog) (DailyQuota, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if _, err := s.EnsureUser(ctx, entry.UserID); err != nil {
		return DailyQuota{}, err
	}

	if err := s.querier.InsertRequestLog(ctx, entry); err != nil {
		return DailyQuota{}, fmt.Errorf("append request log for %s: %w", entry.UserID, err)
	}

	day := DayOf(entry.CreatedAt)
	if _, err := s.Usage(ctx, entry.UserID, day); err != nil {
		return DailyQuota{}, err
	}

	dq, err := s.querier.AddDailyUsage(ctx, entry.UserID, day, 1, entry.TotalTokens())
	if err != nil {
		return DailyQuota{}, fmt.Errorf("update daily quota for %s: %w", entry.UserID, err)
	}

	if err := s.querier.AddUserUsage(ctx, entry.UserID, 1, entry.TotalTokens()); err != nil {
		return DailyQuota{}, fmt.Errorf("update lifetime totals for %s: %w", entry.UserID, err)
	}

	s.logger.Debug("charged request",
		"user", entry.UserID,
		"mode", entry.Mode,
		"input_tokens", entry.InputTokens,
		"output_tokens", entry.OutputTokens,
		"success", entry.Success)
	return dq, nil
}

// RecentRequests returns the user's most recent request log entries,
// newest first.
func (s *Store) RecentRequests(ctx context.Context, userID string, limit int32) ([]RequestLog, error) {
	if limit <= 0 {
		limit = 20
	}
	entries, err := s.querier.ListRequestLogs(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list request log for %s: %w", userID, err)
	}
	return entries, nil
}
