// Package history persists completed explanations as a single shared,
// append-only list. Entries are shown and deleted by their 1-based position
// in chronological order, the way a user sees them.
//
// The list is deliberately shared across users rather than partitioned:
// the service is a shared study log, and everyone sees the same entries.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Badge values summarize how an entry's answer was produced.
const (
	// BadgeRAG marks an answer grounded entirely in indexed material.
	BadgeRAG = "rag"

	// BadgeGeneric marks an answer produced entirely from the model.
	BadgeGeneric = "generic"

	// BadgeMixed marks a multi-topic answer with both kinds.
	BadgeMixed = "mixed"
)

// Errors, checked with errors.Is.
var (
	// ErrPositionOutOfRange indicates a 1-based position outside the list.
	ErrPositionOutOfRange = errors.New("history position out of range")

	// ErrEmptyAnswer indicates an attempt to store an entry without text.
	ErrEmptyAnswer = errors.New("history entry answer cannot be empty")
)

// Entry is one stored explanation.
type Entry struct {
	ID        uuid.UUID
	UserID    string
	Topics    []string
	Answer    string
	Badge     string
	CreatedAt time.Time

	// Position is the 1-based chronological position, filled on load.
	Position int
}

// Querier defines the database operations the Store needs.
// Consumer-defined; the pgx implementation lives in postgres.go.
type Querier interface {
	InsertEntry(ctx context.Context, entry Entry) error
	ListEntries(ctx context.Context) ([]Entry, error)
	DeleteEntry(ctx context.Context, id uuid.UUID) error
	DeleteAllEntries(ctx context.Context) error
}

// Store manages the shared history list.
//
// Store is safe for concurrent use, with one caveat: Delete resolves a
// position to an entry ID with a read followed by a delete, so two
// concurrent deletes can race over which entry a position means.
type Store struct {
	querier Querier
	logger  *slog.Logger
}

// New creates a Store over the given querier.
func New(querier Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{querier: querier, logger: logger}
}

// Append adds one entry to the end of the list. A zero ID gets a fresh UUID.
func (s *Store) Append(ctx context.Context, entry Entry) error {
	if entry.Answer == "" {
		return ErrEmptyAnswer
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Badge == "" {
		entry.Badge = BadgeGeneric
	}

	if err := s.querier.InsertEntry(ctx, entry); err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	s.logger.Debug("appended history entry",
		"id", entry.ID, "topics", entry.Topics, "badge", entry.Badge)
	return nil
}

// Load returns all entries oldest first, with Position filled in.
func (s *Store) Load(ctx context.Context) ([]Entry, error) {
	entries, err := s.querier.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	for i := range entries {
		entries[i].Position = i + 1
	}
	return entries, nil
}

// Delete removes the entry at the given 1-based position.
func (s *Store) Delete(ctx context.Context, position int) error {
	entries, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if position < 1 || position > len(entries) {
		return fmt.Errorf("%w: %d of %d", ErrPositionOutOfRange, position, len(entries))
	}

	target := entries[position-1]
	if err := s.querier.DeleteEntry(ctx, target.ID); err != nil {
		return fmt.Errorf("delete history entry %s: %w", target.ID, err)
	}
	s.logger.Debug("deleted history entry", "id", target.ID, "position", position)
	return nil
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.querier.DeleteAllEntries(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	s.logger.Info("cleared history")
	return nil
}

// BadgeFor derives an entry's badge from the modes of its per-topic answers.
func BadgeFor(modes []string) string {
	if len(modes) == 0 {
		return BadgeGeneric
	}
	sawRAG, sawGeneric := false, false
	for _, m := range modes {
		switch m {
		case BadgeRAG:
			sawRAG = true
		default:
			sawGeneric = true
		}
	}
	switch {
	case sawRAG && sawGeneric:
		return BadgeMixed
	case sawRAG:
		return BadgeRAG
	default:
		return BadgeGeneric
	}
}
