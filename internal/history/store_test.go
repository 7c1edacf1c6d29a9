package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mizuki0/sensei/internal/log"
)

// memQuerier is an in-memory Querier for tests.
type memQuerier struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *memQuerier) InsertEntry(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memQuerier) ListEntries(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *memQuerier) DeleteEntry(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memQuerier) DeleteAllEntries(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	return nil
}

func newTestStore() *Store {
	return New(&memQuerier{}, log.NewNop())
}

func TestAppendAndLoad(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	entries := []Entry{
		{UserID: "alice", Topics: []string{"goroutines"}, Answer: "first", Badge: BadgeRAG, CreatedAt: base},
		{UserID: "bob", Topics: []string{"channels", "select"}, Answer: "second", Badge: BadgeMixed, CreatedAt: base.Add(time.Minute)},
	}
	for _, e := range entries {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Load() returned %d entries, want 2", len(got))
	}
	for i, e := range got {
		if e.Position != i+1 {
			t.Errorf("entry %d position = %d, want %d", i, e.Position, i+1)
		}
		if e.ID == uuid.Nil {
			t.Errorf("entry %d has no ID", i)
		}
	}
	if got[0].Answer != "first" || got[1].Answer != "second" {
		t.Error("entries not in append order")
	}
	// The list is shared: both users' entries are visible together.
	if got[0].UserID == got[1].UserID {
		t.Error("test setup expects entries from two users")
	}
}

func TestAppendEmptyAnswer(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	if err := store.Append(context.Background(), Entry{}); !errors.Is(err, ErrEmptyAnswer) {
		t.Fatalf("Append() error = %v, want ErrEmptyAnswer", err)
	}
}

func TestDeleteByPosition(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, answer := range []string{"one", "two", "three"} {
		if err := store.Append(ctx, Entry{
			Answer:    answer,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	if err := store.Delete(ctx, 2); err != nil {
		t.Fatalf("Delete(2) error = %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("after delete: %d entries, want 2", len(got))
	}
	if got[0].Answer != "one" || got[1].Answer != "three" {
		t.Errorf("remaining answers = %q, %q; want one, three", got[0].Answer, got[1].Answer)
	}
	// Positions renumber after a delete.
	if got[1].Position != 2 {
		t.Errorf("position after delete = %d, want 2", got[1].Position)
	}
}

func TestDeleteOutOfRange(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	ctx := context.Background()
	if err := store.Append(ctx, Entry{Answer: "only"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	for _, pos := range []int{0, -1, 2} {
		if err := store.Delete(ctx, pos); !errors.Is(err, ErrPositionOutOfRange) {
			t.Errorf("Delete(%d) error = %v, want ErrPositionOutOfRange", pos, err)
		}
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	ctx := context.Background()
	if err := store.Append(ctx, Entry{Answer: "a"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("after Clear: %d entries, want 0", len(got))
	}
}

func TestBadgeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		modes []string
		want  string
	}{
		{"no modes", nil, BadgeGeneric},
		{"all rag", []string{BadgeRAG, BadgeRAG}, BadgeRAG},
		{"all generic", []string{BadgeGeneric, BadgeGeneric}, BadgeGeneric},
		{"mixed", []string{BadgeRAG, BadgeGeneric}, BadgeMixed},
		{"single rag", []string{BadgeRAG}, BadgeRAG},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := BadgeFor(tt.modes); got != tt.want {
				t.Errorf("BadgeFor(%v) = %q, want %q", tt.modes, got, tt.want)
			}
		})
	}
}
