package index

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"

	"github.com/pgvector/pgvector-go"

	"github.com/mizuki0/sensei/internal/log"
	"github.com/mizuki0/sensei/internal/testutil"
)

// memQuerier is an in-memory Querier doing brute-force cosine search.
type memQuerier struct {
	mu   sync.Mutex
	docs []UpsertParams
}

func (m *memQuerier) UpsertDocument(_ context.Context, arg UpsertParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.docs {
		if d.ID == arg.ID {
			m.docs[i] = arg
			return nil
		}
	}
	m.docs = append(m.docs, arg)
	return nil
}

func (m *memQuerier) SearchDocuments(_ context.Context, embedding pgvector.Vector, limit int32) ([]SearchRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := make([]SearchRow, 0, len(m.docs))
	for _, d := range m.docs {
		rows = append(rows, SearchRow{
			ID:         d.ID,
			Topic:      d.Topic,
			Content:    d.Content,
			CreatedAt:  d.CreatedAt,
			Similarity: cosine(embedding.Slice(), d.Embedding.Slice()),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Similarity > rows[j].Similarity })
	if int32(len(rows)) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *memQuerier) CountDocuments(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.docs)), nil
}

func (m *memQuerier) DeleteAllDocuments(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = nil
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func newTestStore(t *testing.T, mock *testutil.MockEmbedder) (*Store, *memQuerier) {
	t.Helper()
	g := testutil.NewGenkit(t)
	q := &memQuerier{}
	return New(q, mock.RegisterEmbedder(g), log.NewNop()), q
}

func TestAddAndRetrieve(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, testutil.NewMockEmbedder(8))
	ctx := context.Background()

	docs := []Document{
		{Topic: "goroutines", Content: "goroutines are lightweight threads"},
		{Topic: "channels", Content: "channels pass values between goroutines"},
	}
	for _, d := range docs {
		if err := store.Add(ctx, d); err != nil {
			t.Fatalf("Add(%q) error = %v", d.Topic, err)
		}
	}

	// Identical text embeds identically, so the matching document comes
	// back with similarity 1.
	results, err := store.Retrieve(ctx, "goroutines are lightweight threads", 2)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Retrieve() returned %d results, want 2", len(results))
	}
	if results[0].Topic != "goroutines" {
		t.Errorf("top result topic = %q, want %q", results[0].Topic, "goroutines")
	}
	if results[0].Similarity < 0.999 {
		t.Errorf("top similarity = %g, want ~1", results[0].Similarity)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("results not ordered by similarity descending")
	}
}

func TestRetrieveWithPinnedVectors(t *testing.T) {
	t.Parallel()

	emb := testutil.NewMockEmbedder(4)
	emb.SetVector("relevant chunk", []float32{1, 0, 0, 0})
	emb.SetVector("unrelated chunk", []float32{0, 1, 0, 0})
	emb.SetVector("the query", []float32{1, 0, 0, 0})

	store, _ := newTestStore(t, emb)
	ctx := context.Background()

	for _, content := range []string{"relevant chunk", "unrelated chunk"} {
		if err := store.Add(ctx, Document{Content: content}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	results, err := store.Retrieve(ctx, "the query", 5)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Retrieve() returned %d results, want 2", len(results))
	}
	if results[0].Content != "relevant chunk" || results[0].Similarity < 0.999 {
		t.Errorf("top result = (%q, %g), want relevant chunk with similarity 1",
			results[0].Content, results[0].Similarity)
	}
	if results[1].Similarity > 0.001 {
		t.Errorf("orthogonal result similarity = %g, want ~0", results[1].Similarity)
	}
}

func TestAddEmptyContent(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, testutil.NewMockEmbedder(4))
	if err := store.Add(context.Background(), Document{}); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("Add() error = %v, want ErrEmptyContent", err)
	}
}

func TestHasAnyAndClear(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, testutil.NewMockEmbedder(4))
	ctx := context.Background()

	ok, err := store.HasAny(ctx)
	if err != nil {
		t.Fatalf("HasAny() error = %v", err)
	}
	if ok {
		t.Error("HasAny() = true on empty index")
	}

	if err := store.Add(ctx, Document{Content: "something"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	ok, err = store.HasAny(ctx)
	if err != nil {
		t.Fatalf("HasAny() error = %v", err)
	}
	if !ok {
		t.Error("HasAny() = false after Add")
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Count() after Clear = %d, want 0", count)
	}
}
