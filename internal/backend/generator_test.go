package backend

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mizuki0/sensei/internal/log"
	"github.com/mizuki0/sensei/internal/testutil"
)

func newTestGenerator(t *testing.T, mock *testutil.MockLLM) *Generator {
	t.Helper()
	g := testutil.NewGenkit(t)
	gen, err := New(Config{
		Genkit: g,
		Model:  mock.RegisterModel(g),
		Logger: log.NewNop(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return gen
}

func TestStreamDeliversChunksAndFullText(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("fallback")
	mock.AddResponse("goroutines", "goroutines are cheap green threads")
	gen := newTestGenerator(t, mock)

	var chunks []string
	text, err := gen.Stream(context.Background(), "explain goroutines",
		func(_ context.Context, chunk string) error {
			chunks = append(chunks, chunk)
			return nil
		})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if text != "goroutines are cheap green threads" {
		t.Errorf("Stream() text = %q", text)
	}
	if len(chunks) < 2 {
		t.Errorf("expected multiple chunks, got %d", len(chunks))
	}
	if joined := strings.Join(chunks, ""); joined != text {
		t.Errorf("concatenated chunks = %q, want %q", joined, text)
	}
}

func TestInvokeUsesFallback(t *testing.T) {
	t.Parallel()

	gen := newTestGenerator(t, testutil.NewMockLLM("generic answer"))
	text, err := gen.Invoke(context.Background(), "anything at all")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if text != "generic answer" {
		t.Errorf("Invoke() = %q, want fallback", text)
	}
}

func TestStreamBackendFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("provider unavailable")
	mock := testutil.NewMockLLM("ok")
	mock.FailWith("broken", boom)
	gen := newTestGenerator(t, mock)

	_, err := gen.Stream(context.Background(), "this is broken", nil)
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("Stream() error = %v, want ErrBackend", err)
	}
}

func TestStreamEmptyPrompt(t *testing.T) {
	t.Parallel()

	gen := newTestGenerator(t, testutil.NewMockLLM("ok"))
	if _, err := gen.Stream(context.Background(), "  ", nil); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("Stream() error = %v, want ErrEmptyPrompt", err)
	}
}

func TestStreamCallbackAbort(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("one two three four five")
	gen := newTestGenerator(t, mock)

	abort := errors.New("client went away")
	var seen int
	_, err := gen.Stream(context.Background(), "count",
		func(_ context.Context, _ string) error {
			seen++
			if seen >= 2 {
				return abort
			}
			return nil
		})
	if err == nil {
		t.Fatal("Stream() error = nil, want abort to propagate")
	}
	if seen != 2 {
		t.Errorf("callback ran %d times, want 2", seen)
	}
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); !errors.Is(err, ErrGenkitNil) {
		t.Errorf("New(empty) error = %v, want ErrGenkitNil", err)
	}

	g := testutil.NewGenkit(t)
	if _, err := New(Config{Genkit: g}); !errors.Is(err, ErrNoModel) {
		t.Errorf("New(no model) error = %v, want ErrNoModel", err)
	}
}
