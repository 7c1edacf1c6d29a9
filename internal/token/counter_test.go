package token

import (
	"strings"
	"testing"

	"github.com/mizuki0/sensei/internal/log"
)

// Tests use the heuristic counter so they do not depend on tokenizer
// vocabulary files being present on the test machine. The heuristic path
// and the BPE path share all boundary logic above the encoder.

func TestCountEmpty(t *testing.T) {
	t.Parallel()

	c := NewHeuristicCounter(log.NewNop())
	if got := c.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
}

func TestCountHeuristic(t *testing.T) {
	t.Parallel()

	c := NewHeuristicCounter(log.NewNop())

	tests := []struct {
		text string
		want int
	}{
		{"abcd", 2},                     // 4 runes / 4 + 1
		{"a", 1},                        // 1/4 + 1
		{strings.Repeat("x", 40), 11},   // 40/4 + 1
		{strings.Repeat("日", 8), 3},     // rune count, not byte count: 8/4 + 1
	}

	for _, tt := range tests {
		if got := c.Count(tt.text); got != tt.want {
			t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestTruncateWithinBudgetUnchanged(t *testing.T) {
	t.Parallel()

	c := NewHeuristicCounter(log.NewNop())
	text := "short input"
	got, n := c.Truncate(text, 100)
	if got != text {
		t.Errorf("Truncate returned %q, want unchanged input", got)
	}
	if n != c.Count(text) {
		t.Errorf("Truncate count = %d, want %d", n, c.Count(text))
	}
}

func TestTruncateCutsToBudget(t *testing.T) {
	t.Parallel()

	c := NewHeuristicCounter(log.NewNop())
	text := strings.Repeat("word ", 200) // 1000 chars, ~251 tokens

	for _, budget := range []int{1, 5, 10, 50, 250} {
		got, n := c.Truncate(text, budget)
		if n != budget {
			t.Errorf("Truncate(budget=%d) count = %d, want exactly the budget", budget, n)
		}
		if n != c.Count(got) {
			t.Errorf("Truncate(budget=%d) count = %d, disagrees with Count = %d",
				budget, n, c.Count(got))
		}
		if got == "" {
			t.Errorf("Truncate(budget=%d) returned empty text", budget)
		}
		if !strings.HasPrefix(text, got) {
			t.Errorf("Truncate(budget=%d) is not a prefix of the input", budget)
		}
	}
}

func TestTruncateZeroBudget(t *testing.T) {
	t.Parallel()

	c := NewHeuristicCounter(log.NewNop())
	got, n := c.Truncate("anything", 0)
	if got != "" || n != 0 {
		t.Errorf("Truncate(_, 0) = (%q, %d), want (\"\", 0)", got, n)
	}
}

func TestCountMessages(t *testing.T) {
	t.Parallel()

	c := NewHeuristicCounter(log.NewNop())

	if got := c.CountMessages(nil); got != 0 {
		t.Errorf("CountMessages(nil) = %d, want 0", got)
	}

	msgs := []Message{
		{Role: "user", Content: "abcd"},
		{Role: "user", Content: "efgh"},
	}
	// Per message: 3 overhead + Count("user")=2 + Count("abcd")=2 → 7.
	// Two messages + 3 reply priming = 17.
	want := 2*(tokensPerMessage+2+2) + tokensPerReply
	if got := c.CountMessages(msgs); got != want {
		t.Errorf("CountMessages = %d, want %d", got, want)
	}

	// A name adds its count plus the name overhead.
	named := []Message{{Role: "user", Name: "ab", Content: "abcd"}}
	wantNamed := tokensPerMessage + 2 + 2 + (1 + tokensPerName) + tokensPerReply
	if got := c.CountMessages(named); got != wantNamed {
		t.Errorf("CountMessages(named) = %d, want %d", got, wantNamed)
	}
}
