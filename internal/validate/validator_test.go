package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/mizuki0/sensei/internal/log"
	"github.com/mizuki0/sensei/internal/token"
)

func newValidator(maxTokens int, autoTruncate bool) *Validator {
	return New(token.NewHeuristicCounter(log.NewNop()), maxTokens, autoTruncate, log.NewNop())
}

func TestPrepareEmpty(t *testing.T) {
	t.Parallel()

	v := newValidator(300, false)
	for _, input := range []string{"", "   ", "\n\t "} {
		if _, err := v.Prepare(input); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Prepare(%q) error = %v, want ErrEmptyInput", input, err)
		}
	}
}

func TestPrepareWithinBudget(t *testing.T) {
	t.Parallel()

	v := newValidator(300, false)
	res, err := v.Prepare("  explain goroutines  ")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if res.Text != "explain goroutines" {
		t.Errorf("Text = %q, want trimmed input", res.Text)
	}
	if res.Truncated {
		t.Error("Truncated = true for within-budget input")
	}
	if res.Tokens != res.OriginalTokens {
		t.Errorf("Tokens (%d) != OriginalTokens (%d) without truncation",
			res.Tokens, res.OriginalTokens)
	}
}

func TestPrepareOverBudgetRejected(t *testing.T) {
	t.Parallel()

	v := newValidator(10, false)
	long := strings.Repeat("word ", 100)
	_, err := v.Prepare(long)
	if !errors.Is(err, ErrInputTooLong) {
		t.Fatalf("Prepare() error = %v, want ErrInputTooLong", err)
	}
	if !strings.Contains(err.Error(), "limit is 10") {
		t.Errorf("error should name the limit, got: %v", err)
	}
}

func TestPrepareOverBudgetTruncated(t *testing.T) {
	t.Parallel()

	v := newValidator(10, true)
	long := strings.Repeat("word ", 100)
	res, err := v.Prepare(long)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if !res.Truncated {
		t.Fatal("Truncated = false for over-budget input")
	}
	if res.Tokens > 10 {
		t.Errorf("Tokens = %d, exceeds budget 10", res.Tokens)
	}
	if res.OriginalTokens <= res.Tokens {
		t.Errorf("OriginalTokens = %d, want greater than final %d",
			res.OriginalTokens, res.Tokens)
	}
	if !strings.HasPrefix(strings.TrimSpace(long), res.Text) {
		t.Error("truncated text is not a prefix of the input")
	}
}

func TestTopicList(t *testing.T) {
	t.Parallel()

	v := newValidator(300, false)

	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr error
	}{
		{
			name: "single topic",
			raw:  "goroutines",
			want: []string{"goroutines"},
		},
		{
			name: "trims and drops empty entries",
			raw:  " channels , , select ,",
			want: []string{"channels", "select"},
		},
		{
			name: "five topics allowed",
			raw:  "aa,bb,cc,dd,ee",
			want: []string{"aa", "bb", "cc", "dd", "ee"},
		},
		{
			name:    "six topics rejected",
			raw:     "aa,bb,cc,dd,ee,ff",
			wantErr: ErrTooManyTopics,
		},
		{
			name: "two characters is the minimum",
			raw:  "ab",
			want: []string{"ab"},
		},
		{
			name:    "one character rejected",
			raw:     "a",
			wantErr: ErrTopicTooShort,
		},
		{
			name: "two hundred characters allowed",
			raw:  strings.Repeat("x", 200),
			want: []string{strings.Repeat("x", 200)},
		},
		{
			name:    "two hundred one characters rejected",
			raw:     strings.Repeat("x", 201),
			wantErr: ErrTopicTooLong,
		},
		{
			name:    "empty input",
			raw:     "",
			wantErr: ErrNoTopics,
		},
		{
			name:    "only commas and spaces",
			raw:     " , ,, ",
			wantErr: ErrNoTopics,
		},
		{
			name: "multibyte topics counted in runes",
			raw:  "併發",
			want: []string{"併發"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := v.TopicList(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("TopicList() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("TopicList() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("TopicList() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("topic[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
