// Package validate prepares raw user input for generation.
//
// It enforces the per-request input token budget and parses comma-separated
// topic lists. Validation runs before any quota is reserved, so a rejected
// input never costs the user anything.
package validate

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/mizuki0/sensei/internal/token"
)

// Sentinel errors for input validation, checked with errors.Is.
var (
	// ErrEmptyInput indicates the input text is empty or whitespace-only.
	ErrEmptyInput = errors.New("input text cannot be empty")

	// ErrInputTooLong indicates the input exceeds the token budget and
	// automatic truncation is disabled.
	ErrInputTooLong = errors.New("input exceeds token limit")

	// ErrNoTopics indicates the topic list contained no topics.
	ErrNoTopics = errors.New("no topics provided")

	// ErrTopicTooShort indicates a topic shorter than the minimum length.
	ErrTopicTooShort = errors.New("topic too short")

	// ErrTopicTooLong indicates a topic longer than the maximum length.
	ErrTopicTooLong = errors.New("topic too long")

	// ErrTooManyTopics indicates the topic list exceeds the maximum count.
	ErrTooManyTopics = errors.New("too many topics")
)

// Topic list bounds, counted in characters (runes), not tokens.
const (
	MinTopicLen = 2
	MaxTopicLen = 200
	MaxTopics   = 5
)

// Result is the outcome of preparing one input text.
type Result struct {
	// Text is the text to send downstream, possibly truncated.
	Text string

	// Tokens is the token count of Text.
	Tokens int

	// Truncated reports whether Text was cut to fit the budget.
	Truncated bool

	// OriginalTokens is the count before truncation. Equal to Tokens
	// when Truncated is false.
	OriginalTokens int
}

// Validator checks and normalizes user input against the token budget.
type Validator struct {
	counter        *token.Counter
	maxInputTokens int
	autoTruncate   bool
	logger         *slog.Logger
}

// New creates a Validator. When autoTruncate is true, over-budget input is
// cut to fit instead of rejected.
func New(counter *token.Counter, maxInputTokens int, autoTruncate bool, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		counter:        counter,
		maxInputTokens: maxInputTokens,
		autoTruncate:   autoTruncate,
		logger:         logger,
	}
}

// Prepare validates text against the input budget.
//
// Empty or whitespace-only text fails with ErrEmptyInput. Text within budget
// passes through unchanged. Over-budget text is either truncated (with a
// warning log carrying the original and final counts) or rejected with
// ErrInputTooLong, depending on the autoTruncate setting.
func (v *Validator) Prepare(text string) (*Result, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyInput
	}

	count := v.counter.Count(trimmed)
	if count <= v.maxInputTokens {
		return &Result{Text: trimmed, Tokens: count, OriginalTokens: count}, nil
	}

	if !v.autoTruncate {
		return nil, fmt.Errorf("%w: %d tokens, limit is %d",
			ErrInputTooLong, count, v.maxInputTokens)
	}

	cut, cutCount := v.counter.Truncate(trimmed, v.maxInputTokens)
	v.logger.Warn("input truncated to fit token budget",
		"original_tokens", count,
		"final_tokens", cutCount,
		"limit", v.maxInputTokens)

	return &Result{
		Text:           cut,
		Tokens:         cutCount,
		Truncated:      true,
		OriginalTokens: count,
	}, nil
}

// TopicList parses a comma-separated list of topics.
//
// Topics are trimmed; empty entries are dropped. Each surviving topic must be
// between MinTopicLen and MaxTopicLen characters, and at most MaxTopics
// topics are accepted. Each violation carries its own sentinel so callers
// can present distinct messages.
func (v *Validator) TopicList(raw string) ([]string, error) {
	parts := strings.Split(raw, ",")

	topics := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t == "" {
			continue
		}
		n := utf8.RuneCountInString(t)
		if n < MinTopicLen {
			return nil, fmt.Errorf("%w: %q (minimum %d characters)",
				ErrTopicTooShort, t, MinTopicLen)
		}
		if n > MaxTopicLen {
			return nil, fmt.Errorf("%w: %d characters (maximum %d)",
				ErrTopicTooLong, n, MaxTopicLen)
		}
		topics = append(topics, t)
	}

	if len(topics) == 0 {
		return nil, ErrNoTopics
	}
	if len(topics) > MaxTopics {
		return nil, fmt.Errorf("%w: %d (maximum %d)",
			ErrTooManyTopics, len(topics), MaxTopics)
	}

	return topics, nil
}
