// Package token provides model-aware token counting and truncation.
//
// Counting is backed by the tiktoken BPE vocabularies. When the vocabulary
// for the configured model cannot be loaded, the counter degrades to a
// conservative characters-per-token heuristic instead of failing: quota
// accounting must keep working even when tokenizer data is unavailable.
package token

import (
	"log/slog"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// DefaultModel is the tokenizer model used when none is configured.
	DefaultModel = "gpt-4o-mini"

	// fallbackEncoding is used when the model has no registered encoding.
	fallbackEncoding = "cl100k_base"

	// charsPerToken is the conservative heuristic ratio used when no
	// tokenizer is available. One token per four characters, rounded up.
	charsPerToken = 4

	// Per-message formatting overhead for chat-shaped payloads:
	// every message is wrapped in start/role/end markers, and every
	// reply is primed with an assistant header.
	tokensPerMessage = 3
	tokensPerName    = 1
	tokensPerReply   = 3
)

// Message is a chat message for advisory token estimation.
type Message struct {
	Role    string
	Name    string
	Content string
}

// Counter counts tokens for a specific model.
// A nil encoding means heuristic mode. Counter is safe for concurrent use:
// the underlying encoder is read-only after construction.
type Counter struct {
	model  string
	enc    *tiktoken.Tiktoken
	logger *slog.Logger
}

// NewCounter creates a Counter for the given model (empty = DefaultModel).
// It never fails: if neither the model encoding nor the fallback encoding
// can be loaded, the counter operates in heuristic mode.
func NewCounter(model string, logger *slog.Logger) *Counter {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = DefaultModel
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		logger.Warn("no encoding for model, trying fallback",
			"model", model, "fallback", fallbackEncoding, "error", err)
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			logger.Warn("tokenizer unavailable, using character heuristic", "error", err)
			enc = nil
		}
	}

	return &Counter{model: model, enc: enc, logger: logger}
}

// NewHeuristicCounter creates a Counter that always uses the
// characters-per-token estimate. Intended for tests and for environments
// where tokenizer vocabulary files cannot be loaded.
func NewHeuristicCounter(logger *slog.Logger) *Counter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Counter{model: DefaultModel, logger: logger}
}

// Count returns the number of tokens in text. Empty text counts as zero.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc == nil {
		return c.estimateFromChars(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// estimateFromChars estimates the token count from the character count.
// Conservative: one token per four characters, rounded up.
func (c *Counter) estimateFromChars(text string) int {
	if text == "" {
		return 0
	}
	return utf8.RuneCountInString(text)/charsPerToken + 1
}

// Truncate cuts text down to at most maxTokens tokens.
// Text already within budget is returned unchanged together with its exact
// count; otherwise the first maxTokens tokens are decoded back to text and
// the returned count is exactly maxTokens. The cut is deterministic.
func (c *Counter) Truncate(text string, maxTokens int) (string, int) {
	if text == "" || maxTokens <= 0 {
		return "", 0
	}

	if c.enc == nil {
		runes := []rune(text)
		if est := c.estimateFromChars(text); est <= maxTokens {
			return text, est
		}
		// The estimate is runes/charsPerToken plus one, so keeping one
		// rune short of maxTokens*charsPerToken lands the cut's
		// estimate at exactly maxTokens.
		keep := maxTokens*charsPerToken - 1
		if keep > len(runes) {
			keep = len(runes)
		}
		cut := string(runes[:keep])
		return cut, c.estimateFromChars(cut)
	}

	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, len(tokens)
	}

	truncated := c.enc.Decode(tokens[:maxTokens])
	c.logger.Debug("truncated text", "from", len(tokens), "to", maxTokens)
	return truncated, maxTokens
}

// CountMessages counts tokens for a chat-shaped message list, including the
// fixed per-message formatting overhead and reply priming. Advisory only:
// the generation backend is a black box and may count differently.
func (c *Counter) CountMessages(messages []Message) int {
	if len(messages) == 0 {
		return 0
	}

	total := 0
	for _, m := range messages {
		total += tokensPerMessage
		total += c.Count(m.Role)
		total += c.Count(m.Content)
		if m.Name != "" {
			total += c.Count(m.Name) + tokensPerName
		}
	}
	total += tokensPerReply

	return total
}
