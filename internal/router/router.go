// Package router decides, per topic, whether an explanation is grounded in
// retrieved reference material or generated from the model's own knowledge,
// and runs the generation in the chosen mode.
//
// The decision is made once, before generation starts, and never changes
// mid-stream: every chunk of one topic's answer carries the same mode.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mizuki0/sensei/internal/backend"
	"github.com/mizuki0/sensei/internal/index"
)

// Generation modes.
const (
	// ModeRAG means the answer is grounded in retrieved documents.
	ModeRAG = "rag"

	// ModeGeneric means the answer comes from the model alone.
	ModeGeneric = "generic"
)

// ErrRetrieverNil and friends report invalid router construction.
var (
	ErrRetrieverNil = errors.New("retriever is nil")
	ErrGeneratorNil = errors.New("generator is nil")
)

// Retriever is the slice of the index the router needs.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]index.Result, error)
	HasAny(ctx context.Context) (bool, error)
}

// Generator is the slice of the backend the router needs.
type Generator interface {
	Stream(ctx context.Context, prompt string, stream backend.StreamFunc) (string, error)
}

// ChunkFunc receives the accumulated answer text after each chunk, together
// with the topic's mode. The mode is identical across all calls for one
// topic. Returning an error aborts the stream.
type ChunkFunc func(ctx context.Context, accumulated, mode string) error

// Explanation is one topic's completed answer.
type Explanation struct {
	Topic string
	Mode  string
	Text  string

	// Sources are the retrieved documents the answer was grounded in.
	// Empty in generic mode.
	Sources []index.Result
}

// Config holds the Router dependencies and settings.
type Config struct {
	Retriever Retriever
	Generator Generator

	// TopK is how many documents to retrieve per topic.
	TopK int

	// MinSimilarity is the cosine-similarity cutoff: a topic goes the
	// grounded route only when at least one retrieved document scores at
	// or above it.
	MinSimilarity float64

	// Logger for debugging. Nil uses slog.Default.
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.Retriever == nil {
		return ErrRetrieverNil
	}
	if c.Generator == nil {
		return ErrGeneratorNil
	}
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Router routes topics between grounded and generic generation.
//
// Router is safe for concurrent use.
type Router struct {
	retriever     Retriever
	generator     Generator
	topK          int
	minSimilarity float64
	logger        *slog.Logger
}

// New creates a Router from the config.
func New(cfg Config) (*Router, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid router config: %w", err)
	}
	return &Router{
		retriever:     cfg.Retriever,
		generator:     cfg.Generator,
		topK:          cfg.TopK,
		minSimilarity: cfg.MinSimilarity,
		logger:        cfg.Logger,
	}, nil
}

// Explain generates an explanation for one topic, streaming accumulated text
// through onChunk. The mode is decided up front: grounded when the index has
// at least one sufficiently similar document, generic otherwise (including
// when the index is empty). Backend errors propagate to the caller along
// with whatever text was produced before the failure.
func (r *Router) Explain(ctx context.Context, topic string, onChunk ChunkFunc) (*Explanation, error) {
	sources, err := r.relevantSources(ctx, topic)
	if err != nil {
		return nil, err
	}

	mode := ModeGeneric
	var prompt string
	if len(sources) > 0 {
		mode = ModeRAG
		prompt = ragPrompt(topic, sources)
	} else {
		prompt = genericPrompt(topic)
	}

	r.logger.Debug("routed topic", "topic", topic, "mode", mode, "sources", len(sources))

	var accumulated strings.Builder
	var stream backend.StreamFunc
	if onChunk != nil {
		stream = func(ctx context.Context, chunk string) error {
			accumulated.WriteString(chunk)
			return onChunk(ctx, accumulated.String(), mode)
		}
	}

	text, err := r.generator.Stream(ctx, prompt, stream)
	if err != nil {
		// Keep the partial text so the caller can bill it.
		return &Explanation{Topic: topic, Mode: mode, Text: text, Sources: sources}, err
	}

	return &Explanation{Topic: topic, Mode: mode, Text: text, Sources: sources}, nil
}

// relevantSources retrieves and filters documents for the topic. An empty
// index short-circuits to no sources without touching the embedder.
func (r *Router) relevantSources(ctx context.Context, topic string) ([]index.Result, error) {
	hasAny, err := r.retriever.HasAny(ctx)
	if err != nil {
		return nil, fmt.Errorf("check index: %w", err)
	}
	if !hasAny {
		return nil, nil
	}

	results, err := r.retriever.Retrieve(ctx, topic, r.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve for topic %q: %w", topic, err)
	}

	relevant := results[:0]
	for _, res := range results {
		if res.Similarity >= r.minSimilarity {
			relevant = append(relevant, res)
		}
	}
	return relevant, nil
}

func ragPrompt(topic string, sources []index.Result) string {
	var sb strings.Builder
	sb.WriteString("Explain the following topic using the reference material below.\n")
	sb.WriteString("Prefer the reference material over your own knowledge where they overlap.\n\n")
	fmt.Fprintf(&sb, "Topic: %s\n\nReference material:\n", topic)
	for i, src := range sources {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, src.Content)
	}
	return sb.String()
}

func genericPrompt(topic string) string {
	return fmt.Sprintf("Explain the following topic from your own knowledge.\n\nTopic: %s\n", topic)
}
