// Package backend wraps the genkit generation model behind a small
// streaming interface. It is the only package that talks to the model;
// everything above it deals in plain prompts and text.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

// Errors returned by the generator, checked with errors.Is.
var (
	// ErrGenkitNil indicates the genkit instance is missing.
	ErrGenkitNil = errors.New("genkit instance is nil")

	// ErrNoModel indicates neither a model nor a model name was provided.
	ErrNoModel = errors.New("no model configured")

	// ErrEmptyPrompt indicates an empty prompt was submitted.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrBackend wraps any failure reported by the generation backend.
	// The backend is a black box; all its failures surface as this one
	// kind, with the underlying error attached.
	ErrBackend = errors.New("generation backend error")
)

// StreamFunc receives each raw text fragment as the model produces it.
// Returning an error aborts the stream.
type StreamFunc func(ctx context.Context, chunk string) error

// systemPrompt frames every generation as a technical explanation.
const systemPrompt = `You are a patient senior engineer explaining technical topics.
Explain clearly and concretely, with short examples where they help.
Stay within the requested topic.`

// Config holds the Generator dependencies and settings.
type Config struct {
	// Genkit is the initialized genkit instance. Required.
	Genkit *genkit.Genkit

	// Model takes precedence over ModelName when set.
	Model ai.Model

	// ModelName resolves through the registered provider plugins.
	ModelName string

	// MaxOutputTokens caps the model's output per request. Zero means
	// no explicit cap.
	MaxOutputTokens int

	// RequestsPerMinute throttles calls to the provider. Zero disables
	// throttling.
	RequestsPerMinute int

	// Logger for debugging. Nil uses slog.Default.
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.Genkit == nil {
		return ErrGenkitNil
	}
	if c.Model == nil && strings.TrimSpace(c.ModelName) == "" {
		return ErrNoModel
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Generator produces streamed text completions.
//
// Generator is safe for concurrent use.
type Generator struct {
	g               *genkit.Genkit
	model           ai.Model
	modelName       string
	maxOutputTokens int
	limiter         *rate.Limiter
	logger          *slog.Logger
}

// New creates a Generator from the config.
func New(cfg Config) (*Generator, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid backend config: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &Generator{
		g:               cfg.Genkit,
		model:           cfg.Model,
		modelName:       cfg.ModelName,
		maxOutputTokens: cfg.MaxOutputTokens,
		limiter:         limiter,
		logger:          cfg.Logger,
	}, nil
}

// Stream generates a completion for the prompt, delivering chunks through
// stream as they arrive, and returns the full text. A nil stream degrades
// to a blocking call. Context cancellation aborts the stream; the partial
// text produced so far is returned alongside the error so callers can
// account for it.
func (gen *Generator) Stream(ctx context.Context, prompt string, stream StreamFunc) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	if gen.limiter != nil {
		if err := gen.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var sb strings.Builder
	opts := []ai.GenerateOption{
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(prompt),
	}
	if gen.model != nil {
		opts = append(opts, ai.WithModel(gen.model))
	} else {
		opts = append(opts, ai.WithModelName(gen.modelName))
	}
	if gen.maxOutputTokens > 0 {
		opts = append(opts, ai.WithConfig(&ai.GenerationCommonConfig{
			MaxOutputTokens: gen.maxOutputTokens,
		}))
	}
	if stream != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			sb.WriteString(chunk.Text())
			return stream(ctx, chunk.Text())
		}))
	}

	resp, err := genkit.Generate(ctx, gen.g, opts...)
	if err != nil {
		// Partial output already streamed still costs tokens upstream.
		return sb.String(), fmt.Errorf("%w: %w", ErrBackend, err)
	}

	text := resp.Text()
	gen.logger.Debug("generation complete",
		"prompt_length", len(prompt), "response_length", len(text))
	return text, nil
}

// Invoke generates a completion without streaming.
func (gen *Generator) Invoke(ctx context.Context, prompt string) (string, error) {
	return gen.Stream(ctx, prompt, nil)
}
