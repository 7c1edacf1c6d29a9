// Package explain orchestrates the full explanation pipeline: topic
// validation, quota admission, per-topic routed generation, usage charging
// and history persistence.
//
// The quota contract is the heart of it. Each topic is admitted before its
// generation starts and the admission mutates nothing; the charge lands
// exactly once per topic attempt, after that topic's generation, with the
// real token spend. Failures and cancellations are charged too, with
// whatever output was produced before the interruption. A per-user lock
// around the whole span keeps one user's concurrent requests from racing
// the check against the charge.
package explain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mizuki0/sensei/internal/history"
	"github.com/mizuki0/sensei/internal/quota"
	"github.com/mizuki0/sensei/internal/router"
	"github.com/mizuki0/sensei/internal/token"
	"github.com/mizuki0/sensei/internal/validate"
)

// ErrNoIdentity indicates a request without a user identity. Quota is
// per-user; an anonymous request has no quota to draw from.
var ErrNoIdentity = errors.New("user identity required")

// Config validation errors.
var (
	ErrValidatorNil = errors.New("validator is nil")
	ErrCounterNil   = errors.New("token counter is nil")
	ErrLimiterNil   = errors.New("quota limiter is nil")
	ErrExplainerNil = errors.New("topic explainer is nil")
	ErrHistoryNil   = errors.New("history store is nil")
)

// HistoryMode selects how a multi-topic answer lands in history.
type HistoryMode string

const (
	// HistoryAggregate stores one combined entry for all topics.
	HistoryAggregate HistoryMode = "aggregate"

	// HistorySeparate stores one entry per topic.
	HistorySeparate HistoryMode = "separate"
)

// StreamFunc receives the accumulated answer text for one topic after each
// chunk, with the topic's mode. Topics stream strictly in order.
type StreamFunc func(ctx context.Context, topic, accumulated, mode string) error

// Explainer is the slice of the router the service needs.
type Explainer interface {
	Explain(ctx context.Context, topic string, onChunk router.ChunkFunc) (*router.Explanation, error)
}

// HistoryStore is the slice of the history store the service needs.
type HistoryStore interface {
	Append(ctx context.Context, entry history.Entry) error
}

// TopicAnswer is one topic's completed answer.
type TopicAnswer struct {
	Topic string
	Mode  string
	Text  string
}

// Outcome is the result of one explanation request.
type Outcome struct {
	Answers []TopicAnswer

	// Badge summarizes the whole request: rag, generic or mixed.
	Badge string

	// InputTokens and OutputTokens are the charged token counts.
	InputTokens  int
	OutputTokens int

	// Truncated reports whether the input was cut to fit the budget.
	Truncated bool

	// Status is the user's quota after charging.
	Status quota.Status
}

// Config holds the Service dependencies.
type Config struct {
	Validator *validate.Validator
	Counter   *token.Counter
	Limiter   *quota.Limiter
	Explainer Explainer
	History   HistoryStore

	// Logger for debugging. Nil uses slog.Default.
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.Validator == nil {
		return ErrValidatorNil
	}
	if c.Counter == nil {
		return ErrCounterNil
	}
	if c.Limiter == nil {
		return ErrLimiterNil
	}
	if c.Explainer == nil {
		return ErrExplainerNil
	}
	if c.History == nil {
		return ErrHistoryNil
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Service runs explanation requests end to end.
//
// Service is safe for concurrent use.
type Service struct {
	validator *validate.Validator
	counter   *token.Counter
	limiter   *quota.Limiter
	explainer Explainer
	history   HistoryStore
	logger    *slog.Logger
}

// New creates a Service from the config.
func New(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid explain config: %w", err)
	}
	return &Service{
		validator: cfg.Validator,
		counter:   cfg.Counter,
		limiter:   cfg.Limiter,
		explainer: cfg.Explainer,
		history:   cfg.History,
		logger:    cfg.Logger,
	}, nil
}

// Explain answers a comma-separated list of topics for the given user.
//
// Topics run strictly in order, each through its own validate, admit,
// generate, charge cycle. A validation failure or quota rejection aborts
// the request before that topic incurs any cost; topics that already
// completed keep their charges and are persisted to history. Once a
// topic's generation starts it is charged no matter how it ends; a
// mid-stream failure or cancellation is billed with the input plus
// whatever output tokens were produced and logged as a failed attempt.
func (s *Service) Explain(ctx context.Context, userID, topicsCSV string, mode HistoryMode, stream StreamFunc) (*Outcome, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrNoIdentity
	}
	if mode != HistorySeparate {
		mode = HistoryAggregate
	}

	topics, err := s.validator.TopicList(topicsCSV)
	if err != nil {
		return nil, err
	}

	// Serialize this user's requests across the whole span so each charge
	// lands before the next admission check reads the counters.
	unlock := s.limiter.LockUser(userID)
	defer unlock()

	st := &requestState{userID: userID, mode: mode}
	for _, topic := range topics {
		prepared, err := s.validator.Prepare(topic)
		if err != nil {
			return s.abort(ctx, st, err)
		}
		if _, err := s.limiter.CheckAndReserve(ctx, userID, prepared.Tokens); err != nil {
			return s.abort(ctx, st, err)
		}

		exp, genErr := s.explainTopic(ctx, topic, stream)
		outTokens := 0
		if exp != nil && exp.Text != "" {
			outTokens = s.counter.Count(exp.Text)
		}
		st.inputTokens += prepared.Tokens
		st.outputTokens += outTokens
		st.truncated = st.truncated || prepared.Truncated

		if genErr != nil {
			s.chargeFailure(ctx, st, topic, exp, prepared.Tokens, outTokens, genErr)
			return s.abort(ctx, st, genErr)
		}

		status, err := s.limiter.Charge(ctx, quota.RequestLog{
			UserID:       userID,
			Topic:        topic,
			Mode:         exp.Mode,
			InputTokens:  prepared.Tokens,
			OutputTokens: outTokens,
			Success:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("charge quota: %w", err)
		}
		st.status = status
		st.answers = append(st.answers, TopicAnswer{Topic: topic, Mode: exp.Mode, Text: exp.Text})
	}

	badge := history.BadgeFor(modesOf(st.answers))
	if err := s.saveHistory(ctx, userID, st.answers, badge, mode); err != nil {
		// The answers were delivered and charged; a history write failure
		// is logged, not surfaced as a request failure.
		s.logger.Error("failed to save history", "user", userID, "error", err)
	}

	s.logger.Info("explanation complete",
		"user", userID,
		"topics", len(topics),
		"badge", badge,
		"input_tokens", st.inputTokens,
		"output_tokens", st.outputTokens)

	return &Outcome{
		Answers:      st.answers,
		Badge:        badge,
		InputTokens:  st.inputTokens,
		OutputTokens: st.outputTokens,
		Truncated:    st.truncated,
		Status:       st.status,
	}, nil
}

// explainTopic runs one topic through the router, adapting the service
// stream to the router's chunk callback.
func (s *Service) explainTopic(ctx context.Context, topic string, stream StreamFunc) (*router.Explanation, error) {
	var onChunk router.ChunkFunc
	if stream != nil {
		onChunk = func(ctx context.Context, accumulated, mode string) error {
			return stream(ctx, topic, accumulated, mode)
		}
	}
	return s.explainer.Explain(ctx, topic, onChunk)
}

// requestState accumulates one request's progress across its topics.
type requestState struct {
	userID string
	mode   HistoryMode

	answers      []TopicAnswer
	inputTokens  int
	outputTokens int
	truncated    bool
	status       quota.Status
}

// chargeFailure bills a topic attempt that started generating and then
// failed. Charging uses a fresh context: the request context may already
// be canceled, and the charge must land regardless.
func (s *Service) chargeFailure(ctx context.Context, st *requestState, topic string, partial *router.Explanation, inTokens, outTokens int, genErr error) {
	mode := quota.ModeGeneric
	if partial != nil && partial.Mode != "" {
		mode = partial.Mode
	}

	status, err := s.limiter.Charge(context.WithoutCancel(ctx), quota.RequestLog{
		UserID:       st.userID,
		Topic:        topic,
		Mode:         mode,
		InputTokens:  inTokens,
		OutputTokens: outTokens,
		Success:      false,
		ErrorMessage: genErr.Error(),
	})
	if err != nil {
		s.logger.Error("failed to charge failed attempt", "user", st.userID, "error", err)
		return
	}
	st.status = status
}

// abort ends the request early. Topics that already completed keep their
// charges and are persisted to history; the partial outcome is returned
// alongside the cause.
func (s *Service) abort(ctx context.Context, st *requestState, cause error) (*Outcome, error) {
	ctx = context.WithoutCancel(ctx)

	badge := history.BadgeFor(modesOf(st.answers))
	if len(st.answers) > 0 {
		if err := s.saveHistory(ctx, st.userID, st.answers, badge, st.mode); err != nil {
			s.logger.Error("failed to save history", "user", st.userID, "error", err)
		}
	}

	if status, err := s.limiter.Status(ctx, st.userID); err == nil {
		st.status = status
	}

	s.logger.Warn("explanation aborted",
		"user", st.userID,
		"completed_topics", len(st.answers),
		"output_tokens", st.outputTokens,
		"error", cause)

	return &Outcome{
		Answers:      st.answers,
		Badge:        badge,
		InputTokens:  st.inputTokens,
		OutputTokens: st.outputTokens,
		Truncated:    st.truncated,
		Status:       st.status,
	}, cause
}

// saveHistory persists the answers: one combined entry in aggregate mode,
// one entry per topic in separate mode.
func (s *Service) saveHistory(ctx context.Context, userID string, answers []TopicAnswer, badge string, mode HistoryMode) error {
	if mode == HistorySeparate {
		for _, a := range answers {
			if err := s.history.Append(ctx, history.Entry{
				UserID: userID,
				Topics: []string{a.Topic},
				Answer: a.Text,
				Badge:  a.Mode,
			}); err != nil {
				return err
			}
		}
		return nil
	}

	topics := make([]string, len(answers))
	var combined strings.Builder
	for i, a := range answers {
		topics[i] = a.Topic
		if i > 0 {
			combined.WriteString("\n\n")
		}
		fmt.Fprintf(&combined, "## %s\n\n%s", a.Topic, a.Text)
	}
	return s.history.Append(ctx, history.Entry{
		UserID: userID,
		Topics: topics,
		Answer: combined.String(),
		Badge:  badge,
	})
}

// QuotaStatus returns the user's current quota snapshot.
func (s *Service) QuotaStatus(ctx context.Context, userID string) (quota.Status, error) {
	if strings.TrimSpace(userID) == "" {
		return quota.Status{}, ErrNoIdentity
	}
	return s.limiter.Status(ctx, userID)
}

// ValidateTopics parses a topic list without running anything.
func (s *Service) ValidateTopics(topicsCSV string) ([]string, error) {
	return s.validator.TopicList(topicsCSV)
}

func modesOf(answers []TopicAnswer) []string {
	modes := make([]string, len(answers))
	for i, a := range answers {
		modes[i] = a.Mode
	}
	return modes
}
