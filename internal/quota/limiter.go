package quota

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Limiter performs quota admission checks and charges completed requests.
//
// Admission (CheckAndReserve) is a pure read: it mutates nothing, so a check
// that is never followed by Charge costs the user nothing. The charge
// happens once, after generation, with the actual token spend. Between the
// two there is a window in which a second request from the same user could
// be admitted against stale counters; callers that care serialize a user's
// requests with LockUser around the whole check-generate-charge span.
type Limiter struct {
	store  *Store
	limits Limits
	logger *slog.Logger

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

// NewLimiter creates a Limiter over the given store.
func NewLimiter(store *Store, limits Limits, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		store:  store,
		limits: limits,
		logger: logger,
		users:  make(map[string]*sync.Mutex),
	}
}

// Limits returns the configured limits.
func (l *Limiter) Limits() Limits {
	return l.limits
}

// LockUser locks the per-user mutex and returns the unlock function.
// Serializes a user's requests within this process only; two processes
// sharing a database still race between check and charge.
func (l *Limiter) LockUser(userID string) func() {
	l.mu.Lock()
	m, ok := l.users[userID]
	if !ok {
		m = &sync.Mutex{}
		l.users[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Estimate returns the worst-case token cost of a request with the given
// input: the input itself plus the full output budget.
func (l *Limiter) Estimate(inputTokens int) int {
	return inputTokens + l.limits.MaxOutputTokens
}

// CheckAndReserve decides whether a request with the given input token count
// may proceed. It reads the user's counters and returns the current Status;
// nothing is written.
//
// Rejections wrap one of two sentinels: ErrExhausted when either day counter
// is already at its limit, ErrInsufficientTokens when the worst-case cost of
// this request does not fit in the remaining token budget. Both arrive as an
// *ExceededError carrying the Status.
func (l *Limiter) CheckAndReserve(ctx context.Context, userID string, inputTokens int) (Status, error) {
	if _, err := l.store.EnsureUser(ctx, userID); err != nil {
		return Status{}, err
	}

	dq, err := l.store.Usage(ctx, userID, time.Now())
	if err != nil {
		return Status{}, err
	}

	status := NewStatus(dq, l.limits)
	if status.Exhausted {
		l.logger.Info("request rejected, quota exhausted",
			"user", userID,
			"requests_used", status.RequestsUsed,
			"tokens_used", status.TokensUsed)
		return status, &ExceededError{Status: status, reason: ErrExhausted}
	}

	estimated := l.Estimate(inputTokens)
	if estimated > status.TokensRemaining {
		l.logger.Info("request rejected, insufficient tokens",
			"user", userID,
			"estimated", estimated,
			"remaining", status.TokensRemaining)
		return status, &ExceededError{Status: status, Estimated: estimated, reason: ErrInsufficientTokens}
	}

	if status.Warning {
		l.logger.Warn("user approaching daily quota",
			"user", userID,
			"requests_remaining", status.RequestsRemaining,
			"tokens_remaining", status.TokensRemaining)
	}
	return status, nil
}

// Charge records the actual cost of a completed attempt and returns the
// updated Status. Called for successes, failures and cancellations alike;
// failures carry whatever output tokens were produced before the failure.
func (l *Limiter) Charge(ctx context.Context, entry RequestLog) (Status, error) {
	dq, err := l.store.Charge(ctx, entry)
	if err != nil {
		return Status{}, err
	}
	return NewStatus(dq, l.limits), nil
}

// Status returns the user's quota snapshot for the current UTC day.
func (l *Limiter) Status(ctx context.Context, userID string) (Status, error) {
	if _, err := l.store.EnsureUser(ctx, userID); err != nil {
		return Status{}, err
	}
	dq, err := l.store.Usage(ctx, userID, time.Now())
	if err != nil {
		return Status{}, err
	}
	return NewStatus(dq, l.limits), nil
}
