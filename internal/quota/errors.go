package quota

import (
	"errors"
	"fmt"
)

// Sentinel errors, checked with errors.Is.
var (
	// ErrExhausted indicates the user has no requests or no tokens left
	// for the current UTC day.
	ErrExhausted = errors.New("daily quota exhausted")

	// ErrInsufficientTokens indicates the user has quota left, but not
	// enough tokens to cover the estimated cost of this request.
	ErrInsufficientTokens = errors.New("insufficient tokens for request")

	// ErrUserNotFound indicates the user does not exist in the store.
	ErrUserNotFound = errors.New("user not found")

	// ErrQuotaNotFound indicates no day counter row exists for the user.
	ErrQuotaNotFound = errors.New("daily quota not found")
)

// ExceededError is returned by admission checks when a request cannot be
// admitted. It wraps either ErrExhausted or ErrInsufficientTokens and
// carries the quota snapshot so callers can show the user where they stand.
type ExceededError struct {
	Status Status

	// Estimated is the token cost the check computed for the request.
	// Zero when the failure is request-count exhaustion.
	Estimated int

	reason error
}

func (e *ExceededError) Error() string {
	if errors.Is(e.reason, ErrInsufficientTokens) {
		return fmt.Sprintf("%v: need %d, %d remaining (resets %s)",
			e.reason, e.Estimated, e.Status.TokensRemaining,
			e.Status.ResetAt.Format("2006-01-02 15:04 MST"))
	}
	return fmt.Sprintf("%v: %d/%d requests, %d/%d tokens used (resets %s)",
		e.reason,
		e.Status.RequestsUsed, e.Status.RequestsLimit,
		e.Status.TokensUsed, e.Status.TokensLimit,
		e.Status.ResetAt.Format("2006-01-02 15:04 MST"))
}

func (e *ExceededError) Unwrap() error {
	return e.reason
}
