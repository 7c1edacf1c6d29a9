// Package quota implements per-user daily usage accounting and admission
// control for generation requests.
//
// Usage is tracked in two ledgers: a per-day counter row (requests and
// tokens used, reset implicitly at UTC midnight by keying on the day) and an
// append-only request log that records every attempt, including failures.
// The Limiter performs admission checks against the day counters and charges
// completed requests; the Store persists both ledgers.
package quota

import (
	"time"

	"github.com/google/uuid"
)

// Limits holds the per-user quota limits. The zero value is not usable;
// construct with DefaultLimits or fill every field.
type Limits struct {
	// DailyRequests is the maximum number of requests per user per UTC day.
	DailyRequests int

	// DailyTokens is the maximum token spend per user per UTC day,
	// counting both input and output tokens.
	DailyTokens int

	// MaxInputTokens is the per-request input budget.
	MaxInputTokens int

	// MaxOutputTokens is the per-request output budget. Admission checks
	// reserve this full amount; actual spend is charged at completion.
	MaxOutputTokens int
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{
		DailyRequests:   20,
		DailyTokens:     10000,
		MaxInputTokens:  300,
		MaxOutputTokens: 500,
	}
}

// User is a registered user with lifetime usage totals.
type User struct {
	ID string

	// DisplayName defaults to the ID; the identity layer may set a
	// friendlier one.
	DisplayName string

	CreatedAt     time.Time
	TotalRequests int64
	TotalTokens   int64
}

// DailyQuota is one user's usage counters for one UTC day.
type DailyQuota struct {
	UserID       string
	Day          time.Time
	RequestsUsed int
	TokensUsed   int
}

// Request modes recorded in the request log.
const (
	ModeRAG     = "rag"
	ModeGeneric = "generic"
	ModeMixed   = "mixed"
)

// RequestLog is one entry in the append-only request ledger. Every attempt
// is logged, successful or not.
type RequestLog struct {
	ID           uuid.UUID
	UserID       string
	Topic        string
	Mode         string
	InputTokens  int
	OutputTokens int
	Success      bool
	ErrorMessage string
	CreatedAt    time.Time
}

// TotalTokens returns the combined token spend of the request.
func (r RequestLog) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// warningRatio is the fraction of either daily limit above which Status
// reports Warning.
const warningRatio = 0.8

// Status is a snapshot of one user's quota for the current UTC day.
type Status struct {
	UserID string
	Day    time.Time

	RequestsUsed      int
	RequestsLimit     int
	RequestsRemaining int

	TokensUsed      int
	TokensLimit     int
	TokensRemaining int

	// Exhausted is true when either remaining counter is zero or below.
	Exhausted bool

	// Warning is true when usage of either counter is above 80% of its
	// limit. Exhausted implies Warning.
	Warning bool

	// ResetAt is the next UTC midnight, when the day counters roll over.
	ResetAt time.Time
}

// NewStatus derives a Status from day counters and limits.
func NewStatus(dq DailyQuota, limits Limits) Status {
	s := Status{
		UserID:        dq.UserID,
		Day:           dq.Day,
		RequestsUsed:  dq.RequestsUsed,
		RequestsLimit: limits.DailyRequests,
		TokensUsed:    dq.TokensUsed,
		TokensLimit:   limits.DailyTokens,
		ResetAt:       NextReset(dq.Day),
	}
	s.RequestsRemaining = s.RequestsLimit - s.RequestsUsed
	s.TokensRemaining = s.TokensLimit - s.TokensUsed
	s.Exhausted = s.RequestsRemaining <= 0 || s.TokensRemaining <= 0
	s.Warning = s.Exhausted ||
		float64(s.RequestsUsed) > warningRatio*float64(s.RequestsLimit) ||
		float64(s.TokensUsed) > warningRatio*float64(s.TokensLimit)
	return s
}

// Today returns the current UTC day, truncated to midnight.
func Today() time.Time {
	return DayOf(time.Now())
}

// DayOf truncates t to its UTC day.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextReset returns the UTC midnight following day.
func NextReset(day time.Time) time.Time {
	return DayOf(day).AddDate(0, 0, 1)
}
