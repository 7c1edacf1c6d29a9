package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mizuki0/sensei/internal/backend"
	"github.com/mizuki0/sensei/internal/explain"
	"github.com/mizuki0/sensei/internal/quota"
	"github.com/mizuki0/sensei/internal/validate"
)

// ExplainHandler serves the streaming explanation endpoint.
type ExplainHandler struct {
	service  *explain.Service
	identity Identity
	logger   *slog.Logger
}

// RegisterRoutes registers the explain routes.
func (h *ExplainHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/explain", h.handleExplain)
}

// ExplainRequest is the request body for POST /api/explain.
type ExplainRequest struct {
	// Topics is a comma-separated topic list.
	Topics string `json:"topics"`

	// HistoryMode is "aggregate" (default) or "separate".
	HistoryMode string `json:"history_mode,omitempty"`
}

// chunkEvent is the payload of each "chunk" SSE event: the accumulated
// answer for one topic so far, with the topic's fixed mode.
type chunkEvent struct {
	Topic string `json:"topic"`
	Text  string `json:"text"`
	Mode  string `json:"mode"`
}

// doneEvent is the payload of the final "done" SSE event.
type doneEvent struct {
	Badge        string           `json:"badge"`
	InputTokens  int              `json:"input_tokens"`
	OutputTokens int              `json:"output_tokens"`
	Truncated    bool             `json:"truncated,omitempty"`
	Quota        quotaStatusBody  `json:"quota"`
	Answers      []answerBody     `json:"answers"`
}

type answerBody struct {
	Topic string `json:"topic"`
	Mode  string `json:"mode"`
	Text  string `json:"text"`
}

// errorEvent is the payload of the "error" SSE event.
type errorEvent struct {
	Code    string           `json:"code"`
	Message string           `json:"message"`
	Quota   *quotaStatusBody `json:"quota,omitempty"`
}

// handleExplain runs an explanation and streams it as SSE. Request shape
// problems are rejected as plain JSON before the stream starts; everything
// after that arrives as events, errors included.
func (h *ExplainHandler) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req ExplainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	userID := h.identity.UserID(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "user identity required",
			"set the "+userIDHeader+" header")
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", err.Error())
		return
	}

	ctx := r.Context()
	outcome, err := h.service.Explain(ctx, userID, req.Topics,
		explain.HistoryMode(req.HistoryMode),
		func(ctx context.Context, topic, accumulated, mode string) error {
			return sse.WriteEvent(ctx, "chunk", chunkEvent{Topic: topic, Text: accumulated, Mode: mode})
		})
	if err != nil {
		h.writeStreamError(ctx, sse, err)
		return
	}

	answers := make([]answerBody, len(outcome.Answers))
	for i, a := range outcome.Answers {
		answers[i] = answerBody{Topic: a.Topic, Mode: a.Mode, Text: a.Text}
	}
	if err := sse.WriteEvent(ctx, "done", doneEvent{
		Badge:        outcome.Badge,
		InputTokens:  outcome.InputTokens,
		OutputTokens: outcome.OutputTokens,
		Truncated:    outcome.Truncated,
		Quota:        quotaStatus(outcome.Status),
		Answers:      answers,
	}); err != nil {
		h.logger.Debug("client went away before done event", "error", err)
	}
}

// writeStreamError maps service errors onto the closed set of error codes
// the stream exposes.
func (h *ExplainHandler) writeStreamError(ctx context.Context, sse *SSEWriter, err error) {
	ev := errorEvent{Code: "internal", Message: err.Error()}

	var exceeded *quota.ExceededError
	switch {
	case errors.Is(err, explain.ErrNoIdentity):
		ev.Code = "no_identity"
	case errors.As(err, &exceeded):
		ev.Code = "quota_exhausted"
		if errors.Is(err, quota.ErrInsufficientTokens) {
			ev.Code = "insufficient_tokens"
		}
		status := quotaStatus(exceeded.Status)
		ev.Quota = &status
	case errors.Is(err, validate.ErrEmptyInput),
		errors.Is(err, validate.ErrInputTooLong),
		errors.Is(err, validate.ErrNoTopics),
		errors.Is(err, validate.ErrTopicTooShort),
		errors.Is(err, validate.ErrTopicTooLong),
		errors.Is(err, validate.ErrTooManyTopics):
		ev.Code = "invalid_input"
	case errors.Is(err, backend.ErrBackend):
		ev.Code = "backend_error"
	}

	if werr := sse.WriteEvent(ctx, "error", ev); werr != nil {
		h.logger.Debug("client went away before error event", "error", werr)
	}
}
