package api

import (
	"net/http"
	"time"

	"github.com/mizuki0/sensei/internal/explain"
	"github.com/mizuki0/sensei/internal/quota"
)

// QuotaHandler serves quota status and the request log.
type QuotaHandler struct {
	service  *explain.Service
	store    *quota.Store
	identity Identity
}

// RegisterRoutes registers the quota routes.
func (h *QuotaHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/quota", h.handleStatus)
	mux.HandleFunc("GET /api/requests", h.handleRequests)
}

// quotaStatusBody is the JSON shape of a quota snapshot.
type quotaStatusBody struct {
	RequestsUsed      int       `json:"requests_used"`
	RequestsLimit     int       `json:"requests_limit"`
	RequestsRemaining int       `json:"requests_remaining"`
	TokensUsed        int       `json:"tokens_used"`
	TokensLimit       int       `json:"tokens_limit"`
	TokensRemaining   int       `json:"tokens_remaining"`
	Exhausted         bool      `json:"exhausted"`
	Warning           bool      `json:"warning"`
	ResetAt           time.Time `json:"reset_at"`
}

func quotaStatus(s quota.Status) quotaStatusBody {
	return quotaStatusBody{
		RequestsUsed:      s.RequestsUsed,
		RequestsLimit:     s.RequestsLimit,
		RequestsRemaining: s.RequestsRemaining,
		TokensUsed:        s.TokensUsed,
		TokensLimit:       s.TokensLimit,
		TokensRemaining:   s.TokensRemaining,
		Exhausted:         s.Exhausted,
		Warning:           s.Warning,
		ResetAt:           s.ResetAt,
	}
}

func (h *QuotaHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID := h.identity.UserID(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "user identity required",
			"set the "+userIDHeader+" header")
		return
	}

	status, err := h.service.QuotaStatus(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "quota lookup failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, quotaStatus(status))
}

// requestLogBody is the JSON shape of one request log entry.
type requestLogBody struct {
	Topic        string    `json:"topic"`
	Mode         string    `json:"mode"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (h *QuotaHandler) handleRequests(w http.ResponseWriter, r *http.Request) {
	userID := h.identity.UserID(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "user identity required",
			"set the "+userIDHeader+" header")
		return
	}

	entries, err := h.store.RecentRequests(r.Context(), userID, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "request log lookup failed", err.Error())
		return
	}

	out := make([]requestLogBody, len(entries))
	for i, e := range entries {
		out[i] = requestLogBody{
			Topic:        e.Topic,
			Mode:         e.Mode,
			InputTokens:  e.InputTokens,
			OutputTokens: e.OutputTokens,
			Success:      e.Success,
			Error:        e.ErrorMessage,
			CreatedAt:    e.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}
