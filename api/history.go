package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mizuki0/sensei/internal/history"
)

// HistoryHandler serves the shared history list.
type HistoryHandler struct {
	store *history.Store
}

// RegisterRoutes registers the history routes.
func (h *HistoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/history", h.handleList)
	mux.HandleFunc("DELETE /api/history/{position}", h.handleDelete)
	mux.HandleFunc("DELETE /api/history", h.handleClear)
}

// historyEntryBody is the JSON shape of one history entry.
type historyEntryBody struct {
	Position  int       `json:"position"`
	Topics    []string  `json:"topics"`
	Answer    string    `json:"answer"`
	Badge     string    `json:"badge"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *HistoryHandler) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history load failed", err.Error())
		return
	}

	out := make([]historyEntryBody, len(entries))
	for i, e := range entries {
		out[i] = historyEntryBody{
			Position:  e.Position,
			Topics:    e.Topics,
			Answer:    e.Answer,
			Badge:     e.Badge,
			CreatedAt: e.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HistoryHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	position, err := strconv.Atoi(r.PathValue("position"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid position", err.Error())
		return
	}

	if err := h.store.Delete(r.Context(), position); err != nil {
		if errors.Is(err, history.ErrPositionOutOfRange) {
			writeError(w, http.StatusNotFound, "position out of range", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "history delete failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HistoryHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "history clear failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
