package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mizuki0/sensei/internal/index"
)

// IndexHandler serves the document index.
type IndexHandler struct {
	store *index.Store
}

// RegisterRoutes registers the document routes.
func (h *IndexHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/documents", h.handleAdd)
	mux.HandleFunc("GET /api/documents", h.handleCount)
	mux.HandleFunc("DELETE /api/documents", h.handleClear)
}

// DocumentRequest is the request body for POST /api/documents.
type DocumentRequest struct {
	Topic   string `json:"topic,omitempty"`
	Content string `json:"content"`
}

func (h *IndexHandler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	err := h.store.Add(r.Context(), index.Document{Topic: req.Topic, Content: req.Content})
	if err != nil {
		if errors.Is(err, index.ErrEmptyContent) {
			writeError(w, http.StatusBadRequest, "empty content", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "indexing failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *IndexHandler) handleCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "count failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (h *IndexHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "clear failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
