package dashboard

import (
	"encoding/json"
	"net/http"
	"strings"

	"deskbot/internal/domain"
)

func (h *Handler) listQA(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListQA(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if entries == nil {
		entries = []domain.QAEntry{}
	}
	JSON(w, http.StatusOK, entries)
}

func (h *Handler) createQA(w http.ResponseWriter, r *http.Request) {
	var e domain.QAEntry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		Error(w, http.StatusBadRequest, "invalid body")
		return
	}
	e.Question = strings.TrimSpace(e.Question)
	if e.Question == "" || e.Answer == "" {
		Error(w, http.StatusBadRequest, "question and answer are required")
		return
	}

	id, err := h.store.CreateQA(r.Context(), e)
	if err != nil {
		h.fail(w, err)
		return
	}
	e.ID = id
	h.refreshMatcher(r)
	JSON(w, http.StatusCreated, e)
}

func (h *Handler) updateQA(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid entry id")
		return
	}
	var e domain.QAEntry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		Error(w, http.StatusBadRequest, "invalid body")
		return
	}
	e.ID = id
	e.Question = strings.TrimSpace(e.Question)
	if e.Question == "" || e.Answer == "" {
		Error(w, http.StatusBadRequest, "question and answer are required")
		return
	}

	if err := h.store.UpdateQA(r.Context(), e); err != nil {
		h.fail(w, err)
		return
	}
	h.refreshMatcher(r)
	JSON(w, http.StatusOK, e)
}

func (h *Handler) deleteQA(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid entry id")
		return
	}
	if err := h.store.DeleteQA(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	h.refreshMatcher(r)
	w.WriteHeader(http.StatusNoContent)
}

// refreshMatcher applies Q/A edits to the matcher snapshot right away
// instead of waiting for the periodic refresh.
func (h *Handler) refreshMatcher(r *http.Request) {
	if h.refreshQA == nil {
		return
	}
	if err := h.refreshQA(r.Context()); err != nil {
		h.logger.Warn("matcher refresh after edit failed", "err", err)
	}
}
