package dashboard

import (
	"net/http"
	"strconv"

	"deskbot/internal/domain"
)

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	clients, err := h.store.ListClients(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if clients == nil {
		clients = []domain.Client{}
	}
	JSON(w, http.StatusOK, clients)
}

func (h *Handler) blockClient(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

func (h *Handler) unblockClient(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *Handler) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	id, ok := pathID(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid client id")
		return
	}
	client, err := h.store.GetClient(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if client == nil {
		Error(w, http.StatusNotFound, "not found")
		return
	}
	if err := h.store.SetClientBlocked(r.Context(), id, blocked); err != nil {
		h.fail(w, err)
		return
	}
	// A blocked client's in-flight conversation ends immediately.
	if blocked {
		h.router.Abort(r.Context(), id, "client blocked")
	}
	client.Blocked = blocked
	JSON(w, http.StatusOK, client)
}

// resetClient aborts the client's flow session so the next message is
// evaluated from scratch.
func (h *Handler) resetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid client id")
		return
	}
	client, err := h.store.GetClient(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if client == nil {
		Error(w, http.StatusNotFound, "not found")
		return
	}
	aborted := h.router.Abort(r.Context(), id, "operator reset")
	JSON(w, http.StatusOK, map[string]any{"client_id": id, "session_aborted": aborted})
}
