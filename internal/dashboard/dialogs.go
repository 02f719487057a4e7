package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"deskbot/internal/domain"
)

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) listDialogs(w http.ResponseWriter, r *http.Request) {
	status := domain.DialogStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		Error(w, http.StatusBadRequest, "unknown status")
		return
	}
	var operatorID int64
	if s := r.URL.Query().Get("operator_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid operator_id")
			return
		}
		operatorID = id
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	dialogs, err := h.store.ListDialogs(r.Context(), status, operatorID, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if dialogs == nil {
		dialogs = []domain.Dialog{}
	}
	JSON(w, http.StatusOK, dialogs)
}

func (h *Handler) getDialog(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid dialog id")
		return
	}
	dialog, err := h.store.GetDialog(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if dialog == nil {
		Error(w, http.StatusNotFound, "not found")
		return
	}
	JSON(w, http.StatusOK, dialog)
}

func (h *Handler) listDialogMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid dialog id")
		return
	}
	dialog, err := h.store.GetDialog(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if dialog == nil {
		Error(w, http.StatusNotFound, "not found")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs, err := h.store.ListMessages(r.Context(), dialog.ClientID, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	JSON(w, http.StatusOK, msgs)
}

func (h *Handler) assignDialog(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid dialog id")
		return
	}
	op := operatorFrom(r.Context())

	// An admin may assign to someone else; otherwise self-assignment.
	var body struct {
		OperatorID int64 `json:"operator_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	target := op.ID
	if body.OperatorID != 0 && op.Role == domain.RoleAdmin {
		target = body.OperatorID
	}

	dialog, err := h.dialogs.Assign(r.Context(), id, target)
	if err != nil {
		h.fail(w, err)
		return
	}
	JSON(w, http.StatusOK, dialog)
}

func (h *Handler) closeDialog(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid dialog id")
		return
	}
	var body struct {
		Resolution string `json:"resolution"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	dialog, err := h.dialogs.Close(r.Context(), id, body.Resolution)
	if err != nil {
		h.fail(w, err)
		return
	}
	JSON(w, http.StatusOK, dialog)
}

func (h *Handler) updateDialogStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid dialog id")
		return
	}
	var body struct {
		Status     string `json:"status"`
		Resolution string `json:"resolution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid body")
		return
	}

	dialog, err := h.dialogs.UpdateStatus(r.Context(), id, domain.DialogStatus(body.Status), body.Resolution)
	if err != nil {
		h.fail(w, err)
		return
	}
	JSON(w, http.StatusOK, dialog)
}

func (h *Handler) replyDialog(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid dialog id")
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}

	dialog, err := h.router.OperatorReply(r.Context(), id, operatorFrom(r.Context()), body.Text)
	if err != nil {
		h.fail(w, err)
		return
	}
	JSON(w, http.StatusOK, dialog)
}
