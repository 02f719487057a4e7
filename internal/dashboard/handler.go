// Package dashboard exposes the operator REST API: dialog queue,
// operator replies, Q/A management, flow reload, and client controls.
// Authentication is out of scope; the verified operator login arrives
// in the X-Operator header from the fronting proxy.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"deskbot/internal/domain"
	"deskbot/internal/engine"
	"deskbot/internal/flow"
)

// Handler holds the dashboard's dependencies.
type Handler struct {
	store    domain.Store
	router   *engine.Router
	dialogs  *engine.Dialogs
	flows    *flow.Registry
	sessions *engine.SessionStore
	logger   *slog.Logger

	// reloadFlows re-reads the flow directory and swaps the registry.
	reloadFlows func(ctx context.Context) error
	// refreshQA re-reads active Q/A entries into the matcher.
	refreshQA func(ctx context.Context) error
}

type HandlerConfig struct {
	Store       domain.Store
	Router      *engine.Router
	Dialogs     *engine.Dialogs
	Flows       *flow.Registry
	Sessions    *engine.SessionStore
	Logger      *slog.Logger
	ReloadFlows func(ctx context.Context) error
	RefreshQA   func(ctx context.Context) error
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		store:       cfg.Store,
		router:      cfg.Router,
		dialogs:     cfg.Dialogs,
		flows:       cfg.Flows,
		sessions:    cfg.Sessions,
		logger:      cfg.Logger,
		reloadFlows: cfg.ReloadFlows,
		refreshQA:   cfg.RefreshQA,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// fail maps domain errors to HTTP status codes.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		Error(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("dashboard request failed", "err", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

// status reports a live snapshot for the dashboard header: how many
// clients are mid-flow and how many flows are loaded.
func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]int{
		"active_sessions": h.sessions.Len(),
		"flows":           len(h.flows.All()),
	})
}

type ctxKey int

const operatorKey ctxKey = 0

// operatorFrom returns the authenticated operator stored by Identify.
func operatorFrom(ctx context.Context) *domain.Operator {
	op, _ := ctx.Value(operatorKey).(*domain.Operator)
	return op
}

// Identify resolves the X-Operator header to an operator record and
// rejects requests without a valid identity.
func (h *Handler) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		login := r.Header.Get("X-Operator")
		if login == "" {
			Error(w, http.StatusUnauthorized, "missing X-Operator header")
			return
		}
		op, err := h.store.GetOperatorByLogin(r.Context(), login)
		if err != nil {
			h.fail(w, err)
			return
		}
		if op == nil {
			Error(w, http.StatusUnauthorized, "unknown operator")
			return
		}
		ctx := context.WithValue(r.Context(), operatorKey, op)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireMutate blocks read-only roles from state-changing endpoints.
func (h *Handler) RequireMutate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op := operatorFrom(r.Context())
		if op == nil || !op.Role.CanMutate() {
			Error(w, http.StatusForbidden, "role does not permit changes")
			return
		}
		next.ServeHTTP(w, r)
	})
}
