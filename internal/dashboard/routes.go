package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"deskbot/internal/metrics"
)

// Routes builds the dashboard router. /healthz and /metrics are open;
// everything under /api requires an operator identity.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", metrics.Collector.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(h.Identify)

		r.Get("/status", h.status)

		r.Get("/dialogs", h.listDialogs)
		r.Get("/dialogs/{id}", h.getDialog)
		r.Get("/dialogs/{id}/messages", h.listDialogMessages)

		r.Get("/qa", h.listQA)
		r.Get("/flows", h.listFlows)
		r.Get("/clients", h.listClients)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireMutate)

			r.Post("/dialogs/{id}/assign", h.assignDialog)
			r.Post("/dialogs/{id}/close", h.closeDialog)
			r.Post("/dialogs/{id}/status", h.updateDialogStatus)
			r.Post("/dialogs/{id}/reply", h.replyDialog)

			r.Post("/qa", h.createQA)
			r.Put("/qa/{id}", h.updateQA)
			r.Delete("/qa/{id}", h.deleteQA)

			r.Post("/flows/reload", h.reloadFlowsHandler)

			r.Post("/clients/{id}/block", h.blockClient)
			r.Post("/clients/{id}/unblock", h.unblockClient)
			r.Post("/clients/{id}/reset", h.resetClient)
		})
	})

	return r
}
