package dashboard

import (
	"net/http"

	"deskbot/internal/domain"
)

type flowSummary struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
	Trigger string `json:"trigger"`
	Active  bool   `json:"active"`
	Default bool   `json:"default"`
	Steps   int    `json:"steps"`
}

func (h *Handler) listFlows(w http.ResponseWriter, r *http.Request) {
	all := h.flows.All()
	summaries := make([]flowSummary, 0, len(all))
	for _, def := range all {
		summaries = append(summaries, summarize(def))
	}
	JSON(w, http.StatusOK, summaries)
}

func summarize(def domain.FlowDefinition) flowSummary {
	return flowSummary{
		Name:    def.Name,
		Version: def.Version,
		Trigger: def.Trigger,
		Active:  def.Active,
		Default: def.Default,
		Steps:   len(def.Steps),
	}
}

// reloadFlowsHandler re-reads the flow directory. A directory with any
// invalid definition is rejected as a whole; the running registry is
// untouched in that case.
func (h *Handler) reloadFlowsHandler(w http.ResponseWriter, r *http.Request) {
	if h.reloadFlows == nil {
		Error(w, http.StatusServiceUnavailable, "flow reload not configured")
		return
	}
	if err := h.reloadFlows(r.Context()); err != nil {
		Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]int{"flows": len(h.flows.All())})
}
