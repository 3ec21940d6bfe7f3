package api

import (
	"fmt"
	"net/http"

	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/workflow"
)

// updatedBy is the actor recorded in stage history: the body value when
// given, else the caller's email, else their id.
func updatedBy(r *http.Request, given string) string {
	if given != "" {
		return given
	}
	p := principal(r)
	if p.Email != "" {
		return p.Email
	}
	return p.ID
}

func (s *Server) workflowStages(w http.ResponseWriter, r *http.Request) {
	stages, err := s.svc.Workflow.Stages(r.Context(), r.PathValue("orderId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "workflow": stages})
}

func (s *Server) workflowHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.svc.Workflow.History(r.Context(), r.PathValue("orderId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "history": h})
}

func (s *Server) updateStage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status    string  `json:"status"`
		Notes     *string `json:"notes"`
		UpdatedBy string  `json:"updatedBy"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	stage := r.PathValue("stage")
	st, err := s.svc.Workflow.UpdateStage(r.Context(), r.PathValue("orderId"),
		workflow.Update{Stage: stage, Status: req.Status, Notes: req.Notes},
		updatedBy(r, req.UpdatedBy))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  fmt.Sprintf("%s updated to %s", domain.StageNames[stage], req.Status),
		"workflow": st,
	})
}

func (s *Server) bulkUpdateStages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Updates   []workflow.Update `json:"updates"`
		UpdatedBy string            `json:"updatedBy"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.svc.Workflow.BulkUpdate(r.Context(), r.PathValue("orderId"), req.Updates, updatedBy(r, req.UpdatedBy))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       fmt.Sprintf("Updated %d stages", len(updated)),
		"updatedStages": updated,
	})
}

func (s *Server) workflowProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Workflow.Progress(r.Context(), r.PathValue("orderId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "progress": p})
}

func (s *Server) workflowOverview(w http.ResponseWriter, r *http.Request) {
	rows, err := s.svc.Workflow.Overview(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "orders": rows})
}

func (s *Server) workflowMeta(w http.ResponseWriter, _ *http.Request) {
	m := workflow.Metadata()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"stages":     m.Stages,
		"stageNames": m.StageNames,
		"statuses":   m.Statuses,
	})
}
