package api

import (
	"net/http"
	"time"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/artist"
	"github.com/yohanns/storefront/internal/domain"
)

func (s *Server) artistProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Artist.Profile(r.Context(), principal(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updateArtistProfile(w http.ResponseWriter, r *http.Request) {
	var u artist.ProfileUpdate
	if err := decode(r, &u); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.svc.Artist.UpdateProfile(r.Context(), principal(r).ID, u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) artistMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.Artist.Metrics(r.Context(), principal(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) artistWorkload(w http.ResponseWriter, r *http.Request) {
	days, err := s.svc.Artist.Workload(r.Context(), principal(r).ID, r.URL.Query().Get("period"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

func (s *Server) artistTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.svc.Artist.Tasks(r.Context(), principal(r).ID, r.URL.Query().Get("status"), queryInt(r, "limit", 0))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) updateTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.svc.Artist.UpdateTaskStatus(r.Context(), principal(r).ID, r.PathValue("taskId"), req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) listArtists(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	list, err := s.svc.Artist.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.ArtistProfile{}
	}
	writeJSON(w, http.StatusOK, list)
}

// toggleArtist sets an artist's availability. Staff may change any artist;
// an artist only their own profile.
func (s *Server) toggleArtist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsActive *bool `json:"is_active"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.IsActive == nil {
		s.writeError(w, r, apperr.Invalid("is_active must be a boolean value"))
		return
	}
	p := principal(r)
	id := r.PathValue("id")
	if !p.IsStaff() {
		prof, err := s.svc.Artist.ProfileByID(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !p.Is(domain.RoleArtist) || prof.UserID != p.ID {
			s.writeError(w, r, apperr.Forbidden("You can only toggle your own status"))
			return
		}
	}
	prof, err := s.svc.Artist.SetActive(r.Context(), id, *req.IsActive)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	state := "inactive"
	if prof.IsActive {
		state = "active"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Artist status updated to " + state,
		"data": map[string]any{
			"id":          prof.ID,
			"artist_name": prof.ArtistName,
			"is_active":   prof.IsActive,
		},
	})
}

func (s *Server) artistWorkloadSummary(w http.ResponseWriter, r *http.Request) {
	loads, err := s.svc.Assign.WorkloadSummary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loads)
}

func (s *Server) backfillTasks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Since  *time.Time `json:"since"`
		DryRun bool       `json:"dryRun"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rep, err := s.svc.Assign.Backfill(r.Context(), req.Since, req.DryRun)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
