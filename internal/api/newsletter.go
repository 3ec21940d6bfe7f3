package api

import (
	"net/http"

	"github.com/yohanns/storefront/internal/newsletter"
)

type newsletterRequest struct {
	Email string `json:"email"`
}

func (s *Server) writeOutcome(w http.ResponseWriter, r *http.Request, out *newsletter.Outcome, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*newsletter.Outcome
	}{true, out})
}

// subscribe is public; a signed-in caller's id is stored with the
// subscription.
func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	var req newsletterRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var userID string
	if p := principal(r); p != nil {
		userID = p.ID
	}
	out, err := s.svc.Newsletter.Subscribe(r.Context(), req.Email, userID)
	s.writeOutcome(w, r, out, err)
}

func (s *Server) unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req newsletterRequest
	if r.Method == http.MethodGet {
		req.Email = r.URL.Query().Get("email")
	} else if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.svc.Newsletter.Unsubscribe(r.Context(), req.Email)
	s.writeOutcome(w, r, out, err)
}

func (s *Server) listSubscribers(w http.ResponseWriter, r *http.Request) {
	subs, err := s.svc.Newsletter.Subscribers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": len(subs), "subscribers": subs})
}
