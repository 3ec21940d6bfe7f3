package api

import (
	"net/http"

	"github.com/yohanns/storefront/internal/users"
)

func (s *Server) listAdmins(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Users.ListAdmins(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createAdmin(w http.ResponseWriter, r *http.Request) {
	var req users.NewAdmin
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.svc.Users.CreateAdmin(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Admin account created successfully",
		"user":    u,
	})
}

func (s *Server) deleteAdmin(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Users.DeleteAdmin(r.Context(), principal(r), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{Message: "Admin account deleted successfully"})
}

func (s *Server) listCustomers(w http.ResponseWriter, r *http.Request) {
	page, err := s.svc.Users.ListCustomers(r.Context(), users.CustomerQuery{
		Page:    queryInt(r, "page", 1),
		PerPage: queryInt(r, "perPage", 0),
		Search:  r.URL.Query().Get("search"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Users.DeleteCustomer(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{Message: "Customer account deleted successfully"})
}

func (s *Server) updateArtistAccount(w http.ResponseWriter, r *http.Request) {
	var req users.ArtistUpdate
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.svc.Users.UpdateArtist(r.Context(), r.PathValue("id"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Artist updated successfully",
		"artist":  a,
	})
}

func (s *Server) deleteArtistAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Users.DeleteArtist(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{Message: "Artist deleted successfully"})
}
