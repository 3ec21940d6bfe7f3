package api

import (
	"net/http"

	"github.com/yohanns/storefront/internal/account"
)

func (s *Server) defaultAddress(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Account.Default(r.Context(), principal(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) listAddresses(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Account.List(r.Context(), principal(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) saveAddress(w http.ResponseWriter, r *http.Request) {
	var in account.AddressInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.svc.Account.Save(r.Context(), principal(r).ID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) updateAddress(w http.ResponseWriter, r *http.Request) {
	var in account.AddressInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.svc.Account.Update(r.Context(), principal(r).ID, r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) deleteAddress(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Account.Delete(r.Context(), principal(r).ID, r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{Message: "Address deleted successfully"})
}

func (s *Server) setDefaultAddress(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Account.SetDefault(r.Context(), principal(r).ID, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
