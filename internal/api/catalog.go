package api

import (
	"net/http"
	"strconv"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/domain"
)

func (s *Server) listBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := s.svc.Catalog.ListBranches(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, branches)
}

func (s *Server) getBranch(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.svc.Catalog.GetBranch(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	var branchID *int64
	if v := r.URL.Query().Get("branchId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, r, apperr.Invalid("Invalid branchId"))
			return
		}
		branchID = &id
	}
	s.writeProducts(w, r, branchID)
}

func (s *Server) listBranchProducts(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "branchId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeProducts(w, r, &id)
}

func (s *Server) writeProducts(w http.ResponseWriter, r *http.Request, branchID *int64) {
	products, err := s.svc.Catalog.ListProducts(r.Context(), branchID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Catalog.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var p domain.Product
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	p.ID = ""
	out, err := s.svc.Catalog.CreateProduct(r.Context(), &p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	var p domain.Product
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	p.ID = r.PathValue("id")
	out, err := s.svc.Catalog.UpdateProduct(r.Context(), &p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Catalog.DeleteProduct(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{Message: "Product deleted successfully"})
}
