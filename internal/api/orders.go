package api

import (
	"context"
	"net/http"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/auth"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/orders"
)

var errOrderDenied = apperr.Forbidden("Access denied to this order")

// canSeeOrder reports whether p may read order o. Staff and artists see
// every order; customers only their own.
func canSeeOrder(p *auth.Principal, o *domain.Order) bool {
	return p.IsStaff() || p.Is(domain.RoleArtist) || (p != nil && o.UserID == p.ID)
}

// visibleOrder loads an order and checks that p may read it.
func (s *Server) visibleOrder(ctx context.Context, p *auth.Principal, id string) (*domain.Order, error) {
	o, err := s.svc.Orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSeeOrder(p, o) {
		return nil, errOrderDenied
	}
	return o, nil
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.svc.Orders.List(r.Context(), orders.ListParams{
		Status:       q.Get("status"),
		PickupBranch: q.Get("pickupBranch"),
		DateSort:     q.Get("dateSort"),
		PriceSort:    q.Get("priceSort"),
		QuantitySort: q.Get("quantitySort"),
		Page:         queryInt(r, "page", 1),
		Limit:        queryInt(r, "limit", 50),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listMyOrders(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Orders.ListForUser(r.Context(), principal(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.visibleOrder(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// createOrderRequest is the checkout payload.
type createOrderRequest struct {
	UserID          string                  `json:"userId"`
	OrderNumber     string                  `json:"orderNumber"`
	OrderType       string                  `json:"orderType"`
	ShippingMethod  string                  `json:"shippingMethod"`
	PickupLocation  string                  `json:"pickupLocation"`
	DeliveryAddress *domain.DeliveryAddress `json:"deliveryAddress"`
	OrderNotes      string                  `json:"orderNotes"`
	SubtotalAmount  float64                 `json:"subtotalAmount"`
	ShippingCost    float64                 `json:"shippingCost"`
	TotalAmount     float64                 `json:"totalAmount"`
	TotalItems      int                     `json:"totalItems"`
	OrderItems      []domain.OrderItem      `json:"orderItems"`
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p := principal(r)
	// Staff may place orders for a customer, e.g. walk-ins.
	userID := p.ID
	if p.IsStaff() && req.UserID != "" {
		userID = req.UserID
	}
	o, err := s.svc.Orders.Create(r.Context(), &domain.Order{
		UserID:          userID,
		OrderNumber:     req.OrderNumber,
		OrderType:       req.OrderType,
		ShippingMethod:  req.ShippingMethod,
		PickupLocation:  req.PickupLocation,
		DeliveryAddress: req.DeliveryAddress,
		OrderNotes:      req.OrderNotes,
		SubtotalAmount:  req.SubtotalAmount,
		ShippingCost:    req.ShippingCost,
		TotalAmount:     req.TotalAmount,
		TotalItems:      req.TotalItems,
		Items:           req.OrderItems,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.svc.Orders.UpdateStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) listTracking(w http.ResponseWriter, r *http.Request) {
	o, err := s.visibleOrder(r.Context(), principal(r), r.PathValue("orderId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	events, err := s.svc.Orders.Tracking(r.Context(), o.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) addTracking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID     string         `json:"orderId"`
		Status      string         `json:"status"`
		Location    string         `json:"location"`
		Description string         `json:"description"`
		Metadata    map[string]any `json:"metadata"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.svc.Orders.AddTracking(r.Context(), &domain.TrackingEvent{
		OrderID:     req.OrderID,
		Status:      req.Status,
		Location:    req.Location,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	o, err := s.visibleOrder(r.Context(), principal(r), r.PathValue("orderId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rev, err := s.svc.Orders.Review(r.Context(), o.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (s *Server) saveReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"orderId"`
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p := principal(r)
	if _, err := s.visibleOrder(r.Context(), p, req.OrderID); err != nil {
		s.writeError(w, r, err)
		return
	}
	rev, err := s.svc.Orders.SaveReview(r.Context(), &domain.Review{
		OrderID: req.OrderID,
		UserID:  p.ID,
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}

func (s *Server) getDeliveryProof(w http.ResponseWriter, r *http.Request) {
	o, err := s.visibleOrder(r.Context(), principal(r), r.PathValue("orderId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	proof, err := s.svc.Orders.DeliveryProof(r.Context(), o.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proof)
}

func (s *Server) addDeliveryProof(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID               string   `json:"orderId"`
		DeliveryPersonName    string   `json:"deliveryPersonName"`
		DeliveryPersonContact string   `json:"deliveryPersonContact"`
		ProofImages           []string `json:"proofImages"`
		DeliveryNotes         string   `json:"deliveryNotes"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	proof, err := s.svc.Orders.AddDeliveryProof(r.Context(), &domain.DeliveryProof{
		OrderID:               req.OrderID,
		DeliveryPersonName:    req.DeliveryPersonName,
		DeliveryPersonContact: req.DeliveryPersonContact,
		ProofImages:           req.ProofImages,
		DeliveryNotes:         req.DeliveryNotes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, proof)
}

func (s *Server) verifyDeliveryProof(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VerifiedBy string `json:"verifiedBy"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.VerifiedBy == "" {
		req.VerifiedBy = principal(r).ID
	}
	proof, err := s.svc.Orders.VerifyDeliveryProof(r.Context(), r.PathValue("proofId"), req.VerifiedBy)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proof)
}
