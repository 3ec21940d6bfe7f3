// Package orders implements order listing, intake and status changes, and
// the COD fulfillment records (tracking, reviews, delivery proofs).
package orders

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/realtime"
	"github.com/yohanns/storefront/internal/store"
)

const (
	defaultPage  = 1
	defaultLimit = 50
)

// Store is the persistence the order service needs.
type Store interface {
	store.OrderStore
	store.FulfillmentStore
	store.BranchStore
}

// WorkflowInitializer creates the production stages of an order.
type WorkflowInitializer interface {
	Initialize(ctx context.Context, orderID string) ([]domain.WorkflowStage, error)
}

// TaskAssigner hands an order to an artist.
type TaskAssigner interface {
	AssignForOrder(ctx context.Context, o *domain.Order) (*domain.ArtistTask, error)
}

// StatsRefresher recomputes product figures after sales or reviews.
type StatsRefresher interface {
	RefreshStatsForOrder(ctx context.Context, o *domain.Order) error
}

// Options wires the collaborators of a Service. Nil collaborators are
// skipped.
type Options struct {
	Workflow  WorkflowInitializer
	Assigner  TaskAssigner
	Stats     StatsRefresher
	Publisher realtime.Publisher
	Logger    *zap.Logger
}

// Service implements order operations.
type Service struct {
	store    Store
	workflow WorkflowInitializer
	assigner TaskAssigner
	stats    StatsRefresher
	pub      realtime.Publisher
	log      *zap.Logger
	now      func() time.Time
}

// NewService creates an order service.
func NewService(s Store, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		store:    s,
		workflow: opts.Workflow,
		assigner: opts.Assigner,
		stats:    opts.Stats,
		pub:      opts.Publisher,
		log:      opts.Logger,
		now:      time.Now,
	}
}

// ListParams are the query parameters of the order listing.
type ListParams struct {
	Status       string
	PickupBranch string
	DateSort     string
	PriceSort    string
	QuantitySort string
	Page         int
	Limit        int
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// ListResult is a page of orders.
type ListResult struct {
	Orders     []domain.Order `json:"orders"`
	Pagination Pagination     `json:"pagination"`
}

// sortFor picks the first sort parameter set to asc or desc.
func sortFor(p ListParams) *store.Sort {
	for _, c := range []struct{ value, column string }{
		{p.DateSort, "created_at"},
		{p.PriceSort, "total_amount"},
		{p.QuantitySort, "total_items"},
	} {
		switch strings.ToLower(c.value) {
		case "asc":
			return &store.Sort{Column: c.column, Ascending: true}
		case "desc":
			return &store.Sort{Column: c.column}
		}
	}
	return nil
}

// List returns one page of orders.
func (s *Service) List(ctx context.Context, p ListParams) (*ListResult, error) {
	if p.Page < 1 {
		p.Page = defaultPage
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	f := store.OrderFilter{
		PickupBranch: p.PickupBranch,
		Sort:         sortFor(p),
		Limit:        p.Limit,
		Offset:       (p.Page - 1) * p.Limit,
	}
	if p.Status != "" {
		f.Statuses = []string{p.Status}
	}
	orders, total, err := s.store.ListOrders(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch orders")
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return &ListResult{
		Orders: orders,
		Pagination: Pagination{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      total,
			TotalPages: int(math.Ceil(float64(total) / float64(p.Limit))),
		},
	}, nil
}

// ListForUser returns a customer's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]domain.Order, error) {
	orders, _, err := s.store.ListOrders(ctx, store.OrderFilter{UserIDs: []string{userID}})
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch orders")
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Order", "")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch order")
	}
	return o, nil
}

// Create stores a new order with defaults applied.
func (s *Service) Create(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	o.SetDefaults(s.now().UTC())
	if err := o.Validate(); err != nil {
		return nil, apperr.Invalid(err.Error())
	}
	if err := s.store.CreateOrder(ctx, o); err != nil {
		return nil, apperr.Internal(err, "Failed to create order")
	}
	s.log.Info("order created", zap.String("order", o.ID), zap.String("number", o.OrderNumber))
	return o, nil
}

// UpdateStatus moves an order to status. Entering layout starts production
// and assigns an artist; entering a sold status refreshes product figures.
// Side effects that fail are logged and do not undo the status change.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*domain.Order, error) {
	status = strings.TrimSpace(status)
	if !domain.IsValidOrderStatus(status) {
		return nil, apperr.Invalid("Invalid status").With("validStatuses", domain.StatusOrder)
	}
	prev, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	o, err := s.store.UpdateOrderStatus(ctx, id, status)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Order", "")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to update order status")
	}
	log := s.log.With(zap.String("order", id), zap.String("status", status))
	log.Info("order status changed", zap.String("previous", prev.Status))

	if status == domain.OrderLayout && prev.Status != domain.OrderLayout {
		s.startProduction(ctx, o, log)
	}
	if s.stats != nil && slices.Contains(domain.SoldStatuses, status) {
		if err := s.stats.RefreshStatsForOrder(ctx, o); err != nil {
			log.Warn("failed to refresh product stats", zap.Error(err))
		}
	}
	if s.pub != nil {
		s.pub.Publish(realtime.OrderTopic(id), realtime.EventOrderStatus, map[string]string{
			"order_id":        id,
			"order_number":    o.OrderNumber,
			"status":          status,
			"previous_status": prev.Status,
		})
	}
	return o, nil
}

func (s *Service) startProduction(ctx context.Context, o *domain.Order, log *zap.Logger) {
	if s.workflow != nil {
		if _, err := s.workflow.Initialize(ctx, o.ID); err != nil {
			log.Warn("failed to initialize workflow", zap.Error(err))
		}
	}
	if s.assigner != nil {
		task, err := s.assigner.AssignForOrder(ctx, o)
		if err != nil {
			log.Warn("failed to assign artist task", zap.Error(err))
			return
		}
		log.Info("artist task assigned", zap.String("task", task.ID), zap.String("artist", task.ArtistID))
	}
}

// codOrder returns the order when it ships cash on delivery. notCOD is the
// rejection message for other shipping methods.
func (s *Service) codOrder(ctx context.Context, orderID, notCOD string) (*domain.Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsCOD() {
		return nil, apperr.Invalid(notCOD)
	}
	return o, nil
}

// Tracking returns an order's tracking events, oldest first.
func (s *Service) Tracking(ctx context.Context, orderID string) ([]domain.TrackingEvent, error) {
	events, err := s.store.ListTracking(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch order tracking")
	}
	if events == nil {
		events = []domain.TrackingEvent{}
	}
	return events, nil
}

// AddTracking appends a tracking event to a COD order.
func (s *Service) AddTracking(ctx context.Context, e *domain.TrackingEvent) (*domain.TrackingEvent, error) {
	if _, err := s.codOrder(ctx, e.OrderID, "Order tracking is only available for Cash on Delivery (COD) orders"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(e.Status) == "" {
		return nil, apperr.Invalid("status is required")
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	if err := s.store.AddTracking(ctx, e); err != nil {
		return nil, apperr.Internal(err, "Failed to add tracking update")
	}
	if s.pub != nil {
		s.pub.Publish(realtime.OrderTopic(e.OrderID), "tracking", e)
	}
	return e, nil
}

// Review returns the review of an order.
func (s *Service) Review(ctx context.Context, orderID string) (*domain.Review, error) {
	r, err := s.store.GetReview(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Review", "")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch order review")
	}
	return r, nil
}

// SaveReview creates or replaces the user's review of a COD order.
func (s *Service) SaveReview(ctx context.Context, r *domain.Review) (*domain.Review, error) {
	o, err := s.codOrder(ctx, r.OrderID, "Order reviews are only available for Cash on Delivery (COD) orders")
	if err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, apperr.Invalid(err.Error())
	}
	if err := s.store.UpsertReview(ctx, r); err != nil {
		return nil, apperr.Internal(err, "Failed to add order review")
	}
	if s.stats != nil {
		if err := s.stats.RefreshStatsForOrder(ctx, o); err != nil {
			s.log.Warn("failed to refresh product stats", zap.String("order", o.ID), zap.Error(err))
		}
	}
	return r, nil
}

// DeliveryProof returns the delivery proof of an order.
func (s *Service) DeliveryProof(ctx context.Context, orderID string) (*domain.DeliveryProof, error) {
	p, err := s.store.GetDeliveryProof(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Delivery proof", "")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch delivery proof")
	}
	return p, nil
}

// AddDeliveryProof records the hand-over of a COD order.
func (s *Service) AddDeliveryProof(ctx context.Context, p *domain.DeliveryProof) (*domain.DeliveryProof, error) {
	if _, err := s.codOrder(ctx, p.OrderID, "Delivery proof is only available for Cash on Delivery (COD) orders"); err != nil {
		return nil, err
	}
	if p.ProofImages == nil {
		p.ProofImages = []string{}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	if err := s.store.AddDeliveryProof(ctx, p); err != nil {
		return nil, apperr.Internal(err, "Failed to add delivery proof")
	}
	return p, nil
}

// VerifyDeliveryProof stamps the verifier and the current time on a proof.
func (s *Service) VerifyDeliveryProof(ctx context.Context, proofID, verifiedBy string) (*domain.DeliveryProof, error) {
	p, err := s.store.VerifyDeliveryProof(ctx, proofID, verifiedBy, s.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Delivery proof", "")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to verify delivery proof")
	}
	return p, nil
}
