// Package catalog serves branches and products and keeps the product
// review and sales figures current.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store"
)

// Store is the persistence the catalog needs.
type Store interface {
	store.BranchStore
	store.ProductStore
	store.OrderStore
	store.FulfillmentStore
}

// Service implements catalog operations.
type Service struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

// NewService creates a catalog service.
func NewService(s Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: s, log: log, now: time.Now}
}

// ListBranches returns branches by name with duplicate and unnamed entries
// removed. The first branch with a given name wins.
func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	branches, err := s.store.ListBranches(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch branches")
	}
	seen := make(map[string]bool, len(branches))
	out := make([]domain.Branch, 0, len(branches))
	for _, b := range branches {
		key := b.NameKey()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, b)
	}
	return out, nil
}

// GetBranch returns one branch.
func (s *Service) GetBranch(ctx context.Context, id int64) (*domain.Branch, error) {
	b, err := s.store.GetBranch(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Branch", "")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch branch")
	}
	return b, nil
}

// ListProducts returns products newest first with live review figures.
func (s *Service) ListProducts(ctx context.Context, branchID *int64) ([]domain.Product, error) {
	products, err := s.store.ListProducts(ctx, store.ProductFilter{BranchID: branchID})
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch products")
	}
	ratings, err := s.reviewRatings(ctx)
	if err != nil {
		// Listing still works with the stored figures.
		s.log.Warn("failed to compute review stats", zap.Error(err))
		return products, nil
	}
	for i := range products {
		r := ratings[products[i].ID]
		products[i].AverageRating = 0
		products[i].ReviewCount = len(r)
		if len(r) > 0 {
			products[i].AverageRating = round(mean(r), 1)
		}
	}
	return products, nil
}

// reviewRatings maps product ids to the ratings of reviewed orders that
// contain them.
func (s *Service) reviewRatings(ctx context.Context) (map[string][]int, error) {
	reviews, err := s.store.ListReviews(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]int)
	if len(reviews) == 0 {
		return out, nil
	}
	orders, err := s.ordersByID(ctx, reviewOrderIDs(reviews))
	if err != nil {
		return nil, err
	}
	for _, r := range reviews {
		o, ok := orders[r.OrderID]
		if !ok {
			continue
		}
		for _, it := range o.Items {
			if ref := it.ProductRef(); ref != "" {
				out[ref] = append(out[ref], r.Rating)
			}
		}
	}
	return out, nil
}

// orderIDChunk bounds how many ids go into one IN filter.
const orderIDChunk = 200

// ordersByID loads only the orders named by ids.
func (s *Service) ordersByID(ctx context.Context, ids []string) (map[string]domain.Order, error) {
	ids = dedupe(ids)
	out := make(map[string]domain.Order, len(ids))
	for start := 0; start < len(ids); start += orderIDChunk {
		chunk := ids[start:min(start+orderIDChunk, len(ids))]
		orders, _, err := s.store.ListOrders(ctx, store.OrderFilter{IDs: chunk})
		if err != nil {
			return nil, err
		}
		for _, o := range orders {
			out[o.ID] = o
		}
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func reviewOrderIDs(reviews []domain.Review) []string {
	ids := make([]string, 0, len(reviews))
	for _, r := range reviews {
		ids = append(ids, r.OrderID)
	}
	return ids
}

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Product", "")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch product")
	}
	return p, nil
}

// CreateProduct validates and stores a new product.
func (s *Service) CreateProduct(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	p.SetDefaults(s.now().UTC())
	if err := p.Validate(); err != nil {
		return nil, apperr.Invalid(err.Error())
	}
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, apperr.Internal(err, "Failed to create product")
	}
	return s.GetProduct(ctx, p.ID)
}

// UpdateProduct replaces the editable fields of a product.
func (s *Service) UpdateProduct(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	p.SetDefaults(s.now().UTC())
	if err := p.Validate(); err != nil {
		return nil, apperr.Invalid(err.Error())
	}
	err := s.store.UpdateProduct(ctx, p)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Product", "")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to update product")
	}
	return s.GetProduct(ctx, p.ID)
}

// DeleteProduct removes a product.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	err := s.store.DeleteProduct(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("Product", "")
	}
	if err != nil {
		return apperr.Internal(err, "Failed to delete product")
	}
	return nil
}

// RefreshProductStats recomputes and stores a product's average rating,
// review count and sold quantity.
func (s *Service) RefreshProductStats(ctx context.Context, productID string) (store.ProductStats, error) {
	var stats store.ProductStats

	reviews, err := s.store.ListReviews(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to list reviews: %w", err)
	}
	orders, err := s.ordersByID(ctx, reviewOrderIDs(reviews))
	if err != nil {
		return stats, fmt.Errorf("failed to load reviewed orders: %w", err)
	}
	var ratings []int
	for _, r := range reviews {
		o, ok := orders[r.OrderID]
		if !ok || o.Status == domain.OrderCancelled || o.Status == domain.OrderRefunded {
			continue
		}
		if o.ContainsProduct(productID) {
			ratings = append(ratings, r.Rating)
		}
	}
	stats.ReviewCount = len(ratings)
	if len(ratings) > 0 {
		stats.AverageRating = round(mean(ratings), 2)
	}

	sold, _, err := s.store.ListOrders(ctx, store.OrderFilter{Statuses: domain.SoldStatuses})
	if err != nil {
		return stats, fmt.Errorf("failed to list sold orders: %w", err)
	}
	for _, o := range sold {
		for _, it := range o.Items {
			if it.ProductRef() == productID {
				stats.SoldQuantity += it.Qty()
			}
		}
	}

	if err := s.store.UpdateProductStats(ctx, productID, stats); err != nil && !errors.Is(err, store.ErrNotFound) {
		return stats, fmt.Errorf("failed to update product stats: %w", err)
	}
	s.log.Debug("updated product stats",
		zap.String("product", productID),
		zap.Float64("average_rating", stats.AverageRating),
		zap.Int("review_count", stats.ReviewCount),
		zap.Int("sold_quantity", stats.SoldQuantity))
	return stats, nil
}

// RefreshStatsForOrder recomputes the figures of every product in the
// order. Failures are logged; the first one is returned.
func (s *Service) RefreshStatsForOrder(ctx context.Context, o *domain.Order) error {
	seen := make(map[string]bool)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, it := range o.Items {
		id := it.ProductRef()
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		g.Go(func() error {
			if _, err := s.RefreshProductStats(ctx, id); err != nil {
				s.log.Warn("failed to refresh product stats", zap.String("product", id), zap.Error(err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func mean(v []int) float64 {
	sum := 0
	for _, x := range v {
		sum += x
	}
	return float64(sum) / float64(len(v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
