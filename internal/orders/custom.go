package orders

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store"
)

const (
	customBasePrice   = 500
	customDesignFee   = 200
	customDeliveryFee = 50
)

// Jersey cuts a team member can order.
const (
	JerseyFull   = "full"
	JerseyShirt  = "shirt"
	JerseyShorts = "shorts"
)

type apparel struct{ name, category string }

var apparelTypes = map[string]apparel{
	"basketball_jersey": {"Custom Basketball Jersey", "Basketball Jerseys"},
	"volleyball_jersey": {"Custom Volleyball Jersey", "Volleyball Jerseys"},
	"hoodie":            {"Custom Hoodie", "Hoodies"},
	"tshirt":            {"Custom T-shirt", "T-shirts"},
	"longsleeves":       {"Custom Long Sleeves", "Long Sleeves"},
	"uniforms":          {"Custom Uniforms", "Uniforms"},
}

// CustomDesignRequest is a team order submitted through the design intake.
type CustomDesignRequest struct {
	UserID          string                  `json:"userId"`
	ClientName      string                  `json:"clientName"`
	Email           string                  `json:"email"`
	Phone           string                  `json:"phone"`
	TeamName        string                  `json:"teamName"`
	ApparelType     string                  `json:"apparelType"`
	Members         []domain.TeamMember     `json:"members"`
	ShippingMethod  string                  `json:"shippingMethod"`
	PickupBranchID  *int64                  `json:"pickupBranchId"`
	DeliveryAddress *domain.DeliveryAddress `json:"deliveryAddress"`
	OrderNotes      string                  `json:"orderNotes"`
	IsWalkIn        bool                    `json:"isWalkIn"`
	DesignImages    []string                `json:"designImages"`
}

func (r *CustomDesignRequest) validate() error {
	if strings.TrimSpace(r.ClientName) == "" || strings.TrimSpace(r.Email) == "" ||
		strings.TrimSpace(r.TeamName) == "" || r.ApparelType == "" || r.Members == nil {
		return apperr.Invalid("Missing required fields").
			With("required", []string{"clientName", "email", "teamName", "apparelType", "members"})
	}
	if len(r.Members) == 0 {
		return apperr.Invalid("At least one team member is required")
	}
	shirtOnly := r.ApparelType == "hoodie" || r.ApparelType == "longsleeves"
	for _, m := range r.Members {
		if m.Number == "" || m.Surname == "" || m.SizingType == "" {
			return apperr.Invalid("All team members must have number, surname, and sizing type")
		}
		cut := m.JerseyType
		switch {
		case shirtOnly:
			cut = JerseyShirt
		case cut == "":
			cut = JerseyFull
		}
		switch cut {
		case JerseyFull:
			if m.Size == "" || m.ShortsSize == "" {
				return apperr.Invalid("Full set orders require both shirt size and shorts size for all members")
			}
		case JerseyShirt:
			if m.Size != "" {
				continue
			}
			switch r.ApparelType {
			case "hoodie":
				return apperr.Invalid("Hoodie orders require shirt size for all members")
			case "longsleeves":
				return apperr.Invalid("Long sleeves orders require shirt size for all members")
			}
			return apperr.Invalid("Shirt-only orders require shirt size for all members")
		case JerseyShorts:
			if m.ShortsSize == "" {
				return apperr.Invalid("Shorts-only orders require shorts size for all members")
			}
		}
	}
	return nil
}

func customOrderNumber(now time.Time, walkIn bool) string {
	if walkIn {
		return fmt.Sprintf("%sCD-%d-%s", domain.WalkInOrderNumberPrefix, now.UnixMilli(), domain.OrderNumberSuffix(6))
	}
	return fmt.Sprintf("CD-%d-%s", now.UnixMilli(), domain.OrderNumberSuffix(4))
}

// CreateCustomDesign places a custom design order. Each member is priced at
// the base jersey price plus the design fee; delivery orders ship cash on
// delivery with a flat fee. Artists are assigned later, when layout starts.
func (s *Service) CreateCustomDesign(ctx context.Context, r CustomDesignRequest) (*domain.Order, error) {
	if r.UserID == "" {
		return nil, apperr.Unauthorized("You must be logged in to place a custom design order")
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	info, ok := apparelTypes[r.ApparelType]
	if !ok {
		info = apparel{"Custom Design", "Other"}
	}

	now := s.now().UTC()
	unit := float64(customBasePrice + customDesignFee)
	o := &domain.Order{
		UserID:         r.UserID,
		OrderNumber:    customOrderNumber(now, r.IsWalkIn),
		OrderType:      domain.OrderTypeCustomDesign,
		Status:         domain.OrderPending,
		ShippingMethod: r.ShippingMethod,
		OrderNotes:     r.OrderNotes,
		SubtotalAmount: unit * float64(len(r.Members)),
		TotalItems:     len(r.Members),
		Items: []domain.OrderItem{{
			ProductType:  domain.OrderTypeCustomDesign,
			Name:         info.name,
			Category:     info.category,
			ApparelType:  r.ApparelType,
			TeamName:     r.TeamName,
			TeamMembers:  r.Members,
			DesignImages: r.DesignImages,
			ClientName:   r.ClientName,
			ClientEmail:  r.Email,
			ClientPhone:  r.Phone,
			Quantity:     len(r.Members),
			Price:        unit,
		}},
	}
	if r.ShippingMethod == domain.ShippingDelivery {
		o.ShippingMethod = domain.ShippingCOD
		o.ShippingCost = customDeliveryFee
		o.DeliveryAddress = r.DeliveryAddress
	}
	o.TotalAmount = o.SubtotalAmount + o.ShippingCost

	// The pickup branch also fulfils delivery orders.
	if r.PickupBranchID != nil {
		b, err := s.store.GetBranch(ctx, *r.PickupBranchID)
		switch {
		case err == nil:
			o.PickupLocation = b.Name
		case errors.Is(err, store.ErrNotFound):
			return nil, apperr.Invalid("Pickup branch not found")
		default:
			return nil, apperr.Internal(err, "Failed to fetch branch")
		}
	}

	o, err := s.Create(ctx, o)
	if err != nil {
		return nil, err
	}
	s.log.Info("custom design order created",
		zap.String("order", o.ID), zap.String("apparel", r.ApparelType), zap.Int("members", len(r.Members)))
	return o, nil
}

// ListCustomDesigns returns custom design orders newest first.
func (s *Service) ListCustomDesigns(ctx context.Context) ([]domain.Order, error) {
	orders, _, err := s.store.ListOrders(ctx, store.OrderFilter{OrderType: domain.OrderTypeCustomDesign})
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch custom design orders")
	}
	return orders, nil
}

// GetCustomDesign returns one custom design order.
func (s *Service) GetCustomDesign(ctx context.Context, id string) (*domain.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !o.IsCustomDesign()) {
		return nil, apperr.New(apperr.KindNotFound, "Custom design order not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch custom design order")
	}
	return o, nil
}

// AttachDesignFiles adds uploaded artwork to an order, replacing files with
// the same public id. Orders still before sizing move to sizing. It returns
// the order and the status it had before.
func (s *Service) AttachDesignFiles(ctx context.Context, orderID string, files []domain.DesignFile) (*domain.Order, string, error) {
	if len(files) == 0 {
		return nil, "", apperr.Invalid("No design files provided")
	}
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, "", err
	}
	merged := slices.DeleteFunc(slices.Clone(o.DesignFiles), func(existing domain.DesignFile) bool {
		return slices.ContainsFunc(files, func(f domain.DesignFile) bool { return f.PublicID == existing.PublicID })
	})
	merged = append(merged, files...)

	updated, err := s.store.SetDesignFiles(ctx, orderID, merged)
	if err != nil {
		return nil, "", apperr.Internal(err, "Failed to update order with design files")
	}
	previous := o.Status
	if idx := domain.StatusIndex(previous); idx >= 0 && idx < domain.StatusIndex(domain.OrderSizing) {
		if updated, err = s.UpdateStatus(ctx, orderID, domain.OrderSizing); err != nil {
			return nil, "", err
		}
	}
	s.log.Info("design files attached", zap.String("order", orderID), zap.Int("files", len(files)),
		zap.String("status", updated.Status))
	return updated, previous, nil
}

// DesignFiles returns the artwork attached to an order.
func (s *Service) DesignFiles(ctx context.Context, orderID string) ([]domain.DesignFile, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.DesignFiles == nil {
		return []domain.DesignFile{}, nil
	}
	return o.DesignFiles, nil
}

// RemoveDesignFile detaches the file with publicID from an order.
func (s *Service) RemoveDesignFile(ctx context.Context, orderID, publicID string) ([]domain.DesignFile, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	kept := slices.DeleteFunc(slices.Clone(o.DesignFiles), func(f domain.DesignFile) bool { return f.PublicID == publicID })
	if kept == nil {
		kept = []domain.DesignFile{}
	}
	if _, err := s.store.SetDesignFiles(ctx, orderID, kept); err != nil {
		return nil, apperr.Internal(err, "Failed to update order")
	}
	return kept, nil
}
