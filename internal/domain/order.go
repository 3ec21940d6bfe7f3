// Package domain provides the storefront's data structures.
//
// Types mirror the rows of the Supabase tables with flat JSON fields, so the
// same struct is decoded from PostgREST responses, scanned from SQLite and
// written back to HTTP clients.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Order lifecycle statuses, in pipeline order.
const (
	OrderPending            = "pending"
	OrderConfirmed          = "confirmed"
	OrderLayout             = "layout"
	OrderSizing             = "sizing"
	OrderPrinting           = "printing"
	OrderPress              = "press"
	OrderProd               = "prod"
	OrderPackingCompleting  = "packing_completing"
	OrderPickedUpDelivered  = "picked_up_delivered"
	OrderCancelled          = "cancelled"
	OrderProcessing         = "processing" // legacy
	OrderCompleted          = "completed"  // legacy
	OrderRefunded           = "refunded"
	OrderShipped            = "shipped"
	OrderOutForDelivery     = "out_for_delivery"
	OrderDelivered          = "delivered"
	OrderTypeRegular        = "regular"
	OrderTypeCustomDesign   = "custom_design"
	ShippingPickup          = "pickup"
	ShippingCOD             = "cod"
	ShippingDelivery        = "delivery"
	WalkInOrderNumberPrefix = "WALKIN-"
)

// StatusOrder is the order lifecycle from intake to hand-over.
var StatusOrder = []string{
	OrderPending,
	OrderConfirmed,
	OrderLayout,
	OrderSizing,
	OrderPrinting,
	OrderPress,
	OrderProd,
	OrderPackingCompleting,
	OrderPickedUpDelivered,
	OrderCancelled,
}

// SoldStatuses are the statuses in which an order's items count as sold.
var SoldStatuses = []string{
	OrderShipped,
	OrderOutForDelivery,
	OrderDelivered,
	OrderPickedUpDelivered,
	OrderCompleted,
}

// InProductionStatuses are the statuses that require an artist task.
var InProductionStatuses = []string{
	OrderLayout,
	OrderSizing,
	OrderPrinting,
	OrderPress,
	OrderProd,
	OrderPackingCompleting,
}

// StatusIndex returns the lifecycle position of status, or -1.
func StatusIndex(status string) int {
	for i, s := range StatusOrder {
		if s == status {
			return i
		}
	}
	return -1
}

// IsValidOrderStatus reports whether status can be set on an order.
func IsValidOrderStatus(status string) bool {
	return StatusIndex(status) >= 0 || status == OrderProcessing || status == OrderCompleted
}

// OrderItem is one line of an order, stored inside the order's JSON column.
type OrderItem struct {
	ID         string  `json:"id,omitempty"`
	ProductID  string  `json:"product_id,omitempty"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
	Size       string  `json:"size,omitempty"`
	ClientName string  `json:"client_name,omitempty"`

	// Custom design intake fields.
	ProductType  string       `json:"product_type,omitempty"`
	Category     string       `json:"category,omitempty"`
	ApparelType  string       `json:"apparel_type,omitempty"`
	TeamName     string       `json:"team_name,omitempty"`
	TeamMembers  []TeamMember `json:"team_members,omitempty"`
	DesignImages []string     `json:"design_images,omitempty"`
	ClientEmail  string       `json:"client_email,omitempty"`
	ClientPhone  string       `json:"client_phone,omitempty"`
}

// TeamMember is one player on a custom team order.
type TeamMember struct {
	Number     string `json:"number"`
	Surname    string `json:"surname"`
	Size       string `json:"size,omitempty"`
	ShortsSize string `json:"shortsSize,omitempty"`
	SizingType string `json:"sizingType"`
	JerseyType string `json:"jerseyType,omitempty"`
}

// DesignFile is an artwork file attached to an order by its artist.
type DesignFile struct {
	Filename   string    `json:"filename"`
	URL        string    `json:"url"`
	PublicID   string    `json:"publicId"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// ProductRef returns the product id the item points at. Older orders stored
// the product id in "id".
func (i OrderItem) ProductRef() string {
	if i.ProductID != "" {
		return i.ProductID
	}
	return i.ID
}

// Qty returns the item quantity, defaulting to 1.
func (i OrderItem) Qty() int {
	if i.Quantity <= 0 {
		return 1
	}
	return i.Quantity
}

// DeliveryAddress is the shipping destination captured at checkout.
type DeliveryAddress struct {
	Receiver     string `json:"receiver,omitempty"`
	ReceiverName string `json:"receiver_name,omitempty"`
	Name         string `json:"name,omitempty"`
	FullName     string `json:"full_name,omitempty"`
	ContactName  string `json:"contact_name,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Street       string `json:"street_address,omitempty"`
	Barangay     string `json:"barangay,omitempty"`
	City         string `json:"city,omitempty"`
	Province     string `json:"province,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	Address      string `json:"address,omitempty"`
}

// ReceiverLabel returns the first non-empty recipient name field.
func (a *DeliveryAddress) ReceiverLabel() string {
	if a == nil {
		return ""
	}
	for _, v := range []string{a.Receiver, a.ReceiverName, a.Name, a.FullName, a.ContactName} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// Order is a customer order.
type Order struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	OrderNumber      string           `json:"order_number"`
	OrderType        string           `json:"order_type"`
	Status           string           `json:"status"`
	ShippingMethod   string           `json:"shipping_method"`
	PickupLocation   string           `json:"pickup_location,omitempty"`
	DeliveryAddress  *DeliveryAddress `json:"delivery_address,omitempty"`
	OrderNotes       string           `json:"order_notes,omitempty"`
	SubtotalAmount   float64          `json:"subtotal_amount"`
	ShippingCost     float64          `json:"shipping_cost"`
	TotalAmount      float64          `json:"total_amount"`
	TotalItems       int              `json:"total_items"`
	Items            []OrderItem      `json:"order_items"`
	DesignFiles      []DesignFile     `json:"design_files,omitempty"`
	ProductionStatus string           `json:"production_status,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Validate checks if the Order has valid field values.
func (o *Order) Validate() error {
	if o.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if o.OrderNumber == "" {
		return fmt.Errorf("order_number is required")
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("order must contain at least one item")
	}
	if o.TotalAmount < 0 || o.SubtotalAmount < 0 || o.ShippingCost < 0 {
		return fmt.Errorf("amounts must not be negative")
	}
	switch o.ShippingMethod {
	case ShippingPickup, ShippingCOD, ShippingDelivery:
	default:
		return fmt.Errorf("shipping_method must be one of pickup, cod, delivery (got %q)", o.ShippingMethod)
	}
	if !IsValidOrderStatus(o.Status) {
		return fmt.Errorf("invalid status %q", o.Status)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (o *Order) SetDefaults(now time.Time) {
	if o.OrderNumber == "" {
		o.OrderNumber = fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), OrderNumberSuffix(6))
	}
	if o.Status == "" {
		o.Status = OrderPending
	}
	if o.OrderType == "" {
		o.OrderType = OrderTypeRegular
	}
	if o.ShippingMethod == "" {
		o.ShippingMethod = ShippingPickup
	}
	if o.TotalItems == 0 {
		for _, it := range o.Items {
			o.TotalItems += it.Qty()
		}
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = now
	}
}

// OrderNumberSuffix returns n upper-case hex characters of a random UUID.
func OrderNumberSuffix(n int) string {
	s := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}

// IsCustomDesign reports whether the order came through design intake.
func (o *Order) IsCustomDesign() bool { return o.OrderType == OrderTypeCustomDesign }

// IsCOD reports whether the order is cash on delivery.
func (o *Order) IsCOD() bool { return o.ShippingMethod == ShippingCOD }

// IsWalkIn reports whether the order was placed in store.
func (o *Order) IsWalkIn() bool { return strings.HasPrefix(o.OrderNumber, WalkInOrderNumberPrefix) }

// ContainsProduct reports whether any item references productID.
func (o *Order) ContainsProduct(productID string) bool {
	for _, it := range o.Items {
		if it.ProductRef() == productID {
			return true
		}
	}
	return false
}

// TrackingEvent is a delivery progress update for a COD order.
type TrackingEvent struct {
	ID          string         `json:"id"`
	OrderID     string         `json:"order_id"`
	Status      string         `json:"status"`
	Location    string         `json:"location,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Review is a customer's rating of a delivered order.
type Review struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the review rating bounds.
func (r *Review) Validate() error {
	if r.OrderID == "" {
		return fmt.Errorf("order_id is required")
	}
	if r.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if r.Rating < 1 || r.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5 (got %d)", r.Rating)
	}
	return nil
}

// DeliveryProof records who handed over a COD order and how.
type DeliveryProof struct {
	ID                    string     `json:"id"`
	OrderID               string     `json:"order_id"`
	DeliveryPersonName    string     `json:"delivery_person_name"`
	DeliveryPersonContact string     `json:"delivery_person_contact,omitempty"`
	ProofImages           []string   `json:"proof_images"`
	DeliveryNotes         string     `json:"delivery_notes,omitempty"`
	VerifiedBy            string     `json:"verified_by,omitempty"`
	VerifiedAt            *time.Time `json:"verified_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}
