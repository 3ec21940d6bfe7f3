// Package store defines persistence for the storefront.
//
// Two implementations exist: store/sqlite keeps everything in an embedded
// SQLite file for local development and tests, and store/supabase talks to
// the hosted Supabase project through PostgREST with the service-role key.
// Services depend only on the interfaces in this package.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/yohanns/storefront/internal/domain"
)

// ErrNotFound is returned when a lookup or targeted write matches no row.
var ErrNotFound = errors.New("not found")

// BranchStore persists store locations.
type BranchStore interface {
	// ListBranches returns all branches ordered by name.
	ListBranches(ctx context.Context) ([]domain.Branch, error)
	GetBranch(ctx context.Context, id int64) (*domain.Branch, error)
	// UpsertBranch inserts the branch, or updates it when ID is set. The
	// assigned ID is written back.
	UpsertBranch(ctx context.Context, b *domain.Branch) error
}

// ProductFilter narrows ListProducts.
type ProductFilter struct {
	BranchID *int64
}

// ProductStats are the denormalized review and sales figures on a product.
type ProductStats struct {
	AverageRating float64
	ReviewCount   int
	SoldQuantity  int
}

// ProductStore persists the catalog.
type ProductStore interface {
	// ListProducts returns products newest first.
	ListProducts(ctx context.Context, f ProductFilter) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, p *domain.Product) error
	UpdateProduct(ctx context.Context, p *domain.Product) error
	DeleteProduct(ctx context.Context, id string) error
	UpdateProductStats(ctx context.Context, id string, stats ProductStats) error
}

// Sort orders ListOrders results by one column.
type Sort struct {
	Column    string // created_at, total_amount or total_items
	Ascending bool
}

// OrderFilter narrows ListOrders. Zero values mean "no constraint".
type OrderFilter struct {
	IDs          []string
	OrderType    string
	Statuses     []string
	PickupBranch string
	UserIDs      []string
	Since        *time.Time
	Sort         *Sort // default created_at descending
	Limit        int
	Offset       int
}

// OrderStore persists customer orders.
type OrderStore interface {
	// ListOrders returns one page of matching orders and the total number
	// of matches.
	ListOrders(ctx context.Context, f OrderFilter) ([]domain.Order, int, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	CreateOrder(ctx context.Context, o *domain.Order) error
	UpdateOrderStatus(ctx context.Context, id, status string) (*domain.Order, error)
	SetProductionStatus(ctx context.Context, id, status string) error
	// SetDesignFiles replaces the design files attached to an order.
	SetDesignFiles(ctx context.Context, id string, files []domain.DesignFile) (*domain.Order, error)
}

// FulfillmentStore persists COD tracking, reviews and delivery proofs.
type FulfillmentStore interface {
	// ListTracking returns events oldest first.
	ListTracking(ctx context.Context, orderID string) ([]domain.TrackingEvent, error)
	AddTracking(ctx context.Context, e *domain.TrackingEvent) error
	GetReview(ctx context.Context, orderID string) (*domain.Review, error)
	// UpsertReview replaces the rating and comment of an existing review
	// for the same order and user.
	UpsertReview(ctx context.Context, r *domain.Review) error
	// ListReviews returns reviews for the given orders, or all reviews when
	// orderIDs is empty.
	ListReviews(ctx context.Context, orderIDs []string) ([]domain.Review, error)
	GetDeliveryProof(ctx context.Context, orderID string) (*domain.DeliveryProof, error)
	AddDeliveryProof(ctx context.Context, p *domain.DeliveryProof) error
	VerifyDeliveryProof(ctx context.Context, proofID, verifiedBy string, at time.Time) (*domain.DeliveryProof, error)
}

// WorkflowStore persists production stages and their audit trail.
type WorkflowStore interface {
	// ListStages returns stages of the given orders, or of all orders when
	// none are given.
	ListStages(ctx context.Context, orderIDs ...string) ([]domain.WorkflowStage, error)
	GetStage(ctx context.Context, orderID, stage string) (*domain.WorkflowStage, error)
	// InitStages inserts the stages that do not exist yet.
	InitStages(ctx context.Context, stages []domain.WorkflowStage) error
	SaveStage(ctx context.Context, s *domain.WorkflowStage) error
	AppendHistory(ctx context.Context, h *domain.WorkflowHistory) error
	// ListHistory returns entries newest first.
	ListHistory(ctx context.Context, orderID string) ([]domain.WorkflowHistory, error)
}

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	ArtistID string
	OrderID  string
	Statuses []string
	Limit    int
}

// ArtistStore persists artist profiles and their tasks.
type ArtistStore interface {
	GetArtistProfile(ctx context.Context, id string) (*domain.ArtistProfile, error)
	GetArtistProfileByUser(ctx context.Context, userID string) (*domain.ArtistProfile, error)
	ListArtistProfiles(ctx context.Context, activeOnly bool) ([]domain.ArtistProfile, error)
	SaveArtistProfile(ctx context.Context, a *domain.ArtistProfile) error
	DeleteArtistProfile(ctx context.Context, id string) error

	// ListTasks returns tasks newest first.
	ListTasks(ctx context.Context, f TaskFilter) ([]domain.ArtistTask, error)
	GetTask(ctx context.Context, id string) (*domain.ArtistTask, error)
	CreateTask(ctx context.Context, t *domain.ArtistTask) error
	UpdateTask(ctx context.Context, t *domain.ArtistTask) error
}

// DesignRoomFilter narrows ListDesignRooms.
type DesignRoomFilter struct {
	CustomerID string
	ArtistID   string
}

// BranchRoomFilter narrows ListBranchRooms.
type BranchRoomFilter struct {
	CustomerID string
	BranchID   *int64
	Status     string
}

// ChatStore persists both chat room families and their messages.
type ChatStore interface {
	FindDesignRoomByOrder(ctx context.Context, orderID string) (*domain.DesignChatRoom, error)
	GetDesignRoom(ctx context.Context, id string) (*domain.DesignChatRoom, error)
	CreateDesignRoom(ctx context.Context, r *domain.DesignChatRoom) error
	// ListDesignRooms returns rooms by most recent message first.
	ListDesignRooms(ctx context.Context, f DesignRoomFilter) ([]domain.DesignChatRoom, error)
	UpdateDesignRoom(ctx context.Context, r *domain.DesignChatRoom) error

	// FindOpenBranchRoom returns the newest open room of the customer at
	// the branch.
	FindOpenBranchRoom(ctx context.Context, branchID int64, customerID string) (*domain.BranchChatRoom, error)
	GetBranchRoom(ctx context.Context, id string) (*domain.BranchChatRoom, error)
	CreateBranchRoom(ctx context.Context, r *domain.BranchChatRoom) error
	// ListBranchRooms returns rooms by most recent message first.
	ListBranchRooms(ctx context.Context, f BranchRoomFilter) ([]domain.BranchChatRoom, error)
	UpdateBranchRoom(ctx context.Context, r *domain.BranchChatRoom) error

	AddMessage(ctx context.Context, kind domain.ChatKind, m *domain.ChatMessage) error
	// ListMessages returns the room's messages oldest first.
	ListMessages(ctx context.Context, kind domain.ChatKind, roomID string) ([]domain.ChatMessage, error)
	// MarkRead flags messages in the room not sent by readerID as read and
	// returns how many changed.
	MarkRead(ctx context.Context, kind domain.ChatKind, roomID, readerID string) (int, error)
}

// AddressStore persists saved shipping addresses.
type AddressStore interface {
	// ListAddresses returns the default address first, then newest first.
	ListAddresses(ctx context.Context, userID string) ([]domain.Address, error)
	CreateAddress(ctx context.Context, a *domain.Address) error
	// UpdateAddress updates an address owned by a.UserID.
	UpdateAddress(ctx context.Context, a *domain.Address) error
	DeleteAddress(ctx context.Context, userID, id string) error
	ClearDefaultAddress(ctx context.Context, userID string) error
}

// ProfileStore persists public user profiles.
type ProfileStore interface {
	// GetUserProfiles returns the profiles that exist for ids, keyed by
	// user id.
	GetUserProfiles(ctx context.Context, ids []string) (map[string]domain.UserProfile, error)
	UpsertUserProfile(ctx context.Context, p *domain.UserProfile) error
	DeleteUserProfile(ctx context.Context, userID string) error
}

// NewsletterStore persists newsletter subscriptions.
type NewsletterStore interface {
	GetSubscriber(ctx context.Context, email string) (*domain.Subscriber, error)
	// SaveSubscriber inserts the subscription, or updates it when ID is set.
	SaveSubscriber(ctx context.Context, s *domain.Subscriber) error
	// ListSubscribers returns subscriptions newest first.
	ListSubscribers(ctx context.Context, activeOnly bool) ([]domain.Subscriber, error)
}

// Store is the full persistence surface used by the services.
type Store interface {
	BranchStore
	ProductStore
	OrderStore
	FulfillmentStore
	WorkflowStore
	ArtistStore
	ChatStore
	AddressStore
	ProfileStore
	NewsletterStore

	Close() error
}
