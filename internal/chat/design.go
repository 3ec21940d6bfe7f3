// Package chat implements the two chat room families: design rooms bound to
// an order (customer and artist) and branch support rooms (customer and the
// admins of a branch). Appended messages are pushed to the room's realtime
// topic.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/auth"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/realtime"
	"github.com/yohanns/storefront/internal/store"
)

var (
	errAuthRequired = apperr.Unauthorized("Authentication required")
	errRoomNotFound = apperr.NotFound("Chat room", "")
	errRoomDenied   = apperr.Forbidden("Access denied to this chat room")
)

// Store is the persistence chat needs.
type Store interface {
	store.ChatStore
	store.BranchStore
	store.OrderStore
	store.ProfileStore
}

// Service implements chat operations.
type Service struct {
	store Store
	dir   auth.Directory
	pub   realtime.Publisher
	log   *zap.Logger
	now   func() time.Time
}

// NewService creates a chat service. dir may be nil, in which case auth
// metadata is not used for customer names.
func NewService(s Store, dir auth.Directory, pub realtime.Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: s, dir: dir, pub: pub, log: log, now: time.Now}
}

func (s *Service) publish(topic, event string, data any) {
	if s.pub != nil {
		s.pub.Publish(topic, event, data)
	}
}

// designAccess allows staff, the room's customer and the room's artist.
func designAccess(p *auth.Principal, r *domain.DesignChatRoom) error {
	switch {
	case p == nil:
		return errAuthRequired
	case p.IsStaff(), p.ID == r.CustomerID, r.ArtistID != "" && p.ID == r.ArtistID:
		return nil
	}
	return errRoomDenied
}

func (s *Service) designRoom(ctx context.Context, p *auth.Principal, roomID string) (*domain.DesignChatRoom, error) {
	r, err := s.store.GetDesignRoom(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errRoomNotFound
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch chat room")
	}
	if err := designAccess(p, r); err != nil {
		return nil, err
	}
	return r, nil
}

// DesignRoomAccess checks that p may read the design room.
func (s *Service) DesignRoomAccess(ctx context.Context, p *auth.Principal, roomID string) error {
	_, err := s.designRoom(ctx, p, roomID)
	return err
}

// CreateDesignRoom returns the order's room, creating it on first use.
// Only the order's customer, staff and artists may open a room, and the
// room always belongs to the order's customer. The boolean reports whether
// the room was created.
func (s *Service) CreateDesignRoom(ctx context.Context, p *auth.Principal, r domain.DesignChatRoom) (*domain.DesignChatRoom, bool, error) {
	if p == nil {
		return nil, false, errAuthRequired
	}
	if r.OrderID == "" {
		return nil, false, apperr.Invalid("order_id is required")
	}
	existing, err := s.store.FindDesignRoomByOrder(ctx, r.OrderID)
	switch {
	case err == nil:
		if err := designAccess(p, existing); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, false, apperr.Internal(err, "Failed to fetch chat room")
	}

	o, err := s.store.GetOrder(ctx, r.OrderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, apperr.NotFound("Order", r.OrderID)
	}
	if err != nil {
		return nil, false, apperr.Internal(err, "Failed to fetch order")
	}
	if p.ID != o.UserID && !p.IsStaff() && !p.Is(domain.RoleArtist) {
		return nil, false, errRoomDenied
	}
	r.CustomerID = o.UserID
	if r.ArtistID == "" && p.Is(domain.RoleArtist) {
		r.ArtistID = p.ID
	}
	if err := designAccess(p, &r); err != nil {
		return nil, false, err
	}
	r.ID = ""
	r.Status = domain.RoomActive
	if err := s.store.CreateDesignRoom(ctx, &r); err != nil {
		return nil, false, apperr.Internal(err, "Failed to create chat room")
	}
	s.log.Info("design room created", zap.String("room", r.ID), zap.String("order", r.OrderID))
	return &r, true, nil
}

// MessageInput is the client part of a new message.
type MessageInput struct {
	Message     string   `json:"message"`
	MessageType string   `json:"message_type"`
	Attachments []string `json:"attachments"`
}

func senderType(p *auth.Principal) string {
	switch p.Role {
	case domain.RoleCustomer:
		return domain.SenderCustomer
	case domain.RoleArtist:
		return domain.SenderArtist
	}
	return domain.SenderAdmin
}

// SendDesignMessage appends a message to a design room and bumps the
// room's last message time.
func (s *Service) SendDesignMessage(ctx context.Context, p *auth.Principal, roomID string, in MessageInput) (*domain.ChatMessage, error) {
	r, err := s.designRoom(ctx, p, roomID)
	if err != nil {
		return nil, err
	}
	m := &domain.ChatMessage{
		RoomID:      r.ID,
		SenderID:    p.ID,
		SenderType:  senderType(p),
		Message:     in.Message,
		MessageType: in.MessageType,
		Attachments: in.Attachments,
	}
	m.SetDefaults(s.now().UTC())
	if err := m.Validate(); err != nil {
		return nil, apperr.Invalid(err.Error())
	}
	if err := s.store.AddMessage(ctx, domain.ChatDesign, m); err != nil {
		return nil, apperr.Internal(err, "Failed to send message")
	}
	r.LastMessageAt = &m.CreatedAt
	if err := s.store.UpdateDesignRoom(ctx, r); err != nil {
		s.log.Warn("failed to bump room", zap.String("room", r.ID), zap.Error(err))
	}
	s.publish(realtime.DesignTopic(r.ID), realtime.EventMessage, m)
	return m, nil
}

// DesignMessages returns a room's messages oldest first.
func (s *Service) DesignMessages(ctx context.Context, p *auth.Principal, roomID string) ([]domain.ChatMessage, error) {
	if _, err := s.designRoom(ctx, p, roomID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, domain.ChatDesign, roomID)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch messages")
	}
	return msgs, nil
}

// CustomerDesignRooms lists a customer's rooms by last message. Customers
// may only list their own.
func (s *Service) CustomerDesignRooms(ctx context.Context, p *auth.Principal, customerID string) ([]domain.DesignChatRoom, error) {
	if p == nil {
		return nil, errAuthRequired
	}
	if !p.IsStaff() && p.ID != customerID {
		return nil, errRoomDenied
	}
	rooms, err := s.store.ListDesignRooms(ctx, store.DesignRoomFilter{CustomerID: customerID})
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch chat rooms")
	}
	return rooms, nil
}

// ArtistDesignRooms lists an artist's rooms by last message. Artists may
// only list their own.
func (s *Service) ArtistDesignRooms(ctx context.Context, p *auth.Principal, artistID string) ([]domain.DesignChatRoom, error) {
	if p == nil {
		return nil, errAuthRequired
	}
	if !p.IsStaff() && p.ID != artistID {
		return nil, errRoomDenied
	}
	rooms, err := s.store.ListDesignRooms(ctx, store.DesignRoomFilter{ArtistID: artistID})
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch chat rooms")
	}
	return rooms, nil
}

// MarkDesignRead marks the messages p did not send as read.
func (s *Service) MarkDesignRead(ctx context.Context, p *auth.Principal, roomID string) (int, error) {
	if _, err := s.designRoom(ctx, p, roomID); err != nil {
		return 0, err
	}
	n, err := s.store.MarkRead(ctx, domain.ChatDesign, roomID, p.ID)
	if err != nil {
		return 0, apperr.Internal(err, "Failed to mark messages as read")
	}
	return n, nil
}

// CustomerInfo is the customer card shown to the artist.
type CustomerInfo struct {
	FullName string  `json:"full_name"`
	Phone    *string `json:"phone"`
}

// CustomerInfo resolves the room customer's name from the profile, the
// auth metadata, then the order's receiver or first item client name.
func (s *Service) CustomerInfo(ctx context.Context, p *auth.Principal, roomID string) (*CustomerInfo, error) {
	r, err := s.designRoom(ctx, p, roomID)
	if err != nil {
		return nil, err
	}
	info := &CustomerInfo{FullName: FallbackName}

	profiles, err := s.store.GetUserProfiles(ctx, []string{r.CustomerID})
	if err != nil {
		s.log.Warn("failed to fetch user profile", zap.String("user", r.CustomerID), zap.Error(err))
	}
	if prof, ok := profiles[r.CustomerID]; ok && strings.TrimSpace(prof.FullName) != "" {
		info.FullName = strings.TrimSpace(prof.FullName)
		if prof.Phone != "" {
			info.Phone = &prof.Phone
		}
		return info, nil
	}

	if s.dir != nil {
		if u, err := s.dir.LookupUser(ctx, r.CustomerID); err == nil {
			if n := MetadataFullName(u.Metadata); n != "" {
				info.FullName = n
				return info, nil
			}
		} else {
			s.log.Debug("failed to look up user", zap.String("user", r.CustomerID), zap.Error(err))
		}
	}

	if r.OrderID != "" {
		o, err := s.store.GetOrder(ctx, r.OrderID)
		if err == nil {
			if o.DeliveryAddress != nil && strings.TrimSpace(o.DeliveryAddress.Receiver) != "" {
				info.FullName = strings.TrimSpace(o.DeliveryAddress.Receiver)
			} else if len(o.Items) > 0 && strings.TrimSpace(o.Items[0].ClientName) != "" {
				info.FullName = strings.TrimSpace(o.Items[0].ClientName)
			}
		}
	}
	return info, nil
}

// DesignRoomByOrder returns the order's room.
func (s *Service) DesignRoomByOrder(ctx context.Context, p *auth.Principal, orderID string) (*domain.DesignChatRoom, error) {
	r, err := s.store.FindDesignRoomByOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Room", "")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch chat room")
	}
	if err := designAccess(p, r); err != nil {
		return nil, err
	}
	return r, nil
}

// DesignRoomUpdate carries the editable room fields. Nil fields are kept.
type DesignRoomUpdate struct {
	LastMessageAt *time.Time `json:"last_message_at"`
	RoomName      *string    `json:"room_name"`
	ArtistID      *string    `json:"artist_id"`
	TaskID        *string    `json:"task_id"`
}

// UpdateDesignRoom applies u to a room.
func (s *Service) UpdateDesignRoom(ctx context.Context, p *auth.Principal, roomID string, u DesignRoomUpdate) (*domain.DesignChatRoom, error) {
	r, err := s.designRoom(ctx, p, roomID)
	if err != nil {
		return nil, err
	}
	if u.LastMessageAt != nil {
		r.LastMessageAt = u.LastMessageAt
	}
	if u.RoomName != nil {
		r.RoomName = *u.RoomName
	}
	if u.ArtistID != nil {
		r.ArtistID = *u.ArtistID
	}
	if u.TaskID != nil {
		r.TaskID = *u.TaskID
	}
	if err := s.store.UpdateDesignRoom(ctx, r); err != nil {
		return nil, apperr.Internal(err, "Failed to update chat room")
	}
	s.publish(realtime.DesignTopic(r.ID), realtime.EventRoomUpdated, r)
	return r, nil
}

// CloseDesignRoom sets the room status to closed.
func (s *Service) CloseDesignRoom(ctx context.Context, p *auth.Principal, roomID string) (*domain.DesignChatRoom, error) {
	r, err := s.designRoom(ctx, p, roomID)
	if err != nil {
		return nil, err
	}
	r.Status = domain.RoomClosed
	if err := s.store.UpdateDesignRoom(ctx, r); err != nil {
		return nil, apperr.Internal(err, "Failed to close chat room")
	}
	s.publish(realtime.DesignTopic(r.ID), realtime.EventRoomUpdated, r)
	return r, nil
}
