package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/auth"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/realtime"
	"github.com/yohanns/storefront/internal/store"
)

var errStaffOnly = apperr.Forbidden("Admin or owner access required")

// branchAccess allows a customer in their own rooms, an admin in rooms of
// their branch and an owner everywhere.
func branchAccess(p *auth.Principal, r *domain.BranchChatRoom) error {
	if p == nil {
		return errAuthRequired
	}
	switch p.Role {
	case domain.RoleCustomer:
		if r.CustomerID != p.ID {
			return errRoomDenied
		}
	case domain.RoleAdmin, domain.RoleOwner:
		return auth.BranchAccess(p, r.BranchID)
	default:
		return apperr.Forbidden("Role not permitted for branch chat")
	}
	return nil
}

func (s *Service) branchRoom(ctx context.Context, p *auth.Principal, roomID string) (*domain.BranchChatRoom, error) {
	r, err := s.store.GetBranchRoom(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errRoomNotFound
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch chat room")
	}
	if err := branchAccess(p, r); err != nil {
		return nil, err
	}
	return r, nil
}

// BranchRoomAccess checks that p may read the branch room.
func (s *Service) BranchRoomAccess(ctx context.Context, p *auth.Principal, roomID string) error {
	_, err := s.branchRoom(ctx, p, roomID)
	return err
}

// withBranches attaches branch details to rooms. A failed lookup leaves
// the rooms without branch details.
func (s *Service) withBranches(ctx context.Context, rooms []domain.BranchChatRoom) {
	if len(rooms) == 0 {
		return
	}
	branches, err := s.store.ListBranches(ctx)
	if err != nil {
		s.log.Warn("failed to fetch branches", zap.Error(err))
		return
	}
	byID := make(map[int64]*domain.Branch, len(branches))
	for i := range branches {
		byID[branches[i].ID] = &branches[i]
	}
	for i := range rooms {
		rooms[i].Branch = byID[rooms[i].BranchID]
	}
}

// OpenRequest opens a support conversation with a branch.
type OpenRequest struct {
	BranchID       *int64 `json:"branchId"`
	Subject        string `json:"subject"`
	InitialMessage string `json:"initialMessage"`
}

// OpenResult is returned by OpenBranchRoom.
type OpenResult struct {
	Room           *domain.BranchChatRoom `json:"room"`
	Branch         *domain.Branch         `json:"branch"`
	IsNew          bool                   `json:"isNew"`
	InitialMessage *domain.ChatMessage    `json:"initialMessage"`
}

// OpenBranchRoom reuses the caller's newest open room at the branch or
// creates one, then posts the optional initial message.
func (s *Service) OpenBranchRoom(ctx context.Context, p *auth.Principal, req OpenRequest) (*OpenResult, error) {
	if p == nil {
		return nil, errAuthRequired
	}
	if req.BranchID == nil || *req.BranchID == 0 {
		return nil, apperr.Invalid("branchId is required")
	}
	branch, err := s.store.GetBranch(ctx, *req.BranchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Branch", "")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch branch")
	}

	res := &OpenResult{Branch: branch}
	room, err := s.store.FindOpenBranchRoom(ctx, branch.ID, p.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		subject := strings.TrimSpace(req.Subject)
		if subject == "" {
			subject = fmt.Sprintf("Support inquiry for %s", branch.Name)
		}
		now := s.now().UTC()
		room = &domain.BranchChatRoom{
			BranchID:      branch.ID,
			CustomerID:    p.ID,
			Subject:       subject,
			Status:        domain.RoomOpen,
			LastMessageAt: &now,
		}
		if err := s.store.CreateBranchRoom(ctx, room); err != nil {
			return nil, apperr.Internal(err, "Failed to open chat room")
		}
		res.IsNew = true
		s.log.Info("branch room opened", zap.String("room", room.ID), zap.Int64("branch", branch.ID))
	case err != nil:
		return nil, apperr.Internal(err, "Failed to open chat room")
	}

	if msg := strings.TrimSpace(req.InitialMessage); msg != "" {
		m, err := s.appendBranchMessage(ctx, room, p.ID, domain.SenderCustomer, MessageInput{Message: msg})
		if err != nil {
			return nil, err
		}
		res.InitialMessage = m
	}
	room.Branch = branch
	res.Room = room
	return res, nil
}

// CustomerBranchRooms lists the caller's branch rooms by last message.
func (s *Service) CustomerBranchRooms(ctx context.Context, p *auth.Principal) ([]domain.BranchChatRoom, error) {
	if p == nil {
		return nil, errAuthRequired
	}
	rooms, err := s.store.ListBranchRooms(ctx, store.BranchRoomFilter{CustomerID: p.ID})
	if err != nil {
		return nil, apperr.Internal(err, "Failed to load branch chats")
	}
	s.withBranches(ctx, rooms)
	return rooms, nil
}

// AdminBranchRooms lists rooms for staff with customer names. Admins see
// their own branch; owners see every branch or the one in branchID.
func (s *Service) AdminBranchRooms(ctx context.Context, p *auth.Principal, branchID *int64, status string) ([]domain.BranchChatRoom, error) {
	if !p.IsStaff() {
		return nil, errStaffOnly
	}
	f := store.BranchRoomFilter{Status: status, BranchID: branchID}
	if p.Is(domain.RoleAdmin) {
		if p.BranchID == nil {
			return nil, apperr.Invalid("Admin account is not linked to a branch")
		}
		f.BranchID = p.BranchID
	}
	rooms, err := s.store.ListBranchRooms(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to load branch chats")
	}
	s.withBranches(ctx, rooms)

	var ids []string
	seen := make(map[string]bool)
	for _, r := range rooms {
		if r.CustomerID != "" && !seen[r.CustomerID] {
			seen[r.CustomerID] = true
			ids = append(ids, r.CustomerID)
		}
	}
	names := s.customerNames(ctx, ids)
	for i := range rooms {
		rooms[i].CustomerName = FallbackName
		if n, ok := names[rooms[i].CustomerID]; ok {
			rooms[i].CustomerName = n
		}
	}
	return rooms, nil
}

// BranchMessages returns a room's messages oldest first.
func (s *Service) BranchMessages(ctx context.Context, p *auth.Principal, roomID string) ([]domain.ChatMessage, error) {
	if _, err := s.branchRoom(ctx, p, roomID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, domain.ChatBranch, roomID)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to load messages")
	}
	return msgs, nil
}

// SendBranchMessage appends a message as the caller. Customers post as
// customer, staff as admin.
func (s *Service) SendBranchMessage(ctx context.Context, p *auth.Principal, roomID string, in MessageInput) (*domain.ChatMessage, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, apperr.Invalid("Message text is required")
	}
	r, err := s.branchRoom(ctx, p, roomID)
	if err != nil {
		return nil, err
	}
	sender := domain.SenderAdmin
	if p.Is(domain.RoleCustomer) {
		sender = domain.SenderCustomer
	}
	in.Message = strings.TrimSpace(in.Message)
	return s.appendBranchMessage(ctx, r, p.ID, sender, in)
}

// appendBranchMessage stores the message, reopens the room and lets an
// admin sender claim it.
func (s *Service) appendBranchMessage(ctx context.Context, r *domain.BranchChatRoom, senderID, sender string, in MessageInput) (*domain.ChatMessage, error) {
	m := &domain.ChatMessage{
		RoomID:      r.ID,
		SenderID:    senderID,
		SenderType:  sender,
		Message:     in.Message,
		MessageType: in.MessageType,
		Attachments: in.Attachments,
	}
	m.SetDefaults(s.now().UTC())
	if err := m.Validate(); err != nil {
		return nil, apperr.Invalid(err.Error())
	}
	if err := s.store.AddMessage(ctx, domain.ChatBranch, m); err != nil {
		return nil, apperr.Internal(err, "Failed to send message")
	}

	r.LastMessageAt = &m.CreatedAt
	r.Status = domain.RoomOpen
	if sender == domain.SenderAdmin {
		r.AdminID = senderID
	}
	if err := s.store.UpdateBranchRoom(ctx, r); err != nil {
		s.log.Warn("failed to update room after message", zap.String("room", r.ID), zap.Error(err))
	}
	s.publish(realtime.BranchTopic(r.ID), realtime.EventMessage, m)
	return m, nil
}

// MarkBranchRead marks the messages p did not send as read.
func (s *Service) MarkBranchRead(ctx context.Context, p *auth.Principal, roomID string) (int, error) {
	if _, err := s.branchRoom(ctx, p, roomID); err != nil {
		return 0, err
	}
	n, err := s.store.MarkRead(ctx, domain.ChatBranch, roomID, p.ID)
	if err != nil {
		return 0, apperr.Internal(err, "Failed to mark messages as read")
	}
	return n, nil
}

// CloseBranchRoom closes a room. Only staff may close rooms.
func (s *Service) CloseBranchRoom(ctx context.Context, p *auth.Principal, roomID string) (*domain.BranchChatRoom, error) {
	if !p.IsStaff() {
		return nil, errStaffOnly
	}
	r, err := s.branchRoom(ctx, p, roomID)
	if err != nil {
		return nil, err
	}
	r.Status = domain.RoomClosed
	if err := s.store.UpdateBranchRoom(ctx, r); err != nil {
		return nil, apperr.Internal(err, "Failed to close chat room")
	}
	s.publish(realtime.BranchTopic(r.ID), realtime.EventRoomUpdated, r)
	return r, nil
}
