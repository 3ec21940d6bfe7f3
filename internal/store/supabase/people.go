package supabase

import (
	"context"
	"fmt"

	"github.com/supabase-community/postgrest-go"

	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store"
)

// GetArtistProfile returns a profile by id.
func (s *Store) GetArtistProfile(ctx context.Context, id string) (*domain.ArtistProfile, error) {
	a, err := selectOne[domain.ArtistProfile](ctx, s.from("artist_profiles").Select("*", "", false).Eq("id", id))
	return a, wrap("get artist profile", err)
}

// GetArtistProfileByUser returns the profile linked to an auth user.
func (s *Store) GetArtistProfileByUser(ctx context.Context, userID string) (*domain.ArtistProfile, error) {
	a, err := selectOne[domain.ArtistProfile](ctx, s.from("artist_profiles").Select("*", "", false).Eq("user_id", userID))
	return a, wrap("get artist profile", err)
}

// ListArtistProfiles returns profiles ordered by id.
func (s *Store) ListArtistProfiles(ctx context.Context, activeOnly bool) ([]domain.ArtistProfile, error) {
	q := s.from("artist_profiles").Select("*", "", false)
	if activeOnly {
		q = q.Eq("is_active", "true")
	}
	rows, err := selectAll[domain.ArtistProfile](ctx, q.Order("id", &postgrest.OrderOpts{Ascending: true}))
	return rows, wrap("list artist profiles", err)
}

// SaveArtistProfile inserts or updates a profile keyed by user id.
func (s *Store) SaveArtistProfile(ctx context.Context, a *domain.ArtistProfile) error {
	now := s.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Specialties == nil {
		a.Specialties = []string{}
	}
	row, err := toRow(a, "created_at")
	if err != nil {
		return err
	}
	return wrap("save artist profile", writeOne(ctx, s.from("artist_profiles").Upsert(row, "user_id", returnRows, ""), a))
}

// DeleteArtistProfile removes a profile.
func (s *Store) DeleteArtistProfile(ctx context.Context, id string) error {
	var a domain.ArtistProfile
	return wrap("delete artist profile", writeOne(ctx, s.from("artist_profiles").Delete(returnRows, "").Eq("id", id), &a))
}

// ListTasks returns matching tasks newest first.
func (s *Store) ListTasks(ctx context.Context, f store.TaskFilter) ([]domain.ArtistTask, error) {
	q := s.from("artist_tasks").Select("*", "", false)
	if f.ArtistID != "" {
		q = q.Eq("artist_id", f.ArtistID)
	}
	if f.OrderID != "" {
		q = q.Eq("order_id", f.OrderID)
	}
	if len(f.Statuses) > 0 {
		q = q.In("status", f.Statuses)
	}
	q = q.Order("created_at", &postgrest.OrderOpts{Ascending: false})
	if f.Limit > 0 {
		q = q.Limit(f.Limit, "")
	}
	rows, err := selectAll[domain.ArtistTask](ctx, q)
	return rows, wrap("list tasks", err)
}

// GetTask returns one task.
func (s *Store) GetTask(ctx context.Context, id string) (*domain.ArtistTask, error) {
	t, err := selectOne[domain.ArtistTask](ctx, s.from("artist_tasks").Select("*", "", false).Eq("id", id))
	return t, wrap("get task", err)
}

// CreateTask inserts a task.
func (s *Store) CreateTask(ctx context.Context, t *domain.ArtistTask) error {
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	row, err := toRow(t)
	if err != nil {
		return err
	}
	return wrap("create task", writeOne(ctx, s.from("artist_tasks").Insert(row, false, "", returnRows, ""), t))
}

// UpdateTask overwrites the mutable task fields.
func (s *Store) UpdateTask(ctx context.Context, t *domain.ArtistTask) error {
	t.UpdatedAt = s.now()
	row := map[string]any{
		"artist_id":  t.ArtistID,
		"status":     t.Status,
		"priority":   t.Priority,
		"updated_at": formatTime(t.UpdatedAt),
	}
	for col, v := range map[string]*string{
		"deadline":     timeString(t.Deadline),
		"assigned_at":  timeString(t.AssignedAt),
		"started_at":   timeString(t.StartedAt),
		"submitted_at": timeString(t.SubmittedAt),
		"completed_at": timeString(t.CompletedAt),
	} {
		if v == nil {
			row[col] = nil
		} else {
			row[col] = *v
		}
	}
	return wrap("update task", writeOne(ctx, s.from("artist_tasks").Update(row, returnRows, "").Eq("id", t.ID), t))
}

// FindDesignRoomByOrder returns the design room bound to an order.
func (s *Store) FindDesignRoomByOrder(ctx context.Context, orderID string) (*domain.DesignChatRoom, error) {
	r, err := selectOne[domain.DesignChatRoom](ctx, s.from("design_chat_rooms").Select("*", "", false).Eq("order_id", orderID))
	return r, wrap("find design room", err)
}

// GetDesignRoom returns one design room.
func (s *Store) GetDesignRoom(ctx context.Context, id string) (*domain.DesignChatRoom, error) {
	r, err := selectOne[domain.DesignChatRoom](ctx, s.from("design_chat_rooms").Select("*", "", false).Eq("id", id))
	return r, wrap("get design room", err)
}

// CreateDesignRoom inserts a design room.
func (s *Store) CreateDesignRoom(ctx context.Context, r *domain.DesignChatRoom) error {
	if r.Status == "" {
		r.Status = domain.RoomActive
	}
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	row, err := toRow(r)
	if err != nil {
		return err
	}
	return wrap("create design room", writeOne(ctx, s.from("design_chat_rooms").Insert(row, false, "", returnRows, ""), r))
}

// ListDesignRooms returns rooms by most recent message first.
func (s *Store) ListDesignRooms(ctx context.Context, f store.DesignRoomFilter) ([]domain.DesignChatRoom, error) {
	q := s.from("design_chat_rooms").Select("*", "", false)
	if f.CustomerID != "" {
		q = q.Eq("customer_id", f.CustomerID)
	}
	if f.ArtistID != "" {
		q = q.Eq("artist_id", f.ArtistID)
	}
	rows, err := selectAll[domain.DesignChatRoom](ctx, q.Order("last_message_at", &postgrest.OrderOpts{Ascending: false}))
	if rows == nil && err == nil {
		rows = []domain.DesignChatRoom{}
	}
	return rows, wrap("list design rooms", err)
}

// UpdateDesignRoom overwrites the mutable room fields.
func (s *Store) UpdateDesignRoom(ctx context.Context, r *domain.DesignChatRoom) error {
	r.UpdatedAt = s.now()
	row, err := toRow(r, "id", "order_id", "customer_id", "created_at")
	if err != nil {
		return err
	}
	return wrap("update design room", writeOne(ctx, s.from("design_chat_rooms").Update(row, returnRows, "").Eq("id", r.ID), r))
}

// FindOpenBranchRoom returns the customer's newest open room at a branch.
func (s *Store) FindOpenBranchRoom(ctx context.Context, branchID int64, customerID string) (*domain.BranchChatRoom, error) {
	r, err := selectOne[domain.BranchChatRoom](ctx, s.from("branch_chat_rooms").Select("*", "", false).
		Eq("branch_id", itoa(branchID)).Eq("customer_id", customerID).Eq("status", domain.RoomOpen).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}))
	return r, wrap("find branch room", err)
}

// GetBranchRoom returns one branch room.
func (s *Store) GetBranchRoom(ctx context.Context, id string) (*domain.BranchChatRoom, error) {
	r, err := selectOne[domain.BranchChatRoom](ctx, s.from("branch_chat_rooms").Select("*", "", false).Eq("id", id))
	return r, wrap("get branch room", err)
}

// CreateBranchRoom inserts a branch room.
func (s *Store) CreateBranchRoom(ctx context.Context, r *domain.BranchChatRoom) error {
	if r.Status == "" {
		r.Status = domain.RoomOpen
	}
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	row, err := toRow(r, "branch", "customer_name")
	if err != nil {
		return err
	}
	return wrap("create branch room", writeOne(ctx, s.from("branch_chat_rooms").Insert(row, false, "", returnRows, ""), r))
}

// ListBranchRooms returns rooms by most recent message first.
func (s *Store) ListBranchRooms(ctx context.Context, f store.BranchRoomFilter) ([]domain.BranchChatRoom, error) {
	q := s.from("branch_chat_rooms").Select("*", "", false)
	if f.CustomerID != "" {
		q = q.Eq("customer_id", f.CustomerID)
	}
	if f.BranchID != nil {
		q = q.Eq("branch_id", itoa(*f.BranchID))
	}
	if f.Status != "" {
		q = q.Eq("status", f.Status)
	}
	rows, err := selectAll[domain.BranchChatRoom](ctx, q.Order("last_message_at", &postgrest.OrderOpts{Ascending: false}))
	if rows == nil && err == nil {
		rows = []domain.BranchChatRoom{}
	}
	return rows, wrap("list branch rooms", err)
}

// UpdateBranchRoom overwrites the mutable room fields.
func (s *Store) UpdateBranchRoom(ctx context.Context, r *domain.BranchChatRoom) error {
	r.UpdatedAt = s.now()
	row, err := toRow(r, "id", "branch_id", "customer_id", "created_at", "branch", "customer_name")
	if err != nil {
		return err
	}
	branch, name := r.Branch, r.CustomerName
	if err := writeOne(ctx, s.from("branch_chat_rooms").Update(row, returnRows, "").Eq("id", r.ID), r); err != nil {
		return wrap("update branch room", err)
	}
	r.Branch, r.CustomerName = branch, name
	return nil
}

func messageTable(kind domain.ChatKind) (string, error) {
	switch kind {
	case domain.ChatDesign:
		return "design_chat_messages", nil
	case domain.ChatBranch:
		return "branch_chat_messages", nil
	}
	return "", fmt.Errorf("unknown chat kind %q", kind)
}

// AddMessage inserts a message into the room family's table.
func (s *Store) AddMessage(ctx context.Context, kind domain.ChatKind, m *domain.ChatMessage) error {
	table, err := messageTable(kind)
	if err != nil {
		return err
	}
	m.SetDefaults(s.now())
	row, err := toRow(m)
	if err != nil {
		return err
	}
	return wrap("add message", writeOne(ctx, s.from(table).Insert(row, false, "", returnRows, ""), m))
}

// ListMessages returns the room's messages oldest first.
func (s *Store) ListMessages(ctx context.Context, kind domain.ChatKind, roomID string) ([]domain.ChatMessage, error) {
	table, err := messageTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := selectAll[domain.ChatMessage](ctx, s.from(table).Select("*", "", false).
		Eq("room_id", roomID).Order("created_at", &postgrest.OrderOpts{Ascending: true}))
	if rows == nil && err == nil {
		rows = []domain.ChatMessage{}
	}
	return rows, wrap("list messages", err)
}

// MarkRead flags messages not sent by readerID as read.
func (s *Store) MarkRead(ctx context.Context, kind domain.ChatKind, roomID, readerID string) (int, error) {
	table, err := messageTable(kind)
	if err != nil {
		return 0, err
	}
	rows, err := selectAll[domain.ChatMessage](ctx, s.from(table).Update(map[string]any{"is_read": true}, returnRows, "").
		Eq("room_id", roomID).Neq("sender_id", readerID).Eq("is_read", "false"))
	if err != nil {
		return 0, wrap("mark read", err)
	}
	return len(rows), nil
}

// ListAddresses returns the default address first, then newest first.
func (s *Store) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	rows, err := selectAll[domain.Address](ctx, s.from("user_addresses").Select("*", "", false).
		Eq("user_id", userID).
		Order("is_default", &postgrest.OrderOpts{Ascending: false}).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}))
	if rows == nil && err == nil {
		rows = []domain.Address{}
	}
	return rows, wrap("list addresses", err)
}

// CreateAddress inserts an address.
func (s *Store) CreateAddress(ctx context.Context, a *domain.Address) error {
	now := s.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	row, err := toRow(a)
	if err != nil {
		return err
	}
	return wrap("create address", writeOne(ctx, s.from("user_addresses").Insert(row, false, "", returnRows, ""), a))
}

// UpdateAddress overwrites an address owned by a.UserID.
func (s *Store) UpdateAddress(ctx context.Context, a *domain.Address) error {
	a.UpdatedAt = s.now()
	row, err := toRow(a, "id", "user_id", "created_at")
	if err != nil {
		return err
	}
	return wrap("update address", writeOne(ctx, s.from("user_addresses").Update(row, returnRows, "").
		Eq("id", a.ID).Eq("user_id", a.UserID), a))
}

// DeleteAddress removes an address owned by userID.
func (s *Store) DeleteAddress(ctx context.Context, userID, id string) error {
	var a domain.Address
	return wrap("delete address", writeOne(ctx, s.from("user_addresses").Delete(returnRows, "").
		Eq("id", id).Eq("user_id", userID), &a))
}

// ClearDefaultAddress unsets the default flag on the user's addresses.
func (s *Store) ClearDefaultAddress(ctx context.Context, userID string) error {
	_, err := selectAll[domain.Address](ctx, s.from("user_addresses").
		Update(map[string]any{"is_default": false}, returnRows, "").Eq("user_id", userID))
	return wrap("clear default address", err)
}

// GetUserProfiles returns existing profiles for ids keyed by user id.
func (s *Store) GetUserProfiles(ctx context.Context, ids []string) (map[string]domain.UserProfile, error) {
	out := make(map[string]domain.UserProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := selectAll[domain.UserProfile](ctx, s.from("user_profiles").Select("*", "", false).In("user_id", ids))
	if err != nil {
		return nil, wrap("get user profiles", err)
	}
	for _, p := range rows {
		out[p.UserID] = p
	}
	return out, nil
}

// UpsertUserProfile inserts or replaces a profile.
func (s *Store) UpsertUserProfile(ctx context.Context, p *domain.UserProfile) error {
	p.UpdatedAt = s.now()
	row, err := toRow(p)
	if err != nil {
		return err
	}
	return wrap("upsert user profile", writeOne(ctx, s.from("user_profiles").Upsert(row, "user_id", returnRows, ""), p))
}

// DeleteUserProfile removes a profile and the user's saved addresses.
func (s *Store) DeleteUserProfile(ctx context.Context, userID string) error {
	if _, err := selectAll[domain.Address](ctx, s.from("user_addresses").Delete(returnRows, "").Eq("user_id", userID)); err != nil {
		return wrap("delete addresses", err)
	}
	_, err := selectAll[domain.UserProfile](ctx, s.from("user_profiles").Delete(returnRows, "").Eq("user_id", userID))
	return wrap("delete user profile", err)
}
