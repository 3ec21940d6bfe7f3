package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store"
)

const designRoomColumns = `id, order_id, customer_id, artist_id, task_id, room_name, status, last_message_at, created_at, updated_at`

func scanDesignRoom(s rowScanner) (*domain.DesignChatRoom, error) {
	var r domain.DesignChatRoom
	var lastMessageAt sql.NullString
	var createdAt, updatedAt string
	err := s.Scan(&r.ID, &r.OrderID, &r.CustomerID, &r.ArtistID, &r.TaskID, &r.RoomName, &r.Status,
		&lastMessageAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.LastMessageAt = nullStringToTime(lastMessageAt)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

// FindDesignRoomByOrder returns the design room bound to an order.
func (db *DB) FindDesignRoomByOrder(ctx context.Context, orderID string) (*domain.DesignChatRoom, error) {
	r, err := scanDesignRoom(db.conn.QueryRowContext(ctx,
		`SELECT `+designRoomColumns+` FROM design_chat_rooms WHERE order_id = ?`, orderID))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

// GetDesignRoom returns one design room.
func (db *DB) GetDesignRoom(ctx context.Context, id string) (*domain.DesignChatRoom, error) {
	r, err := scanDesignRoom(db.conn.QueryRowContext(ctx,
		`SELECT `+designRoomColumns+` FROM design_chat_rooms WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

// CreateDesignRoom inserts a design room.
func (db *DB) CreateDesignRoom(ctx context.Context, r *domain.DesignChatRoom) error {
	now := db.now()
	if r.ID == "" {
		r.ID = newID()
	}
	if r.Status == "" {
		r.Status = domain.RoomActive
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO design_chat_rooms (`+designRoomColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OrderID, r.CustomerID, r.ArtistID, r.TaskID, r.RoomName, r.Status,
		timeToNullString(r.LastMessageAt), formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert design room: %w", err)
	}
	return nil
}

// ListDesignRooms returns rooms by most recent message first.
func (db *DB) ListDesignRooms(ctx context.Context, f store.DesignRoomFilter) ([]domain.DesignChatRoom, error) {
	var conditions []string
	var args []any
	if f.CustomerID != "" {
		conditions = append(conditions, "customer_id = ?")
		args = append(args, f.CustomerID)
	}
	if f.ArtistID != "" {
		conditions = append(conditions, "artist_id = ?")
		args = append(args, f.ArtistID)
	}
	query := `SELECT ` + designRoomColumns + ` FROM design_chat_rooms`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY COALESCE(last_message_at, created_at) DESC"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list design rooms: %w", err)
	}
	defer rows.Close()

	out := []domain.DesignChatRoom{}
	for rows.Next() {
		r, err := scanDesignRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan design room: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateDesignRoom overwrites the mutable room fields.
func (db *DB) UpdateDesignRoom(ctx context.Context, r *domain.DesignChatRoom) error {
	r.UpdatedAt = db.now()
	res, err := db.conn.ExecContext(ctx, `
	UPDATE design_chat_rooms SET artist_id = ?, task_id = ?, room_name = ?, status = ?, last_message_at = ?, updated_at = ?
	WHERE id = ?`,
		r.ArtistID, r.TaskID, r.RoomName, r.Status, timeToNullString(r.LastMessageAt), formatTime(r.UpdatedAt), r.ID)
	if err != nil {
		return fmt.Errorf("failed to update design room %s: %w", r.ID, err)
	}
	return requireAffected(res)
}

const branchRoomColumns = `id, branch_id, customer_id, admin_id, subject, status, last_message_at, created_at, updated_at`

func scanBranchRoom(s rowScanner) (*domain.BranchChatRoom, error) {
	var r domain.BranchChatRoom
	var lastMessageAt sql.NullString
	var createdAt, updatedAt string
	err := s.Scan(&r.ID, &r.BranchID, &r.CustomerID, &r.AdminID, &r.Subject, &r.Status,
		&lastMessageAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.LastMessageAt = nullStringToTime(lastMessageAt)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

// FindOpenBranchRoom returns the customer's newest open room at a branch.
func (db *DB) FindOpenBranchRoom(ctx context.Context, branchID int64, customerID string) (*domain.BranchChatRoom, error) {
	r, err := scanBranchRoom(db.conn.QueryRowContext(ctx, `
	SELECT `+branchRoomColumns+` FROM branch_chat_rooms
	WHERE branch_id = ? AND customer_id = ? AND status = ?
	ORDER BY created_at DESC LIMIT 1`, branchID, customerID, domain.RoomOpen))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

// GetBranchRoom returns one branch room.
func (db *DB) GetBranchRoom(ctx context.Context, id string) (*domain.BranchChatRoom, error) {
	r, err := scanBranchRoom(db.conn.QueryRowContext(ctx,
		`SELECT `+branchRoomColumns+` FROM branch_chat_rooms WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

// CreateBranchRoom inserts a branch room.
func (db *DB) CreateBranchRoom(ctx context.Context, r *domain.BranchChatRoom) error {
	now := db.now()
	if r.ID == "" {
		r.ID = newID()
	}
	if r.Status == "" {
		r.Status = domain.RoomOpen
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO branch_chat_rooms (`+branchRoomColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.BranchID, r.CustomerID, r.AdminID, r.Subject, r.Status,
		timeToNullString(r.LastMessageAt), formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert branch room: %w", err)
	}
	return nil
}

// ListBranchRooms returns rooms by most recent message first.
func (db *DB) ListBranchRooms(ctx context.Context, f store.BranchRoomFilter) ([]domain.BranchChatRoom, error) {
	var conditions []string
	var args []any
	if f.CustomerID != "" {
		conditions = append(conditions, "customer_id = ?")
		args = append(args, f.CustomerID)
	}
	if f.BranchID != nil {
		conditions = append(conditions, "branch_id = ?")
		args = append(args, *f.BranchID)
	}
	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + branchRoomColumns + ` FROM branch_chat_rooms`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY COALESCE(last_message_at, created_at) DESC"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list branch rooms: %w", err)
	}
	defer rows.Close()

	out := []domain.BranchChatRoom{}
	for rows.Next() {
		r, err := scanBranchRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan branch room: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateBranchRoom overwrites the mutable room fields.
func (db *DB) UpdateBranchRoom(ctx context.Context, r *domain.BranchChatRoom) error {
	r.UpdatedAt = db.now()
	res, err := db.conn.ExecContext(ctx, `
	UPDATE branch_chat_rooms SET admin_id = ?, subject = ?, status = ?, last_message_at = ?, updated_at = ?
	WHERE id = ?`,
		r.AdminID, r.Subject, r.Status, timeToNullString(r.LastMessageAt), formatTime(r.UpdatedAt), r.ID)
	if err != nil {
		return fmt.Errorf("failed to update branch room %s: %w", r.ID, err)
	}
	return requireAffected(res)
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
func (db *DB) AddMessage(ctx context.Context, kind domain.ChatKind, m *domain.ChatMessage) error {
	table, err := messageTable(kind)
	if err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = newID()
	}
	m.SetDefaults(db.now())
	attachments, err := toJSON(m.Attachments)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, `
	INSERT INTO `+table+` (id, room_id, sender_id, sender_type, message, message_type, attachments, is_read, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.RoomID, m.SenderID, m.SenderType, m.Message, m.MessageType, attachments, m.IsRead, formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert %s message: %w", kind, err)
	}
	return nil
}

// ListMessages returns the room's messages oldest first.
func (db *DB) ListMessages(ctx context.Context, kind domain.ChatKind, roomID string) ([]domain.ChatMessage, error) {
	table, err := messageTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, room_id, sender_id, sender_type, message, message_type, attachments, is_read, created_at
	FROM `+table+` WHERE room_id = ? ORDER BY created_at ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s messages: %w", kind, err)
	}
	defer rows.Close()

	out := []domain.ChatMessage{}
	for rows.Next() {
		var m domain.ChatMessage
		var attachments, createdAt string
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderType, &m.Message, &m.MessageType,
			&attachments, &m.IsRead, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if err := fromJSON(attachments, &m.Attachments); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(createdAt)
		m.SetDefaults(m.CreatedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkRead flags messages not sent by readerID as read.
func (db *DB) MarkRead(ctx context.Context, kind domain.ChatKind, roomID, readerID string) (int, error) {
	table, err := messageTable(kind)
	if err != nil {
		return 0, err
	}
	res, err := db.conn.ExecContext(ctx,
		`UPDATE `+table+` SET is_read = 1 WHERE room_id = ? AND sender_id != ? AND is_read = 0`, roomID, readerID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark %s messages read: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
