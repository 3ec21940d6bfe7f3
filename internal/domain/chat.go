package domain

import (
	"fmt"
	"strings"
	"time"
)

// ChatKind selects the room family a message belongs to.
type ChatKind string

const (
	ChatDesign ChatKind = "design"
	ChatBranch ChatKind = "branch"
)

// Room and message states.
const (
	RoomActive = "active"
	RoomOpen   = "open"
	RoomClosed = "closed"

	SenderCustomer = "customer"
	SenderArtist   = "artist"
	SenderAdmin    = "admin"

	MessageText = "text"
)

// DesignChatRoom is the order-bound conversation between a customer and
// the artist working on the design.
type DesignChatRoom struct {
	ID            string     `json:"id"`
	OrderID       string     `json:"order_id"`
	CustomerID    string     `json:"customer_id"`
	ArtistID      string     `json:"artist_id"`
	TaskID        string     `json:"task_id,omitempty"`
	RoomName      string     `json:"room_name,omitempty"`
	Status        string     `json:"status"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// BranchChatRoom is a support conversation between a customer and the
// admins of one branch.
type BranchChatRoom struct {
	ID            string     `json:"id"`
	BranchID      int64      `json:"branch_id"`
	CustomerID    string     `json:"customer_id"`
	AdminID       string     `json:"admin_id,omitempty"`
	Subject       string     `json:"subject"`
	Status        string     `json:"status"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Branch       *Branch `json:"branch,omitempty"`
	CustomerName string  `json:"customer_name,omitempty"`
}

// ChatMessage is a message in either room family.
type ChatMessage struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	SenderID    string    `json:"sender_id"`
	SenderType  string    `json:"sender_type"`
	Message     string    `json:"message"`
	MessageType string    `json:"message_type"`
	Attachments []string  `json:"attachments"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks if the ChatMessage has valid field values.
func (m *ChatMessage) Validate() error {
	if m.RoomID == "" {
		return fmt.Errorf("room_id is required")
	}
	if m.SenderID == "" {
		return fmt.Errorf("sender_id is required")
	}
	if strings.TrimSpace(m.Message) == "" {
		return fmt.Errorf("message is required")
	}
	switch m.SenderType {
	case SenderCustomer, SenderArtist, SenderAdmin:
	default:
		return fmt.Errorf("invalid sender_type %q", m.SenderType)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (m *ChatMessage) SetDefaults(now time.Time) {
	if m.MessageType == "" {
		m.MessageType = MessageText
	}
	if m.Attachments == nil {
		m.Attachments = []string{}
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
}
