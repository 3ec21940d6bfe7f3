package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role is the storefront role carried in a user's auth metadata.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleArtist   Role = "artist"
	RoleAdmin    Role = "admin"
	RoleOwner    Role = "owner"
)

// ParseRole lower-cases a metadata role, defaulting to customer.
func ParseRole(s string) Role {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RoleCustomer
	}
	return Role(s)
}

// Address is a saved shipping address.
type Address struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	FullName      string    `json:"full_name"`
	Phone         string    `json:"phone,omitempty"`
	StreetAddress string    `json:"street_address,omitempty"`
	Barangay      string    `json:"barangay,omitempty"`
	City          string    `json:"city"`
	Province      string    `json:"province,omitempty"`
	PostalCode    string    `json:"postal_code,omitempty"`
	IsDefault     bool      `json:"is_default"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate checks if the Address has valid field values.
func (a *Address) Validate() error {
	if a.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if strings.TrimSpace(a.FullName) == "" {
		return fmt.Errorf("full_name is required")
	}
	if strings.TrimSpace(a.City) == "" {
		return fmt.Errorf("city is required")
	}
	return nil
}

// UserProfile is the public profile row kept next to the auth user.
type UserProfile struct {
	UserID    string    `json:"user_id"`
	FullName  string    `json:"full_name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscriber is a newsletter subscription keyed by email.
type Subscriber struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	UserID         string     `json:"user_id,omitempty"`
	IsActive       bool       `json:"is_active"`
	Source         string     `json:"source,omitempty"`
	SubscribedAt   time.Time  `json:"subscribed_at"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty"`
}
