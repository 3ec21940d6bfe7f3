package domain

import (
	"fmt"
	"strings"
	"time"
)

// Branch is a physical store location.
type Branch struct {
	ID                  int64     `json:"id"`
	Name                string    `json:"name"`
	Address             string    `json:"address,omitempty"`
	City                string    `json:"city,omitempty"`
	Phone               string    `json:"phone,omitempty"`
	Email               string    `json:"email,omitempty"`
	IsMainManufacturing bool      `json:"is_main_manufacturing"`
	CreatedAt           time.Time `json:"created_at"`
}

// NameKey is the normalized name used to detect duplicate branches.
func (b *Branch) NameKey() string {
	return strings.ToLower(strings.TrimSpace(b.Name))
}

// Product is a catalog item.
type Product struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Category         string    `json:"category,omitempty"`
	Description      string    `json:"description,omitempty"`
	Price            float64   `json:"price"`
	MainImage        string    `json:"main_image,omitempty"`
	AdditionalImages []string  `json:"additional_images"`
	AvailableSizes   []string  `json:"available_sizes"`
	BranchID         *int64    `json:"branch_id,omitempty"`
	BranchName       string    `json:"branch_name,omitempty"`
	StockQuantity    int       `json:"stock_quantity"`
	SoldQuantity     int       `json:"sold_quantity"`
	AverageRating    float64   `json:"average_rating"`
	ReviewCount      int       `json:"review_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Validate checks if the Product has valid field values.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(p.Name) > 255 {
		return fmt.Errorf("name must be 255 characters or less (got %d)", len(p.Name))
	}
	if p.Price < 0 {
		return fmt.Errorf("price must not be negative")
	}
	if p.StockQuantity < 0 {
		return fmt.Errorf("stock_quantity must not be negative")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (p *Product) SetDefaults(now time.Time) {
	if p.AdditionalImages == nil {
		p.AdditionalImages = []string{}
	}
	if p.AvailableSizes == nil {
		p.AvailableSizes = []string{}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
}
