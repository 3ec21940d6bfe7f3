package domain

import (
	"fmt"
	"time"
)

// Artist task statuses.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskSubmitted  = "submitted"
	TaskCompleted  = "completed"
	TaskCancelled  = "cancelled"
)

// Artist task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Artist task kinds, one per order channel.
const (
	TaskTypeCustomDesign = "custom_design"
	TaskTypeRegularOrder = "regular_order"
	TaskTypeWalkInOrder  = "walk_in_order"

	OrderSourceOnline = "online"
	OrderSourceWalkIn = "walk_in"
)

// TaskStatuses lists every valid task status.
var TaskStatuses = []string{TaskPending, TaskInProgress, TaskSubmitted, TaskCompleted, TaskCancelled}

// OpenTaskStatuses are the statuses that count towards an artist's load.
var OpenTaskStatuses = []string{TaskPending, TaskInProgress}

// DoneTaskStatuses are the statuses that count as finished work.
var DoneTaskStatuses = []string{TaskCompleted, TaskSubmitted}

// IsValidTaskStatus reports whether status is a task status.
func IsValidTaskStatus(status string) bool {
	for _, s := range TaskStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// ArtistProfile is the design staff record linked to an auth user.
type ArtistProfile struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ArtistName     string    `json:"artist_name"`
	Bio            string    `json:"bio,omitempty"`
	Specialties    []string  `json:"specialties"`
	CommissionRate float64   `json:"commission_rate"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate checks if the ArtistProfile has valid field values.
func (a *ArtistProfile) Validate() error {
	if a.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if a.ArtistName == "" {
		return fmt.Errorf("artist_name is required")
	}
	if a.CommissionRate < 0 || a.CommissionRate > 100 {
		return fmt.Errorf("commission_rate must be between 0 and 100 (got %v)", a.CommissionRate)
	}
	return nil
}

// ArtistTask is a design work item assigned to an artist.
type ArtistTask struct {
	ID                   string     `json:"id"`
	ArtistID             string     `json:"artist_id"`
	OrderID              string     `json:"order_id,omitempty"`
	ProductID            string     `json:"product_id,omitempty"`
	TaskTitle            string     `json:"task_title"`
	TaskDescription      string     `json:"task_description,omitempty"`
	ProductName          string     `json:"product_name,omitempty"`
	Quantity             int        `json:"quantity"`
	CustomerRequirements string     `json:"customer_requirements,omitempty"`
	Priority             string     `json:"priority"`
	Status               string     `json:"status"`
	TaskType             string     `json:"task_type"`
	OrderSource          string     `json:"order_source,omitempty"`
	Deadline             *time.Time `json:"deadline,omitempty"`
	AssignedAt           *time.Time `json:"assigned_at,omitempty"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	SubmittedAt          *time.Time `json:"submitted_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Validate checks if the ArtistTask has valid field values.
func (t *ArtistTask) Validate() error {
	if t.ArtistID == "" {
		return fmt.Errorf("artist_id is required")
	}
	if t.TaskTitle == "" {
		return fmt.Errorf("task_title is required")
	}
	if !IsValidTaskStatus(t.Status) {
		return fmt.Errorf("invalid task status %q", t.Status)
	}
	switch t.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
	default:
		return fmt.Errorf("invalid priority %q", t.Priority)
	}
	if t.Quantity < 1 {
		return fmt.Errorf("quantity must be at least 1 (got %d)", t.Quantity)
	}
	return nil
}

// IsOpen reports whether the task still counts towards the artist's load.
func (t *ArtistTask) IsOpen() bool {
	return t.Status == TaskPending || t.Status == TaskInProgress
}

// IsDone reports whether the task is finished or handed in.
func (t *ArtistTask) IsDone() bool {
	return t.Status == TaskCompleted || t.Status == TaskSubmitted
}
