// Package artist serves the artist dashboard: profile, metrics, workload
// chart data and the artist's own task queue.
package artist

import (
	"context"
	"errors"
	"math"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/realtime"
	"github.com/yohanns/storefront/internal/store"
)

var errProfileNotFound = apperr.NotFound("Artist profile", "")

// Store is the persistence the artist dashboard needs.
type Store interface {
	store.ArtistStore
	store.OrderStore
	store.ProductStore
}

// Service implements artist operations. Methods taking a userID act on the
// artist profile linked to that auth user.
type Service struct {
	store Store
	pub   realtime.Publisher
	log   *zap.Logger
	now   func() time.Time
}

// NewService creates an artist service.
func NewService(s Store, pub realtime.Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: s, pub: pub, log: log, now: time.Now}
}

// Profile returns the artist profile of userID.
func (s *Service) Profile(ctx context.Context, userID string) (*domain.ArtistProfile, error) {
	p, err := s.store.GetArtistProfileByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errProfileNotFound
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch artist profile")
	}
	return p, nil
}

// ProfileByID returns an artist profile by its own id.
func (s *Service) ProfileByID(ctx context.Context, artistID string) (*domain.ArtistProfile, error) {
	p, err := s.store.GetArtistProfile(ctx, artistID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Artist", "")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch artist")
	}
	return p, nil
}

// List returns every artist profile.
func (s *Service) List(ctx context.Context) ([]domain.ArtistProfile, error) {
	out, err := s.store.ListArtistProfiles(ctx, false)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch artists")
	}
	return out, nil
}

// ProfileUpdate carries the editable profile fields. Nil fields are kept.
type ProfileUpdate struct {
	ArtistName     *string   `json:"artist_name"`
	Bio            *string   `json:"bio"`
	Specialties    *[]string `json:"specialties"`
	CommissionRate *float64  `json:"commission_rate"`
}

// UpdateProfile applies u to the artist profile of userID.
func (s *Service) UpdateProfile(ctx context.Context, userID string, u ProfileUpdate) (*domain.ArtistProfile, error) {
	p, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.ArtistName != nil {
		p.ArtistName = *u.ArtistName
	}
	if u.Bio != nil {
		p.Bio = *u.Bio
	}
	if u.Specialties != nil {
		p.Specialties = *u.Specialties
	}
	if u.CommissionRate != nil {
		p.CommissionRate = *u.CommissionRate
	}
	if err := p.Validate(); err != nil {
		return nil, apperr.Invalid(err.Error())
	}
	if err := s.store.SaveArtistProfile(ctx, p); err != nil {
		return nil, apperr.Internal(err, "Failed to update artist profile")
	}
	return p, nil
}

// SetActive enables or disables an artist for new assignments.
func (s *Service) SetActive(ctx context.Context, artistID string, active bool) (*domain.ArtistProfile, error) {
	p, err := s.ProfileByID(ctx, artistID)
	if err != nil {
		return nil, err
	}
	p.IsActive = active
	if err := s.store.SaveArtistProfile(ctx, p); err != nil {
		return nil, apperr.Internal(err, "Failed to update artist")
	}
	s.log.Info("artist availability changed", zap.String("artist", p.ArtistName), zap.Bool("active", active))
	return p, nil
}

// Metrics are the artist dashboard cards.
type Metrics struct {
	TotalTasks            int     `json:"totalTasks"`
	PendingTasks          int     `json:"pendingTasks"`
	CompletedTasks        int     `json:"completedTasks"`
	AverageCompletionTime float64 `json:"averageCompletionTime"`
}

// Metrics counts the artist's tasks and the average hours from start (or
// assignment) to completion over finished tasks.
func (s *Service) Metrics(ctx context.Context, userID string) (*Metrics, error) {
	p, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{ArtistID: p.ID})
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch artist metrics")
	}

	m := &Metrics{TotalTasks: len(tasks)}
	var hours []float64
	for _, t := range tasks {
		switch {
		case t.Status == domain.TaskPending:
			m.PendingTasks++
		case t.IsDone():
			m.CompletedTasks++
			if h, ok := completionHours(t); ok {
				hours = append(hours, h)
			}
		}
	}
	if len(hours) > 0 {
		var sum float64
		for _, h := range hours {
			sum += h
		}
		m.AverageCompletionTime = math.Round(sum/float64(len(hours))*10) / 10
	}
	return m, nil
}

func completionHours(t domain.ArtistTask) (float64, bool) {
	start := t.StartedAt
	if start == nil {
		start = t.AssignedAt
	}
	if start == nil || t.CompletedAt == nil {
		return 0, false
	}
	h := t.CompletedAt.Sub(*start).Hours()
	return h, h > 0
}

// WorkloadDay is one bar of the workload chart.
type WorkloadDay struct {
	Date       string `json:"date"`
	Pending    int    `json:"pending"`
	InProgress int    `json:"in_progress"`
	Completed  int    `json:"completed"`
}

// PeriodDays maps a workload period to its window length. Unknown periods
// use a week.
func PeriodDays(period string) int {
	switch period {
	case "month":
		return 30
	case "quarter":
		return 90
	default:
		return 7
	}
}

// Workload groups the artist's tasks by day over the period. Finished
// tasks are dated by when they were handed in, others by creation.
func (s *Service) Workload(ctx context.Context, userID, period string) ([]WorkloadDay, error) {
	p, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{ArtistID: p.ID})
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch workload data")
	}

	start := s.now().UTC().Add(-time.Duration(PeriodDays(period)) * 24 * time.Hour)
	days := make(map[string]*WorkloadDay)
	for _, t := range tasks {
		at := t.CreatedAt
		if t.IsDone() {
			switch {
			case t.SubmittedAt != nil:
				at = *t.SubmittedAt
			case !t.UpdatedAt.IsZero():
				at = t.UpdatedAt
			}
		}
		if at.Before(start) {
			continue
		}
		key := at.UTC().Format(time.DateOnly)
		d, ok := days[key]
		if !ok {
			d = &WorkloadDay{Date: key}
			days[key] = d
		}
		switch {
		case t.Status == domain.TaskPending:
			d.Pending++
		case t.Status == domain.TaskInProgress:
			d.InProgress++
		case t.IsDone():
			d.Completed++
		}
	}

	out := make([]WorkloadDay, 0, len(days))
	for _, d := range days {
		out = append(out, *d)
	}
	slices.SortFunc(out, func(a, b WorkloadDay) int {
		switch {
		case a.Date < b.Date:
			return -1
		case a.Date > b.Date:
			return 1
		}
		return 0
	})
	return out, nil
}

// OrderSummary is the order context shown on a task card.
type OrderSummary struct {
	OrderNumber string             `json:"order_number"`
	TotalAmount float64            `json:"total_amount"`
	Items       []domain.OrderItem `json:"order_items"`
}

// ProductSummary is the product context shown on a task card.
type ProductSummary struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	MainImage        string   `json:"main_image,omitempty"`
	AdditionalImages []string `json:"additional_images"`
	Category         string   `json:"category,omitempty"`
	Price            float64  `json:"price"`
}

// TaskView is a task with its order and product context.
type TaskView struct {
	domain.ArtistTask
	Order   *OrderSummary   `json:"orders"`
	Product *ProductSummary `json:"products"`
}

// Tasks returns the artist's tasks newest first. status and limit are
// optional.
func (s *Service) Tasks(ctx context.Context, userID, status string, limit int) ([]TaskView, error) {
	p, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	f := store.TaskFilter{ArtistID: p.ID, Limit: limit}
	if status != "" {
		f.Statuses = []string{status}
	}
	tasks, err := s.store.ListTasks(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch artist tasks")
	}

	orders := make(map[string]*OrderSummary)
	products := make(map[string]*ProductSummary)
	out := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		v := TaskView{ArtistTask: t}
		if t.OrderID != "" {
			if _, seen := orders[t.OrderID]; !seen {
				orders[t.OrderID] = s.orderSummary(ctx, t.OrderID)
			}
			v.Order = orders[t.OrderID]
		}
		if t.ProductID != "" {
			if _, seen := products[t.ProductID]; !seen {
				products[t.ProductID] = s.productSummary(ctx, t.ProductID)
			}
			v.Product = products[t.ProductID]
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) orderSummary(ctx context.Context, id string) *OrderSummary {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("failed to load task order", zap.String("order", id), zap.Error(err))
		}
		return nil
	}
	return &OrderSummary{OrderNumber: o.OrderNumber, TotalAmount: o.TotalAmount, Items: o.Items}
}

func (s *Service) productSummary(ctx context.Context, id string) *ProductSummary {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("failed to load task product", zap.String("product", id), zap.Error(err))
		}
		return nil
	}
	return &ProductSummary{
		ID:               p.ID,
		Name:             p.Name,
		MainImage:        p.MainImage,
		AdditionalImages: p.AdditionalImages,
		Category:         p.Category,
		Price:            p.Price,
	}
}

// UpdateTaskStatus moves one of the artist's tasks to status. Starting a
// task requires its order to be in layout or confirmed.
func (s *Service) UpdateTaskStatus(ctx context.Context, userID, taskID, status string) (*domain.ArtistTask, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Task", "")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch task")
	}
	p, err := s.store.GetArtistProfileByUser(ctx, userID)
	if err != nil || p.ID != t.ArtistID {
		return nil, apperr.Forbidden("Access denied")
	}
	if !domain.IsValidTaskStatus(status) {
		return nil, apperr.Invalid("Invalid status").With("validStatuses", domain.TaskStatuses)
	}

	if status == domain.TaskInProgress {
		if t.OrderID == "" {
			return nil, apperr.Invalid("Unable to verify order status. Please try again later.")
		}
		o, err := s.store.GetOrder(ctx, t.OrderID)
		if err != nil {
			s.log.Warn("failed to load order for task update", zap.String("task", t.ID), zap.Error(err))
			return nil, apperr.Invalid("Unable to verify order status. Please try again later.")
		}
		if o.Status != domain.OrderLayout && o.Status != domain.OrderConfirmed {
			return nil, apperr.Invalid("Order must be in layout or confirmed status before starting this task.").
				With("currentStatus", o.Status)
		}
	}

	now := s.now().UTC()
	previous := t.Status
	t.Status = status
	switch status {
	case domain.TaskInProgress:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case domain.TaskSubmitted:
		if t.SubmittedAt == nil {
			t.SubmittedAt = &now
		}
	case domain.TaskCompleted:
		if t.CompletedAt == nil {
			t.CompletedAt = &now
		}
	}
	if err := s.store.UpdateTask(ctx, t); err != nil {
		return nil, apperr.Internal(err, "Failed to update task status")
	}

	s.log.Info("task status updated",
		zap.String("task", t.ID),
		zap.String("from", previous),
		zap.String("to", status))
	if s.pub != nil {
		s.pub.Publish(realtime.ArtistTopic(t.ArtistID), realtime.EventTaskStatus, map[string]any{
			"task_id":         t.ID,
			"order_id":        t.OrderID,
			"status":          t.Status,
			"previous_status": previous,
		})
	}
	return t, nil
}
