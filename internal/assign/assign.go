// Package assign balances design work across artists.
//
// When an order reaches layout it gets exactly one artist task. The artist
// is the active one with the fewest open (pending or in-progress) tasks;
// ties go to the artist with fewer tasks overall, then to the lower id.
// Assignments are serialized in-process so that orders arriving together
// see each other's load.
package assign

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/realtime"
	"github.com/yohanns/storefront/internal/store"
)

// ErrNoArtist is returned when no active artist can take a task.
var ErrNoArtist = apperr.Unavailable("No active artists available")

// Store is the persistence the balancer needs.
type Store interface {
	store.ArtistStore
	store.OrderStore
}

// Options configures a Service.
type Options struct {
	// MaxOpenTasks caps open tasks per artist; 0 disables the cap.
	MaxOpenTasks int
	Publisher    realtime.Publisher
	Logger       *zap.Logger
}

// Service assigns orders to artists.
type Service struct {
	mu      sync.Mutex
	store   Store
	maxOpen int
	pub     realtime.Publisher
	log     *zap.Logger
	now     func() time.Time
}

// NewService creates a balancer.
func NewService(s Store, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		store:   s,
		maxOpen: opts.MaxOpenTasks,
		pub:     opts.Publisher,
		log:     opts.Logger,
		now:     time.Now,
	}
}

// SetMaxOpenTasks changes the per-artist cap.
func (s *Service) SetMaxOpenTasks(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxOpen = n
}

// NewTask builds the unassigned task for an order. The task kind follows
// the order channel: custom design orders, walk-in orders (WALKIN- numbers)
// and regular online orders.
func NewTask(o *domain.Order, now time.Time) domain.ArtistTask {
	t := domain.ArtistTask{
		OrderID:              o.ID,
		Quantity:             max(o.TotalItems, 1),
		CustomerRequirements: o.OrderNotes,
		Status:               domain.TaskPending,
	}
	var label, fallback string
	var days int
	switch {
	case o.OrderType == domain.OrderTypeCustomDesign:
		t.TaskType, t.Priority, t.OrderSource = domain.TaskTypeCustomDesign, domain.PriorityMedium, domain.OrderSourceOnline
		label, fallback, days = "Custom design", "Custom Design", 3
	case o.IsWalkIn():
		t.TaskType, t.Priority, t.OrderSource = domain.TaskTypeWalkInOrder, domain.PriorityHigh, domain.OrderSourceWalkIn
		label, fallback, days = "Walk-in order", "Walk-in Product", 1
	default:
		t.TaskType, t.Priority, t.OrderSource = domain.TaskTypeRegularOrder, domain.PriorityMedium, domain.OrderSourceOnline
		label, fallback, days = "Order", "Store Product", 2
	}

	t.ProductName = fallback
	if len(o.Items) > 0 {
		if name := strings.TrimSpace(o.Items[0].Name); name != "" {
			t.ProductName = name
		}
		t.ProductID = o.Items[0].ProductRef()
	}
	t.TaskTitle = fmt.Sprintf("%s: %s", label, t.ProductName)
	t.TaskDescription = fmt.Sprintf("%s for order %s (%d item(s))", label, o.OrderNumber, t.Quantity)
	deadline := now.Add(time.Duration(days) * 24 * time.Hour)
	t.Deadline = &deadline
	return t
}

// load is an artist's current task count.
type load struct {
	artist domain.ArtistProfile
	open   int
	total  int
	done   int
}

func (s *Service) loads(ctx context.Context, artists []domain.ArtistProfile) ([]load, error) {
	out := make([]load, len(artists))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, a := range artists {
		g.Go(func() error {
			tasks, err := s.store.ListTasks(ctx, store.TaskFilter{ArtistID: a.ID})
			if err != nil {
				return fmt.Errorf("failed to list tasks of artist %s: %w", a.ID, err)
			}
			l := load{artist: a, total: len(tasks)}
			for _, t := range tasks {
				switch {
				case t.IsOpen():
					l.open++
				case t.IsDone():
					l.done++
				}
			}
			out[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// pick chooses the least busy active artist.
func (s *Service) pick(ctx context.Context) (*domain.ArtistProfile, error) {
	artists, err := s.store.ListArtistProfiles(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list artists: %w", err)
	}
	loads, err := s.loads(ctx, artists)
	if err != nil {
		return nil, err
	}
	loads = slices.DeleteFunc(loads, func(l load) bool {
		return !l.artist.IsActive || (s.maxOpen > 0 && l.open >= s.maxOpen)
	})
	if len(loads) == 0 {
		return nil, ErrNoArtist
	}
	slices.SortFunc(loads, func(a, b load) int {
		return cmp.Or(
			cmp.Compare(a.open, b.open),
			cmp.Compare(a.total, b.total),
			cmp.Compare(a.artist.ID, b.artist.ID),
		)
	})
	return &loads[0].artist, nil
}

// existingTask returns the order's non-cancelled task, if any.
func (s *Service) existingTask(ctx context.Context, orderID string) (*domain.ArtistTask, error) {
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{OrderID: orderID})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks of order %s: %w", orderID, err)
	}
	for _, t := range tasks {
		if t.Status != domain.TaskCancelled {
			return &t, nil
		}
	}
	return nil, nil
}

// AssignForOrder creates the order's artist task, or returns the task it
// already has.
func (s *Service) AssignForOrder(ctx context.Context, o *domain.Order) (*domain.ArtistTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, err := s.existingTask(ctx, o.ID); err != nil || t != nil {
		return t, err
	}
	artist, err := s.pick(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	t := NewTask(o, now)
	t.ArtistID = artist.ID
	t.AssignedAt = &now
	if err := s.store.CreateTask(ctx, &t); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	s.log.Info("task assigned",
		zap.String("order", o.OrderNumber),
		zap.String("task", t.ID),
		zap.String("artist", artist.ArtistName),
		zap.String("type", t.TaskType))
	if s.pub != nil {
		s.pub.Publish(realtime.ArtistTopic(artist.ID), realtime.EventTaskAssigned, t)
	}
	return &t, nil
}

// Report summarises a backfill run.
type Report struct {
	Checked  int      `json:"checked"`
	Needing  int      `json:"needing"`
	Assigned int      `json:"assigned"`
	Failed   int      `json:"failed"`
	DryRun   bool     `json:"dry_run"`
	Orders   []string `json:"orders"`
}

// Backfill assigns tasks to in-production orders that have none, oldest
// first. since, when set, limits the run to orders created at or after it.
// A failing order is logged and counted; the run continues.
func (s *Service) Backfill(ctx context.Context, since *time.Time, dryRun bool) (*Report, error) {
	orders, _, err := s.store.ListOrders(ctx, store.OrderFilter{
		Statuses: domain.InProductionStatuses,
		Since:    since,
		Sort:     &store.Sort{Column: "created_at", Ascending: true},
	})
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch orders")
	}
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{})
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch existing tasks")
	}
	covered := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.OrderID != "" && t.Status != domain.TaskCancelled {
			covered[t.OrderID] = true
		}
	}

	r := &Report{Checked: len(orders), DryRun: dryRun, Orders: []string{}}
	for _, o := range orders {
		if covered[o.ID] {
			continue
		}
		r.Needing++
		r.Orders = append(r.Orders, o.OrderNumber)
		if dryRun {
			continue
		}
		if err := ctx.Err(); err != nil {
			return r, err
		}
		if _, err := s.AssignForOrder(ctx, &o); err != nil {
			r.Failed++
			s.log.Warn("failed to assign order", zap.String("order", o.OrderNumber), zap.Error(err))
			continue
		}
		r.Assigned++
	}
	s.log.Info("backfill finished",
		zap.Int("checked", r.Checked),
		zap.Int("needing", r.Needing),
		zap.Int("assigned", r.Assigned),
		zap.Int("failed", r.Failed),
		zap.Bool("dry_run", dryRun))
	return r, nil
}

// Workload is one artist's task counts.
type Workload struct {
	ArtistID   string `json:"artist_id"`
	ArtistName string `json:"artist_name"`
	IsActive   bool   `json:"is_active"`
	Open       int    `json:"open_tasks"`
	Completed  int    `json:"completed_tasks"`
	Total      int    `json:"total_tasks"`
}

// WorkloadSummary returns every artist's task counts ordered by name.
func (s *Service) WorkloadSummary(ctx context.Context) ([]Workload, error) {
	artists, err := s.store.ListArtistProfiles(ctx, false)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch artists")
	}
	loads, err := s.loads(ctx, artists)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch artist workload")
	}
	out := make([]Workload, 0, len(loads))
	for _, l := range loads {
		out = append(out, Workload{
			ArtistID:   l.artist.ID,
			ArtistName: l.artist.ArtistName,
			IsActive:   l.artist.IsActive,
			Open:       l.open,
			Completed:  l.done,
			Total:      l.total,
		})
	}
	slices.SortFunc(out, func(a, b Workload) int {
		return cmp.Or(strings.Compare(a.ArtistName, b.ArtistName), strings.Compare(a.ArtistID, b.ArtistID))
	})
	return out, nil
}
