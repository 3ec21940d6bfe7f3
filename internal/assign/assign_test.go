package assign

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store"
	"github.com/yohanns/storefront/internal/store/sqlite"
)

func testDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "assign.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func addArtist(t *testing.T, db *sqlite.DB, name string, active bool) *domain.ArtistProfile {
	t.Helper()
	a := &domain.ArtistProfile{UserID: "user-" + name, ArtistName: name, IsActive: active}
	require.NoError(t, db.SaveArtistProfile(context.Background(), a))
	return a
}

func addOrder(t *testing.T, db *sqlite.DB, number, status string, mutate func(o *domain.Order)) *domain.Order {
	t.Helper()
	o := &domain.Order{
		UserID:         "customer-1",
		OrderNumber:    number,
		Status:         status,
		ShippingMethod: domain.ShippingPickup,
		Items:          []domain.OrderItem{{ProductID: "p-1", Name: "Team Jersey", Quantity: 3}},
	}
	if mutate != nil {
		mutate(o)
	}
	require.NoError(t, db.CreateOrder(context.Background(), o))
	return o
}

func TestNewTask(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		order    domain.Order
		taskType string
		priority string
		product  string
		days     int
		qty      int
	}{
		{
			name:     "custom design",
			order:    domain.Order{OrderNumber: "ORD-1", OrderType: domain.OrderTypeCustomDesign, TotalItems: 4},
			taskType: domain.TaskTypeCustomDesign, priority: domain.PriorityMedium, product: "Custom Design", days: 3, qty: 4,
		},
		{
			name: "walk-in",
			order: domain.Order{OrderNumber: "WALKIN-7", OrderType: domain.OrderTypeRegular,
				Items: []domain.OrderItem{{ID: "p-9", Name: "Shorts"}}},
			taskType: domain.TaskTypeWalkInOrder, priority: domain.PriorityHigh, product: "Shorts", days: 1, qty: 1,
		},
		{
			name:     "regular",
			order:    domain.Order{OrderNumber: "ORD-2", TotalItems: 2, OrderNotes: "navy blue"},
			taskType: domain.TaskTypeRegularOrder, priority: domain.PriorityMedium, product: "Store Product", days: 2, qty: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := NewTask(&tt.order, now)
			assert.Equal(t, tt.taskType, task.TaskType)
			assert.Equal(t, tt.priority, task.Priority)
			assert.Equal(t, tt.product, task.ProductName)
			assert.Equal(t, tt.qty, task.Quantity)
			assert.Equal(t, tt.order.OrderNotes, task.CustomerRequirements)
			assert.Equal(t, domain.TaskPending, task.Status)
			require.NotNil(t, task.Deadline)
			assert.Equal(t, now.AddDate(0, 0, tt.days), *task.Deadline)
		})
	}
	walkIn := NewTask(&tests[1].order, now)
	assert.Equal(t, "p-9", walkIn.ProductID)
	assert.Equal(t, domain.OrderSourceWalkIn, walkIn.OrderSource)
}

func TestAssignForOrder_LeastLoaded(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	busy := addArtist(t, db, "Busy", true)
	idle := addArtist(t, db, "Idle", true)
	addArtist(t, db, "Retired", false)

	svc := NewService(db, Options{})
	first := addOrder(t, db, "ORD-1", domain.OrderLayout, nil)
	require.NoError(t, db.CreateTask(ctx, &domain.ArtistTask{
		ArtistID: busy.ID, TaskTitle: "old", Quantity: 1, Priority: domain.PriorityLow,
		Status: domain.TaskInProgress, TaskType: domain.TaskTypeRegularOrder,
	}))

	task, err := svc.AssignForOrder(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, idle.ID, task.ArtistID)
	assert.NotNil(t, task.AssignedAt)

	// Same order again returns the existing task.
	again, err := svc.AssignForOrder(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, task.ID, again.ID)
}

func TestAssignForOrder_TieBreaksOnTotalTasks(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := addArtist(t, db, "Ana", true)
	b := addArtist(t, db, "Ben", true)
	// Give the finished work to the artist that would win on id alone.
	veteran, fresh := a, b
	if b.ID < a.ID {
		veteran, fresh = b, a
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, db.CreateTask(ctx, &domain.ArtistTask{
			ArtistID: veteran.ID, TaskTitle: fmt.Sprintf("done %d", i), Quantity: 1, Priority: domain.PriorityLow,
			Status: domain.TaskCompleted, TaskType: domain.TaskTypeRegularOrder,
		}))
	}

	svc := NewService(db, Options{})
	task, err := svc.AssignForOrder(ctx, addOrder(t, db, "ORD-1", domain.OrderLayout, nil))
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, task.ArtistID)
}

func TestAssignForOrder_ReassignsAfterCancelledTask(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	artist := addArtist(t, db, "Solo", true)
	o := addOrder(t, db, "ORD-1", domain.OrderLayout, nil)
	cancelled := &domain.ArtistTask{
		ArtistID: artist.ID, OrderID: o.ID, TaskTitle: "dropped", Quantity: 1, Priority: domain.PriorityLow,
		Status: domain.TaskCancelled, TaskType: domain.TaskTypeRegularOrder,
	}
	require.NoError(t, db.CreateTask(ctx, cancelled))

	svc := NewService(db, Options{})
	task, err := svc.AssignForOrder(ctx, o)
	require.NoError(t, err)
	assert.NotEqual(t, cancelled.ID, task.ID)
	assert.Equal(t, domain.TaskPending, task.Status)
	assert.Equal(t, o.ID, task.OrderID)

	tasks, err := db.ListTasks(ctx, store.TaskFilter{OrderID: o.ID})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestAssignForOrder_Capacity(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	addArtist(t, db, "Solo", true)
	svc := NewService(db, Options{MaxOpenTasks: 1})

	_, err := svc.AssignForOrder(ctx, addOrder(t, db, "ORD-1", domain.OrderLayout, nil))
	require.NoError(t, err)

	_, err = svc.AssignForOrder(ctx, addOrder(t, db, "ORD-2", domain.OrderLayout, nil))
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))

	svc.SetMaxOpenTasks(0)
	_, err = svc.AssignForOrder(ctx, addOrder(t, db, "ORD-3", domain.OrderLayout, nil))
	assert.NoError(t, err)
}

func TestAssignForOrder_NoArtists(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, Options{})
	_, err := svc.AssignForOrder(context.Background(), addOrder(t, db, "ORD-1", domain.OrderLayout, nil))
	assert.ErrorIs(t, err, ErrNoArtist)
}

func TestAssignForOrder_ConcurrentOrdersBalance(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := addArtist(t, db, "A", true)
	b := addArtist(t, db, "B", true)
	svc := NewService(db, Options{})

	var orders []*domain.Order
	for i := range 10 {
		orders = append(orders, addOrder(t, db, fmt.Sprintf("ORD-%02d", i), domain.OrderLayout, nil))
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(orders))
	for _, o := range orders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AssignForOrder(ctx, o); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("AssignForOrder() failed: %v", err)
	}

	for _, artist := range []*domain.ArtistProfile{a, b} {
		tasks, err := db.ListTasks(ctx, store.TaskFilter{ArtistID: artist.ID})
		require.NoError(t, err)
		assert.Len(t, tasks, 5, "artist %s", artist.ArtistName)
	}
}

func TestBackfill(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	addArtist(t, db, "A", true)
	svc := NewService(db, Options{})

	old := addOrder(t, db, "ORD-OLD", domain.OrderPrinting, func(o *domain.Order) {
		o.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	})
	recent := addOrder(t, db, "ORD-NEW", domain.OrderLayout, func(o *domain.Order) {
		o.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	})
	addOrder(t, db, "ORD-PENDING", domain.OrderPending, nil)
	covered := addOrder(t, db, "ORD-COVERED", domain.OrderSizing, func(o *domain.Order) {
		o.CreatedAt = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	})
	_, err := svc.AssignForOrder(ctx, covered)
	require.NoError(t, err)

	dry, err := svc.Backfill(ctx, nil, true)
	require.NoError(t, err)
	assert.Equal(t, 3, dry.Checked)
	assert.Equal(t, 2, dry.Needing)
	assert.Equal(t, 0, dry.Assigned)
	assert.Equal(t, []string{old.OrderNumber, recent.OrderNumber}, dry.Orders)

	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	r, err := svc.Backfill(ctx, &since, false)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Checked)
	assert.Equal(t, 1, r.Needing)
	assert.Equal(t, 1, r.Assigned)
	assert.Equal(t, 0, r.Failed)

	tasks, err := db.ListTasks(ctx, store.TaskFilter{OrderID: old.ID})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestWorkloadSummary(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	zed := addArtist(t, db, "Zed", true)
	addArtist(t, db, "Amy", false)
	for _, status := range []string{domain.TaskPending, domain.TaskCompleted, domain.TaskSubmitted, domain.TaskCancelled} {
		require.NoError(t, db.CreateTask(ctx, &domain.ArtistTask{
			ArtistID: zed.ID, TaskTitle: status, Quantity: 1, Priority: domain.PriorityMedium,
			Status: status, TaskType: domain.TaskTypeRegularOrder,
		}))
	}

	svc := NewService(db, Options{})
	summary, err := svc.WorkloadSummary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, "Amy", summary[0].ArtistName)
	assert.False(t, summary[0].IsActive)
	assert.Equal(t, Workload{ArtistID: zed.ID, ArtistName: "Zed", IsActive: true, Open: 1, Completed: 2, Total: 4}, summary[1])
}
