// Package loadtest drives concurrent checkouts through the order pipeline.
//
// Each simulated customer places an order and staff immediately move it to
// layout, which initializes the production workflow and assigns an artist.
// The run records latencies for both steps and then checks that every
// order got exactly one task and that open tasks are spread evenly.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yohanns/storefront/internal/assign"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/orders"
	"github.com/yohanns/storefront/internal/store"
	"github.com/yohanns/storefront/internal/workflow"
)

// Options configures Run.
type Options struct {
	Orders  int // orders to place
	Workers int // concurrent customers
	Artists int // active artists to create before the run
	Logger  *zap.Logger
}

// LatencyStats summarises the durations of one kind of request.
type LatencyStats struct {
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
	Count  int
	Errors int
}

// Report is the outcome of a run.
type Report struct {
	Checkout   LatencyStats
	Layout     LatencyStats
	OpenTasks  map[string]int // artist name -> open tasks
	Spread     int            // max - min open tasks across artists
	Violations []string       // orders without exactly one task
	Elapsed    time.Duration
}

// OK reports whether the run had no errors and assignment stayed balanced.
func (r *Report) OK() bool {
	return r.Checkout.Errors == 0 && r.Layout.Errors == 0 && len(r.Violations) == 0 && r.Spread <= 1
}

// Run places opts.Orders orders against st with opts.Workers goroutines.
// Request failures are counted, not returned; the error is reserved for
// setup and verification failures.
func Run(ctx context.Context, st store.Store, opts Options) (*Report, error) {
	if opts.Orders <= 0 {
		return nil, fmt.Errorf("orders must be positive")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	log := opts.Logger

	if err := seedArtists(ctx, st, opts.Artists); err != nil {
		return nil, err
	}

	assigner := assign.NewService(st, assign.Options{Logger: log.Named("assign")})
	svc := orders.NewService(st, orders.Options{
		Workflow: workflow.NewService(st, nil, log.Named("workflow")),
		Assigner: assigner,
		Logger:   log.Named("orders"),
	})

	var (
		mu        sync.Mutex
		checkout  []time.Duration
		layout    []time.Duration
		checkErrs int
		layErrs   int
		placed    []string
	)

	start := time.Now()
	g := new(errgroup.Group)
	g.SetLimit(opts.Workers)
	for i := range opts.Orders {
		g.Go(func() error {
			t0 := time.Now()
			o, err := svc.Create(ctx, newOrder(i))
			d := time.Since(t0)
			if err != nil {
				log.Warn("checkout failed", zap.Int("order", i), zap.Error(err))
				mu.Lock()
				checkErrs++
				mu.Unlock()
				return nil
			}

			t1 := time.Now()
			_, err = svc.UpdateStatus(ctx, o.ID, domain.OrderLayout)
			ld := time.Since(t1)

			mu.Lock()
			defer mu.Unlock()
			checkout = append(checkout, d)
			if err != nil {
				log.Warn("layout failed", zap.String("order", o.ID), zap.Error(err))
				layErrs++
				return nil
			}
			layout = append(layout, ld)
			placed = append(placed, o.ID)
			return nil
		})
	}
	_ = g.Wait()

	rep := &Report{
		Checkout: computeLatencyStats(checkout),
		Layout:   computeLatencyStats(layout),
		Elapsed:  time.Since(start),
	}
	rep.Checkout.Errors = checkErrs
	rep.Layout.Errors = layErrs

	if err := verify(ctx, st, assigner, placed, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

func seedArtists(ctx context.Context, st store.ArtistStore, n int) error {
	for i := range n {
		a := &domain.ArtistProfile{
			UserID:     fmt.Sprintf("loadtest-artist-%02d", i),
			ArtistName: fmt.Sprintf("Load Artist %02d", i),
			IsActive:   true,
		}
		if err := st.SaveArtistProfile(ctx, a); err != nil {
			return fmt.Errorf("failed to create artist %d: %w", i, err)
		}
	}
	return nil
}

func newOrder(i int) *domain.Order {
	qty := 1 + i%5
	price := 350.0 + float64(i%4)*50
	return &domain.Order{
		UserID:         fmt.Sprintf("loadtest-customer-%03d", i%50),
		OrderNumber:    fmt.Sprintf("LOAD-%06d", i),
		ShippingMethod: domain.ShippingPickup,
		PickupLocation: "Batangas City",
		SubtotalAmount: price * float64(qty),
		TotalAmount:    price * float64(qty),
		TotalItems:     qty,
		Items: []domain.OrderItem{{
			Name:     fmt.Sprintf("Team Jersey %d", i%7),
			Quantity: qty,
			Price:    price,
			Size:     []string{"S", "M", "L", "XL"}[i%4],
		}},
	}
}

// verify checks task coverage of the placed orders and the open-task spread.
func verify(ctx context.Context, st store.ArtistStore, assigner *assign.Service, placed []string, rep *Report) error {
	for _, id := range placed {
		tasks, err := st.ListTasks(ctx, store.TaskFilter{OrderID: id})
		if err != nil {
			return fmt.Errorf("failed to list tasks of order %s: %w", id, err)
		}
		live := 0
		for _, t := range tasks {
			if t.Status != domain.TaskCancelled {
				live++
			}
		}
		if live != 1 {
			rep.Violations = append(rep.Violations, fmt.Sprintf("order %s has %d tasks", id, live))
		}
	}

	loads, err := assigner.WorkloadSummary(ctx)
	if err != nil {
		return err
	}
	rep.OpenTasks = make(map[string]int, len(loads))
	lo, hi := -1, 0
	for _, l := range loads {
		if !l.IsActive {
			continue
		}
		rep.OpenTasks[l.ArtistName] = l.Open
		if lo < 0 || l.Open < lo {
			lo = l.Open
		}
		if l.Open > hi {
			hi = l.Open
		}
	}
	if lo >= 0 {
		rep.Spread = hi - lo
	}
	return nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	return LatencyStats{
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / time.Duration(len(sorted)),
		P50:   sorted[len(sorted)*50/100],
		P95:   sorted[len(sorted)*95/100],
		P99:   sorted[len(sorted)*99/100],
		Count: len(sorted),
	}
}

// Print writes the report in a plain layout.
func (r *Report) Print(w io.Writer) {
	for _, s := range []struct {
		name string
		st   LatencyStats
	}{{"Checkout", r.Checkout}, {"Move to layout", r.Layout}} {
		fmt.Fprintf(w, "%s (%d ok, %d errors)\n", s.name, s.st.Count, s.st.Errors)
		fmt.Fprintf(w, "  min %v  p50 %v  mean %v  p95 %v  p99 %v  max %v\n",
			s.st.Min, s.st.P50, s.st.Mean, s.st.P95, s.st.P99, s.st.Max)
	}
	names := make([]string, 0, len(r.OpenTasks))
	for n := range r.OpenTasks {
		names = append(names, n)
	}
	sort.Strings(names)
	fmt.Fprintf(w, "Open tasks per artist (spread %d)\n", r.Spread)
	for _, n := range names {
		fmt.Fprintf(w, "  %-20s %d\n", n, r.OpenTasks[n])
	}
	for _, v := range r.Violations {
		fmt.Fprintf(w, "  violation: %s\n", v)
	}
	fmt.Fprintf(w, "Elapsed %v\n", r.Elapsed)
}
