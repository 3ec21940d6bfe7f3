package supabase

import (
	"context"
	"time"

	"github.com/supabase-community/postgrest-go"

	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store"
)

// ListBranches returns all branches ordered by name.
func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := selectAll[domain.Branch](ctx, s.from("branches").Select("*", "", false).
		Order("name", &postgrest.OrderOpts{Ascending: true}))
	return rows, wrap("list branches", err)
}

// GetBranch returns one branch.
func (s *Store) GetBranch(ctx context.Context, id int64) (*domain.Branch, error) {
	b, err := selectOne[domain.Branch](ctx, s.from("branches").Select("*", "", false).Eq("id", itoa(id)))
	return b, wrap("get branch", err)
}

// UpsertBranch inserts or updates a branch.
func (s *Store) UpsertBranch(ctx context.Context, b *domain.Branch) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	row, err := toRow(b)
	if err != nil {
		return err
	}
	return wrap("upsert branch", writeOne(ctx, s.from("branches").Upsert(row, "id", returnRows, ""), b))
}

// productSelect embeds the owning branch so its name comes back with
// each product.
const productSelect = "*, branches(name)"

// productRow is a product with its embedded branch.
type productRow struct {
	domain.Product
	Branches *struct {
		Name string `json:"name"`
	} `json:"branches"`
}

func (r productRow) product() domain.Product {
	p := r.Product
	if r.Branches != nil {
		p.BranchName = r.Branches.Name
	}
	return p
}

// ListProducts returns products newest first.
func (s *Store) ListProducts(ctx context.Context, f store.ProductFilter) ([]domain.Product, error) {
	q := s.from("products").Select(productSelect, "", false)
	if f.BranchID != nil {
		q = q.Eq("branch_id", itoa(*f.BranchID))
	}
	rows, err := selectAll[productRow](ctx, q.Order("created_at", &postgrest.OrderOpts{Ascending: false}))
	if err != nil {
		return nil, wrap("list products", err)
	}
	out := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.product())
	}
	return out, nil
}

// GetProduct returns one product.
func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	r, err := selectOne[productRow](ctx, s.from("products").Select(productSelect, "", false).Eq("id", id))
	if err != nil {
		return nil, wrap("get product", err)
	}
	p := r.product()
	return &p, nil
}

// CreateProduct inserts a product.
func (s *Store) CreateProduct(ctx context.Context, p *domain.Product) error {
	p.SetDefaults(s.now())
	row, err := toRow(p, "branch_name", "average_rating", "review_count", "sold_quantity")
	if err != nil {
		return err
	}
	return wrap("create product", writeOne(ctx, s.from("products").Insert(row, false, "", returnRows, ""), p))
}

// UpdateProduct overwrites the editable product fields.
func (s *Store) UpdateProduct(ctx context.Context, p *domain.Product) error {
	p.UpdatedAt = s.now()
	row, err := toRow(p, "id", "branch_name", "average_rating", "review_count", "sold_quantity", "created_at")
	if err != nil {
		return err
	}
	return wrap("update product", writeOne(ctx, s.from("products").Update(row, returnRows, "").Eq("id", p.ID), p))
}

// DeleteProduct removes a product.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	var deleted domain.Product
	return wrap("delete product", writeOne(ctx, s.from("products").Delete(returnRows, "").Eq("id", id), &deleted))
}

// UpdateProductStats writes the denormalized review and sales figures.
func (s *Store) UpdateProductStats(ctx context.Context, id string, stats store.ProductStats) error {
	row := map[string]any{
		"average_rating": stats.AverageRating,
		"review_count":   stats.ReviewCount,
		"sold_quantity":  stats.SoldQuantity,
		"updated_at":     formatTime(s.now()),
	}
	var p domain.Product
	return wrap("update product stats", writeOne(ctx, s.from("products").Update(row, returnRows, "").Eq("id", id), &p))
}

// orderPageSize is how many rows an unbounded ListOrders fetches per
// request. PostgREST caps responses at the project's max-rows setting,
// which defaults to 1000.
const orderPageSize = 1000

// ListOrders returns one page of matching orders and the total match count.
// A zero Limit reads every match, one orderPageSize range at a time.
func (s *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]domain.Order, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	q := s.from("orders").Select("*", countExact, false)
	if len(f.IDs) > 0 {
		q = q.In("id", f.IDs)
	}
	if f.OrderType != "" {
		q = q.Eq("order_type", f.OrderType)
	}
	if len(f.Statuses) > 0 {
		q = q.In("status", f.Statuses)
	}
	if len(f.UserIDs) > 0 {
		q = q.In("user_id", f.UserIDs)
	}
	if f.PickupBranch != "" {
		q = q.Eq("pickup_location", f.PickupBranch)
	}
	if f.Since != nil {
		q = q.Gte("created_at", formatTime(*f.Since))
	}

	switch {
	case f.Sort != nil:
		q = q.Order(f.Sort.Column, &postgrest.OrderOpts{Ascending: f.Sort.Ascending})
	default:
		q = q.Order("created_at", &postgrest.OrderOpts{Ascending: false})
	}
	if f.Limit > 0 {
		var out []domain.Order
		count, err := q.Range(f.Offset, f.Offset+f.Limit-1, "").ExecuteTo(&out)
		if err != nil {
			return nil, 0, wrap("list orders", err)
		}
		return out, int(count), nil
	}

	var out []domain.Order
	var count int64
	for from := f.Offset; ; from += orderPageSize {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		var page []domain.Order
		n, err := q.Range(from, from+orderPageSize-1, "").ExecuteTo(&page)
		if err != nil {
			return nil, 0, wrap("list orders", err)
		}
		count = n
		out = append(out, page...)
		if len(page) < orderPageSize {
			break
		}
	}
	return out, int(count), nil
}

// GetOrder returns one order.
func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := selectOne[domain.Order](ctx, s.from("orders").Select("*", "", false).Eq("id", id))
	return o, wrap("get order", err)
}

// CreateOrder inserts an order.
func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	o.SetDefaults(s.now())
	row, err := toRow(o)
	if err != nil {
		return err
	}
	return wrap("create order", writeOne(ctx, s.from("orders").Insert(row, false, "", returnRows, ""), o))
}

// UpdateOrderStatus sets the status and returns the updated order.
func (s *Store) UpdateOrderStatus(ctx context.Context, id, status string) (*domain.Order, error) {
	row := map[string]any{"status": status, "updated_at": formatTime(s.now())}
	var o domain.Order
	if err := writeOne(ctx, s.from("orders").Update(row, returnRows, "").Eq("id", id), &o); err != nil {
		return nil, wrap("update order status", err)
	}
	return &o, nil
}

// SetProductionStatus stores the derived production status.
func (s *Store) SetProductionStatus(ctx context.Context, id, status string) error {
	row := map[string]any{"production_status": status, "updated_at": formatTime(s.now())}
	var o domain.Order
	return wrap("set production status", writeOne(ctx, s.from("orders").Update(row, returnRows, "").Eq("id", id), &o))
}

// SetDesignFiles replaces the design files attached to an order.
func (s *Store) SetDesignFiles(ctx context.Context, id string, files []domain.DesignFile) (*domain.Order, error) {
	if files == nil {
		files = []domain.DesignFile{}
	}
	row := map[string]any{"design_files": files, "updated_at": formatTime(s.now())}
	var o domain.Order
	if err := writeOne(ctx, s.from("orders").Update(row, returnRows, "").Eq("id", id), &o); err != nil {
		return nil, wrap("set design files", err)
	}
	return &o, nil
}

// ListTracking returns tracking events oldest first.
func (s *Store) ListTracking(ctx context.Context, orderID string) ([]domain.TrackingEvent, error) {
	rows, err := selectAll[domain.TrackingEvent](ctx, s.from("order_tracking").Select("*", "", false).
		Eq("order_id", orderID).Order("timestamp", &postgrest.OrderOpts{Ascending: true}))
	if rows == nil && err == nil {
		rows = []domain.TrackingEvent{}
	}
	return rows, wrap("list tracking", err)
}

// AddTracking inserts a tracking event.
func (s *Store) AddTracking(ctx context.Context, e *domain.TrackingEvent) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	row, err := toRow(e)
	if err != nil {
		return err
	}
	return wrap("add tracking", writeOne(ctx, s.from("order_tracking").Insert(row, false, "", returnRows, ""), e))
}

// GetReview returns the review left on an order.
func (s *Store) GetReview(ctx context.Context, orderID string) (*domain.Review, error) {
	r, err := selectOne[domain.Review](ctx, s.from("order_reviews").Select("*", "", false).Eq("order_id", orderID))
	return r, wrap("get review", err)
}

// UpsertReview inserts a review or replaces rating and comment.
func (s *Store) UpsertReview(ctx context.Context, r *domain.Review) error {
	r.UpdatedAt = s.now()
	row, err := toRow(r, "created_at")
	if err != nil {
		return err
	}
	return wrap("upsert review", writeOne(ctx, s.from("order_reviews").Upsert(row, "order_id,user_id", returnRows, ""), r))
}

// ListReviews returns reviews for orderIDs, or all reviews when empty.
func (s *Store) ListReviews(ctx context.Context, orderIDs []string) ([]domain.Review, error) {
	q := s.from("order_reviews").Select("*", "", false)
	if len(orderIDs) > 0 {
		q = q.In("order_id", orderIDs)
	}
	rows, err := selectAll[domain.Review](ctx, q)
	return rows, wrap("list reviews", err)
}

// GetDeliveryProof returns the proof recorded for an order.
func (s *Store) GetDeliveryProof(ctx context.Context, orderID string) (*domain.DeliveryProof, error) {
	p, err := selectOne[domain.DeliveryProof](ctx, s.from("delivery_proof").Select("*", "", false).
		Eq("order_id", orderID).Order("created_at", &postgrest.OrderOpts{Ascending: true}))
	return p, wrap("get delivery proof", err)
}

// AddDeliveryProof inserts a delivery proof.
func (s *Store) AddDeliveryProof(ctx context.Context, p *domain.DeliveryProof) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	if p.ProofImages == nil {
		p.ProofImages = []string{}
	}
	row, err := toRow(p)
	if err != nil {
		return err
	}
	return wrap("add delivery proof", writeOne(ctx, s.from("delivery_proof").Insert(row, false, "", returnRows, ""), p))
}

// VerifyDeliveryProof stamps the verifier and time on a proof.
func (s *Store) VerifyDeliveryProof(ctx context.Context, proofID, verifiedBy string, at time.Time) (*domain.DeliveryProof, error) {
	row := map[string]any{"verified_by": verifiedBy, "verified_at": formatTime(at)}
	var p domain.DeliveryProof
	if err := writeOne(ctx, s.from("delivery_proof").Update(row, returnRows, "").Eq("id", proofID), &p); err != nil {
		return nil, wrap("verify delivery proof", err)
	}
	return &p, nil
}

// ListStages returns stages of the given orders, or of every order.
func (s *Store) ListStages(ctx context.Context, orderIDs ...string) ([]domain.WorkflowStage, error) {
	q := s.from("production_workflow").Select("*", "", false)
	if len(orderIDs) > 0 {
		q = q.In("order_id", orderIDs)
	}
	rows, err := selectAll[domain.WorkflowStage](ctx, q)
	return rows, wrap("list stages", err)
}

// GetStage returns one stage of an order.
func (s *Store) GetStage(ctx context.Context, orderID, stage string) (*domain.WorkflowStage, error) {
	st, err := selectOne[domain.WorkflowStage](ctx, s.from("production_workflow").Select("*", "", false).
		Eq("order_id", orderID).Eq("stage", stage))
	return st, wrap("get stage", err)
}

// InitStages inserts stages that are not present yet.
func (s *Store) InitStages(ctx context.Context, stages []domain.WorkflowStage) error {
	if len(stages) == 0 {
		return nil
	}
	ids := make([]string, 0, len(stages))
	for _, st := range stages {
		ids = append(ids, st.OrderID)
	}
	existing, err := s.ListStages(ctx, ids...)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, st := range existing {
		have[st.OrderID+"/"+st.Stage] = true
	}

	rows := make([]map[string]any, 0, len(stages))
	for i := range stages {
		if have[stages[i].OrderID+"/"+stages[i].Stage] {
			continue
		}
		if stages[i].UpdatedAt.IsZero() {
			stages[i].UpdatedAt = s.now()
		}
		row, err := toRow(&stages[i])
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	_, err = selectAll[domain.WorkflowStage](ctx, s.from("production_workflow").
		Insert(rows, false, "", returnRows, ""))
	if err != nil {
		return wrap("init stages", err)
	}
	return nil
}

// SaveStage updates an existing stage row.
func (s *Store) SaveStage(ctx context.Context, st *domain.WorkflowStage) error {
	st.UpdatedAt = s.now()
	row, err := toRow(st, "id", "order_id", "stage")
	if err != nil {
		return err
	}
	for _, k := range []string{"started_at", "completed_at"} {
		if _, ok := row[k]; !ok {
			row[k] = nil
		}
	}
	return wrap("save stage", writeOne(ctx, s.from("production_workflow").Update(row, returnRows, "").
		Eq("order_id", st.OrderID).Eq("stage", st.Stage), st))
}

// AppendHistory records a stage change.
func (s *Store) AppendHistory(ctx context.Context, h *domain.WorkflowHistory) error {
	if h.Timestamp.IsZero() {
		h.Timestamp = s.now()
	}
	row, err := toRow(h)
	if err != nil {
		return err
	}
	return wrap("append history", writeOne(ctx, s.from("production_workflow_history").Insert(row, false, "", returnRows, ""), h))
}

// ListHistory returns an order's stage changes newest first.
func (s *Store) ListHistory(ctx context.Context, orderID string) ([]domain.WorkflowHistory, error) {
	rows, err := selectAll[domain.WorkflowHistory](ctx, s.from("production_workflow_history").Select("*", "", false).
		Eq("order_id", orderID).Order("timestamp", &postgrest.OrderOpts{Ascending: false}))
	if rows == nil && err == nil {
		rows = []domain.WorkflowHistory{}
	}
	return rows, wrap("list history", err)
}
