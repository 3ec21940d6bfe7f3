package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store"
)

const orderColumns = `id, user_id, order_number, order_type, status, shipping_method, pickup_location,
	delivery_address, order_notes, subtotal_amount, shipping_cost, total_amount, total_items,
	order_items, design_files, production_status, created_at, updated_at`

var orderSortColumns = map[string]bool{
	"created_at":   true,
	"total_amount": true,
	"total_items":  true,
}

func scanOrder(s rowScanner) (*domain.Order, error) {
	var o domain.Order
	var address sql.NullString
	var items, files, createdAt, updatedAt string
	err := s.Scan(&o.ID, &o.UserID, &o.OrderNumber, &o.OrderType, &o.Status, &o.ShippingMethod, &o.PickupLocation,
		&address, &o.OrderNotes, &o.SubtotalAmount, &o.ShippingCost, &o.TotalAmount, &o.TotalItems,
		&items, &files, &o.ProductionStatus, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if address.Valid {
		if err := fromJSON(address.String, &o.DeliveryAddress); err != nil {
			return nil, err
		}
	}
	if err := fromJSON(items, &o.Items); err != nil {
		return nil, err
	}
	if o.Items == nil {
		o.Items = []domain.OrderItem{}
	}
	if err := fromJSON(files, &o.DesignFiles); err != nil {
		return nil, err
	}
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return &o, nil
}

// ListOrders returns one page of matching orders and the total match count.
func (db *DB) ListOrders(ctx context.Context, f store.OrderFilter) ([]domain.Order, int, error) {
	var conditions []string
	var args []any

	if len(f.IDs) > 0 {
		clause, a := inClause("id", f.IDs)
		conditions = append(conditions, clause)
		args = append(args, a...)
	}
	if f.OrderType != "" {
		conditions = append(conditions, "order_type = ?")
		args = append(args, f.OrderType)
	}
	if len(f.Statuses) > 0 {
		clause, a := inClause("status", f.Statuses)
		conditions = append(conditions, clause)
		args = append(args, a...)
	}
	if len(f.UserIDs) > 0 {
		clause, a := inClause("user_id", f.UserIDs)
		conditions = append(conditions, clause)
		args = append(args, a...)
	}
	if f.PickupBranch != "" {
		conditions = append(conditions, "pickup_location = ?")
		args = append(args, f.PickupBranch)
	}
	if f.Since != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, formatTime(*f.Since))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	order := "created_at DESC"
	if f.Sort != nil && orderSortColumns[f.Sort.Column] {
		dir := "DESC"
		if f.Sort.Ascending {
			dir = "ASC"
		}
		order = f.Sort.Column + " " + dir + ", created_at DESC"
	}

	query := `SELECT ` + orderColumns + ` FROM orders` + where + ` ORDER BY ` + order
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating orders: %w", err)
	}
	return out, total, nil
}

// GetOrder returns one order.
func (db *DB) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(db.conn.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

// CreateOrder inserts an order, assigning an ID when empty.
func (db *DB) CreateOrder(ctx context.Context, o *domain.Order) error {
	if o.ID == "" {
		o.ID = newID()
	}
	o.SetDefaults(db.now())

	var address sql.NullString
	if o.DeliveryAddress != nil {
		s, err := toJSON(o.DeliveryAddress)
		if err != nil {
			return err
		}
		address = sql.NullString{String: s, Valid: true}
	}
	if o.Items == nil {
		o.Items = []domain.OrderItem{}
	}
	items, err := toJSON(o.Items)
	if err != nil {
		return err
	}
	files, err := designFilesJSON(o.DesignFiles)
	if err != nil {
		return err
	}

	_, err = db.conn.ExecContext(ctx, `
	INSERT INTO orders (`+orderColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.OrderNumber, o.OrderType, o.Status, o.ShippingMethod, o.PickupLocation,
		address, o.OrderNotes, o.SubtotalAmount, o.ShippingCost, o.TotalAmount, o.TotalItems,
		items, files, o.ProductionStatus, formatTime(o.CreatedAt), formatTime(o.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// UpdateOrderStatus sets the status and returns the updated order.
func (db *DB) UpdateOrderStatus(ctx context.Context, id, status string) (*domain.Order, error) {
	res, err := db.conn.ExecContext(ctx, `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(db.now()), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update order status %s: %w", id, err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return db.GetOrder(ctx, id)
}

// SetProductionStatus stores the derived production status of an order.
func (db *DB) SetProductionStatus(ctx context.Context, id, status string) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE orders SET production_status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(db.now()), id)
	if err != nil {
		return fmt.Errorf("failed to set production status %s: %w", id, err)
	}
	return requireAffected(res)
}

func designFilesJSON(files []domain.DesignFile) (string, error) {
	if files == nil {
		files = []domain.DesignFile{}
	}
	return toJSON(files)
}

// SetDesignFiles replaces the design files attached to an order.
func (db *DB) SetDesignFiles(ctx context.Context, id string, files []domain.DesignFile) (*domain.Order, error) {
	encoded, err := designFilesJSON(files)
	if err != nil {
		return nil, err
	}
	res, err := db.conn.ExecContext(ctx, `UPDATE orders SET design_files = ?, updated_at = ? WHERE id = ?`,
		encoded, formatTime(db.now()), id)
	if err != nil {
		return nil, fmt.Errorf("failed to set design files %s: %w", id, err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return db.GetOrder(ctx, id)
}

// ListTracking returns tracking events oldest first.
func (db *DB) ListTracking(ctx context.Context, orderID string) ([]domain.TrackingEvent, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, order_id, status, location, description, metadata, timestamp
	FROM order_tracking WHERE order_id = ? ORDER BY timestamp ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order tracking: %w", err)
	}
	defer rows.Close()

	out := []domain.TrackingEvent{}
	for rows.Next() {
		var e domain.TrackingEvent
		var metadata, ts string
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Status, &e.Location, &e.Description, &metadata, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan tracking event: %w", err)
		}
		if err := fromJSON(metadata, &e.Metadata); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// AddTracking inserts a tracking event.
func (db *DB) AddTracking(ctx context.Context, e *domain.TrackingEvent) error {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = db.now()
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	metadata, err := toJSON(e.Metadata)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, `
	INSERT INTO order_tracking (id, order_id, status, location, description, metadata, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OrderID, e.Status, e.Location, e.Description, metadata, formatTime(e.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to insert tracking event: %w", err)
	}
	return nil
}

const reviewColumns = `id, order_id, user_id, rating, comment, created_at, updated_at`

func scanReview(s rowScanner) (*domain.Review, error) {
	var r domain.Review
	var createdAt, updatedAt string
	if err := s.Scan(&r.ID, &r.OrderID, &r.UserID, &r.Rating, &r.Comment, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

// GetReview returns the review left on an order.
func (db *DB) GetReview(ctx context.Context, orderID string) (*domain.Review, error) {
	r, err := scanReview(db.conn.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM order_reviews WHERE order_id = ? ORDER BY created_at ASC LIMIT 1`, orderID))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

// UpsertReview inserts a review or replaces rating and comment of the
// existing review by the same user.
func (db *DB) UpsertReview(ctx context.Context, r *domain.Review) error {
	now := db.now()
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO order_reviews (`+reviewColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(order_id, user_id) DO UPDATE SET
		rating = excluded.rating,
		comment = excluded.comment,
		updated_at = excluded.updated_at`,
		r.ID, r.OrderID, r.UserID, r.Rating, r.Comment, formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert review: %w", err)
	}

	stored, err := scanReview(db.conn.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM order_reviews WHERE order_id = ? AND user_id = ?`, r.OrderID, r.UserID))
	if err != nil {
		return fmt.Errorf("failed to reload review: %w", err)
	}
	*r = *stored
	return nil
}

// ListReviews returns reviews for orderIDs, or all reviews when empty.
func (db *DB) ListReviews(ctx context.Context, orderIDs []string) ([]domain.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM order_reviews`
	var args []any
	if len(orderIDs) > 0 {
		clause, a := inClause("order_id", orderIDs)
		query += " WHERE " + clause
		args = a
	}
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

const proofColumns = `id, order_id, delivery_person_name, delivery_person_contact, proof_images,
	delivery_notes, verified_by, verified_at, created_at`

func scanProof(s rowScanner) (*domain.DeliveryProof, error) {
	var p domain.DeliveryProof
	var images, createdAt string
	var verifiedAt sql.NullString
	err := s.Scan(&p.ID, &p.OrderID, &p.DeliveryPersonName, &p.DeliveryPersonContact, &images,
		&p.DeliveryNotes, &p.VerifiedBy, &verifiedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(images, &p.ProofImages); err != nil {
		return nil, err
	}
	if p.ProofImages == nil {
		p.ProofImages = []string{}
	}
	p.VerifiedAt = nullStringToTime(verifiedAt)
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// GetDeliveryProof returns the first proof recorded for an order.
func (db *DB) GetDeliveryProof(ctx context.Context, orderID string) (*domain.DeliveryProof, error) {
	p, err := scanProof(db.conn.QueryRowContext(ctx,
		`SELECT `+proofColumns+` FROM delivery_proof WHERE order_id = ? ORDER BY created_at ASC LIMIT 1`, orderID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// AddDeliveryProof inserts a delivery proof.
func (db *DB) AddDeliveryProof(ctx context.Context, p *domain.DeliveryProof) error {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = db.now()
	}
	if p.ProofImages == nil {
		p.ProofImages = []string{}
	}
	images, err := toJSON(p.ProofImages)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, `
	INSERT INTO delivery_proof (`+proofColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrderID, p.DeliveryPersonName, p.DeliveryPersonContact, images,
		p.DeliveryNotes, p.VerifiedBy, timeToNullString(p.VerifiedAt), formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert delivery proof: %w", err)
	}
	return nil
}

// VerifyDeliveryProof stamps the verifier and time on a proof.
func (db *DB) VerifyDeliveryProof(ctx context.Context, proofID, verifiedBy string, at time.Time) (*domain.DeliveryProof, error) {
	res, err := db.conn.ExecContext(ctx, `UPDATE delivery_proof SET verified_by = ?, verified_at = ? WHERE id = ?`,
		verifiedBy, formatTime(at), proofID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify delivery proof %s: %w", proofID, err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	p, err := scanProof(db.conn.QueryRowContext(ctx, `SELECT `+proofColumns+` FROM delivery_proof WHERE id = ?`, proofID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}
