package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store"
)

const profileColumns = `id, user_id, artist_name, bio, specialties, commission_rate, is_active, created_at, updated_at`

func scanArtistProfile(s rowScanner) (*domain.ArtistProfile, error) {
	var a domain.ArtistProfile
	var specialties, createdAt, updatedAt string
	err := s.Scan(&a.ID, &a.UserID, &a.ArtistName, &a.Bio, &specialties, &a.CommissionRate, &a.IsActive,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(specialties, &a.Specialties); err != nil {
		return nil, err
	}
	if a.Specialties == nil {
		a.Specialties = []string{}
	}
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

// GetArtistProfile returns a profile by its id.
func (db *DB) GetArtistProfile(ctx context.Context, id string) (*domain.ArtistProfile, error) {
	a, err := scanArtistProfile(db.conn.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM artist_profiles WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// GetArtistProfileByUser returns the profile linked to an auth user.
func (db *DB) GetArtistProfileByUser(ctx context.Context, userID string) (*domain.ArtistProfile, error) {
	a, err := scanArtistProfile(db.conn.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM artist_profiles WHERE user_id = ?`, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// ListArtistProfiles returns profiles ordered by id.
func (db *DB) ListArtistProfiles(ctx context.Context, activeOnly bool) ([]domain.ArtistProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM artist_profiles`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id ASC`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list artist profiles: %w", err)
	}
	defer rows.Close()

	var out []domain.ArtistProfile
	for rows.Next() {
		a, err := scanArtistProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artist profile: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// SaveArtistProfile inserts or updates a profile keyed by user id.
func (db *DB) SaveArtistProfile(ctx context.Context, a *domain.ArtistProfile) error {
	now := db.now()
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Specialties == nil {
		a.Specialties = []string{}
	}
	specialties, err := toJSON(a.Specialties)
	if err != nil {
		return err
	}

	_, err = db.conn.ExecContext(ctx, `
	INSERT INTO artist_profiles (`+profileColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		artist_name = excluded.artist_name,
		bio = excluded.bio,
		specialties = excluded.specialties,
		commission_rate = excluded.commission_rate,
		is_active = excluded.is_active,
		updated_at = excluded.updated_at`,
		a.ID, a.UserID, a.ArtistName, a.Bio, specialties, a.CommissionRate, a.IsActive,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save artist profile: %w", err)
	}

	stored, err := db.GetArtistProfileByUser(ctx, a.UserID)
	if err != nil {
		return fmt.Errorf("failed to reload artist profile: %w", err)
	}
	*a = *stored
	return nil
}

const taskColumns = `id, artist_id, order_id, product_id, task_title, task_description, product_name,
	quantity, customer_requirements, priority, status, task_type, order_source, deadline,
	assigned_at, started_at, submitted_at, completed_at, created_at, updated_at`

func scanTask(s rowScanner) (*domain.ArtistTask, error) {
	var t domain.ArtistTask
	var orderID sql.NullString
	var deadline, assignedAt, startedAt, submittedAt, completedAt sql.NullString
	var createdAt, updatedAt string
	err := s.Scan(&t.ID, &t.ArtistID, &orderID, &t.ProductID, &t.TaskTitle, &t.TaskDescription, &t.ProductName,
		&t.Quantity, &t.CustomerRequirements, &t.Priority, &t.Status, &t.TaskType, &t.OrderSource, &deadline,
		&assignedAt, &startedAt, &submittedAt, &completedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.OrderID = orderID.String
	t.Deadline = nullStringToTime(deadline)
	t.AssignedAt = nullStringToTime(assignedAt)
	t.StartedAt = nullStringToTime(startedAt)
	t.SubmittedAt = nullStringToTime(submittedAt)
	t.CompletedAt = nullStringToTime(completedAt)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ListTasks returns matching tasks newest first.
func (db *DB) ListTasks(ctx context.Context, f store.TaskFilter) ([]domain.ArtistTask, error) {
	var conditions []string
	var args []any

	if f.ArtistID != "" {
		conditions = append(conditions, "artist_id = ?")
		args = append(args, f.ArtistID)
	}
	if f.OrderID != "" {
		conditions = append(conditions, "order_id = ?")
		args = append(args, f.OrderID)
	}
	if len(f.Statuses) > 0 {
		clause, a := inClause("status", f.Statuses)
		conditions = append(conditions, clause)
		args = append(args, a...)
	}

	query := `SELECT ` + taskColumns + ` FROM artist_tasks`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []domain.ArtistTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// GetTask returns one task.
func (db *DB) GetTask(ctx context.Context, id string) (*domain.ArtistTask, error) {
	t, err := scanTask(db.conn.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM artist_tasks WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// CreateTask inserts a task, assigning an ID when empty.
func (db *DB) CreateTask(ctx context.Context, t *domain.ArtistTask) error {
	now := db.now()
	if t.ID == "" {
		t.ID = newID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO artist_tasks (`+taskColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ArtistID, nullable(t.OrderID), t.ProductID, t.TaskTitle, t.TaskDescription, t.ProductName,
		t.Quantity, t.CustomerRequirements, t.Priority, t.Status, t.TaskType, t.OrderSource, timeToNullString(t.Deadline),
		timeToNullString(t.AssignedAt), timeToNullString(t.StartedAt), timeToNullString(t.SubmittedAt),
		timeToNullString(t.CompletedAt), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// UpdateTask overwrites the mutable task fields.
func (db *DB) UpdateTask(ctx context.Context, t *domain.ArtistTask) error {
	t.UpdatedAt = db.now()
	res, err := db.conn.ExecContext(ctx, `
	UPDATE artist_tasks SET
		artist_id = ?, status = ?, priority = ?, deadline = ?, assigned_at = ?, started_at = ?,
		submitted_at = ?, completed_at = ?, updated_at = ?
	WHERE id = ?`,
		t.ArtistID, t.Status, t.Priority, timeToNullString(t.Deadline), timeToNullString(t.AssignedAt),
		timeToNullString(t.StartedAt), timeToNullString(t.SubmittedAt), timeToNullString(t.CompletedAt),
		formatTime(t.UpdatedAt), t.ID)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", t.ID, err)
	}
	return requireAffected(res)
}

// DeleteArtistProfile removes a profile and, through the foreign key, its
// tasks.
func (db *DB) DeleteArtistProfile(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM artist_profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete artist profile %s: %w", id, err)
	}
	return requireAffected(res)
}
