package sqlite

import (
	"context"
	"fmt"

	"github.com/yohanns/storefront/internal/domain"
)

const addressColumns = `id, user_id, full_name, phone, street_address, barangay, city, province, postal_code,
	is_default, created_at, updated_at`

func scanAddress(s rowScanner) (*domain.Address, error) {
	var a domain.Address
	var createdAt, updatedAt string
	err := s.Scan(&a.ID, &a.UserID, &a.FullName, &a.Phone, &a.StreetAddress, &a.Barangay, &a.City, &a.Province,
		&a.PostalCode, &a.IsDefault, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

// ListAddresses returns the default address first, then newest first.
func (db *DB) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT `+addressColumns+` FROM user_addresses
	WHERE user_id = ? ORDER BY is_default DESC, created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	defer rows.Close()

	out := []domain.Address{}
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// CreateAddress inserts an address.
func (db *DB) CreateAddress(ctx context.Context, a *domain.Address) error {
	now := db.now()
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO user_addresses (`+addressColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.FullName, a.Phone, a.StreetAddress, a.Barangay, a.City, a.Province, a.PostalCode,
		a.IsDefault, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert address: %w", err)
	}
	return nil
}

// UpdateAddress overwrites an address owned by a.UserID.
func (db *DB) UpdateAddress(ctx context.Context, a *domain.Address) error {
	a.UpdatedAt = db.now()
	res, err := db.conn.ExecContext(ctx, `
	UPDATE user_addresses SET
		full_name = ?, phone = ?, street_address = ?, barangay = ?, city = ?, province = ?,
		postal_code = ?, is_default = ?, updated_at = ?
	WHERE id = ? AND user_id = ?`,
		a.FullName, a.Phone, a.StreetAddress, a.Barangay, a.City, a.Province,
		a.PostalCode, a.IsDefault, formatTime(a.UpdatedAt), a.ID, a.UserID)
	if err != nil {
		return fmt.Errorf("failed to update address %s: %w", a.ID, err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	stored, err := scanAddress(db.conn.QueryRowContext(ctx, `SELECT `+addressColumns+` FROM user_addresses WHERE id = ?`, a.ID))
	if err != nil {
		return notFound(err)
	}
	*a = *stored
	return nil
}

// DeleteAddress removes an address owned by userID.
func (db *DB) DeleteAddress(ctx context.Context, userID, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM user_addresses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete address %s: %w", id, err)
	}
	return requireAffected(res)
}

// ClearDefaultAddress unsets the default flag on all of a user's addresses.
func (db *DB) ClearDefaultAddress(ctx context.Context, userID string) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE user_addresses SET is_default = 0 WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to clear default address: %w", err)
	}
	return nil
}

// GetUserProfiles returns existing profiles for ids keyed by user id.
func (db *DB) GetUserProfiles(ctx context.Context, ids []string) (map[string]domain.UserProfile, error) {
	out := make(map[string]domain.UserProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	clause, args := inClause("user_id", ids)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, full_name, phone, avatar_url, updated_at FROM user_profiles WHERE `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.UserProfile
		var updatedAt string
		if err := rows.Scan(&p.UserID, &p.FullName, &p.Phone, &p.AvatarURL, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user profile: %w", err)
		}
		p.UpdatedAt = parseTime(updatedAt)
		out[p.UserID] = p
	}
	return out, rows.Err()
}

// UpsertUserProfile inserts or replaces a profile.
func (db *DB) UpsertUserProfile(ctx context.Context, p *domain.UserProfile) error {
	p.UpdatedAt = db.now()
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO user_profiles (user_id, full_name, phone, avatar_url, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		full_name = excluded.full_name,
		phone = excluded.phone,
		avatar_url = excluded.avatar_url,
		updated_at = excluded.updated_at`,
		p.UserID, p.FullName, p.Phone, p.AvatarURL, formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert user profile: %w", err)
	}
	return nil
}

// DeleteUserProfile removes a profile and the user's saved addresses.
// Missing rows are not an error.
func (db *DB) DeleteUserProfile(ctx context.Context, userID string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM user_addresses WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete addresses of %s: %w", userID, err)
	}
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM user_profiles WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete user profile %s: %w", userID, err)
	}
	return nil
}
