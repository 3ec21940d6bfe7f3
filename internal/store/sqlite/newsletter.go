package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/yohanns/storefront/internal/domain"
)

const subscriberColumns = `id, email, user_id, is_active, source, subscribed_at, unsubscribed_at`

func scanSubscriber(s rowScanner) (*domain.Subscriber, error) {
	var sub domain.Subscriber
	var subscribedAt string
	var unsubscribedAt sql.NullString
	if err := s.Scan(&sub.ID, &sub.Email, &sub.UserID, &sub.IsActive, &sub.Source, &subscribedAt, &unsubscribedAt); err != nil {
		return nil, err
	}
	sub.SubscribedAt = parseTime(subscribedAt)
	sub.UnsubscribedAt = nullStringToTime(unsubscribedAt)
	return &sub, nil
}

// GetSubscriber returns the subscription for email.
func (db *DB) GetSubscriber(ctx context.Context, email string) (*domain.Subscriber, error) {
	sub, err := scanSubscriber(db.conn.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM newsletter_subscriptions WHERE email = ?`, strings.ToLower(email)))
	if err != nil {
		return nil, notFound(err)
	}
	return sub, nil
}

// SaveSubscriber inserts a subscription, or updates it when ID is set.
func (db *DB) SaveSubscriber(ctx context.Context, sub *domain.Subscriber) error {
	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = db.now()
	}
	if sub.ID == "" {
		sub.ID = newID()
		_, err := db.conn.ExecContext(ctx, `
		INSERT INTO newsletter_subscriptions (`+subscriberColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sub.ID, sub.Email, sub.UserID, sub.IsActive, sub.Source, formatTime(sub.SubscribedAt),
			timeToNullString(sub.UnsubscribedAt))
		if err != nil {
			return fmt.Errorf("failed to insert subscriber: %w", err)
		}
		return nil
	}

	res, err := db.conn.ExecContext(ctx, `
	UPDATE newsletter_subscriptions SET
		user_id = ?, is_active = ?, source = ?, subscribed_at = ?, unsubscribed_at = ?
	WHERE id = ?`,
		sub.UserID, sub.IsActive, sub.Source, formatTime(sub.SubscribedAt), timeToNullString(sub.UnsubscribedAt), sub.ID)
	if err != nil {
		return fmt.Errorf("failed to update subscriber %s: %w", sub.ID, err)
	}
	return requireAffected(res)
}

// ListSubscribers returns subscriptions newest first.
func (db *DB) ListSubscribers(ctx context.Context, activeOnly bool) ([]domain.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM newsletter_subscriptions`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY subscribed_at DESC`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	out := []domain.Subscriber{}
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}
