package supabase

import (
	"context"
	"strings"

	"github.com/supabase-community/postgrest-go"

	"github.com/yohanns/storefront/internal/domain"
)

// GetSubscriber returns the subscription for email.
func (s *Store) GetSubscriber(ctx context.Context, email string) (*domain.Subscriber, error) {
	sub, err := selectOne[domain.Subscriber](ctx, s.from("newsletter_subscriptions").Select("*", "", false).
		Eq("email", strings.ToLower(email)))
	return sub, wrap("get subscriber", err)
}

// SaveSubscriber inserts a subscription, or updates it when ID is set.
func (s *Store) SaveSubscriber(ctx context.Context, sub *domain.Subscriber) error {
	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = s.now()
	}
	row, err := toRow(sub)
	if err != nil {
		return err
	}
	if _, ok := row["unsubscribed_at"]; !ok {
		row["unsubscribed_at"] = nil
	}
	if sub.ID == "" {
		return wrap("create subscriber", writeOne(ctx, s.from("newsletter_subscriptions").Insert(row, false, "", returnRows, ""), sub))
	}
	delete(row, "id")
	return wrap("update subscriber", writeOne(ctx, s.from("newsletter_subscriptions").Update(row, returnRows, "").Eq("id", sub.ID), sub))
}

// ListSubscribers returns subscriptions newest first.
func (s *Store) ListSubscribers(ctx context.Context, activeOnly bool) ([]domain.Subscriber, error) {
	q := s.from("newsletter_subscriptions").Select("*", "", false)
	if activeOnly {
		q = q.Eq("is_active", "true")
	}
	rows, err := selectAll[domain.Subscriber](ctx, q.Order("subscribed_at", &postgrest.OrderOpts{Ascending: false}))
	if rows == nil && err == nil {
		rows = []domain.Subscriber{}
	}
	return rows, wrap("list subscribers", err)
}
