// Package newsletter manages mailing list subscriptions.
package newsletter

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store"
)

// SourceWebsite marks subscriptions made from the storefront footer.
const SourceWebsite = "website"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Outcome describes what a subscribe or unsubscribe call did.
type Outcome struct {
	Message           string             `json:"message"`
	AlreadySubscribed bool               `json:"alreadySubscribed,omitempty"`
	Subscription      *domain.Subscriber `json:"subscription,omitempty"`
}

// Service implements newsletter subscriptions.
type Service struct {
	store store.NewsletterStore
	log   *zap.Logger
	now   func() time.Time
}

// NewService creates a newsletter service.
func NewService(s store.NewsletterStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: s, log: log, now: time.Now}
}

func normalize(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperr.Invalid("Email address is required")
	}
	return email, nil
}

// Subscribe adds email to the list, or reactivates it. userID is recorded
// when the subscriber is signed in.
func (s *Service) Subscribe(ctx context.Context, email, userID string) (*Outcome, error) {
	email, err := normalize(email)
	if err != nil {
		return nil, err
	}
	if !emailPattern.MatchString(email) {
		return nil, apperr.Invalid("Invalid email address format")
	}

	sub, err := s.store.GetSubscriber(ctx, email)
	switch {
	case err == nil && sub.IsActive:
		return &Outcome{Message: "You are already subscribed to our newsletter!", AlreadySubscribed: true}, nil
	case err == nil:
		sub.IsActive = true
		sub.SubscribedAt = s.now().UTC()
		sub.UnsubscribedAt = nil
		sub.UserID = userID
		if err := s.store.SaveSubscriber(ctx, sub); err != nil {
			return nil, apperr.Internal(err, "Failed to subscribe. Please try again.")
		}
		s.log.Info("newsletter resubscribed", zap.String("subscriber", sub.ID))
		return &Outcome{Message: "Welcome back! You have been re-subscribed to our newsletter."}, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, apperr.Internal(err, "Failed to subscribe. Please try again.")
	}

	sub = &domain.Subscriber{
		Email:        email,
		UserID:       userID,
		IsActive:     true,
		Source:       SourceWebsite,
		SubscribedAt: s.now().UTC(),
	}
	if err := s.store.SaveSubscriber(ctx, sub); err != nil {
		return nil, apperr.Internal(err, "Failed to subscribe. Please try again.")
	}
	s.log.Info("newsletter subscribed", zap.String("subscriber", sub.ID))
	return &Outcome{Message: "Successfully subscribed to our newsletter!", Subscription: sub}, nil
}

// Unsubscribe deactivates email. Unknown addresses are not an error.
func (s *Service) Unsubscribe(ctx context.Context, email string) (*Outcome, error) {
	email, err := normalize(email)
	if err != nil {
		return nil, err
	}
	sub, err := s.store.GetSubscriber(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return &Outcome{Message: "Email not found in our subscription list."}, nil
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to unsubscribe. Please try again.")
	}
	if sub.IsActive {
		now := s.now().UTC()
		sub.IsActive = false
		sub.UnsubscribedAt = &now
		if err := s.store.SaveSubscriber(ctx, sub); err != nil {
			return nil, apperr.Internal(err, "Failed to unsubscribe. Please try again.")
		}
		s.log.Info("newsletter unsubscribed", zap.String("subscriber", sub.ID))
	}
	return &Outcome{Message: "You have been successfully unsubscribed from our newsletter."}, nil
}

// Subscribers returns the active subscriptions, newest first.
func (s *Service) Subscribers(ctx context.Context) ([]domain.Subscriber, error) {
	subs, err := s.store.ListSubscribers(ctx, true)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to fetch subscribers")
	}
	return subs, nil
}
