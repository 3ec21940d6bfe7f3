package newsletter

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/store/sqlite"
)

func newService(t *testing.T) (*Service, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "newsletter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	svc := NewService(db, nil)
	clock := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return svc, db
}

func TestSubscribe_Validation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, "  ", "")
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
	assert.Equal(t, "Email address is required", err.Error())

	_, err = svc.Subscribe(ctx, "not-an-email", "")
	assert.Equal(t, "Invalid email address format", err.Error())
}

func TestSubscribeLifecycle(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	out, err := svc.Subscribe(ctx, " Ana@Example.com ", "user-1")
	require.NoError(t, err)
	require.NotNil(t, out.Subscription)
	assert.Equal(t, "ana@example.com", out.Subscription.Email)
	assert.Equal(t, SourceWebsite, out.Subscription.Source)

	out, err = svc.Subscribe(ctx, "ana@example.com", "")
	require.NoError(t, err)
	assert.True(t, out.AlreadySubscribed)
	assert.Equal(t, "You are already subscribed to our newsletter!", out.Message)

	out, err = svc.Unsubscribe(ctx, "ANA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "You have been successfully unsubscribed from our newsletter.", out.Message)
	sub, err := db.GetSubscriber(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.False(t, sub.IsActive)
	require.NotNil(t, sub.UnsubscribedAt)

	active, err := svc.Subscribers(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	out, err = svc.Subscribe(ctx, "ana@example.com", "user-2")
	require.NoError(t, err)
	assert.Equal(t, "Welcome back! You have been re-subscribed to our newsletter.", out.Message)
	sub, err = db.GetSubscriber(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.True(t, sub.IsActive)
	assert.Nil(t, sub.UnsubscribedAt)
	assert.Equal(t, "user-2", sub.UserID)

	active, err = svc.Subscribers(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestUnsubscribe_Unknown(t *testing.T) {
	svc, _ := newService(t)

	out, err := svc.Unsubscribe(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Email not found in our subscription list.", out.Message)

	_, err = svc.Unsubscribe(context.Background(), "")
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}
