package account

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store/sqlite"
)

func newService(t *testing.T) (*Service, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "account.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(db, nil), db
}

func boolPtr(b bool) *bool { return &b }

func TestDefault_NoAddress(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Default(context.Background(), "user-1")
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindNotFound, e.Kind)
	assert.Equal(t, "No address found", e.Message)
}

func TestSave(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, "user-1", AddressInput{FullName: "Ana Cruz"})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	a, err := svc.Save(ctx, "user-1", AddressInput{FullName: "Ana Cruz", City: "Batangas City"})
	require.NoError(t, err)
	assert.True(t, a.IsDefault)

	// A second save edits the same address.
	b, err := svc.Save(ctx, "user-1", AddressInput{FullName: "Ana Cruz", City: "Lipa", Barangay: "Sabang"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	list, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Lipa", list[0].City)
}

func TestUpdateDeleteSetDefault(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	home := &domain.Address{UserID: "user-1", FullName: "Ana", City: "Lipa", IsDefault: true,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, db.CreateAddress(ctx, home))
	work := &domain.Address{UserID: "user-1", FullName: "Ana", City: "Batangas City",
		CreatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, db.CreateAddress(ctx, work))
	foreign := &domain.Address{UserID: "user-2", FullName: "Ben", City: "Tanauan"}
	require.NoError(t, db.CreateAddress(ctx, foreign))

	def, err := svc.Default(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, home.ID, def.ID)

	updated, err := svc.Update(ctx, "user-1", work.ID, AddressInput{FullName: "Ana Cruz", City: "Batangas City", PostalCode: "4200"})
	require.NoError(t, err)
	assert.Equal(t, "4200", updated.PostalCode)
	assert.False(t, updated.IsDefault)

	_, err = svc.Update(ctx, "user-1", foreign.ID, AddressInput{FullName: "X", City: "Y"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.SetDefault(ctx, "user-1", work.ID)
	require.NoError(t, err)
	list, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, work.ID, list[0].ID)
	assert.True(t, list[0].IsDefault)
	assert.False(t, list[1].IsDefault)

	_, err = svc.Update(ctx, "user-1", home.ID, AddressInput{FullName: "Ana", City: "Lipa", IsDefault: boolPtr(false)})
	require.NoError(t, err)

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(svc.Delete(ctx, "user-1", foreign.ID)))
	require.NoError(t, svc.Delete(ctx, "user-1", home.ID))
	list, err = svc.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
