package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supabase-community/gotrue-go"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/domain"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTVerifier(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	v := NewJWTVerifier(testSecret)
	v.now = func() time.Time { return now }
	exp := now.Add(time.Hour).Unix()

	tests := []struct {
		name     string
		token    func() string
		wantRole domain.Role
		wantBr   *int64
		errMsg   string
	}{
		{
			name: "admin with numeric string branch",
			token: func() string {
				return signToken(t, testSecret, jwt.MapClaims{
					"sub": "u-1", "email": "a@x.ph", "exp": exp,
					"user_metadata": map[string]any{"role": "Admin", "branch_id": "3"},
				})
			},
			wantRole: domain.RoleAdmin,
			wantBr:   ptr(int64(3)),
		},
		{
			name: "no metadata defaults to customer",
			token: func() string {
				return signToken(t, testSecret, jwt.MapClaims{"sub": "u-2", "exp": exp})
			},
			wantRole: domain.RoleCustomer,
		},
		{
			name:   "empty token",
			token:  func() string { return "" },
			errMsg: "Access token required",
		},
		{
			name: "wrong secret",
			token: func() string {
				return signToken(t, "another-secret-another-secret-another", jwt.MapClaims{"sub": "u-3", "exp": exp})
			},
			errMsg: "Invalid or expired token. Please refresh your session.",
		},
		{
			name: "expired",
			token: func() string {
				return signToken(t, testSecret, jwt.MapClaims{"sub": "u-4", "exp": now.Add(-time.Minute).Unix()})
			},
			errMsg: "Session expired. Please refresh your browser and log in again.",
		},
		{
			name: "missing exp",
			token: func() string {
				return signToken(t, testSecret, jwt.MapClaims{"sub": "u-5"})
			},
			errMsg: "Invalid or expired token. Please refresh your session.",
		},
		{
			name: "missing subject",
			token: func() string {
				return signToken(t, testSecret, jwt.MapClaims{"exp": exp})
			},
			errMsg: "User not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := v.Verify(context.Background(), tt.token())
			if tt.errMsg != "" {
				require.Error(t, err)
				e, ok := apperr.As(err)
				require.True(t, ok)
				assert.Equal(t, apperr.KindUnauthorized, e.Kind)
				assert.Equal(t, tt.errMsg, e.Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, p.Role)
			assert.Equal(t, tt.wantBr, p.BranchID)
		})
	}
}

func TestParseBranchID(t *testing.T) {
	tests := []struct {
		in   any
		want *int64
	}{
		{float64(2), ptr(int64(2))},
		{"7", ptr(int64(7))},
		{" 8 ", ptr(int64(8))},
		{"", nil},
		{"main", nil},
		{nil, nil},
		{true, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseBranchID(tt.in), "ParseBranchID(%v)", tt.in)
	}
}

func TestBranchAccess(t *testing.T) {
	owner := &Principal{ID: "o", Role: domain.RoleOwner}
	admin := &Principal{ID: "a", Role: domain.RoleAdmin, BranchID: ptr(int64(1))}
	loose := &Principal{ID: "l", Role: domain.RoleAdmin}

	assert.NoError(t, BranchAccess(owner, 9))
	assert.NoError(t, BranchAccess(admin, 1))
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(BranchAccess(admin, 2)))
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(BranchAccess(loose, 1)))
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(BranchAccess(nil, 1)))
}

func TestClassifyAuthError(t *testing.T) {
	e, _ := apperr.As(classifyAuthError(errors.New("response status code 403: invalid tenant")))
	assert.Equal(t, "Session expired. Please refresh your browser and log in again.", e.Message)
	e, _ = apperr.As(classifyAuthError(errors.New("connection refused")))
	assert.Equal(t, "Invalid or expired token. Please refresh your session.", e.Message)
}

func TestMiddleware(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	writeErr := func(w http.ResponseWriter, r *http.Request, err error) {
		e, _ := apperr.As(err)
		http.Error(w, e.Message, apperr.HTTPStatus(e.Kind))
	}
	m := NewMiddleware(v, writeErr, nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := FromContext(r.Context())
		w.Write([]byte(p.ID))
	})
	exp := time.Now().Add(time.Hour).Unix()
	customer := signToken(t, testSecret, jwt.MapClaims{"sub": "c-1", "exp": exp})
	owner := signToken(t, testSecret, jwt.MapClaims{
		"sub": "o-1", "exp": exp, "user_metadata": map[string]any{"role": "owner"},
	})

	tests := []struct {
		name    string
		handler http.Handler
		token   string
		code    int
		body    string
	}{
		{"no token", m.Authenticate(ok), "", http.StatusUnauthorized, "Access token required"},
		{"customer", m.Authenticate(ok), customer, http.StatusOK, "c-1"},
		{"customer on staff route", m.Authenticate(m.RequireAdminOrOwner(ok)), customer, http.StatusForbidden, "Admin or owner access required"},
		{"owner on owner route", m.Authenticate(m.RequireOwner(ok)), owner, http.StatusOK, "o-1"},
		{"role without authenticate", m.RequireRole(domain.RoleArtist)(ok), customer, http.StatusUnauthorized, "Authentication required"},
		{"wrong role", m.Authenticate(m.RequireRole(domain.RoleArtist)(ok)), owner, http.StatusForbidden, "Insufficient permissions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestMapDirectory(t *testing.T) {
	d := MapDirectory{"u-1": {ID: "u-1", Email: "u@x.ph"}}
	u, err := d.LookupUser(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "u@x.ph", u.Email)
	_, err = d.LookupUser(context.Background(), "nope")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestMapDirectory_Admin(t *testing.T) {
	ctx := context.Background()
	d := MapDirectory{}
	u, err := d.CreateUser(ctx, NewUser{Email: "a@x.ph", Password: "secret1", Metadata: map[string]any{"role": "admin"}})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)

	_, err = d.CreateUser(ctx, NewUser{Email: "A@X.PH"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	require.NoError(t, d.UpdateUserEmail(ctx, u.ID, "b@x.ph"))
	users, err := d.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "b@x.ph", users[0].Email)

	require.NoError(t, d.DeleteUser(ctx, u.ID))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(d.DeleteUser(ctx, u.ID)))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(d.UpdateUserEmail(ctx, u.ID, "c@x.ph")))
}

func TestSupabaseDirectory_Admin(t *testing.T) {
	const id = "7b0e8a8e-3f57-4f8e-9d59-2a4f1c1d2e3f"
	var deleted, updated string
	var created map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/admin/users":
			fmt.Fprintf(w, `{"users":[{"id":%q,"email":"owner@x.ph","user_metadata":{"role":"owner"},"created_at":"2024-01-02T03:04:05Z"}]}`, id)
		case r.Method == http.MethodPost && r.URL.Path == "/admin/users":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			fmt.Fprintf(w, `{"id":%q,"email":"new@x.ph","user_metadata":{"role":"admin"}}`, id)
		case r.Method == http.MethodPut && r.URL.Path == "/admin/users/"+id:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			updated, _ = body["email"].(string)
			fmt.Fprintf(w, `{"id":%q}`, id)
		case r.Method == http.MethodDelete && r.URL.Path == "/admin/users/"+id:
			deleted = id
			w.Write([]byte(`{}`))
		default:
			http.Error(w, `{"msg":"unexpected"}`, http.StatusTeapot)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	d := NewSupabaseDirectory(gotrue.New("project", "service-key").WithCustomGoTrueURL(srv.URL))

	users, err := d.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "owner", users[0].Metadata["role"])
	assert.Equal(t, 2024, users[0].CreatedAt.Year())

	u, err := d.CreateUser(ctx, NewUser{Email: "new@x.ph", Password: "secret1", Metadata: map[string]any{"role": "admin"}})
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "secret1", created["password"])
	assert.Equal(t, true, created["email_confirm"])

	require.NoError(t, d.UpdateUserEmail(ctx, id, "renamed@x.ph"))
	assert.Equal(t, "renamed@x.ph", updated)
	require.NoError(t, d.DeleteUser(ctx, id))
	assert.Equal(t, id, deleted)

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(d.DeleteUser(ctx, "not-a-uuid")))
}

func ptr[T any](v T) *T { return &v }
