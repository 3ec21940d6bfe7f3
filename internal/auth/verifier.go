package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"

	"github.com/yohanns/storefront/internal/apperr"
)

var (
	errTokenRequired = apperr.Unauthorized("Access token required")
	errAuthRequired  = apperr.Unauthorized("Authentication required")
	errSession       = apperr.Unauthorized("Session expired. Please refresh your browser and log in again.")
	errInvalidToken  = apperr.Unauthorized("Invalid or expired token. Please refresh your session.")
	errBranchDenied  = apperr.Forbidden("Access denied to this branch")
)

// Verifier turns an access token into a Principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// JWTVerifier validates Supabase access tokens locally with the project's
// HS256 JWT secret.
type JWTVerifier struct {
	secret []byte
	now    func() time.Time
}

// NewJWTVerifier creates a verifier for secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), now: time.Now}
}

type supabaseClaims struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// Verify checks signature, expiry and subject of token.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, errTokenRequired
	}
	var claims supabaseClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Wrap(apperr.KindUnauthorized, err, errSession.Message)
		}
		return nil, apperr.Wrap(apperr.KindUnauthorized, err, errInvalidToken.Message)
	}
	if claims.Subject == "" {
		return nil, apperr.Unauthorized("User not found")
	}
	return NewPrincipal(claims.Subject, claims.Email, claims.UserMetadata), nil
}

// RemoteVerifier validates tokens by asking Supabase Auth for the user.
type RemoteVerifier struct {
	client gotrue.Client
}

// NewRemoteVerifier creates a verifier backed by a gotrue client.
func NewRemoteVerifier(client gotrue.Client) *RemoteVerifier {
	return &RemoteVerifier{client: client}
}

// Verify resolves the token's user through the Auth API.
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, errTokenRequired
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := v.client.WithToken(token).GetUser()
	if err != nil {
		return nil, classifyAuthError(err)
	}
	if resp == nil || resp.ID == uuid.Nil {
		return nil, apperr.Unauthorized("User not found")
	}
	return NewPrincipal(resp.ID.String(), resp.Email, resp.UserMetadata), nil
}

// classifyAuthError maps Supabase Auth failures to client messages. A
// tenant or missing-user error means the session belongs to another
// project or was revoked.
func classifyAuthError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "tenant") || strings.Contains(msg, "user not found") {
		return apperr.Wrap(apperr.KindUnauthorized, err, errSession.Message)
	}
	return apperr.Wrap(apperr.KindUnauthorized, err, errInvalidToken.Message)
}

// UserInfo is the subset of an auth user used for display names.
type UserInfo struct {
	ID        string
	Email     string
	Metadata  map[string]any
	CreatedAt time.Time
}

// Directory looks up auth users by id.
type Directory interface {
	LookupUser(ctx context.Context, id string) (*UserInfo, error)
}

// SupabaseDirectory reads users through the Auth Admin API. The client
// must carry the service-role key.
type SupabaseDirectory struct {
	client gotrue.Client
}

// NewSupabaseDirectory creates a directory backed by a gotrue client.
func NewSupabaseDirectory(client gotrue.Client) *SupabaseDirectory {
	return &SupabaseDirectory{client: client}
}

// LookupUser returns the auth user with id.
func (d *SupabaseDirectory) LookupUser(ctx context.Context, id string) (*UserInfo, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.NotFound("User", id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := d.client.AdminGetUser(types.AdminGetUserRequest{UserID: uid})
	if err != nil {
		return nil, fmt.Errorf("admin get user %s: %w", id, err)
	}
	return userInfo(resp.User), nil
}

// MapDirectory is an in-memory Directory, used when no Supabase project is
// configured and in tests.
type MapDirectory map[string]UserInfo

// LookupUser returns the user with id.
func (d MapDirectory) LookupUser(_ context.Context, id string) (*UserInfo, error) {
	u, ok := d[id]
	if !ok {
		return nil, apperr.NotFound("User", id)
	}
	return &u, nil
}
