// Package auth authenticates API callers holding Supabase access tokens.
//
// A Verifier turns a bearer token into a Principal. JWTVerifier checks the
// token signature locally with the project's JWT secret; RemoteVerifier asks
// Supabase Auth. The HTTP middleware stores the Principal in the request
// context for handlers and services.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/yohanns/storefront/internal/domain"
)

// Principal is the authenticated caller.
type Principal struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	BranchID  *int64      `json:"branch_id"`
	FirstName string      `json:"first_name,omitempty"`
	LastName  string      `json:"last_name,omitempty"`
}

// Is reports whether the principal has one of roles.
func (p *Principal) Is(roles ...domain.Role) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// IsStaff reports whether the principal is an admin or owner.
func (p *Principal) IsStaff() bool {
	return p.Is(domain.RoleAdmin, domain.RoleOwner)
}

// NewPrincipal builds a principal from an auth user's id, email and
// user_metadata.
func NewPrincipal(id, email string, metadata map[string]any) *Principal {
	p := &Principal{ID: id, Email: email, Role: domain.RoleCustomer}
	if metadata == nil {
		return p
	}
	if role, ok := metadata["role"].(string); ok {
		p.Role = domain.ParseRole(role)
	}
	p.BranchID = ParseBranchID(metadata["branch_id"])
	p.FirstName, _ = metadata["first_name"].(string)
	p.LastName, _ = metadata["last_name"].(string)
	return p
}

// ParseBranchID accepts a JSON number or a numeric string. Anything else,
// including blank strings, yields nil.
func ParseBranchID(v any) *int64 {
	var id int64
	switch b := v.(type) {
	case float64:
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return nil
		}
		id = int64(b)
	case int:
		id = int64(b)
	case int64:
		id = b
	case json.Number:
		n, err := b.Int64()
		if err != nil {
			return nil
		}
		id = n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(b), 10, 64)
		if err != nil {
			return nil
		}
		id = n
	default:
		return nil
	}
	return &id
}

// BranchAccess checks that the principal may act on branchID. Owners may
// act on every branch and admins only on their own.
func BranchAccess(p *Principal, branchID int64) error {
	if p == nil {
		return errAuthRequired
	}
	switch p.Role {
	case domain.RoleOwner:
		return nil
	case domain.RoleAdmin:
		if p.BranchID == nil || *p.BranchID != branchID {
			return errBranchDenied
		}
	}
	return nil
}

type ctxKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored by the middleware.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// String is used in log fields.
func (p *Principal) String() string {
	return fmt.Sprintf("%s(%s)", p.ID, p.Role)
}
