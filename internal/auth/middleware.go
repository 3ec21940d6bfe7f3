package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/domain"
)

// ErrorWriter renders an error response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware authenticates requests and enforces roles.
type Middleware struct {
	verifier Verifier
	writeErr ErrorWriter
	log      *zap.Logger
}

// NewMiddleware creates middleware that verifies tokens with v and reports
// failures through writeErr.
func NewMiddleware(v Verifier, writeErr ErrorWriter, log *zap.Logger) *Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	return &Middleware{verifier: v, writeErr: writeErr, log: log}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate rejects requests without a valid bearer token and stores the
// principal in the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			m.writeErr(w, r, errTokenRequired)
			return
		}
		p, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			m.log.Debug("token rejected", zap.String("path", r.URL.Path), zap.Error(err))
			m.writeErr(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// Optional stores a principal when a valid token is present and otherwise
// passes the request through anonymously.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := BearerToken(r); token != "" {
			if p, err := m.verifier.Verify(r.Context(), token); err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole allows only principals with one of roles.
func (m *Middleware) RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return m.require(apperr.Forbidden("Insufficient permissions"), roles...)
}

// RequireAdminOrOwner allows only staff.
func (m *Middleware) RequireAdminOrOwner(next http.Handler) http.Handler {
	return m.require(apperr.Forbidden("Admin or owner access required"), domain.RoleAdmin, domain.RoleOwner)(next)
}

// RequireOwner allows only owners.
func (m *Middleware) RequireOwner(next http.Handler) http.Handler {
	return m.require(apperr.Forbidden("Owner access required"), domain.RoleOwner)(next)
}

func (m *Middleware) require(denied error, roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				m.writeErr(w, r, errAuthRequired)
				return
			}
			if !p.Is(roles...) {
				m.writeErr(w, r, denied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
