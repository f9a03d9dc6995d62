/*
auth.go - JWT session middleware

PURPOSE:
  Parses the Authorization bearer token, validates it against the shared
  HMAC secret, and attaches the caller's session (role, company, member)
  to the request context. Handlers use the session to scope reads and
  gate writes.

ROLES:
  member    Can submit claims and read their own data
  approver  Can act on claims for their tier/company
  admin     Full access, including fee and registry administration

SEE ALSO:
  - handlers.go: role checks and company scoping
  - server.go: where the middleware is mounted
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles recognized in session tokens.
const (
	RoleMember   = "member"
	RoleApprover = "approver"
	RoleAdmin    = "admin"
)

// SessionClaims is the JWT payload for an authenticated session.
type SessionClaims struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	CompanyID string `json:"company_id,omitempty"`
	MemberID  string `json:"member_id,omitempty"`
	jwt.RegisteredClaims
}

// Session is the authenticated caller attached to the request context.
type Session struct {
	UserID    string
	Role      string
	CompanyID string
	MemberID  string
}

type sessionCtxKey struct{}

// GenerateToken mints a signed session token. Used by tests and by
// whatever identity provider fronts this service.
func GenerateToken(secret string, s Session, ttl time.Duration) (string, error) {
	claims := &SessionClaims{
		UserID:    s.UserID,
		Role:      s.Role,
		CompanyID: s.CompanyID,
		MemberID:  s.MemberID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// SessionMiddleware validates the bearer token and stores the session in
// the request context. Requests without a valid token get 401.
func SessionMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "Missing Authorization header", nil)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeError(w, http.StatusUnauthorized, "Authorization must be 'Bearer <token>'", nil)
				return
			}

			token, err := jwt.ParseWithClaims(parts[1], &SessionClaims{}, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token", nil)
				return
			}

			claims, ok := token.Claims.(*SessionClaims)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Invalid token claims", nil)
				return
			}

			session := Session{
				UserID:    claims.UserID,
				Role:      claims.Role,
				CompanyID: claims.CompanyID,
				MemberID:  claims.MemberID,
			}
			ctx := context.WithValue(r.Context(), sessionCtxKey{}, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFrom returns the session attached by SessionMiddleware.
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionCtxKey{}).(Session)
	return s, ok
}

// RequireRole rejects requests whose session role is not in the allowed set.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := SessionFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "No session", nil)
				return
			}
			for _, role := range roles {
				if session.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Insufficient role", nil)
		})
	}
}
