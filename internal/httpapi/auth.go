package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vegardlu/homelab-core/internal/store"
)

type contextKey string

const claimsKey contextKey = "claims"

// tokenClaims are the JWT claims the API cares about.
type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// userStore is the subset of the user store the middleware needs.
type userStore interface {
	FindByEmail(email string) (*store.User, error)
}

// authMiddleware verifies HS256 bearer tokens when a secret is configured.
// Without a secret the API is open (trusted-network deployment). When a
// user store is present, the token's email must match a known user.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.jwtSecret == "" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		claims := &tokenClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(s.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			s.logger.Warn("Rejected token", "remote_addr", r.RemoteAddr, "error", err)
			s.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		if s.users != nil {
			if _, err := s.users.FindByEmail(claims.Email); err != nil {
				s.logger.Warn("Token for unknown user", "email", claims.Email)
				s.writeError(w, http.StatusUnauthorized, "unknown user")
				return
			}
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimsFrom returns the verified claims for the request, if any.
func claimsFrom(r *http.Request) *tokenClaims {
	claims, _ := r.Context().Value(claimsKey).(*tokenClaims)
	return claims
}

// sessionID picks the chat session identity: JWT subject, then the
// X-Session-ID header, then the caller's address.
func sessionID(r *http.Request) string {
	if claims := claimsFrom(r); claims != nil && claims.Subject != "" {
		return claims.Subject
	}
	if id := r.Header.Get("X-Session-ID"); id != "" {
		return id
	}
	return r.RemoteAddr
}
