package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/caretalk/caretalk/internal/models"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

// IdentityVerifier validates bearer tokens minted by the external identity
// provider. The routing core never issues credentials itself; it only
// verifies the HS256 signature and extracts the subject and role claims.
type IdentityVerifier struct {
	secret []byte
}

// NewIdentityVerifier creates a verifier for tokens signed with secret.
func NewIdentityVerifier(secret string) *IdentityVerifier {
	return &IdentityVerifier{secret: []byte(secret)}
}

type identityClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verify parses and validates a raw token, returning the identity it names.
func (v *IdentityVerifier) Verify(raw string) (models.Identity, error) {
	var claims identityClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return models.Identity{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return models.Identity{}, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return models.Identity{}, fmt.Errorf("token missing sub claim")
	}
	if claims.Role != models.RolePatient && claims.Role != models.RoleClinician {
		return models.Identity{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	return models.Identity{ID: claims.Subject, Role: claims.Role}, nil
}

// RequireIdentity middleware verifies the Authorization bearer token and
// stores the identity on the request context.
func (v *IdentityVerifier) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			jsonError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		identity, err := v.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetIdentityFromContext retrieves the authenticated identity from the
// request context. The zero Identity means the request was not
// authenticated.
func GetIdentityFromContext(ctx context.Context) models.Identity {
	identity, ok := ctx.Value(IdentityContextKey).(models.Identity)
	if !ok {
		return models.Identity{}
	}
	return identity
}
