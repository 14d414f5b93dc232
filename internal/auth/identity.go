package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type contextKey struct{}

// Identity is the authenticated requester attached to a request.
type Identity struct {
	Subject string
	Role    string
}

func (i Identity) Authenticated() bool {
	return i.Subject != ""
}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) Identity {
	identity, _ := ctx.Value(contextKey{}).(Identity)
	return identity
}

func IdentityFromRequest(r *http.Request) (Identity, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return Identity{}, errors.New("missing or malformed Authorization header")
	}

	claims, err := ValidateJWT(strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		return Identity{}, err
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return Identity{}, ErrInvalidToken
	}
	role, _ := claims["role"].(string)

	return Identity{Subject: subject, Role: role}, nil
}

// Authenticate attaches the bearer identity when one is present and valid.
// Requests without a usable token continue anonymously.
func Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity, err := IdentityFromRequest(r); err == nil {
			r = r.WithContext(WithIdentity(r.Context(), identity))
		}
		next.ServeHTTP(w, r)
	})
}

func RequireRole(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if !identity.Authenticated() {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if identity.Role != requiredRole {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
