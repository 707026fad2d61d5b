// Package auth verifies bearer tokens issued by the authentication layer and
// carries the caller identity through the request context.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/appetiteclub/apt"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleStaff    = "staff"
	RoleOperator = "operator"
)

var ErrInvalidToken = errors.New("invalid token")

type Identity struct {
	Subject      string
	RestaurantID uuid.UUID
	Role         string
}

func (i Identity) IsOperator() bool {
	return i.Role == RoleOperator
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// CanAccess reports whether the caller may act on restaurantID. Requests
// without an identity only get here when verification is disabled.
func CanAccess(ctx context.Context, restaurantID uuid.UUID) bool {
	id, ok := FromContext(ctx)
	if !ok {
		return true
	}
	return id.IsOperator() || id.RestaurantID == restaurantID
}

// IsOperator reports whether the caller may read across restaurants.
func IsOperator(ctx context.Context) bool {
	id, ok := FromContext(ctx)
	return !ok || id.IsOperator()
}

type Verifier struct {
	secret []byte
	logger apt.Logger
}

// NewVerifier returns a verifier for HMAC-signed tokens. An empty secret
// disables verification.
func NewVerifier(secret string, logger apt.Logger) *Verifier {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Verifier{secret: []byte(secret), logger: logger}
}

func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

func (v *Verifier) Parse(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	subject, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	rid, _ := claims["restaurant_id"].(string)

	id := Identity{Subject: subject, Role: role}
	switch role {
	case RoleOperator:
	case RoleStaff:
		parsed, err := uuid.Parse(rid)
		if err != nil {
			return Identity{}, ErrInvalidToken
		}
		id.RestaurantID = parsed
	default:
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}

// Middleware rejects requests without a valid bearer token when verification
// is enabled and stores the identity otherwise.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	if !v.Enabled() {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			apt.RespondError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		id, err := v.Parse(tokenString)
		if err != nil {
			v.logger.Debug("rejected token", "error", err)
			apt.RespondError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}
