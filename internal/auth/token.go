// Package auth reads identity out of the bearer tokens issued by the backend.
// Signatures are not checked here: the backend verifies every request, the
// console only needs the user id and an early expiry check.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
	"github.com/dharsanguruparan/CleanOps/internal/model"
)

// Identity is what a token says about its bearer.
type Identity struct {
	UserID    model.ID
	Role      string
	ExpiresAt time.Time
	Token     string
}

// IsAdmin reports whether the bearer may manage assignments and exports.
func (i Identity) IsAdmin() bool {
	return strings.EqualFold(i.Role, "admin")
}

var parser = jwt.NewParser()

// Inspect decodes token and rejects it when malformed, missing a user id, or
// expired at now.
func Inspect(token string, now time.Time) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing token", apperr.ErrAuth)
	}
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("%w: malformed token: %v", apperr.ErrAuth, err)
	}
	id := Identity{Token: token}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
		if now.After(exp.Time) {
			return Identity{}, fmt.Errorf("%w: token expired", apperr.ErrAuth)
		}
	}
	for _, name := range []string{"user_id", "userId", "id", "sub"} {
		if v, ok := claims[name]; ok {
			if uid, ok := toID(v); ok {
				id.UserID = uid
				break
			}
		}
	}
	if id.UserID == 0 {
		return Identity{}, fmt.Errorf("%w: token carries no user id", apperr.ErrAuth)
	}
	if role, ok := claims["role"].(string); ok {
		id.Role = role
	}
	return id, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if header == "" {
		return "", fmt.Errorf("%w: authorization header is empty", apperr.ErrAuth)
	}
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", fmt.Errorf("%w: invalid authorization header format", apperr.ErrAuth)
	}
	return strings.TrimSpace(header[len(prefix):]), nil
}

func toID(v any) (model.ID, bool) {
	switch t := v.(type) {
	case float64:
		if t > 0 && t == float64(int64(t)) {
			return model.ID(t), true
		}
	case string:
		if id, err := model.ParseID(t); err == nil {
			return id, true
		}
	}
	return 0, false
}
