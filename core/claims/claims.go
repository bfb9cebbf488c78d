// Package claims carries the identity of the caller through a request
// context. How that identity was established is decided before the request
// reaches this service's handlers.
package claims

import (
	"context"
	"errors"
)

const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

type Claims struct {
	UserID string
	Role   string
}

// IsElevated reports whether the actor may act on orders it does not own.
func (c Claims) IsElevated() bool {
	return c.Role == RoleAdmin
}

func (c Claims) IsOwner(userID *string) bool {
	return userID != nil && c.UserID != "" && *userID == c.UserID
}

type ctxKey int

const claimsKey ctxKey = 1

var ErrMissing = errors.New("claim value missing from context")

func Set(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func Get(ctx context.Context) (Claims, error) {
	v, ok := ctx.Value(claimsKey).(Claims)
	if !ok {
		return Claims{}, ErrMissing
	}
	return v, nil
}

func IsAdmin(ctx context.Context) bool {
	c, err := Get(ctx)
	if err != nil {
		return false
	}

	return c.IsElevated()
}
