package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/core/claims"
)

// Session keys under which the login flow stores the caller's identity.
const (
	SessionUserID = "userID"
	SessionRole   = "role"
)

// Authenticate requires a session identity and exposes it as claims.
func Authenticate(sm *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if _, err := claims.Get(ctx); err == nil {
				return handler(ctx, w, r)
			}

			uid := sm.GetString(ctx, SessionUserID)
			if uid == "" {
				return weberr.NotAuthorized(errors.New("user not authenticated"))
			}

			ctx = claims.Set(ctx, claims.Claims{
				UserID: uid,
				Role:   sm.GetString(ctx, SessionRole),
			})
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}

// Admin requires an authenticated caller with the admin role.
func Admin(sm *scs.SessionManager) web.Middleware {
	authen := Authenticate(sm)

	m := func(handler web.Handler) web.Handler {
		admin := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if !claims.IsAdmin(ctx) {
				return weberr.Forbidden(errors.New("admin role required"))
			}
			return handler(ctx, w, r)
		}
		return authen(admin)
	}
	return m
}
