package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/rate"
)

// RateLimit rejects clients, keyed by remote IP, that exceed lim.
func RateLimit(lim *rate.Limiter) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			ip := web.RemoteIP(r)

			if !lim.Check(ip) {
				retry := strconv.Itoa(int(lim.RetryAfter().Seconds()))
				return weberr.TooManyRequests(
					fmt.Errorf("client %s exceeded the rate limit", ip),
					weberr.WithHeader("Retry-After", retry),
				)
			}

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
