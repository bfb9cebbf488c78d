package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/irsalhamdi/storefront/api/middleware"
	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/config"
	"github.com/irsalhamdi/storefront/core/cart"
	"github.com/irsalhamdi/storefront/core/order"
	"github.com/irsalhamdi/storefront/core/product"
	"github.com/irsalhamdi/storefront/database"
	"github.com/irsalhamdi/storefront/rate"
	"github.com/jmoiron/sqlx"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

type APIConfig struct {
	CorsOrigin     string
	Log            logrus.FieldLogger
	DB             *sqlx.DB
	Session        *scs.SessionManager
	Engine         *order.Engine
	Catalog        product.Catalog
	Products       product.Writer
	Limiter        *rate.Limiter
	Paypal         *paypal.Client
	PaypalCurrency string
	Stripe         *stripecl.API
	StripeCfg      config.Stripe
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.Router.Use(cfg.Session.LoadAndSave)

	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(cfg.Log))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	if cfg.Limiter != nil {
		a.mw = append(a.mw, middleware.RateLimit(cfg.Limiter))
	}

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	authen := middleware.Authenticate(cfg.Session)
	admin := middleware.Admin(cfg.Session)

	a.Handle(http.MethodGet, "/readiness", handleReadiness(cfg.DB))

	a.Handle(http.MethodGet, "/products/{id}", product.HandleShow(cfg.Catalog))
	a.Handle(http.MethodPost, "/admin/products", product.HandleCreate(cfg.Products), admin)
	a.Handle(http.MethodPut, "/admin/products/{id}", product.HandleUpdateStock(cfg.Products, cfg.Catalog), admin)

	a.Handle(http.MethodGet, "/cart", cart.HandleShow(cfg.Session))
	a.Handle(http.MethodDelete, "/cart", cart.HandleDelete(cfg.Session))
	a.Handle(http.MethodPut, "/cart/items", cart.HandleCreateItem(cfg.Session, cfg.Catalog))
	a.Handle(http.MethodPatch, "/cart/items/{product_id}", cart.HandleUpdateItem(cfg.Session, cfg.Catalog))
	a.Handle(http.MethodDelete, "/cart/items/{product_id}", cart.HandleDeleteItem(cfg.Session))
	a.Handle(http.MethodPut, "/cart/shipping", cart.HandleSaveShipping(cfg.Session))
	a.Handle(http.MethodPut, "/cart/payment", cart.HandleSavePayment(cfg.Session))

	a.Handle(http.MethodPost, "/orders", order.HandleCreate(cfg.Engine, cfg.Session), authen)
	a.Handle(http.MethodGet, "/orders/mine", order.HandleListMine(cfg.Engine), authen)
	a.Handle(http.MethodPost, "/orders/stripe/webhook", order.HandleStripeWebhook(cfg.Engine, cfg.StripeCfg))
	a.Handle(http.MethodGet, "/orders/{id}", order.HandleShow(cfg.Engine), authen)
	a.Handle(http.MethodPut, "/orders/{id}/deliver", order.HandleDeliver(cfg.Engine), admin)

	if cfg.Paypal != nil {
		a.Handle(http.MethodPost, "/orders/{id}/paypal", order.HandlePaypalCheckout(cfg.Engine, cfg.Paypal, cfg.PaypalCurrency), authen)
		a.Handle(http.MethodPost, "/orders/{id}/paypal/{paypal_id}/capture", order.HandlePaypalCapture(cfg.Engine, cfg.Paypal, cfg.PaypalCurrency), authen)
	}
	if cfg.Stripe != nil {
		a.Handle(http.MethodPost, "/orders/{id}/stripe", order.HandleStripeCheckout(cfg.Engine, cfg.Stripe, cfg.StripeCfg), authen)
	}

	a.Handle(http.MethodGet, "/admin/orders", order.HandleList(cfg.Engine), admin)
	a.Handle(http.MethodGet, "/admin/summary", order.HandleSummary(cfg.Engine), admin)
	a.Handle(http.MethodPost, "/admin/users/{user_id}/detach", order.HandleDetachUser(cfg.Engine), admin)

	return a.Router
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}

func handleReadiness(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if db == nil {
			return web.Respond(ctx, w, struct {
				Status string `json:"status"`
			}{"ok"}, http.StatusOK)
		}

		if err := database.StatusCheck(ctx, db); err != nil {
			return weberr.Unavailable(fmt.Errorf("database not ready: %w", err))
		}

		return web.Respond(ctx, w, struct {
			Status string `json:"status"`
		}{"ok"}, http.StatusOK)
	}
}
