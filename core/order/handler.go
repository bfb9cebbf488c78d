package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/config"
	"github.com/irsalhamdi/storefront/core/cart"
	"github.com/irsalhamdi/storefront/core/claims"
	"github.com/irsalhamdi/storefront/core/payment"
	"github.com/irsalhamdi/storefront/validate"
	"github.com/plutov/paypal/v4"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// Stripe events are small; anything larger is not a checkout event.
const maxWebhookBytes = 65536

// View is an order as returned to clients.
type View struct {
	Order
	Status Status `json:"status"`
	User   string `json:"user"`
}

func NewView(o Order) View {
	return View{Order: o, Status: o.Status(), User: o.Owner()}
}

func NewViews(orders []Order) []View {
	out := make([]View, len(orders))
	for i, o := range orders {
		out[i] = NewView(o)
	}
	return out
}

func HandleCreate(eng *Engine, sm *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		c, err := cart.Load(ctx, sm)
		if err != nil {
			return err
		}

		key := r.Header.Get(IdempotencyKeyHeader)
		id, err := eng.Submit(ctx, c, clm, WithIdempotencyKey(key))
		if err != nil {
			return toWebErr(err)
		}

		if _, err := cart.Update(ctx, sm, cart.Clear{}); err != nil {
			return fmt.Errorf("clearing cart after order[%s]: %w", id, err)
		}

		resp := struct {
			ID string `json:"id"`
		}{id}
		return web.Respond(ctx, w, resp, http.StatusCreated)
	}
}

func HandleShow(eng *Engine) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		orderID, err := orderParam(r)
		if err != nil {
			return err
		}

		o, err := eng.Get(ctx, orderID, clm)
		if err != nil {
			return toWebErr(err)
		}

		return web.Respond(ctx, w, NewView(o), http.StatusOK)
	}
}

func HandleListMine(eng *Engine) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		orders, err := eng.History(ctx, clm)
		if err != nil {
			return toWebErr(err)
		}

		return web.Respond(ctx, w, NewViews(orders), http.StatusOK)
	}
}

func HandleList(eng *Engine) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		orders, err := eng.List(ctx, clm)
		if err != nil {
			return toWebErr(err)
		}

		return web.Respond(ctx, w, NewViews(orders), http.StatusOK)
	}
}

func HandleSummary(eng *Engine) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		sum, err := eng.Summary(ctx, clm)
		if err != nil {
			return toWebErr(err)
		}

		return web.Respond(ctx, w, sum, http.StatusOK)
	}
}

func HandleDeliver(eng *Engine) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		orderID, err := orderParam(r)
		if err != nil {
			return err
		}

		o, _, err := eng.MarkDelivered(ctx, orderID, clm)
		if err != nil {
			return toWebErr(err)
		}

		return web.Respond(ctx, w, NewView(o), http.StatusOK)
	}
}

// HandleDetachUser releases the orders of a deleted user. The orders stay in
// the books and are shown as owned by a deleted user.
func HandleDetachUser(eng *Engine) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		userID := web.Param(r, "user_id")
		if userID == "" {
			return weberr.BadRequest(errors.New("missing user id"))
		}

		if err := eng.DetachUser(ctx, clm, userID); err != nil {
			return toWebErr(err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandlePaypalCheckout(eng *Engine, pp *paypal.Client, currency string) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		o, err := payable(ctx, eng, r)
		if err != nil {
			return err
		}

		units := payment.PaypalUnits(o.ID, o.Totals, currency)
		ord, err := pp.CreateOrder(ctx, "CAPTURE", units, nil, nil)
		if err != nil {
			return fmt.Errorf("creating paypal order for order[%s]: %w", o.ID, err)
		}

		return web.Respond(ctx, w, ord, http.StatusOK)
	}
}

func HandlePaypalCapture(eng *Engine, pp *paypal.Client, currency string) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		orderID, err := orderParam(r)
		if err != nil {
			return err
		}
		providerID := web.Param(r, "paypal_id")

		if _, err := eng.Get(ctx, orderID, clm); err != nil {
			return toWebErr(err)
		}

		resp, err := pp.CaptureOrder(ctx, providerID, paypal.CaptureOrderRequest{})
		if err != nil {
			return fmt.Errorf("capturing paypal order[%s]: %w", providerID, err)
		}

		for _, pu := range resp.PurchaseUnits {
			if pu.ReferenceID != "" && pu.ReferenceID != orderID {
				err := fmt.Errorf("%w: paypal order[%s] references order[%s]", ErrPaymentMismatch, providerID, pu.ReferenceID)
				return toWebErr(err)
			}
		}

		rcpt, err := payment.PaypalReceipt(resp, time.Now().UTC())
		if err != nil {
			return weberr.Unprocessable(err, err.Error())
		}
		if err := checkCurrency(rcpt, currency); err != nil {
			return toWebErr(err)
		}

		o, _, err := eng.MarkPaid(ctx, orderID, rcpt)
		if err != nil {
			return toWebErr(err)
		}

		return web.Respond(ctx, w, NewView(o), http.StatusOK)
	}
}

func HandleStripeCheckout(eng *Engine, strp *stripecl.API, cfg config.Stripe) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		o, err := payable(ctx, eng, r)
		if err != nil {
			return err
		}

		params := payment.StripeSessionParams(o.ID, o.Items, o.Totals, payment.StripeCheckout{
			SuccessURL: cfg.SuccessURL,
			CancelURL:  cfg.CancelURL,
			Currency:   cfg.Currency,
		})
		params.Context = ctx

		s, err := strp.CheckoutSessions.New(params)
		if err != nil {
			return fmt.Errorf("creating stripe session for order[%s]: %w", o.ID, err)
		}

		return web.Respond(ctx, w, s.URL, http.StatusOK)
	}
}

// HandleStripeWebhook marks orders paid from checkout.session.completed
// events. Stripe may deliver an event more than once; repeats are answered
// like the first delivery.
func HandleStripeWebhook(eng *Engine, cfg config.Stripe) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot read the request body: %w", err))
		}

		sig := r.Header.Get("Stripe-Signature")
		if sig == "" {
			return weberr.BadRequest(errors.New("received stripe event is not signed"))
		}

		event, err := webhook.ConstructEvent(b, sig, cfg.WebhookSecret)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot construct stripe event: %w", err))
		}

		if event.Type != "checkout.session.completed" {
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}

		var session stripe.CheckoutSession
		if err = json.Unmarshal(event.Data.Raw, &session); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode stripe event: %w", err))
		}

		if session.Mode != stripe.CheckoutSessionModePayment || session.ClientReferenceID == "" {
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}

		rcpt, err := payment.StripeReceipt(session, time.Now().UTC())
		if err != nil {
			return weberr.Unprocessable(err, err.Error())
		}
		if err := checkCurrency(rcpt, cfg.Currency); err != nil {
			return toWebErr(err)
		}

		if _, _, err := eng.MarkPaid(ctx, session.ClientReferenceID, rcpt); err != nil {
			return toWebErr(err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

// payable returns the caller's order when it still awaits payment.
func payable(ctx context.Context, eng *Engine, r *http.Request) (Order, error) {
	clm, err := claims.Get(ctx)
	if err != nil {
		return Order{}, weberr.NotAuthorized(errors.New("user not authenticated"))
	}

	id, err := orderParam(r)
	if err != nil {
		return Order{}, err
	}

	o, err := eng.Get(ctx, id, clm)
	if err != nil {
		return Order{}, toWebErr(err)
	}

	if o.IsPaid {
		err := fmt.Errorf("order[%s] is already paid", o.ID)
		return Order{}, weberr.Unprocessable(err, "order is already paid")
	}
	return o, nil
}

func checkCurrency(rcpt payment.Receipt, currency string) error {
	if !rcpt.InCurrency(currency) {
		return fmt.Errorf("%w: receipt[%s] is in %q, orders are charged in %q", ErrPaymentMismatch, rcpt.ID, rcpt.Currency, currency)
	}
	return nil
}

func orderParam(r *http.Request) (string, error) {
	id := web.Param(r, "id")
	if err := validate.CheckID(id); err != nil {
		return "", weberr.BadRequest(fmt.Errorf("order id %q: %w", id, err))
	}
	return id, nil
}

func toWebErr(err error) error {
	var oos *OutOfStockError

	switch {
	case errors.As(err, &oos):
		return weberr.Unprocessable(err, oos.Error(), weberr.WithFields(map[string]interface{}{
			"product_id": oos.ProductID,
		}))
	case errors.Is(err, ErrNotFound):
		return weberr.NotFound(err)
	case errors.Is(err, ErrForbidden):
		return weberr.Forbidden(err)
	case errors.Is(err, ErrInvalidCart),
		errors.Is(err, ErrPaymentMismatch),
		errors.Is(err, ErrNotPaid):
		return weberr.Unprocessable(err, err.Error())
	}
	return err
}
