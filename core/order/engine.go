package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/storefront/core/cart"
	"github.com/irsalhamdi/storefront/core/claims"
	"github.com/irsalhamdi/storefront/core/payment"
	"github.com/irsalhamdi/storefront/core/product"
	"github.com/irsalhamdi/storefront/validate"
	"github.com/sirupsen/logrus"
)

// Inventory reports the live stock of a product and the size of the
// catalog.
type Inventory interface {
	CountInStock(ctx context.Context, productID string) (int, error)
	CountProducts(ctx context.Context) (int, error)
}

// Engine drives orders from submission through payment and delivery.
type Engine struct {
	store Store
	inv   Inventory
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewEngine(store Store, inv Inventory, log logrus.FieldLogger) *Engine {
	return &Engine{
		store: store,
		inv:   inv,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type submitOptions struct {
	key string
}

type SubmitOpt func(*submitOptions)

// WithIdempotencyKey makes repeated submissions by the same user with the
// same key return the first order instead of creating another.
func WithIdempotencyKey(key string) SubmitOpt {
	return func(o *submitOptions) { o.key = key }
}

// Submit validates c against live stock and records it as a new order. The
// prices are recomputed from the cart's quantities and unit prices; either
// every line is in stock and one order is created, or none is.
func (e *Engine) Submit(ctx context.Context, c cart.Cart, actor claims.Claims, opts ...SubmitOpt) (string, error) {
	var so submitOptions
	for _, opt := range opts {
		opt(&so)
	}

	if actor.UserID == "" {
		return "", fmt.Errorf("submitting order: %w", ErrForbidden)
	}

	// A retried submission finds its order even after the cart was cleared.
	if so.key != "" {
		o, err := e.store.FetchByIdempotencyKey(ctx, actor.UserID, so.key)
		switch {
		case err == nil:
			return o.ID, nil
		case !errors.Is(err, ErrNotFound):
			return "", fmt.Errorf("checking idempotency key: %w", err)
		}
	}

	if err := checkCart(c); err != nil {
		return "", err
	}

	for _, it := range c.Items {
		n, err := e.inv.CountInStock(ctx, it.ProductID)
		if err != nil {
			if !errors.Is(err, product.ErrNotFound) {
				return "", fmt.Errorf("looking up stock of product[%s]: %w", it.ProductID, err)
			}
			n = 0
		}

		if it.Quantity > n {
			return "", &OutOfStockError{ProductID: it.ProductID, Requested: it.Quantity, InStock: n}
		}
	}

	now := e.now()
	uid := actor.UserID
	o := Order{
		ID:              validate.GenerateID(),
		UserID:          &uid,
		IdempotencyKey:  so.key,
		Items:           append([]cart.LineItem(nil), c.Items...),
		ShippingAddress: *c.ShippingAddress,
		PaymentMethod:   c.PaymentMethod,
		Totals:          c.Totals(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.store.Create(ctx, o); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			prev, err := e.store.FetchByIdempotencyKey(ctx, actor.UserID, so.key)
			if err != nil {
				return "", fmt.Errorf("fetching order of idempotency key: %w", err)
			}
			return prev.ID, nil
		}
		return "", fmt.Errorf("creating order: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"order_id": o.ID,
		"user_id":  actor.UserID,
		"total":    o.TotalPrice.StringFixed(2),
	}).Info("order created")

	return o.ID, nil
}

// MarkPaid records a captured payment. applied is false when the order was
// already paid, in which case the order is returned unchanged.
func (e *Engine) MarkPaid(ctx context.Context, orderID string, rcpt payment.Receipt) (o Order, applied bool, err error) {
	ev := PaymentCaptured{Receipt: rcpt, At: e.now()}

	o, applied, err = e.store.Update(ctx, orderID, func(cur Order) (Order, bool, error) {
		return Apply(cur, ev)
	})
	if err != nil {
		return Order{}, false, fmt.Errorf("marking order[%s] paid: %w", orderID, err)
	}

	if applied {
		e.log.WithFields(logrus.Fields{
			"order_id": orderID,
			"provider": rcpt.Provider,
			"receipt":  rcpt.ID,
		}).Info("order paid")
	}
	return o, applied, nil
}

// MarkDelivered records delivery of a paid order. Only elevated actors may
// deliver.
func (e *Engine) MarkDelivered(ctx context.Context, orderID string, actor claims.Claims) (o Order, applied bool, err error) {
	if !actor.IsElevated() {
		return Order{}, false, fmt.Errorf("delivering order[%s]: %w", orderID, ErrForbidden)
	}

	ev := DeliveryConfirmed{At: e.now()}

	o, applied, err = e.store.Update(ctx, orderID, func(cur Order) (Order, bool, error) {
		return Apply(cur, ev)
	})
	if err != nil {
		return Order{}, false, fmt.Errorf("delivering order[%s]: %w", orderID, err)
	}

	if applied {
		e.log.WithFields(logrus.Fields{
			"order_id": orderID,
			"actor":    actor.UserID,
		}).Info("order delivered")
	}
	return o, applied, nil
}

// Get returns an order to its owner or to an elevated actor.
func (e *Engine) Get(ctx context.Context, orderID string, actor claims.Claims) (Order, error) {
	o, err := e.store.Fetch(ctx, orderID)
	if err != nil {
		return Order{}, fmt.Errorf("fetching order[%s]: %w", orderID, err)
	}

	if !actor.IsElevated() && !actor.IsOwner(o.UserID) {
		return Order{}, fmt.Errorf("order[%s]: %w", orderID, ErrForbidden)
	}
	return o, nil
}

// History lists the actor's own orders, newest first.
func (e *Engine) History(ctx context.Context, actor claims.Claims) ([]Order, error) {
	if actor.UserID == "" {
		return nil, ErrForbidden
	}

	orders, err := e.store.QueryByUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("querying orders of user[%s]: %w", actor.UserID, err)
	}
	return orders, nil
}

func (e *Engine) List(ctx context.Context, actor claims.Claims) ([]Order, error) {
	if !actor.IsElevated() {
		return nil, ErrForbidden
	}

	orders, err := e.store.Query(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	return orders, nil
}

func (e *Engine) Summary(ctx context.Context, actor claims.Claims) (Summary, error) {
	if !actor.IsElevated() {
		return Summary{}, ErrForbidden
	}

	sum, err := e.store.Summary(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("summarizing orders: %w", err)
	}

	if sum.Products, err = e.inv.CountProducts(ctx); err != nil {
		return Summary{}, fmt.Errorf("counting products: %w", err)
	}
	return sum, nil
}

// DetachUser drops userID as the owner of its orders once the user has been
// deleted. The orders themselves are kept.
func (e *Engine) DetachUser(ctx context.Context, actor claims.Claims, userID string) error {
	if !actor.IsElevated() {
		return ErrForbidden
	}

	if err := e.store.DetachUser(ctx, userID); err != nil {
		return fmt.Errorf("detaching orders of user[%s]: %w", userID, err)
	}
	return nil
}

func checkCart(c cart.Cart) error {
	if c.Empty() {
		return fmt.Errorf("%w: cart has no items", ErrInvalidCart)
	}

	if c.ShippingAddress == nil {
		return fmt.Errorf("%w: shipping address is missing", ErrInvalidCart)
	}
	if err := validate.Check(*c.ShippingAddress); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCart, err)
	}

	if c.PaymentMethod == "" {
		return fmt.Errorf("%w: payment method is missing", ErrInvalidCart)
	}
	if !c.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidCart, c.PaymentMethod)
	}

	seen := make(map[string]bool, len(c.Items))
	for _, it := range c.Items {
		if err := validate.Check(it); err != nil {
			return fmt.Errorf("%w: product[%s]: %v", ErrInvalidCart, it.ProductID, err)
		}
		if !it.WholeCents() {
			return fmt.Errorf("%w: product[%s] price %s has a fraction of a cent", ErrInvalidCart, it.ProductID, it.UnitPrice)
		}
		if seen[it.ProductID] {
			return fmt.Errorf("%w: product[%s] appears twice", ErrInvalidCart, it.ProductID)
		}
		seen[it.ProductID] = true
	}

	return nil
}
