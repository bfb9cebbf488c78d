package test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"path"
	"testing"
	"time"

	"github.com/irsalhamdi/storefront/core/cart"
	"github.com/irsalhamdi/storefront/core/claims"
	"github.com/irsalhamdi/storefront/core/order"
	"github.com/irsalhamdi/storefront/core/product"
	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

var address = cart.ShippingAddress{
	FullName:   "Jane Doe",
	Address:    "1 Main St",
	City:       "Springfield",
	PostalCode: "12345",
	Country:    "US",
}

// call sends body as JSON and decodes a JSON response into out.
func call(t *testing.T, c *http.Client, method, url string, header http.Header, body, out any) int {
	t.Helper()

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		buf = bytes.NewReader(b)
	}

	r, err := http.NewRequest(method, url, buf)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		r.Header[k] = v
	}

	w, err := c.Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if out != nil && w.StatusCode < 300 && w.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(w.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s: %v", method, url, err)
		}
	}
	return w.StatusCode
}

type orderTest struct {
	*TestEnv
	user  *http.Client
	admin *http.Client
}

func TestOrder(t *testing.T) {
	env := NewTestEnv(t)

	ot := &orderTest{
		TestEnv: env,
		user:    env.NewClient(t, "jane", claims.RoleUser),
		admin:   env.NewClient(t, "root", claims.RoleAdmin),
	}

	ot.readiness(t)
	ot.anonymous(t)

	id := ot.checkout(t, cart.Stripe, []cart.ItemNew{{ProductID: "p1", Quantity: 2}}, "72.50")
	ot.testStripe(t, id, 7250)

	id2 := ot.checkout(t, cart.PayPal, []cart.ItemNew{{ProductID: "p2", Quantity: 2}}, "414.00")
	ot.testPaypal(t, id2, "414.00")

	ot.deliver(t, id)
	ot.outOfStock(t)
	ot.products(t)
	ot.summary(t, 2, "486.50")
}

func (ot *orderTest) readiness(t *testing.T) {
	if code := call(t, ot.Client(), http.MethodGet, ot.URL+"/readiness", nil, nil, nil); code != http.StatusOK {
		t.Fatalf("readiness: status %d", code)
	}
}

func (ot *orderTest) anonymous(t *testing.T) {
	anon := ot.NewClient(t, "", "")

	if code := call(t, anon, http.MethodGet, ot.URL+"/cart", nil, nil, nil); code != http.StatusOK {
		t.Fatalf("anonymous cart: status %d", code)
	}
	if code := call(t, anon, http.MethodPost, ot.URL+"/orders", nil, nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous checkout: want 401, got %d", code)
	}
	if code := call(t, ot.user, http.MethodGet, ot.URL+"/admin/orders", nil, nil, nil); code != http.StatusForbidden {
		t.Fatalf("user listing all orders: want 403, got %d", code)
	}
}

// checkout fills the cart, submits it twice with the same idempotency key and
// returns the order id.
func (ot *orderTest) checkout(t *testing.T, method cart.PaymentMethod, items []cart.ItemNew, total string) string {
	for _, it := range items {
		if code := call(t, ot.user, http.MethodPut, ot.URL+"/cart/items", nil, it, nil); code != http.StatusOK {
			t.Fatalf("adding %s: status %d", it.ProductID, code)
		}
	}

	if code := call(t, ot.user, http.MethodPut, ot.URL+"/cart/shipping", nil, address, nil); code != http.StatusOK {
		t.Fatalf("saving shipping: status %d", code)
	}

	var v cart.View
	if code := call(t, ot.user, http.MethodPut, ot.URL+"/cart/payment", nil, cart.PaymentUp{PaymentMethod: method}, &v); code != http.StatusOK {
		t.Fatalf("saving payment method: status %d", code)
	}
	if v.Totals.TotalPrice.StringFixed(2) != total {
		t.Fatalf("cart total: want %s, got %s", total, v.Totals.TotalPrice.StringFixed(2))
	}

	key := http.Header{order.IdempotencyKeyHeader: []string{"checkout-" + string(method)}}

	var created struct {
		ID string `json:"id"`
	}
	if code := call(t, ot.user, http.MethodPost, ot.URL+"/orders", key, nil, &created); code != http.StatusCreated {
		t.Fatalf("submitting order: status %d", code)
	}

	var retried struct {
		ID string `json:"id"`
	}
	if code := call(t, ot.user, http.MethodPost, ot.URL+"/orders", key, nil, &retried); code != http.StatusCreated {
		t.Fatalf("retrying order: status %d", code)
	}
	if retried.ID != created.ID {
		t.Fatalf("retry created a second order: %s != %s", retried.ID, created.ID)
	}

	var o order.View
	if code := call(t, ot.user, http.MethodGet, ot.URL+"/orders/"+created.ID, nil, nil, &o); code != http.StatusOK {
		t.Fatalf("fetching order: status %d", code)
	}
	if o.Status != order.Created || o.TotalPrice.StringFixed(2) != total {
		t.Fatalf("unexpected order: status %s total %s", o.Status, o.TotalPrice)
	}

	return created.ID
}

func (ot *orderTest) testStripe(t *testing.T, id string, cents int64) {
	ot.Stripe.expect(cents)

	var url string
	if code := call(t, ot.user, http.MethodPost, ot.URL+"/orders/"+id+"/stripe", nil, nil, &url); code != http.StatusOK {
		t.Fatalf("can't create stripe session: status %d", code)
	}

	obj := map[string]any{
		"id":                  path.Base(url),
		"object":              "checkout.session",
		"mode":                stripe.CheckoutSessionModePayment,
		"payment_status":      stripe.CheckoutSessionPaymentStatusPaid,
		"amount_total":        cents,
		"currency":            "usd",
		"client_reference_id": id,
	}

	evt := map[string]any{
		"id":          "evt_integration",
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        "checkout.session.completed",
		"data":        map[string]any{"object": obj},
	}

	b, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   b,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})

	for i := 0; i < 2; i++ {
		r, err := http.NewRequest(http.MethodPost, ot.URL+"/orders/stripe/webhook", bytes.NewReader(b))
		if err != nil {
			t.Fatal(err)
		}
		r.Header.Set("Stripe-Signature", signed.Header)

		w, err := ot.Client().Do(r)
		if err != nil {
			t.Fatal(err)
		}
		w.Body.Close()

		if w.StatusCode != http.StatusNoContent {
			t.Fatalf("stripe webhook delivery %d: status %s", i+1, w.Status)
		}
	}

	var o order.View
	if code := call(t, ot.user, http.MethodGet, ot.URL+"/orders/"+id, nil, nil, &o); code != http.StatusOK {
		t.Fatalf("fetching order: status %d", code)
	}
	if o.Status != order.Paid || o.PaymentResult == nil || o.PaymentResult.Provider != "stripe" {
		t.Fatalf("order not paid through stripe: %+v", o)
	}
}

func (ot *orderTest) testPaypal(t *testing.T, id string, total string) {
	ot.Paypal.expect(total)

	var ord paypal.Order
	if code := call(t, ot.user, http.MethodPost, ot.URL+"/orders/"+id+"/paypal", nil, nil, &ord); code != http.StatusOK {
		t.Fatalf("can't create paypal order: status %d", code)
	}

	var o order.View
	if code := call(t, ot.user, http.MethodPost, ot.URL+"/orders/"+id+"/paypal/"+ord.ID+"/capture", nil, nil, &o); code != http.StatusOK {
		t.Fatalf("can't capture paypal order: status %d", code)
	}
	if o.Status != order.Paid || o.PaymentResult.ID != ord.ID {
		t.Fatalf("order not paid through paypal: %+v", o)
	}

	if code := call(t, ot.user, http.MethodPost, ot.URL+"/orders/"+id+"/paypal", nil, nil, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("paying twice: want 422, got %d", code)
	}
}

func (ot *orderTest) deliver(t *testing.T, id string) {
	url := ot.URL + "/orders/" + id + "/deliver"

	if code := call(t, ot.user, http.MethodPut, url, nil, nil, nil); code != http.StatusForbidden {
		t.Fatalf("user delivering: want 403, got %d", code)
	}

	var o order.View
	if code := call(t, ot.admin, http.MethodPut, url, nil, nil, &o); code != http.StatusOK {
		t.Fatalf("delivering: status %d", code)
	}
	if o.Status != order.Delivered || o.DeliveredAt == nil {
		t.Fatalf("order not delivered: %+v", o)
	}

	var mine []order.View
	if code := call(t, ot.user, http.MethodGet, ot.URL+"/orders/mine", nil, nil, &mine); code != http.StatusOK {
		t.Fatalf("listing own orders: status %d", code)
	}
	if len(mine) != 2 {
		t.Fatalf("own orders: want 2, got %d", len(mine))
	}
}

func (ot *orderTest) outOfStock(t *testing.T) {
	ot.Catalog.setStock("p1", 1)

	if code := call(t, ot.user, http.MethodPut, ot.URL+"/cart/items", nil, cart.ItemNew{ProductID: "p1", Quantity: 2}, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("adding beyond stock: want 422, got %d", code)
	}

	if code := call(t, ot.user, http.MethodPut, ot.URL+"/cart/items", nil, cart.ItemNew{ProductID: "p1", Quantity: 1}, nil); code != http.StatusOK {
		t.Fatalf("adding within stock: status %d", code)
	}

	// Stock shrinks between add-to-cart and checkout.
	ot.Catalog.setStock("p1", 0)

	if code := call(t, ot.user, http.MethodPost, ot.URL+"/orders", nil, nil, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("checkout beyond stock: want 422, got %d", code)
	}

	if code := call(t, ot.user, http.MethodDelete, ot.URL+"/cart", nil, nil, nil); code != http.StatusNoContent {
		t.Fatalf("clearing cart: status %d", code)
	}
}

func (ot *orderTest) products(t *testing.T) {
	in := product.ProductNew{Slug: "scarf", Name: "Scarf", Price: decimal.RequireFromString("12.00"), CountInStock: 1}

	if code := call(t, ot.user, http.MethodPost, ot.URL+"/admin/products", nil, in, nil); code != http.StatusForbidden {
		t.Fatalf("user creating a product: want 403, got %d", code)
	}

	var p product.Product
	if code := call(t, ot.admin, http.MethodPost, ot.URL+"/admin/products", nil, in, &p); code != http.StatusCreated {
		t.Fatalf("creating a product: status %d", code)
	}

	stock := 6
	if code := call(t, ot.admin, http.MethodPut, ot.URL+"/admin/products/"+p.ID, nil, product.StockUp{CountInStock: &stock}, nil); code != http.StatusOK {
		t.Fatalf("updating stock: status %d", code)
	}

	var got product.Product
	if code := call(t, ot.user, http.MethodGet, ot.URL+"/products/"+p.ID, nil, nil, &got); code != http.StatusOK {
		t.Fatalf("reading product: status %d", code)
	}
	if got.Name != "Scarf" || got.CountInStock != 6 {
		t.Fatalf("unexpected product: %+v", got)
	}
}

func (ot *orderTest) summary(t *testing.T, paid int, sales string) {
	var sum order.Summary
	if code := call(t, ot.admin, http.MethodGet, ot.URL+"/admin/summary", nil, nil, &sum); code != http.StatusOK {
		t.Fatalf("summary: status %d", code)
	}
	if sum.Orders != paid || sum.Paid != paid || sum.Sales.StringFixed(2) != sales {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.Products != 3 {
		t.Fatalf("products count: want 3, got %d", sum.Products)
	}
	if len(sum.SalesData) != 1 || sum.SalesData[0].TotalSales.StringFixed(2) != sales {
		t.Fatalf("unexpected sales data: %+v", sum.SalesData)
	}
}
