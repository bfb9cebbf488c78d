package test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/storefront/api"
	"github.com/irsalhamdi/storefront/api/middleware"
	"github.com/irsalhamdi/storefront/config"
	"github.com/irsalhamdi/storefront/core/order"
	"github.com/irsalhamdi/storefront/core/product"
	"github.com/irsalhamdi/storefront/rate"
	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

const webhookSecret = "whsec_integration"

// catalog serves both the add-to-cart lookups and the checkout stock checks.
type catalog struct {
	mu       sync.Mutex
	products map[string]product.Product
}

func (c *catalog) Fetch(ctx context.Context, id string) (product.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[id]
	if !ok {
		return product.Product{}, fmt.Errorf("product[%s]: %w", id, product.ErrNotFound)
	}
	return p, nil
}

func (c *catalog) CountInStock(ctx context.Context, id string) (int, error) {
	p, err := c.Fetch(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.CountInStock, nil
}

func (c *catalog) CountProducts(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.products), nil
}

func (c *catalog) Create(ctx context.Context, p product.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cur := range c.products {
		if cur.ID == p.ID || cur.Slug == p.Slug {
			return fmt.Errorf("product[%s]: %w", p.ID, product.ErrDuplicate)
		}
	}
	c.products[p.ID] = p
	return nil
}

func (c *catalog) UpdateStock(ctx context.Context, id string, count int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[id]
	if !ok {
		return fmt.Errorf("product[%s]: %w", id, product.ErrNotFound)
	}
	p.CountInStock = count
	c.products[id] = p
	return nil
}

// Invalidate is a no-op: reads go straight to the map.
func (c *catalog) Invalidate(ctx context.Context, id string) error { return nil }

func (c *catalog) setStock(id string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.products[id]
	p.CountInStock = n
	c.products[id] = p
}

type TestEnv struct {
	*httptest.Server
	Catalog *catalog
	Paypal  *mockPaypal
	Stripe  *mockStripe
}

func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	cat := &catalog{products: map[string]product.Product{
		"p1": {ID: "p1", Slug: "shirt", Name: "Shirt", Price: decimal.RequireFromString("25.00"), CountInStock: 10},
		"p2": {ID: "p2", Slug: "coat", Name: "Coat", Price: decimal.RequireFromString("180.00"), CountInStock: 2},
	}}

	pm := &mockPaypal{}
	ppSrv := httptest.NewServer(pm.handle())
	t.Cleanup(ppSrv.Close)

	pp, err := paypal.NewClient("client", "secret", ppSrv.URL)
	if err != nil {
		t.Fatalf("building paypal client: %v", err)
	}

	sm := &mockStripe{}
	stSrv := httptest.NewServer(sm.handle())
	t.Cleanup(stSrv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL: stripe.String(stSrv.URL),
	})
	strp := &stripecl.API{}
	strp.Init("sk_test_integration", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	session := scs.New()

	limiter := rate.NewLimiter(1000, time.Minute, rate.Every(time.Millisecond))
	t.Cleanup(limiter.Close)

	mux := api.APIMux(api.APIConfig{
		Log:            log,
		Session:        session,
		Engine:         order.NewEngine(order.NewMemoryStore(), cat, log),
		Catalog:        cat,
		Products:       cat,
		Limiter:        limiter,
		Paypal:         pp,
		PaypalCurrency: "USD",
		Stripe:         strp,
		StripeCfg: config.Stripe{
			WebhookSecret: webhookSecret,
			SuccessURL:    "http://shop.test/success",
			CancelURL:     "http://shop.test/cancel",
			Currency:      "usd",
		},
	})

	// Logging in is outside this service; tests seed the session directly.
	login := session.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session.Put(r.Context(), middleware.SessionUserID, r.URL.Query().Get("user"))
		session.Put(r.Context(), middleware.SessionRole, r.URL.Query().Get("role"))
		w.WriteHeader(http.StatusNoContent)
	}))

	root := http.NewServeMux()
	root.Handle("/test/login", login)
	root.Handle("/", mux)

	srv := httptest.NewServer(root)
	t.Cleanup(srv.Close)

	return &TestEnv{
		Server:  srv,
		Catalog: cat,
		Paypal:  pm,
		Stripe:  sm,
	}
}

// NewClient returns a client with its own cookie jar, logged in as user.
// An empty user stays anonymous.
func (env *TestEnv) NewClient(t *testing.T, user, role string) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	c := &http.Client{Jar: jar}

	if user == "" {
		return c
	}

	resp, err := c.Post(env.URL+"/test/login?user="+user+"&role="+role, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("login as %s: status %s", user, resp.Status)
	}
	return c
}
