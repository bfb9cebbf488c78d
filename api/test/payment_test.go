package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/storefront/api/web"
	"github.com/plutov/paypal/v4"
	mock "github.com/stripe/stripe-mock/param"
)

// mockPaypal accepts orders whose single purchase unit charges the expected
// total and completes every capture for that total.
type mockPaypal struct {
	mu       sync.Mutex
	expected string
	orders   map[string]string
}

func (m *mockPaypal) expect(total string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expected = total
}

func (m *mockPaypal) handle() http.Handler {
	token := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		web.Respond(context.Background(), w, map[string]any{
			"access_token": "A21AA",
			"token_type":   "Bearer",
			"expires_in":   3600,
		}, 200)
	})

	checkout := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var pu struct {
			Units []paypal.PurchaseUnitRequest `json:"purchase_units"`
		}
		if err := json.NewDecoder(r.Body).Decode(&pu); err != nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		if len(pu.Units) != 1 {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		if pu.Units[0].Amount.Value != m.expected {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		if m.orders == nil {
			m.orders = make(map[string]string)
		}
		id := fmt.Sprintf("paypal-%d", len(m.orders)+1)
		m.orders[id] = pu.Units[0].ReferenceID

		web.Respond(context.Background(), w, paypal.Order{ID: id, Status: "CREATED"}, 201)
	})

	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		m.mu.Lock()
		ref, ok := m.orders[id]
		total := m.expected
		m.mu.Unlock()

		if !ok {
			web.Respond(context.Background(), w, nil, 404)
			return
		}

		web.Respond(context.Background(), w, map[string]any{
			"id":     id,
			"status": "COMPLETED",
			"purchase_units": []any{map[string]any{
				"reference_id": ref,
				"payments": map[string]any{
					"captures": []any{map[string]any{
						"id":     "capture-" + id,
						"amount": map[string]any{"currency_code": "USD", "value": total},
					}},
				},
			}},
		}, 201)
	})

	r := mux.NewRouter()
	r.Handle("/v1/oauth2/token", token).Methods("POST")
	r.Handle("/v2/checkout/orders", checkout).Methods("POST")
	r.Handle("/v2/checkout/orders/{id}/capture", capture).Methods("POST")
	return r
}

// mockStripe creates checkout sessions when the line items add up to the
// expected amount in cents.
type mockStripe struct {
	mu       sync.Mutex
	expected int64
	sessions int
}

func (m *mockStripe) expect(cents int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expected = cents
}

func (m *mockStripe) handle() http.Handler {
	checkout := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := mock.ParseParams(r)
		if err != nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		var lines []any
		switch li := params["line_items"].(type) {
		case []any:
			lines = li
		case map[string]any:
			for _, v := range li {
				lines = append(lines, v)
			}
		}

		var tot int64
		for _, li := range lines {
			it := li.(map[string]any)

			qty, err := strconv.ParseInt(fmt.Sprint(it["quantity"]), 10, 64)
			if err != nil {
				web.Respond(context.Background(), w, nil, 400)
				return
			}

			pd := it["price_data"].(map[string]any)
			amount, err := strconv.ParseInt(fmt.Sprint(pd["unit_amount"]), 10, 64)
			if err != nil {
				web.Respond(context.Background(), w, nil, 400)
				return
			}

			tot += qty * amount
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		if tot != m.expected || params["client_reference_id"] == nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		m.sessions++
		id := fmt.Sprintf("cs_test_%d", m.sessions)
		sess := map[string]any{
			"id":                  id,
			"object":              "checkout.session",
			"url":                 "https://checkout.stripe.test/pay/" + id,
			"client_reference_id": params["client_reference_id"],
		}
		web.Respond(context.Background(), w, sess, 200)
	})

	r := mux.NewRouter()
	r.Handle("/v1/checkout/sessions", checkout).Methods("POST")
	return r
}
