package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/storefront/core/cart"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"
)

type StripeCheckout struct {
	SuccessURL string
	CancelURL  string
	Currency   string
}

// StripeSessionParams builds a checkout session charging exactly the order's
// total: one line per item plus tax and shipping lines.
func StripeSessionParams(orderID string, items []cart.LineItem, t cart.Totals, sc StripeCheckout) *stripe.CheckoutSessionParams {
	line := func(name string, unit decimal.Decimal, qty int) *stripe.CheckoutSessionLineItemParams {
		return &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(qty)),

			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(sc.Currency),
				UnitAmount: stripe.Int64(Cents(unit)),

				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
		}
	}

	li := make([]*stripe.CheckoutSessionLineItemParams, 0, len(items)+2)
	for _, it := range items {
		li = append(li, line(it.Name, it.UnitPrice, it.Quantity))
	}
	if t.TaxPrice.IsPositive() {
		li = append(li, line("Tax", t.TaxPrice, 1))
	}
	if t.ShippingPrice.IsPositive() {
		li = append(li, line("Shipping", t.ShippingPrice, 1))
	}

	return &stripe.CheckoutSessionParams{
		SuccessURL:        stripe.String(sc.SuccessURL),
		CancelURL:         stripe.String(sc.CancelURL),
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(orderID),
		LineItems:         li,
	}
}

// StripeReceipt turns a completed checkout session into a receipt.
func StripeReceipt(s stripe.CheckoutSession, now time.Time) (Receipt, error) {
	if s.ID == "" {
		return Receipt{}, errors.New("stripe session without id")
	}

	if s.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return Receipt{}, fmt.Errorf("%w: stripe session[%s] has payment status[%s]", ErrNotCaptured, s.ID, s.PaymentStatus)
	}

	rcpt := Receipt{
		Provider:   ProviderStripe,
		ID:         s.ID,
		Status:     string(s.PaymentStatus),
		Amount:     decimal.New(s.AmountTotal, -2),
		Currency:   string(s.Currency),
		CapturedAt: now,
	}

	if s.CustomerDetails != nil {
		rcpt.EmailAddress = s.CustomerDetails.Email
	}

	return rcpt, nil
}

// Cents converts an amount to the provider's minor unit.
func Cents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
