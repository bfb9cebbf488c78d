package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/storefront/core/cart"
	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"
)

const paypalCompleted = "COMPLETED"

// PaypalUnits describes an order's totals as a single PayPal purchase unit
// referencing the order id.
func PaypalUnits(orderID string, t cart.Totals, currency string) []paypal.PurchaseUnitRequest {
	money := func(d decimal.Decimal) *paypal.Money {
		return &paypal.Money{Currency: currency, Value: d.StringFixed(2)}
	}

	return []paypal.PurchaseUnitRequest{{
		ReferenceID: orderID,

		Amount: &paypal.PurchaseUnitAmount{
			Currency: currency,
			Value:    t.TotalPrice.StringFixed(2),

			Breakdown: &paypal.PurchaseUnitAmountBreakdown{
				ItemTotal: money(t.ItemsPrice),
				TaxTotal:  money(t.TaxPrice),
				Shipping:  money(t.ShippingPrice),
			},
		},
	}}
}

// PaypalReceipt extracts the captured amount from a completed capture
// response.
func PaypalReceipt(resp *paypal.CaptureOrderResponse, now time.Time) (Receipt, error) {
	if resp == nil {
		return Receipt{}, errors.New("empty paypal capture response")
	}

	if resp.Status != paypalCompleted {
		return Receipt{}, fmt.Errorf("%w: paypal order[%s] has status[%s]", ErrNotCaptured, resp.ID, resp.Status)
	}

	rcpt := Receipt{
		Provider:   ProviderPaypal,
		ID:         resp.ID,
		Status:     resp.Status,
		Amount:     decimal.Zero,
		CapturedAt: now,
	}

	if resp.Payer != nil {
		rcpt.EmailAddress = resp.Payer.EmailAddress
	}

	for _, pu := range resp.PurchaseUnits {
		if pu.Payments == nil {
			continue
		}

		for _, c := range pu.Payments.Captures {
			if c.Amount == nil {
				continue
			}

			v, err := decimal.NewFromString(c.Amount.Value)
			if err != nil {
				return Receipt{}, fmt.Errorf("parsing captured amount %q: %w", c.Amount.Value, err)
			}

			rcpt.Amount = rcpt.Amount.Add(v)
			rcpt.Currency = c.Amount.Currency
		}
	}

	return rcpt, nil
}
