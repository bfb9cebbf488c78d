// Package payment turns payment-provider responses into receipts the order
// engine can check, and builds the provider requests for an order's totals.
package payment

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ProviderPaypal = "paypal"
	ProviderStripe = "stripe"
)

var ErrNotCaptured = errors.New("payment not captured")

// Receipt is the proof of a captured payment as reported by the provider.
type Receipt struct {
	Provider     string          `json:"provider" validate:"required"`
	ID           string          `json:"id" validate:"required"`
	Status       string          `json:"status"`
	Amount       decimal.Decimal `json:"amount" validate:"gte=0"`
	Currency     string          `json:"currency"`
	EmailAddress string          `json:"emailAddress,omitempty"`
	CapturedAt   time.Time       `json:"capturedAt"`
}

// InCurrency reports whether the receipt was captured in currency. Providers
// differ in the case of currency codes.
func (r Receipt) InCurrency(currency string) bool {
	return strings.EqualFold(r.Currency, currency)
}

// Covers reports whether the receipt pays for at least total.
func (r Receipt) Covers(total decimal.Decimal) bool {
	return r.Amount.GreaterThanOrEqual(total)
}
