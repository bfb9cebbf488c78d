// Package cart holds the shopping cart aggregate: the line items a shopper
// selected together with their shipping and payment choices. A Cart is a
// value; every operation returns a new Cart and leaves the receiver intact.
package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PayPal         PaymentMethod = "PayPal"
	Stripe         PaymentMethod = "Stripe"
	CashOnDelivery PaymentMethod = "CashOnDelivery"
)

// PaymentMethods lists the accepted methods in display order.
var PaymentMethods = []PaymentMethod{PayPal, Stripe, CashOnDelivery}

func (m PaymentMethod) Valid() bool {
	for _, pm := range PaymentMethods {
		if m == pm {
			return true
		}
	}
	return false
}

var (
	ErrInvalidPaymentMethod = errors.New("unknown payment method")
	ErrInvalidItem          = errors.New("invalid line item")
)

type LineItem struct {
	ProductID string          `json:"productId" validate:"required"`
	Slug      string          `json:"slug"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice" validate:"gte=0"`
	Quantity  int             `json:"quantity" validate:"gte=1"`
	ImageRef  string          `json:"imageRef"`
}

// WholeCents reports whether the unit price has no fraction of a cent.
// Payment providers charge per line in cents, so finer prices cannot be paid.
func (li LineItem) WholeCents() bool {
	return li.UnitPrice.Equal(li.UnitPrice.Round(2))
}

// Subtotal is the unrounded price of the line.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type ShippingAddress struct {
	FullName   string `json:"fullName" validate:"required"`
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

type Cart struct {
	Items           []LineItem       `json:"items"`
	ShippingAddress *ShippingAddress `json:"shippingAddress,omitempty"`
	PaymentMethod   PaymentMethod    `json:"paymentMethod,omitempty"`
}

// Item returns the line for productID.
func (c Cart) Item(productID string) (LineItem, bool) {
	if i := c.index(productID); i >= 0 {
		return c.Items[i], true
	}
	return LineItem{}, false
}

// Count is the number of units across all lines.
func (c Cart) Count() int {
	var n int
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

func (c Cart) Empty() bool { return len(c.Items) == 0 }

// AddItem merges item into the cart. An existing line for the same product
// has its quantity increased by requested; otherwise a new line is appended
// with the requested quantity. Stock is not consulted here.
func (c Cart) AddItem(item LineItem, requested int) (Cart, error) {
	if item.ProductID == "" || requested < 1 || item.UnitPrice.IsNegative() || !item.WholeCents() {
		return c, fmt.Errorf("%w: product[%s] quantity[%d]", ErrInvalidItem, item.ProductID, requested)
	}

	out := c.clone()
	if i := out.index(item.ProductID); i >= 0 {
		out.Items[i].Quantity += requested
		return out, nil
	}

	item.Quantity = requested
	out.Items = append(out.Items, item)
	return out, nil
}

// RemoveItem drops the line for productID. Removing a product that is not
// in the cart is not an error.
func (c Cart) RemoveItem(productID string) Cart {
	out := c.clone()
	if i := out.index(productID); i >= 0 {
		out.Items = append(out.Items[:i], out.Items[i+1:]...)
	}
	return out
}

// SetQuantity replaces the quantity of an existing line. A quantity of zero
// or less removes it.
func (c Cart) SetQuantity(productID string, quantity int) Cart {
	if quantity <= 0 {
		return c.RemoveItem(productID)
	}

	out := c.clone()
	if i := out.index(productID); i >= 0 {
		out.Items[i].Quantity = quantity
	}
	return out
}

func (c Cart) WithShippingAddress(addr ShippingAddress) Cart {
	out := c.clone()
	out.ShippingAddress = &addr
	return out
}

func (c Cart) WithPaymentMethod(m PaymentMethod) (Cart, error) {
	if !m.Valid() {
		return c, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, m)
	}
	out := c.clone()
	out.PaymentMethod = m
	return out, nil
}

func (c Cart) index(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c Cart) clone() Cart {
	out := c
	out.Items = make([]LineItem, len(c.Items))
	copy(out.Items, c.Items)
	if c.ShippingAddress != nil {
		addr := *c.ShippingAddress
		out.ShippingAddress = &addr
	}
	return out
}
