package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/storefront/core/cart"
	"github.com/irsalhamdi/storefront/core/payment"
	"github.com/shopspring/decimal"
)

type Status string

const (
	Created   Status = "CREATED"
	Paid      Status = "PAID"
	Delivered Status = "DELIVERED"
)

// DeletedUser is shown in place of the owner of an order whose user no
// longer exists.
const DeletedUser = "deleted user"

// Order is the record of a checkout. After creation only the payment and
// delivery fields change, each of them once.
type Order struct {
	ID              string               `json:"id"`
	UserID          *string              `json:"userId"`
	IdempotencyKey  string               `json:"-"`
	Items           []cart.LineItem      `json:"items"`
	ShippingAddress cart.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   cart.PaymentMethod   `json:"paymentMethod"`
	cart.Totals
	IsPaid        bool             `json:"isPaid"`
	PaidAt        *time.Time       `json:"paidAt"`
	PaymentResult *payment.Receipt `json:"paymentResult"`
	IsDelivered   bool             `json:"isDelivered"`
	DeliveredAt   *time.Time       `json:"deliveredAt"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	Version       int              `json:"-"`
}

func (o Order) Status() Status {
	switch {
	case o.IsDelivered:
		return Delivered
	case o.IsPaid:
		return Paid
	}
	return Created
}

func (o Order) Owner() string {
	if o.UserID == nil {
		return DeletedUser
	}
	return *o.UserID
}

// clone deep-copies the parts of o that stores must not share.
func (o Order) clone() Order {
	out := o
	out.Items = make([]cart.LineItem, len(o.Items))
	copy(out.Items, o.Items)
	if o.UserID != nil {
		uid := *o.UserID
		out.UserID = &uid
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		out.PaidAt = &t
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		out.DeliveredAt = &t
	}
	if o.PaymentResult != nil {
		r := *o.PaymentResult
		out.PaymentResult = &r
	}
	return out
}

// Summary aggregates all orders for the back office.
type Summary struct {
	Orders    int             `json:"ordersCount" db:"orders"`
	Paid      int             `json:"paidCount" db:"paid"`
	Sales     decimal.Decimal `json:"sales" db:"sales"`
	Products  int             `json:"productsCount" db:"-"`
	SalesData []PeriodSales   `json:"salesData" db:"-"`
}

// PeriodSales is the paid total of the orders placed in one month.
type PeriodSales struct {
	Period     string          `json:"period" db:"period"`
	TotalSales decimal.Decimal `json:"totalSales" db:"total_sales"`
}

// SalesPeriod is the month an order placed at t is reported under.
func SalesPeriod(t time.Time) string {
	return t.UTC().Format("2006-01")
}

var (
	ErrInvalidCart     = errors.New("invalid cart")
	ErrOutOfStock      = errors.New("out of stock")
	ErrPaymentMismatch = errors.New("payment does not match the order")
	ErrNotPaid         = errors.New("order is not paid")
	ErrForbidden       = errors.New("actor is not allowed to act on this order")
	ErrNotFound        = errors.New("order not found")

	// ErrDuplicateKey is returned by stores when an idempotency key was
	// already used by the same user.
	ErrDuplicateKey = errors.New("idempotency key already used")
)

type OutOfStockError struct {
	ProductID string
	Requested int
	InStock   int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product[%s] out of stock: %d requested, %d available", e.ProductID, e.Requested, e.InStock)
}

func (e *OutOfStockError) Is(target error) bool { return target == ErrOutOfStock }

type NotFoundError struct {
	OrderID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order[%s] not found", e.OrderID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
