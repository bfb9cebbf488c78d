package order

import (
	"fmt"
	"time"

	"github.com/irsalhamdi/storefront/core/payment"
	"github.com/irsalhamdi/storefront/validate"
)

// Event advances an order. PaymentCaptured and DeliveryConfirmed are the
// only implementations.
type Event interface {
	event()
}

type PaymentCaptured struct {
	Receipt payment.Receipt
	At      time.Time
}

type DeliveryConfirmed struct {
	At time.Time
}

func (PaymentCaptured) event()   {}
func (DeliveryConfirmed) event() {}

// Apply returns the order that results from ev and whether ev changed it.
// Replaying an event that already happened is a successful no-op.
func Apply(o Order, ev Event) (Order, bool, error) {
	switch ev := ev.(type) {
	case PaymentCaptured:
		if o.IsPaid {
			return o, false, nil
		}

		if err := validate.Check(ev.Receipt); err != nil {
			return o, false, fmt.Errorf("%w: %v", ErrPaymentMismatch, err)
		}

		if !ev.Receipt.Covers(o.TotalPrice) {
			return o, false, fmt.Errorf("%w: receipt[%s] pays %s of %s",
				ErrPaymentMismatch, ev.Receipt.ID, ev.Receipt.Amount.StringFixed(2), o.TotalPrice.StringFixed(2))
		}

		out := o.clone()
		at := ev.At.UTC()
		rcpt := ev.Receipt
		out.IsPaid = true
		out.PaidAt = &at
		out.PaymentResult = &rcpt
		return out, true, nil

	case DeliveryConfirmed:
		if o.IsDelivered {
			return o, false, nil
		}

		if !o.IsPaid {
			return o, false, fmt.Errorf("order[%s]: %w", o.ID, ErrNotPaid)
		}

		out := o.clone()
		at := ev.At.UTC()
		out.IsDelivered = true
		out.DeliveredAt = &at
		return out, true, nil
	}

	return o, false, fmt.Errorf("unknown order event %T", ev)
}
