package cart

import (
	"errors"
	"fmt"

	"github.com/irsalhamdi/storefront/validate"
)

var (
	ErrInvalidAddress = errors.New("invalid shipping address")
	ErrUnknownCommand = errors.New("unknown cart command")
)

// Command is one mutation of a cart. The concrete commands below are the
// only implementations.
type Command interface {
	command()
}

type AddItem struct {
	Item     LineItem
	Quantity int
}

type RemoveItem struct {
	ProductID string
}

type SetQuantity struct {
	ProductID string
	Quantity  int
}

type SaveShippingAddress struct {
	Address ShippingAddress
}

type SavePaymentMethod struct {
	Method PaymentMethod
}

type Clear struct{}

func (AddItem) command()             {}
func (RemoveItem) command()          {}
func (SetQuantity) command()         {}
func (SaveShippingAddress) command() {}
func (SavePaymentMethod) command()   {}
func (Clear) command()               {}

// Apply returns the cart that results from running cmd against c.
func Apply(c Cart, cmd Command) (Cart, error) {
	switch cmd := cmd.(type) {
	case AddItem:
		return c.AddItem(cmd.Item, cmd.Quantity)

	case RemoveItem:
		return c.RemoveItem(cmd.ProductID), nil

	case SetQuantity:
		return c.SetQuantity(cmd.ProductID, cmd.Quantity), nil

	case SaveShippingAddress:
		if err := validate.Check(cmd.Address); err != nil {
			return c, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		return c.WithShippingAddress(cmd.Address), nil

	case SavePaymentMethod:
		return c.WithPaymentMethod(cmd.Method)

	case Clear:
		// Shipping and payment choices survive a cleared cart.
		out := c.clone()
		out.Items = nil
		return out, nil
	}

	return c, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
}
