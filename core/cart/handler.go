package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/core/product"
	"github.com/irsalhamdi/storefront/validate"
)

const outOfStockMsg = "Sorry, Product is out of Stock!"

type ItemNew struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

type ItemUp struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

type PaymentUp struct {
	PaymentMethod PaymentMethod `json:"paymentMethod" validate:"required"`
}

// View is the cart as returned to clients.
type View struct {
	Cart
	Count  int    `json:"count"`
	Totals Totals `json:"totals"`
}

func NewView(c Cart) View {
	if c.Items == nil {
		c.Items = []LineItem{}
	}
	return View{Cart: c, Count: c.Count(), Totals: c.Totals()}
}

func HandleShow(sm *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		c, err := Load(ctx, sm)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, NewView(c), http.StatusOK)
	}
}

func HandleCreateItem(sm *scs.SessionManager, catalog product.Fetcher) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in ItemNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		c, err := Load(ctx, sm)
		if err != nil {
			return err
		}

		p, err := fetchProduct(ctx, catalog, in.ProductID)
		if err != nil {
			return err
		}

		cur, _ := c.Item(p.ID)
		if cur.Quantity+in.Quantity > p.CountInStock {
			return outOfStock(p, cur.Quantity+in.Quantity)
		}

		item := LineItem{
			ProductID: p.ID,
			Slug:      p.Slug,
			Name:      p.Name,
			UnitPrice: p.Price,
			ImageRef:  p.ImageRef,
		}

		c, err = Update(ctx, sm, AddItem{Item: item, Quantity: in.Quantity})
		if err != nil {
			return weberr.BadRequest(err)
		}

		return web.Respond(ctx, w, NewView(c), http.StatusOK)
	}
}

func HandleUpdateItem(sm *scs.SessionManager, catalog product.Fetcher) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		productID := web.Param(r, "product_id")

		var in ItemUp
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		if in.Quantity > 0 {
			p, err := fetchProduct(ctx, catalog, productID)
			if err != nil {
				return err
			}

			if in.Quantity > p.CountInStock {
				return outOfStock(p, in.Quantity)
			}
		}

		c, err := Update(ctx, sm, SetQuantity{ProductID: productID, Quantity: in.Quantity})
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, NewView(c), http.StatusOK)
	}
}

func HandleDeleteItem(sm *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		productID := web.Param(r, "product_id")

		c, err := Update(ctx, sm, RemoveItem{ProductID: productID})
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, NewView(c), http.StatusOK)
	}
}

func HandleSaveShipping(sm *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var addr ShippingAddress
		if err := web.Decode(w, r, &addr); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		c, err := Update(ctx, sm, SaveShippingAddress{Address: addr})
		if err != nil {
			if errors.Is(err, ErrInvalidAddress) {
				return weberr.NewError(err, err.Error(), http.StatusBadRequest)
			}
			return err
		}

		return web.Respond(ctx, w, NewView(c), http.StatusOK)
	}
}

func HandleSavePayment(sm *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in PaymentUp
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, "Payment method is required", http.StatusBadRequest)
		}

		c, err := Update(ctx, sm, SavePaymentMethod{Method: in.PaymentMethod})
		if err != nil {
			if errors.Is(err, ErrInvalidPaymentMethod) {
				return weberr.NewError(err, err.Error(), http.StatusBadRequest)
			}
			return err
		}

		return web.Respond(ctx, w, NewView(c), http.StatusOK)
	}
}

// HandleDelete discards the whole cart, including the shipping and payment
// selections.
func HandleDelete(sm *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		Drop(ctx, sm)

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func fetchProduct(ctx context.Context, catalog product.Fetcher, id string) (product.Product, error) {
	p, err := catalog.Fetch(ctx, id)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return product.Product{}, weberr.NotFound(err)
		}
		return product.Product{}, fmt.Errorf("fetching product[%s]: %w", id, err)
	}
	return p, nil
}

func outOfStock(p product.Product, wanted int) error {
	err := fmt.Errorf("product[%s] has %d in stock, %d requested", p.ID, p.CountInStock, wanted)
	return weberr.Unprocessable(err, outOfStockMsg, weberr.WithFields(map[string]interface{}{
		"product_id": p.ID,
	}))
}
