package product

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/storefront/api/web"
	"github.com/irsalhamdi/storefront/api/weberr"
	"github.com/irsalhamdi/storefront/validate"
	"github.com/shopspring/decimal"
)

// Writer is the catalog's write side, backed by the Store.
type Writer interface {
	Fetcher
	Create(ctx context.Context, p Product) error
	UpdateStock(ctx context.Context, id string, count int) error
}

// Catalog is the cached read side. Entries are dropped after a write so
// shoppers see the new stock before the TTL runs out.
type Catalog interface {
	Fetcher
	Invalidate(ctx context.Context, id string) error
}

type ProductNew struct {
	Slug         string          `json:"slug" validate:"required"`
	Name         string          `json:"name" validate:"required"`
	Brand        string          `json:"brand"`
	Category     string          `json:"category"`
	ImageRef     string          `json:"image"`
	Price        decimal.Decimal `json:"price" validate:"gte=0"`
	CountInStock int             `json:"countInStock" validate:"gte=0"`
}

type StockUp struct {
	CountInStock *int `json:"countInStock" validate:"required,gte=0"`
}

func HandleShow(catalog Fetcher) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")

		p, err := catalog.Fetch(ctx, id)
		if err != nil {
			return toWebErr(err)
		}

		return web.Respond(ctx, w, p, http.StatusOK)
	}
}

func HandleCreate(store Writer) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in ProductNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}
		if !in.Price.Equal(in.Price.Round(2)) {
			err := fmt.Errorf("price %s has a fraction of a cent", in.Price)
			return weberr.NewError(err, "price must be in whole cents", http.StatusBadRequest)
		}

		now := time.Now().UTC()
		p := Product{
			ID:           validate.GenerateID(),
			Slug:         in.Slug,
			Name:         in.Name,
			Brand:        in.Brand,
			Category:     in.Category,
			ImageRef:     in.ImageRef,
			Price:        in.Price,
			CountInStock: in.CountInStock,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := store.Create(ctx, p); err != nil {
			return toWebErr(err)
		}

		return web.Respond(ctx, w, p, http.StatusCreated)
	}
}

// HandleUpdateStock sets the stock of a product and drops its cached copy.
func HandleUpdateStock(store Writer, catalog Catalog) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")

		var in StockUp
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		if err := store.UpdateStock(ctx, id, *in.CountInStock); err != nil {
			return toWebErr(err)
		}

		if err := catalog.Invalidate(ctx, id); err != nil {
			return fmt.Errorf("invalidating product[%s]: %w", id, err)
		}

		p, err := store.Fetch(ctx, id)
		if err != nil {
			return toWebErr(err)
		}

		return web.Respond(ctx, w, p, http.StatusOK)
	}
}

func toWebErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return weberr.NotFound(err)
	case errors.Is(err, ErrDuplicate):
		return weberr.NewError(err, "a product with this slug already exists", http.StatusConflict)
	}
	return err
}
