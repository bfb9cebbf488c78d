package product_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/irsalhamdi/storefront/core/product"
	"github.com/irsalhamdi/storefront/database/dbtest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	db := dbtest.NewDB(t)
	ctx := context.Background()
	store := product.NewStore(db)

	now := time.Now().UTC().Truncate(time.Microsecond)
	exp := product.Product{
		ID:           "p1",
		Slug:         "linen-shirt",
		Name:         "Linen Shirt",
		Brand:        "Acme",
		Category:     "Shirts",
		ImageRef:     "/images/p1.jpg",
		Price:        decimal.RequireFromString("39.90"),
		CountInStock: 7,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, store.Create(ctx, exp))

	dup := exp
	dup.ID = "p2"
	assert.ErrorIs(t, store.Create(ctx, dup), product.ErrDuplicate, "slug is unique")

	got, err := store.Fetch(ctx, "p1")
	require.NoError(t, err)

	opts := []cmp.Option{
		cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
		cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) }),
	}
	if diff := cmp.Diff(exp, got, opts...); diff != "" {
		t.Fatalf("product mismatch (-want +got):\n%s", diff)
	}

	count, err := store.CountProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	n, err := store.CountInStock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	require.NoError(t, store.UpdateStock(ctx, "p1", 2))
	n, err = store.CountInStock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = store.Fetch(ctx, "missing")
	assert.ErrorIs(t, err, product.ErrNotFound)

	_, err = store.CountInStock(ctx, "missing")
	assert.ErrorIs(t, err, product.ErrNotFound)

	assert.ErrorIs(t, store.UpdateStock(ctx, "missing", 1), product.ErrNotFound)
}
