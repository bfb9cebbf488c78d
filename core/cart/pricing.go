package cart

import "github.com/shopspring/decimal"

var (
	freeShippingOver = decimal.NewFromInt(200)
	flatShippingFee  = decimal.NewFromInt(15)
	taxRate          = decimal.RequireFromString("0.15")
)

// Totals is the price breakdown of a cart. Each term is already rounded to
// cents, and TotalPrice is their exact sum.
type Totals struct {
	ItemsPrice    decimal.Decimal `json:"itemsPrice"`
	TaxPrice      decimal.Decimal `json:"taxPrice"`
	ShippingPrice decimal.Decimal `json:"shippingPrice"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
}

// Round2 rounds half away from zero to two decimal places, which is half-up
// for the non-negative amounts a cart produces.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ItemsTotal sums unit price times quantity over all lines and rounds the
// final sum, not each line.
func (c Cart) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.Items {
		sum = sum.Add(it.Subtotal())
	}
	return Round2(sum)
}

func ShippingFee(itemsTotal decimal.Decimal) decimal.Decimal {
	if itemsTotal.GreaterThan(freeShippingOver) {
		return decimal.Zero
	}
	return flatShippingFee
}

func Tax(itemsTotal decimal.Decimal) decimal.Decimal {
	return Round2(itemsTotal.Mul(taxRate))
}

func (c Cart) GrandTotal() decimal.Decimal {
	return c.Totals().TotalPrice
}

func (c Cart) Totals() Totals {
	items := c.ItemsTotal()
	shipping := ShippingFee(items)
	tax := Tax(items)

	return Totals{
		ItemsPrice:    items,
		TaxPrice:      tax,
		ShippingPrice: shipping,
		TotalPrice:    items.Add(shipping).Add(tax),
	}
}
