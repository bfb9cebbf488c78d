package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/storefront/core/cart"
	"github.com/irsalhamdi/storefront/core/payment"
	"github.com/irsalhamdi/storefront/database"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type dbOrder struct {
	ID             string          `db:"order_id"`
	UserID         sql.NullString  `db:"user_id"`
	IdempotencyKey sql.NullString  `db:"idempotency_key"`
	FullName       string          `db:"shipping_full_name"`
	Address        string          `db:"shipping_address"`
	City           string          `db:"shipping_city"`
	PostalCode     string          `db:"shipping_postal_code"`
	Country        string          `db:"shipping_country"`
	PaymentMethod  string          `db:"payment_method"`
	ItemsPrice     decimal.Decimal `db:"items_price"`
	TaxPrice       decimal.Decimal `db:"tax_price"`
	ShippingPrice  decimal.Decimal `db:"shipping_price"`
	TotalPrice     decimal.Decimal `db:"total_price"`
	IsPaid         bool            `db:"is_paid"`
	PaidAt         sql.NullTime    `db:"paid_at"`
	PaymentResult  sql.NullString  `db:"payment_result"`
	IsDelivered    bool            `db:"is_delivered"`
	DeliveredAt    sql.NullTime    `db:"delivered_at"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
	Version        int             `db:"version"`
}

type dbItem struct {
	OrderID   string          `db:"order_id"`
	ProductID string          `db:"product_id"`
	Position  int             `db:"position"`
	Slug      string          `db:"slug"`
	Name      string          `db:"name"`
	UnitPrice decimal.Decimal `db:"unit_price"`
	Quantity  int             `db:"quantity"`
	ImageRef  string          `db:"image_ref"`
}

const orderColumns = `
	order_id, user_id, idempotency_key,
	shipping_full_name, shipping_address, shipping_city, shipping_postal_code, shipping_country,
	payment_method, items_price, tax_price, shipping_price, total_price,
	is_paid, paid_at, payment_result, is_delivered, delivered_at,
	created_at, updated_at, version`

func toDBOrder(o Order) (dbOrder, error) {
	dbo := dbOrder{
		ID:             o.ID,
		IdempotencyKey: sql.NullString{String: o.IdempotencyKey, Valid: o.IdempotencyKey != ""},
		FullName:       o.ShippingAddress.FullName,
		Address:        o.ShippingAddress.Address,
		City:           o.ShippingAddress.City,
		PostalCode:     o.ShippingAddress.PostalCode,
		Country:        o.ShippingAddress.Country,
		PaymentMethod:  string(o.PaymentMethod),
		ItemsPrice:     o.ItemsPrice,
		TaxPrice:       o.TaxPrice,
		ShippingPrice:  o.ShippingPrice,
		TotalPrice:     o.TotalPrice,
		IsPaid:         o.IsPaid,
		IsDelivered:    o.IsDelivered,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
		Version:        o.Version,
	}

	if o.UserID != nil {
		dbo.UserID = sql.NullString{String: *o.UserID, Valid: true}
	}
	if o.PaidAt != nil {
		dbo.PaidAt = sql.NullTime{Time: *o.PaidAt, Valid: true}
	}
	if o.DeliveredAt != nil {
		dbo.DeliveredAt = sql.NullTime{Time: *o.DeliveredAt, Valid: true}
	}
	if o.PaymentResult != nil {
		b, err := json.Marshal(o.PaymentResult)
		if err != nil {
			return dbOrder{}, fmt.Errorf("encoding payment result: %w", err)
		}
		dbo.PaymentResult = sql.NullString{String: string(b), Valid: true}
	}

	return dbo, nil
}

func toOrder(dbo dbOrder, items []dbItem) (Order, error) {
	o := Order{
		ID:             dbo.ID,
		IdempotencyKey: dbo.IdempotencyKey.String,
		ShippingAddress: cart.ShippingAddress{
			FullName:   dbo.FullName,
			Address:    dbo.Address,
			City:       dbo.City,
			PostalCode: dbo.PostalCode,
			Country:    dbo.Country,
		},
		PaymentMethod: cart.PaymentMethod(dbo.PaymentMethod),
		Totals: cart.Totals{
			ItemsPrice:    dbo.ItemsPrice,
			TaxPrice:      dbo.TaxPrice,
			ShippingPrice: dbo.ShippingPrice,
			TotalPrice:    dbo.TotalPrice,
		},
		IsPaid:      dbo.IsPaid,
		IsDelivered: dbo.IsDelivered,
		CreatedAt:   dbo.CreatedAt.UTC(),
		UpdatedAt:   dbo.UpdatedAt.UTC(),
		Version:     dbo.Version,
		Items:       make([]cart.LineItem, 0, len(items)),
	}

	if dbo.UserID.Valid {
		uid := dbo.UserID.String
		o.UserID = &uid
	}
	if dbo.PaidAt.Valid {
		t := dbo.PaidAt.Time.UTC()
		o.PaidAt = &t
	}
	if dbo.DeliveredAt.Valid {
		t := dbo.DeliveredAt.Time.UTC()
		o.DeliveredAt = &t
	}
	if dbo.PaymentResult.Valid {
		var rcpt payment.Receipt
		if err := json.Unmarshal([]byte(dbo.PaymentResult.String), &rcpt); err != nil {
			return Order{}, fmt.Errorf("decoding payment result of order[%s]: %w", dbo.ID, err)
		}
		o.PaymentResult = &rcpt
	}

	for _, it := range items {
		o.Items = append(o.Items, cart.LineItem{
			ProductID: it.ProductID,
			Slug:      it.Slug,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			ImageRef:  it.ImageRef,
		})
	}

	return o, nil
}

// DBStore keeps orders in PostgreSQL. Updates lock the order row for the
// duration of the read-modify-write and bump its version.
type DBStore struct {
	db *sqlx.DB
}

func NewDBStore(db *sqlx.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) Create(ctx context.Context, o Order) error {
	dbo, err := toDBOrder(o)
	if err != nil {
		return err
	}

	const qOrder = `
	INSERT INTO orders (` + orderColumns + `)
	VALUES (
		:order_id, :user_id, :idempotency_key,
		:shipping_full_name, :shipping_address, :shipping_city, :shipping_postal_code, :shipping_country,
		:payment_method, :items_price, :tax_price, :shipping_price, :total_price,
		:is_paid, :paid_at, :payment_result, :is_delivered, :delivered_at,
		:created_at, :updated_at, :version
	)`

	const qItem = `
	INSERT INTO order_items
		(order_id, product_id, position, slug, name, unit_price, quantity, image_ref)
	VALUES
		(:order_id, :product_id, :position, :slug, :name, :unit_price, :quantity, :image_ref)`

	return database.Transaction(ctx, s.db, func(tx sqlx.ExtContext) error {
		if _, err := sqlx.NamedExecContext(ctx, tx, qOrder, dbo); err != nil {
			if database.Duplicated(err) && dbo.IdempotencyKey.Valid {
				return ErrDuplicateKey
			}
			return fmt.Errorf("inserting order[%s]: %w", o.ID, err)
		}

		for i, it := range o.Items {
			dbi := dbItem{
				OrderID:   o.ID,
				ProductID: it.ProductID,
				Position:  i,
				Slug:      it.Slug,
				Name:      it.Name,
				UnitPrice: it.UnitPrice,
				Quantity:  it.Quantity,
				ImageRef:  it.ImageRef,
			}
			if _, err := sqlx.NamedExecContext(ctx, tx, qItem, dbi); err != nil {
				return fmt.Errorf("inserting item[%s] of order[%s]: %w", it.ProductID, o.ID, err)
			}
		}

		return nil
	})
}

func (s *DBStore) Fetch(ctx context.Context, id string) (Order, error) {
	return fetch(ctx, s.db, `WHERE order_id = $1`, id)
}

func (s *DBStore) FetchByIdempotencyKey(ctx context.Context, userID string, key string) (Order, error) {
	o, err := fetch(ctx, s.db, `WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return Order{}, &NotFoundError{OrderID: key}
		}
		return Order{}, err
	}
	return o, nil
}

func (s *DBStore) Update(ctx context.Context, id string, fn UpdateFunc) (Order, bool, error) {
	const q = `
	UPDATE orders SET
		is_paid = :is_paid,
		paid_at = :paid_at,
		payment_result = :payment_result,
		is_delivered = :is_delivered,
		delivered_at = :delivered_at,
		updated_at = :updated_at,
		version = :version
	WHERE order_id = :order_id AND version = :version - 1`

	var (
		out     Order
		applied bool
	)

	err := database.Transaction(ctx, s.db, func(tx sqlx.ExtContext) error {
		cur, err := fetch(ctx, tx, `WHERE order_id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}

		next, changed, err := fn(cur.clone())
		if err != nil {
			return err
		}
		if !changed {
			out = cur
			return nil
		}

		next.Version = cur.Version + 1
		next.UpdatedAt = time.Now().UTC()

		dbo, err := toDBOrder(next)
		if err != nil {
			return err
		}

		res, err := sqlx.NamedExecContext(ctx, tx, q, dbo)
		if err != nil {
			return fmt.Errorf("updating order[%s]: %w", id, err)
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			return fmt.Errorf("updating order[%s]: version %d changed concurrently", id, cur.Version)
		}

		out, applied = next, true
		return nil
	})
	if err != nil {
		return Order{}, false, err
	}

	return out, applied, nil
}

func (s *DBStore) QueryByUser(ctx context.Context, userID string) ([]Order, error) {
	return query(ctx, s.db, `WHERE user_id = $1 ORDER BY created_at DESC, order_id DESC`, userID)
}

func (s *DBStore) Query(ctx context.Context) ([]Order, error) {
	return query(ctx, s.db, `ORDER BY created_at DESC, order_id DESC`)
}

func (s *DBStore) Summary(ctx context.Context) (Summary, error) {
	const q = `
	SELECT
		COUNT(*) AS orders,
		COUNT(*) FILTER (WHERE is_paid) AS paid,
		COALESCE(SUM(total_price) FILTER (WHERE is_paid), 0) AS sales
	FROM orders`

	const qSales = `
	SELECT
		to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM') AS period,
		SUM(total_price) AS total_sales
	FROM orders
	WHERE is_paid
	GROUP BY period
	ORDER BY period`

	var sum Summary
	if err := s.db.GetContext(ctx, &sum, q); err != nil {
		return Summary{}, fmt.Errorf("selecting order summary: %w", err)
	}

	sum.SalesData = []PeriodSales{}
	if err := s.db.SelectContext(ctx, &sum.SalesData, qSales); err != nil {
		return Summary{}, fmt.Errorf("selecting sales per period: %w", err)
	}
	return sum, nil
}

func (s *DBStore) DetachUser(ctx context.Context, userID string) error {
	const q = `UPDATE orders SET user_id = NULL, updated_at = $2 WHERE user_id = $1`

	if _, err := s.db.ExecContext(ctx, q, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("detaching orders of user[%s]: %w", userID, err)
	}
	return nil
}

func fetch(ctx context.Context, db sqlx.QueryerContext, where string, args ...any) (Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders ` + where

	var dbo dbOrder
	if err := sqlx.GetContext(ctx, db, &dbo, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			id, _ := args[0].(string)
			return Order{}, &NotFoundError{OrderID: id}
		}
		return Order{}, fmt.Errorf("selecting order: %w", err)
	}

	items, err := fetchItems(ctx, db, []string{dbo.ID})
	if err != nil {
		return Order{}, err
	}

	return toOrder(dbo, items[dbo.ID])
}

func query(ctx context.Context, db sqlx.QueryerContext, tail string, args ...any) ([]Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders ` + tail

	var dbos []dbOrder
	if err := sqlx.SelectContext(ctx, db, &dbos, q, args...); err != nil {
		return nil, fmt.Errorf("selecting orders: %w", err)
	}

	ids := make([]string, len(dbos))
	for i, dbo := range dbos {
		ids[i] = dbo.ID
	}

	items, err := fetchItems(ctx, db, ids)
	if err != nil {
		return nil, err
	}

	orders := make([]Order, 0, len(dbos))
	for _, dbo := range dbos {
		o, err := toOrder(dbo, items[dbo.ID])
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func fetchItems(ctx context.Context, db sqlx.QueryerContext, orderIDs []string) (map[string][]dbItem, error) {
	const q = `
	SELECT order_id, product_id, position, slug, name, unit_price, quantity, image_ref
	FROM order_items
	WHERE order_id = ANY($1)
	ORDER BY order_id, position`

	byOrder := make(map[string][]dbItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return byOrder, nil
	}

	var items []dbItem
	if err := sqlx.SelectContext(ctx, db, &items, q, pq.Array(orderIDs)); err != nil {
		return nil, fmt.Errorf("selecting order items: %w", err)
	}

	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	return byOrder, nil
}
