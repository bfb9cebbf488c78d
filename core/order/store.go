package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// UpdateFunc computes the next state of an order. It reports whether the
// order changed; unchanged orders are not written back.
type UpdateFunc func(Order) (Order, bool, error)

// Store persists orders. Update must run fn and persist its result
// atomically with respect to other updates of the same order.
type Store interface {
	Create(ctx context.Context, o Order) error
	Fetch(ctx context.Context, id string) (Order, error)
	FetchByIdempotencyKey(ctx context.Context, userID string, key string) (Order, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (Order, bool, error)
	QueryByUser(ctx context.Context, userID string) ([]Order, error)
	Query(ctx context.Context) ([]Order, error)
	Summary(ctx context.Context) (Summary, error)
	DetachUser(ctx context.Context, userID string) error
}

// MemoryStore keeps orders in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]Order
	keys   map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]Order),
		keys:   make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.IdempotencyKey != "" && o.UserID != nil {
		k := idemKey(*o.UserID, o.IdempotencyKey)
		if _, ok := s.keys[k]; ok {
			return ErrDuplicateKey
		}
		s.keys[k] = o.ID
	}

	s.orders[o.ID] = o.clone()
	return nil
}

func (s *MemoryStore) Fetch(ctx context.Context, id string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return Order{}, &NotFoundError{OrderID: id}
	}
	return o.clone(), nil
}

func (s *MemoryStore) FetchByIdempotencyKey(ctx context.Context, userID string, key string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.keys[idemKey(userID, key)]
	if !ok {
		return Order{}, &NotFoundError{OrderID: key}
	}
	return s.orders[id].clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.orders[id]
	if !ok {
		return Order{}, false, &NotFoundError{OrderID: id}
	}

	next, changed, err := fn(cur.clone())
	if err != nil {
		return Order{}, false, err
	}
	if !changed {
		return cur.clone(), false, nil
	}

	next.Version = cur.Version + 1
	next.UpdatedAt = time.Now().UTC()
	s.orders[id] = next.clone()
	return next, true, nil
}

func (s *MemoryStore) QueryByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.query(func(o Order) bool {
		return o.UserID != nil && *o.UserID == userID
	}), nil
}

func (s *MemoryStore) Query(ctx context.Context) ([]Order, error) {
	return s.query(func(Order) bool { return true }), nil
}

func (s *MemoryStore) Summary(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{Sales: decimal.Zero, SalesData: []PeriodSales{}}
	periods := make(map[string]decimal.Decimal)
	for _, o := range s.orders {
		sum.Orders++
		if o.IsPaid {
			sum.Paid++
			sum.Sales = sum.Sales.Add(o.TotalPrice)

			p := SalesPeriod(o.CreatedAt)
			periods[p] = periods[p].Add(o.TotalPrice)
		}
	}

	for p, total := range periods {
		sum.SalesData = append(sum.SalesData, PeriodSales{Period: p, TotalSales: total})
	}
	sort.Slice(sum.SalesData, func(i, j int) bool {
		return sum.SalesData[i].Period < sum.SalesData[j].Period
	})
	return sum, nil
}

// DetachUser clears the owner of every order of userID, as happens when the
// user is deleted.
func (s *MemoryStore) DetachUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, o := range s.orders {
		if o.UserID != nil && *o.UserID == userID {
			o.UserID = nil
			s.orders[id] = o
		}
	}
	return nil
}

func (s *MemoryStore) query(match func(Order) bool) []Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Order, 0)
	for _, o := range s.orders {
		if match(o) {
			out = append(out, o.clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func idemKey(userID, key string) string {
	return userID + "\x00" + key
}
