package cart

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alexedwards/scs/v2"
)

const sessionKey = "cart"

// Load reads the cart held in the request's session. A session without a cart
// yields an empty one.
func Load(ctx context.Context, sm *scs.SessionManager) (Cart, error) {
	b := sm.GetBytes(ctx, sessionKey)
	if len(b) == 0 {
		return Cart{}, nil
	}

	var c Cart
	if err := json.Unmarshal(b, &c); err != nil {
		return Cart{}, fmt.Errorf("decoding session cart: %w", err)
	}
	return c, nil
}

func Save(ctx context.Context, sm *scs.SessionManager, c Cart) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding session cart: %w", err)
	}

	sm.Put(ctx, sessionKey, b)
	return nil
}

// Update loads the session cart, applies cmd and stores the result.
func Update(ctx context.Context, sm *scs.SessionManager, cmd Command) (Cart, error) {
	c, err := Load(ctx, sm)
	if err != nil {
		return Cart{}, err
	}

	c, err = Apply(c, cmd)
	if err != nil {
		return Cart{}, err
	}

	if err := Save(ctx, sm, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Drop removes the cart from the session.
func Drop(ctx context.Context, sm *scs.SessionManager) {
	sm.Remove(ctx, sessionKey)
}
