// Package cart is the client-side cart store: an explicit state object with
// an injected persistence adapter and a pub/sub channel for mirroring the
// cart across same-origin tabs. It has no dependency on any UI framework.
package cart

import (
	"errors"
	"sync"

	"checkout-service/models"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidPrice    = errors.New("unit price must not be negative")
	ErrItemNotFound    = errors.New("item not in cart")
)

// State is the serializable snapshot the persistence adapter stores.
type State struct {
	Items []models.CartItem `json:"items"`
}

// Persistence loads and saves cart snapshots to durable client storage.
type Persistence interface {
	Load() (State, error)
	Save(State) error
}

// Syncer fans cart snapshots out to other tabs and delivers theirs back.
type Syncer interface {
	Publish(State)
	Subscribe(fn func(State)) (cancel func())
}

// Store owns the in-memory cart, persisting and broadcasting every change.
type Store struct {
	mu     sync.Mutex
	items  []models.CartItem
	store  Persistence
	syncer Syncer
	cancel func()
}

// New restores state from the adapter and starts mirroring remote updates.
// A nil syncer disables cross-tab sync.
func New(p Persistence, s Syncer) (*Store, error) {
	state, err := p.Load()
	if err != nil {
		return nil, err
	}
	c := &Store{items: state.Items, store: p, syncer: s}
	if s != nil {
		c.cancel = s.Subscribe(c.applyRemote)
	}
	return c, nil
}

// Close detaches the store from the sync channel.
func (c *Store) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}

func variantKey(item models.CartItem) string {
	return item.ProductID + "|" + item.Size + "|" + item.Color
}

// Add puts a product variant in the cart, merging quantities when the same
// variant is already present.
func (c *Store) Add(item models.CartItem) error {
	if item.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if item.UnitPrice < 0 {
		return ErrInvalidPrice
	}

	return c.mutate(func() error {
		key := variantKey(item)
		for i := range c.items {
			if variantKey(c.items[i]) == key {
				c.items[i].Quantity += item.Quantity
				return nil
			}
		}
		c.items = append(c.items, item)
		return nil
	})
}

// SetQuantity adjusts an existing line. Quantity below 1 is a removal
// request and must go through Remove instead.
func (c *Store) SetQuantity(productID, size, color string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	key := productID + "|" + size + "|" + color
	return c.mutate(func() error {
		for i := range c.items {
			if variantKey(c.items[i]) == key {
				c.items[i].Quantity = quantity
				return nil
			}
		}
		return ErrItemNotFound
	})
}

func (c *Store) Remove(productID, size, color string) error {
	key := productID + "|" + size + "|" + color
	return c.mutate(func() error {
		for i := range c.items {
			if variantKey(c.items[i]) == key {
				c.items = append(c.items[:i], c.items[i+1:]...)
				return nil
			}
		}
		return ErrItemNotFound
	})
}

func (c *Store) Clear() error {
	return c.mutate(func() error {
		c.items = nil
		return nil
	})
}

// Items returns a copy; callers cannot mutate the store through it.
func (c *Store) Items() []models.CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.CartItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Store) Subtotal() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total float64
	for _, item := range c.items {
		total += item.UnitPrice * float64(item.Quantity)
	}
	return total
}

// mutate runs fn under the lock, then persists and broadcasts the snapshot
// outside it. Publishing under the lock would deadlock against applyRemote
// when a broadcast loops back to this store.
func (c *Store) mutate(fn func() error) error {
	c.mu.Lock()
	if err := fn(); err != nil {
		c.mu.Unlock()
		return err
	}
	state := State{Items: make([]models.CartItem, len(c.items))}
	copy(state.Items, c.items)
	c.mu.Unlock()

	if err := c.store.Save(state); err != nil {
		return err
	}
	if c.syncer != nil {
		c.syncer.Publish(state)
	}
	return nil
}

// applyRemote replaces local state with another tab's snapshot without
// re-publishing, which would ping-pong between tabs.
func (c *Store) applyRemote(state State) {
	c.mu.Lock()
	c.items = make([]models.CartItem, len(state.Items))
	copy(c.items, state.Items)
	c.mu.Unlock()
	_ = c.store.Save(state)
}
