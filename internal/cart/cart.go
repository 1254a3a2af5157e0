// Package cart holds a customer's pending order and submits it.
package cart

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tableside/internal/domain"
)

var ErrEmptyCart = errors.New("cart is empty")

// Persister saves cart state; *FileStore implements it.
type Persister interface {
	Load(joinCode string) (State, error)
	Save(joinCode string, st State) error
}

// Cart is the items one device has picked for a session. Every change is
// saved before it becomes visible.
type Cart struct {
	store    Persister
	joinCode string

	mu    sync.Mutex
	state State
}

// Open loads the cart saved for joinCode. A device opening a code for the
// first time gets a fresh client id.
func Open(store Persister, joinCode string) (*Cart, error) {
	st, err := store.Load(joinCode)
	if err != nil {
		return nil, err
	}
	c := &Cart{store: store, joinCode: joinCode, state: st}
	if st.ClientID == "" {
		c.state.ClientID = uuid.NewString()
		if err := c.save(c.state); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Cart) JoinCode() string { return c.joinCode }

// Identity returns the client id and display name used for orders.
func (c *Cart) Identity() (clientID, displayName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.ClientID, c.state.DisplayName
}

func (c *Cart) SetDisplayName(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.state
	next.DisplayName = name
	return c.save(next)
}

// Add puts qty of item in the cart, merging with an existing line for the
// same menu item. A non-empty note replaces the line's note.
func (c *Cart) Add(item domain.MenuItem, qty int, note string) error {
	if item.ID == "" {
		return errors.New("menu item without id")
	}
	if qty <= 0 {
		return fmt.Errorf("invalid quantity %d", qty)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.copyState()
	if i := indexOf(next.Items, item.ID); i >= 0 {
		next.Items[i].Quantity += qty
		next.Items[i].MenuItem = item
		if note != "" {
			next.Items[i].Note = note
		}
	} else {
		next.Items = append(next.Items, domain.CartItem{MenuItem: item, Quantity: qty, Note: note})
	}
	return c.save(next)
}

// Remove takes qty of a menu item out of the cart; qty <= 0 removes the
// whole line. Removing an item that is not in the cart is a no-op.
func (c *Cart) Remove(menuItemID string, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := indexOf(c.state.Items, menuItemID)
	if i < 0 {
		return nil
	}
	next := c.copyState()
	if qty > 0 && next.Items[i].Quantity > qty {
		next.Items[i].Quantity -= qty
	} else {
		next.Items = append(next.Items[:i], next.Items[i+1:]...)
	}
	return c.save(next)
}

// SetNote replaces the note on a line; the last write wins.
func (c *Cart) SetNote(menuItemID, note string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := indexOf(c.state.Items, menuItemID)
	if i < 0 {
		return fmt.Errorf("item %s not in cart", menuItemID)
	}
	next := c.copyState()
	next.Items[i].Note = note
	return c.save(next)
}

// Clear empties the cart and keeps the identity.
func (c *Cart) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.state
	next.Items = nil
	return c.save(next)
}

func (c *Cart) Items() []domain.CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.CartItem(nil), c.state.Items...)
}

// Total is the sum of price times quantity in minor units.
func (c *Cart) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, it := range c.state.Items {
		total += it.MenuItem.Price * int64(it.Quantity)
	}
	return total
}

// save persists next and only then adopts it. Callers hold c.mu.
func (c *Cart) save(next State) error {
	next.UpdatedAt = time.Now().UTC()
	if err := c.store.Save(c.joinCode, next); err != nil {
		return err
	}
	c.state = next
	return nil
}

func (c *Cart) copyState() State {
	next := c.state
	next.Items = append([]domain.CartItem(nil), c.state.Items...)
	return next
}

func indexOf(items []domain.CartItem, menuItemID string) int {
	for i, it := range items {
		if it.MenuItem.ID == menuItemID {
			return i
		}
	}
	return -1
}
