package cart

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("cart: not found")
	ErrLineNotFound    = errors.New("cart: item not in cart")
	ErrInvalidQuantity = errors.New("cart: quantity must be at least one")
	ErrInvalidSize     = errors.New("cart: size is required")
)

// Line is one cart entry. Lines are keyed by (ProductID, Size); adding the
// same product and size again merges into the existing line.
type Line struct {
	ProductID string
	Size      string
	Quantity  int
}

type Cart struct {
	UserID    string
	Lines     []Line
	UpdatedAt time.Time
}

// Empty returns the valid zero cart for a user. "No cart" is a state, not an
// error.
func Empty(userID string) *Cart {
	return &Cart{UserID: userID}
}

// Add merges quantity into an existing (product, size) line or appends a new
// one. It never duplicates a line for the same key.
func (c *Cart) Add(productID, size string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if size == "" {
		return ErrInvalidSize
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID && c.Lines[i].Size == size {
			c.Lines[i].Quantity += quantity
			c.touch()
			return nil
		}
	}
	c.Lines = append(c.Lines, Line{ProductID: productID, Size: size, Quantity: quantity})
	c.touch()
	return nil
}

// SetQuantity replaces the quantity of an existing line. Use Remove for zero.
func (c *Cart) SetQuantity(productID, size string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID && c.Lines[i].Size == size {
			c.Lines[i].Quantity = quantity
			c.touch()
			return nil
		}
	}
	return ErrLineNotFound
}

// Remove drops a line if present. Removing an absent line is not an error.
func (c *Cart) Remove(productID, size string) {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID && c.Lines[i].Size == size {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			c.touch()
			return
		}
	}
}

func (c *Cart) Clear() {
	c.Lines = nil
	c.touch()
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Lines = append([]Line(nil), c.Lines...)
	return &clone
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now().UTC()
}
