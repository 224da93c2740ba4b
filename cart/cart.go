// Package cart holds the client-side cart aggregate and the meal
// customization builder. Nothing here is persisted; a Cart only becomes
// durable once it is checked out into an order.
package cart

import (
	"fmt"

	"github.com/shopspring/decimal"

	"quickeats/gorest/models"
)

type Cart struct {
	lines []models.CartLine
}

func New() *Cart {
	return &Cart{}
}

// Add inserts line with quantity 1, or bumps the quantity of the existing
// line with the same key.
func (c *Cart) Add(line models.CartLine) {
	if i := c.index(line.ItemKey); i >= 0 {
		c.lines[i].Quantity++
		return
	}
	line.Quantity = 1
	c.lines = append(c.lines, line)
}

// MaxQuantity caps the units of one line.
const MaxQuantity = 99

// AddN adds n units of line, merging with an existing line of the same key.
// It is how a submitted cart is replayed on the server.
func (c *Cart) AddN(line models.CartLine, n int) error {
	if n < 1 {
		return models.NewValidationError("quantity", fmt.Sprintf("must be at least 1 for %q", line.ItemKey))
	}
	i := c.index(line.ItemKey)
	have := 0
	if i >= 0 {
		have = c.lines[i].Quantity
	}
	if n > MaxQuantity-have {
		return models.NewValidationError("quantity", fmt.Sprintf("at most %d of %q per order", MaxQuantity, line.ItemKey))
	}
	if i >= 0 {
		c.lines[i].Quantity += n
		return nil
	}
	line.Quantity = n
	c.lines = append(c.lines, line)
	return nil
}

func (c *Cart) Remove(itemKey string) {
	if i := c.index(itemKey); i >= 0 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
	}
}

// Decrease drops one unit; the line disappears when it reaches zero.
func (c *Cart) Decrease(itemKey string) {
	i := c.index(itemKey)
	if i < 0 {
		return
	}
	if c.lines[i].Quantity <= 1 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
		return
	}
	c.lines[i].Quantity--
}

func (c *Cart) Clear() {
	c.lines = nil
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Lines returns a copy of the current lines in insertion order.
func (c *Cart) Lines() []models.CartLine {
	out := make([]models.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

// Total is recomputed from the lines on every call.
func (c *Cart) Total() decimal.Decimal {
	return Sum(c.lines)
}

// Sum returns Σ unitPrice × quantity.
func Sum(lines []models.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(LineTotal(l.UnitPrice, l.Quantity))
	}
	return total
}

func LineTotal(unitPrice float64, quantity int) decimal.Decimal {
	return decimal.NewFromFloat(unitPrice).Mul(decimal.NewFromInt(int64(quantity)))
}

func (c *Cart) index(itemKey string) int {
	for i := range c.lines {
		if c.lines[i].ItemKey == itemKey {
			return i
		}
	}
	return -1
}
