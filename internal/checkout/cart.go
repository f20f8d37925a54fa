package checkout

import (
	"fmt"
	"strings"

	"suqpos/backend/internal/domain"
)

// Line is one product row in the working cart. The stock ceiling is the
// available stock recorded when the product was first added; later catalog
// refreshes do not move it.
type Line struct {
	productID    string
	name         string
	quantity     int
	stockCeiling int
	price        Price
}

func (l *Line) ProductID() string { return l.productID }
func (l *Line) Name() string      { return l.name }
func (l *Line) Quantity() int     { return l.quantity }
func (l *Line) StockCeiling() int { return l.stockCeiling }
func (l *Line) UnitPrice() Price  { return l.price }

// LineTotalCents is always recomputed, never stored. An unresolved price
// contributes zero.
func (l *Line) LineTotalCents() int64 {
	return int64(l.quantity) * l.price.Cents()
}

// Cart holds the working set of line items, one line per product, in
// insertion order.
type Cart struct {
	order []string
	lines map[string]*Line
}

func NewCart() *Cart {
	return &Cart{lines: make(map[string]*Line)}
}

// AddProduct puts one unit of the catalog item into the cart. If a line for
// the product already exists its quantity is incremented instead, unless that
// would exceed the stock recorded at first add.
func (c *Cart) AddProduct(item domain.CatalogItem) error {
	productID := strings.TrimSpace(item.ProductID)
	if productID == "" {
		return fmt.Errorf("%w: missing product id", ErrInvalidInput)
	}

	if line, exists := c.lines[productID]; exists {
		if line.quantity+1 > line.stockCeiling {
			return fmt.Errorf("%w: %s at %d of %d", ErrStockExceeded, line.name, line.quantity, line.stockCeiling)
		}
		line.quantity++
		return nil
	}

	if item.AvailableStock < 1 {
		return fmt.Errorf("%w: %s is out of stock", ErrStockExceeded, item.Name)
	}
	if item.UnitPriceCents < 0 {
		return fmt.Errorf("%w: negative catalog price", ErrInvalidInput)
	}

	c.lines[productID] = &Line{
		productID:    productID,
		name:         item.Name,
		quantity:     1,
		stockCeiling: item.AvailableStock,
		price:        ResolvedPrice(item.UnitPriceCents),
	}
	c.order = append(c.order, productID)
	return nil
}

// ChangeQuantity applies a signed delta to a line's quantity. A result of
// zero or below is a no-op (the floor is one unit; removal is explicit), and
// a result above the recorded stock ceiling leaves the line unchanged.
func (c *Cart) ChangeQuantity(productID string, delta int) error {
	line, exists := c.lines[productID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}

	next := line.quantity + delta
	if next <= 0 {
		return nil
	}
	if next > line.stockCeiling {
		return fmt.Errorf("%w: %s at %d of %d", ErrStockExceeded, line.name, line.quantity, line.stockCeiling)
	}
	line.quantity = next
	return nil
}

// SetPrice overrides a line's unit price from textual input. Empty input
// marks the price unresolved so the field can be cleared mid-edit; invalid
// input is rejected and the prior value kept.
func (c *Cart) SetPrice(productID string, rawInput string) error {
	line, exists := c.lines[productID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}

	if strings.TrimSpace(rawInput) == "" {
		line.price = UnresolvedPrice()
		return nil
	}

	cents, err := ParseAmountCents(rawInput)
	if err != nil {
		return err
	}
	line.price = ResolvedPrice(cents)
	return nil
}

// FinalizePrice resolves an unresolved price to zero, the explicit step the
// price field takes when editing ends. Already-resolved prices are untouched.
func (c *Cart) FinalizePrice(productID string) error {
	line, exists := c.lines[productID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}
	if !line.price.Resolved() {
		line.price = ResolvedPrice(0)
	}
	return nil
}

func (c *Cart) Remove(productID string) {
	if _, exists := c.lines[productID]; !exists {
		return
	}
	delete(c.lines, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Cart) Clear() {
	c.order = nil
	c.lines = make(map[string]*Line)
}

func (c *Cart) Empty() bool {
	return len(c.order) == 0
}

// Lines returns the cart lines in insertion order.
func (c *Cart) Lines() []*Line {
	lines := make([]*Line, 0, len(c.order))
	for _, id := range c.order {
		lines = append(lines, c.lines[id])
	}
	return lines
}

// SubtotalCents sums quantity times resolved price over all lines; unresolved
// prices count as zero for the running display total.
func (c *Cart) SubtotalCents() int64 {
	var subtotal int64
	for _, id := range c.order {
		subtotal += c.lines[id].LineTotalCents()
	}
	return subtotal
}

// firstUnresolved reports the first line whose price has not been resolved.
func (c *Cart) firstUnresolved() (*Line, bool) {
	for _, id := range c.order {
		if !c.lines[id].price.Resolved() {
			return c.lines[id], true
		}
	}
	return nil, false
}
