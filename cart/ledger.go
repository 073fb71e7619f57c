// Package cart maintains the mutable line ledger of the sale in progress.
// Lines merge by product identity, keep their insertion order, and feed the
// pricing engine. Every mutation announces itself on the event bus so the UI
// can re-render totals.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/pos-core/backend"
	"github.com/noah-isme/pos-core/events"
	"github.com/noah-isme/pos-core/money"
	"github.com/noah-isme/pos-core/pricing"
)

var (
	// ErrInvalidQuantity is returned for zero or negative quantities.
	ErrInvalidQuantity = errors.New("cart: invalid quantity")
	// ErrInvalidDiscount is returned for percents outside [0, 100].
	ErrInvalidDiscount = errors.New("cart: invalid discount percent")
	// ErrInsufficientStock is returned when the requested quantity exceeds
	// the product's known stock.
	ErrInsufficientStock = errors.New("cart: insufficient stock")
	// ErrLineNotFound is returned when mutating a product absent from the
	// ledger.
	ErrLineNotFound = errors.New("cart: line not found")
)

// Line is one ledger entry. ProductID is the line identity: adding the same
// product again merges into the existing entry.
type Line struct {
	ProductID       int64
	Code            string
	Name            string
	UnitPrice       money.Money
	Quantity        int
	DiscountPercent decimal.Decimal
	TaxRatePercent  decimal.Decimal
	Stock           int
}

// Subtotal returns quantity times unit price before any discount.
func (l Line) Subtotal() money.Money {
	return money.Money(l.Quantity) * l.UnitPrice
}

// ProductLookup resolves scan codes against the catalog.
type ProductLookup interface {
	SearchProductByCode(ctx context.Context, code string) (backend.Product, error)
}

// Ledger is the cart of the sale in progress. Safe for concurrent use.
type Ledger struct {
	Lookup ProductLookup
	Bus    *events.Bus

	mu             sync.Mutex
	lines          []Line
	generalPercent decimal.Decimal
}

// NewLedger builds an empty ledger. Both dependencies may be nil: a nil
// lookup disables AddByCode, a nil bus drops events.
func NewLedger(lookup ProductLookup, bus *events.Bus) *Ledger {
	return &Ledger{Lookup: lookup, Bus: bus}
}

// AddByCode resolves the code through the catalog and merges the product into
// the ledger.
func (g *Ledger) AddByCode(ctx context.Context, code string, qty int) (Line, error) {
	if g.Lookup == nil {
		return Line{}, errors.New("cart: product lookup not configured")
	}
	product, err := g.Lookup.SearchProductByCode(ctx, code)
	if err != nil {
		return Line{}, fmt.Errorf("resolve code %q: %w", code, err)
	}
	return g.Add(ctx, product, qty)
}

// Add merges the product into the ledger, incrementing quantity when the
// product is already present.
func (g *Ledger) Add(ctx context.Context, p backend.Product, qty int) (Line, error) {
	if qty <= 0 {
		return Line{}, fmt.Errorf("add %d of product %d: %w", qty, p.ID, ErrInvalidQuantity)
	}

	g.mu.Lock()
	idx := g.indexOfLocked(p.ID)
	current := 0
	if idx >= 0 {
		current = g.lines[idx].Quantity
	}
	if p.Stock > 0 && current+qty > p.Stock {
		g.mu.Unlock()
		return Line{}, fmt.Errorf("product %d has %d in stock: %w", p.ID, p.Stock, ErrInsufficientStock)
	}
	var line Line
	if idx >= 0 {
		g.lines[idx].Quantity += qty
		line = g.lines[idx]
	} else {
		line = Line{
			ProductID:      p.ID,
			Code:           p.Code,
			Name:           p.Name,
			UnitPrice:      money.Round(p.UnitPrice),
			Quantity:       qty,
			TaxRatePercent: p.TaxRatePercent,
			Stock:          p.Stock,
		}
		g.lines = append(g.lines, line)
	}
	g.mu.Unlock()

	g.publish(ctx, "add", p.ID)
	return line, nil
}

// SetQuantity replaces the quantity of an existing line.
func (g *Ledger) SetQuantity(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("set quantity %d on product %d: %w", qty, productID, ErrInvalidQuantity)
	}

	g.mu.Lock()
	idx := g.indexOfLocked(productID)
	if idx < 0 {
		g.mu.Unlock()
		return fmt.Errorf("product %d: %w", productID, ErrLineNotFound)
	}
	if stock := g.lines[idx].Stock; stock > 0 && qty > stock {
		g.mu.Unlock()
		return fmt.Errorf("product %d has %d in stock: %w", productID, stock, ErrInsufficientStock)
	}
	g.lines[idx].Quantity = qty
	g.mu.Unlock()

	g.publish(ctx, "set_quantity", productID)
	return nil
}

// SetLineDiscount sets the per-line discount percent of an existing line.
func (g *Ledger) SetLineDiscount(ctx context.Context, productID int64, percent decimal.Decimal) error {
	if !money.ValidPercent(percent) {
		return fmt.Errorf("discount %s on product %d: %w", percent, productID, ErrInvalidDiscount)
	}

	g.mu.Lock()
	idx := g.indexOfLocked(productID)
	if idx < 0 {
		g.mu.Unlock()
		return fmt.Errorf("product %d: %w", productID, ErrLineNotFound)
	}
	g.lines[idx].DiscountPercent = percent
	g.mu.Unlock()

	g.publish(ctx, "set_line_discount", productID)
	return nil
}

// SetGeneralDiscount sets the cart-wide discount percent. Authorisation of
// the percent is the discount workflow's concern, not the ledger's.
func (g *Ledger) SetGeneralDiscount(ctx context.Context, percent decimal.Decimal) error {
	if !money.ValidPercent(percent) {
		return fmt.Errorf("general discount %s: %w", percent, ErrInvalidDiscount)
	}

	g.mu.Lock()
	g.generalPercent = percent
	g.mu.Unlock()

	g.publish(ctx, "set_general_discount", 0)
	return nil
}

// GeneralDiscount returns the cart-wide discount percent.
func (g *Ledger) GeneralDiscount() decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generalPercent
}

// Remove drops a line from the ledger.
func (g *Ledger) Remove(ctx context.Context, productID int64) error {
	g.mu.Lock()
	idx := g.indexOfLocked(productID)
	if idx < 0 {
		g.mu.Unlock()
		return fmt.Errorf("product %d: %w", productID, ErrLineNotFound)
	}
	g.lines = append(g.lines[:idx], g.lines[idx+1:]...)
	g.mu.Unlock()

	g.publish(ctx, "remove", productID)
	return nil
}

// Clear empties the ledger and resets the general discount.
func (g *Ledger) Clear(ctx context.Context) {
	g.mu.Lock()
	g.lines = nil
	g.generalPercent = decimal.Zero
	g.mu.Unlock()

	g.publish(ctx, "clear", 0)
}

// Lines returns a copy of the ledger in insertion order.
func (g *Ledger) Lines() []Line {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Line, len(g.lines))
	copy(out, g.lines)
	return out
}

// Empty reports whether the ledger holds no lines.
func (g *Ledger) Empty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.lines) == 0
}

// Filter returns the lines whose code or name contains the query,
// case-insensitively. An empty query returns everything.
func (g *Ledger) Filter(query string) []Line {
	query = strings.ToLower(strings.TrimSpace(query))
	lines := g.Lines()
	if query == "" {
		return lines
	}
	out := lines[:0]
	for _, ln := range lines {
		if strings.Contains(strings.ToLower(ln.Code), query) ||
			strings.Contains(strings.ToLower(ln.Name), query) {
			out = append(out, ln)
		}
	}
	return out
}

// PricingLines projects the ledger into the pricing engine's input.
func (g *Ledger) PricingLines() []pricing.Line {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]pricing.Line, 0, len(g.lines))
	for _, ln := range g.lines {
		out = append(out, pricing.Line{
			Qty:             ln.Quantity,
			UnitPrice:       ln.UnitPrice,
			DiscountPercent: ln.DiscountPercent,
			TaxRatePercent:  ln.TaxRatePercent,
		})
	}
	return out
}

// Totals runs the pricing engine over the current ledger.
func (g *Ledger) Totals(authorized bool) pricing.Totals {
	g.mu.Lock()
	lines := make([]pricing.Line, 0, len(g.lines))
	for _, ln := range g.lines {
		lines = append(lines, pricing.Line{
			Qty:             ln.Quantity,
			UnitPrice:       ln.UnitPrice,
			DiscountPercent: ln.DiscountPercent,
			TaxRatePercent:  ln.TaxRatePercent,
		})
	}
	general := g.generalPercent
	g.mu.Unlock()
	return pricing.Compute(lines, general, authorized)
}

func (g *Ledger) indexOfLocked(productID int64) int {
	for i, ln := range g.lines {
		if ln.ProductID == productID {
			return i
		}
	}
	return -1
}

func (g *Ledger) publish(ctx context.Context, op string, productID int64) {
	_, _ = g.Bus.Emit(ctx, events.TopicCartChanged, map[string]any{
		"op":        op,
		"productId": productID,
	})
}
