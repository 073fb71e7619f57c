// Package pricing computes cart totals. It is a pure function of its inputs:
// no transport, no clock, no shared state.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pos-core/money"
)

// Line describes one cart line for the purpose of totalling.
type Line struct {
	Qty             int
	UnitPrice       money.Money
	DiscountPercent decimal.Decimal
	TaxRatePercent  decimal.Decimal
}

// Breakdown aggregates the computed components of a cart total.
type Breakdown struct {
	Subtotal        money.Money
	LineDiscount    money.Money
	GeneralDiscount money.Money
	Discount        money.Money
	Tax             money.Money
	Total           money.Money
}

// Totals carries both renditions of the same cart: Applied is what the sale
// settles at right now, Projected is what it would settle at once the pending
// general discount is authorised. The two converge when authorisation is
// granted or no general discount is requested.
type Totals struct {
	Applied   Breakdown
	Projected Breakdown
}

// Compute totals the lines under a general discount percent. Line and general
// discounts only count toward the settled figures when authorised. Tax is
// assessed per line on the line-discounted base and does not shrink when the
// general discount lands; the general discount is taken off after tax.
func Compute(lines []Line, generalPercent decimal.Decimal, authorized bool) Totals {
	var subtotal, lineDiscount, tax money.Money
	for _, ln := range lines {
		if ln.Qty <= 0 {
			continue
		}
		sub := money.Money(ln.Qty) * ln.UnitPrice
		disc := money.Round(money.Percent(sub, ln.DiscountPercent))
		if disc > sub {
			disc = sub
		}
		subtotal += sub
		lineDiscount += disc
		tax += money.Round(money.Percent(sub-disc, ln.TaxRatePercent))
	}

	general := money.Round(money.Percent(subtotal, generalPercent))
	if general > subtotal-lineDiscount {
		general = subtotal - lineDiscount
	}

	projected := Breakdown{
		Subtotal:        subtotal,
		LineDiscount:    lineDiscount,
		GeneralDiscount: general,
		Discount:        lineDiscount + general,
		Tax:             tax,
		Total:           subtotal - lineDiscount - general + tax,
	}

	applied := projected
	if !authorized {
		applied.LineDiscount = 0
		applied.GeneralDiscount = 0
		applied.Discount = 0
		applied.Total = subtotal + tax
	}

	return Totals{Applied: applied, Projected: projected}
}

// Change returns the cash to hand back for a settled total. It never goes
// negative; an insufficient tender simply yields zero.
func Change(total, cashReceived money.Money) money.Money {
	if cashReceived <= total {
		return 0
	}
	return cashReceived - total
}
