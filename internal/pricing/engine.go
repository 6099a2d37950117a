package pricing

import (
	"errors"
	"math"

	"github.com/noah-isme/toko-fulfillment/internal/voucher"
)

// ErrAmountOverflow is returned when a cart total does not fit in Money.
var ErrAmountOverflow = errors.New("pricing: amount overflows")

// Money represents a monetary value stored in minor units.
type Money = int64

// CartLine is one requested purchase unit in a cart being edited.
type CartLine struct {
	CatalogEntryID string `json:"catalogEntryId"`
	Quantity       int    `json:"quantity"`
}

// CatalogEntry carries the price data of a sellable item.
type CatalogEntry struct {
	ID               string `json:"id"`
	BasePrice        Money  `json:"basePrice"`
	PromotionalPrice *Money `json:"promotionalPrice,omitempty"`
	PromotionActive  bool   `json:"isPromotionActive"`
}

// UnitPrice returns the price charged per unit.
func (e CatalogEntry) UnitPrice() Money {
	if e.PromotionActive && e.PromotionalPrice != nil {
		return *e.PromotionalPrice
	}
	return e.BasePrice
}

// CatalogIndex resolves catalog entries by id.
type CatalogIndex map[string]CatalogEntry

// NewCatalogIndex builds an index from a list of entries. Later duplicates win.
func NewCatalogIndex(entries []CatalogEntry) CatalogIndex {
	idx := make(CatalogIndex, len(entries))
	for _, e := range entries {
		idx[e.ID] = e
	}
	return idx
}

// Result aggregates computed pricing components.
type Result struct {
	Subtotal            Money   `json:"subtotal"`
	DiscountAmount      Money   `json:"discountAmount"`
	Total               Money   `json:"total"`
	AppliedInstrumentID *string `json:"appliedInstrumentId,omitempty"`
}

// Subtotal sums effective unit price times quantity over resolvable lines. Lines whose
// entry is missing from the catalog, or whose quantity is not positive, contribute zero.
// A sum that would overflow saturates at math.MaxInt64; use CheckedSubtotal to reject it.
func Subtotal(lines []CartLine, catalog CatalogIndex) Money {
	subtotal, err := CheckedSubtotal(lines, catalog)
	if err != nil {
		return math.MaxInt64
	}
	return subtotal
}

// CheckedSubtotal is Subtotal but returns ErrAmountOverflow instead of saturating.
func CheckedSubtotal(lines []CartLine, catalog CatalogIndex) (Money, error) {
	var subtotal Money
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		entry, ok := catalog[line.CatalogEntryID]
		if !ok {
			continue
		}
		price := entry.UnitPrice()
		if price <= 0 {
			continue
		}
		qty := Money(line.Quantity)
		if price > math.MaxInt64/qty {
			return 0, ErrAmountOverflow
		}
		amount := price * qty
		if subtotal > math.MaxInt64-amount {
			return 0, ErrAmountOverflow
		}
		subtotal += amount
	}
	return subtotal, nil
}

// ComputeTotals calculates cart totals. The instrument is applied only while it is
// eligible for the computed subtotal: an ineligible selection is priced as if absent
// (zero discount, nil AppliedInstrumentID) so a stale selection can never discount a
// cart it no longer qualifies for. Reconcile reports that case to the caller, who owns
// clearing the selection and telling the user. Total is never negative.
func ComputeTotals(lines []CartLine, catalog CatalogIndex, instrument *voucher.Instrument) Result {
	subtotal := Subtotal(lines, catalog)
	res := Result{Subtotal: subtotal, Total: max(subtotal, 0)}
	if instrument == nil || !IsEligible(*instrument, subtotal) {
		return res
	}
	discount := instrument.Compute(subtotal)
	id := instrument.ID
	res.DiscountAmount = discount
	res.Total = max(subtotal-discount, 0)
	res.AppliedInstrumentID = &id
	return res
}

// IsEligible reports whether the instrument may be offered for an order of subtotal.
func IsEligible(instrument voucher.Instrument, subtotal Money) bool {
	return instrument.Eligible(subtotal)
}

// FilterEligible returns the instruments eligible for subtotal, preserving order.
func FilterEligible(instruments []voucher.Instrument, subtotal Money) []voucher.Instrument {
	out := make([]voucher.Instrument, 0, len(instruments))
	for _, in := range instruments {
		if IsEligible(in, subtotal) {
			out = append(out, in)
		}
	}
	return out
}

// Deselection describes a selected instrument that stopped applying after a cart change.
type Deselection struct {
	InstrumentID    string `json:"instrumentId"`
	Subtotal        Money  `json:"subtotal"`
	MinimumSubtotal *Money `json:"minimumSubtotal,omitempty"`
	Reason          error  `json:"-"`
}

// Reconcile recomputes totals for the current cart. When the selected instrument no
// longer applies, totals are computed without it and the returned Deselection tells
// the caller what to clear.
func Reconcile(lines []CartLine, catalog CatalogIndex, selected *voucher.Instrument) (Result, *Deselection) {
	res := ComputeTotals(lines, catalog, selected)
	if selected == nil {
		return res, nil
	}
	if err := selected.Validate(res.Subtotal); err != nil {
		return res, &Deselection{
			InstrumentID:    selected.ID,
			Subtotal:        res.Subtotal,
			MinimumSubtotal: selected.MinimumSubtotal,
			Reason:          err,
		}
	}
	return res, nil
}
