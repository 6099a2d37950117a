package fulfillment

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/noah-isme/toko-fulfillment/internal/allocation"
)

// ErrUnknownItem is returned when an order line references an item that is not in the index.
var ErrUnknownItem = errors.New("fulfillment: unknown item")

// OrderLine is a persisted line of an order awaiting fulfillment.
type OrderLine struct {
	ID       string `json:"id"`
	OrderID  string `json:"orderId"`
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// Component is one SKU contained in a combo, per unit of the combo.
type Component struct {
	SKUID           string `json:"skuId"`
	QuantityPerUnit int    `json:"quantityPerUnit"`
	Gift            bool   `json:"gift,omitempty"`
}

// Item is a sellable item. Items without components are stocked under SKUID.
type Item struct {
	ID         string      `json:"id"`
	SKUID      string      `json:"skuId"`
	Components []Component `json:"components,omitempty"`
}

// IsCombo reports whether the item decomposes into component SKUs.
func (it Item) IsCombo() bool { return len(it.Components) > 0 }

// ItemIndex resolves items by id.
type ItemIndex map[string]Item

// NewItemIndex builds an index from a list of items.
func NewItemIndex(items []Item) ItemIndex {
	idx := make(ItemIndex, len(items))
	for _, it := range items {
		idx[it.ID] = it
	}
	return idx
}

// ExpandLines turns order lines into allocation requirements, one per line and
// component SKU, in line order. Components sharing a SKU within a line are merged;
// the merged requirement is a gift only if every merged component is.
func ExpandLines(lines []OrderLine, items ItemIndex) ([]allocation.Requirement, error) {
	reqs := make([]allocation.Requirement, 0, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("%w: line %q has quantity %d", allocation.ErrInvalidInput, line.ID, line.Quantity)
		}
		item, ok := items[line.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: %q on line %q", ErrUnknownItem, line.ItemID, line.ID)
		}
		if !item.IsCombo() {
			sku := strings.TrimSpace(item.SKUID)
			if sku == "" {
				sku = item.ID
			}
			reqs = append(reqs, allocation.Requirement{OrderLineID: line.ID, SKUID: sku, QuantityNeeded: line.Quantity})
			continue
		}
		merged := make(map[string]int, len(item.Components))
		for _, c := range item.Components {
			if c.QuantityPerUnit < 1 {
				return nil, fmt.Errorf("%w: item %q component %q has quantity %d", allocation.ErrInvalidInput, item.ID, c.SKUID, c.QuantityPerUnit)
			}
			if line.Quantity > math.MaxInt/c.QuantityPerUnit {
				return nil, fmt.Errorf("%w: line %q needs more than %d units of %q", allocation.ErrInvalidInput, line.ID, math.MaxInt, c.SKUID)
			}
			qty := line.Quantity * c.QuantityPerUnit
			if pos, ok := merged[c.SKUID]; ok {
				if reqs[pos].QuantityNeeded > math.MaxInt-qty {
					return nil, fmt.Errorf("%w: line %q needs more than %d units of %q", allocation.ErrInvalidInput, line.ID, math.MaxInt, c.SKUID)
				}
				reqs[pos].QuantityNeeded += qty
				reqs[pos].Gift = reqs[pos].Gift && c.Gift
				continue
			}
			merged[c.SKUID] = len(reqs)
			reqs = append(reqs, allocation.Requirement{OrderLineID: line.ID, SKUID: c.SKUID, QuantityNeeded: qty, Gift: c.Gift})
		}
	}
	return reqs, nil
}

// ItemIDs lists the distinct item ids referenced by lines.
func ItemIDs(lines []OrderLine) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ItemID]; ok {
			continue
		}
		seen[l.ItemID] = struct{}{}
		out = append(out, l.ItemID)
	}
	return out
}
