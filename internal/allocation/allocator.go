// Package allocation assigns physical stock batches to order requirements,
// consuming the earliest-expiring stock first.
package allocation

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidInput marks malformed allocation input such as a non-positive quantity.
var ErrInvalidInput = errors.New("allocation: invalid input")

// Batch is a lot of one SKU received together and sharing an expiry date.
type Batch struct {
	ID                string     `json:"id"`
	SKUID             string     `json:"skuId"`
	QuantityAvailable int        `json:"quantityAvailable"`
	ExpiryDate        *time.Time `json:"expiryDate,omitempty"`
	ReceivedAt        time.Time  `json:"receivedAt"`
}

// Requirement asks for a quantity of one SKU on behalf of an order line.
type Requirement struct {
	OrderLineID    string `json:"orderLineId"`
	SKUID          string `json:"skuId"`
	QuantityNeeded int    `json:"quantityNeeded"`
	Gift           bool   `json:"gift,omitempty"`
}

// BatchAllocation is the quantity drawn from a single batch.
type BatchAllocation struct {
	BatchID       string `json:"batchId"`
	QuantityTaken int    `json:"quantityTaken"`
}

// Plan is the allocation outcome for a single requirement.
type Plan struct {
	Requirement      Requirement       `json:"requirement"`
	BatchAllocations []BatchAllocation `json:"batchAllocations"`
	Shortfall        int               `json:"shortfall"`
}

// Allocate satisfies each requirement in order from the batches of its SKU. Batches
// are consumed by ascending expiry date, undated batches last, ties broken by receipt
// time. Stock taken by an earlier requirement is not available to later ones within
// the same call. The supplied batches are never modified; shortage is reported through
// Plan.Shortfall rather than as an error. A batch id listed twice is rejected.
func Allocate(reqs []Requirement, batchesBySKU map[string][]Batch) (Plans, error) {
	if err := validate(reqs, batchesBySKU); err != nil {
		return nil, err
	}
	ledger := newLedger(batchesBySKU)
	plans := make(Plans, 0, len(reqs))
	for _, req := range reqs {
		plan := Plan{Requirement: req, BatchAllocations: []BatchAllocation{}}
		remaining := req.QuantityNeeded
		for _, slot := range ledger.candidates(req.SKUID) {
			if remaining == 0 {
				break
			}
			if slot.remaining == 0 {
				continue
			}
			take := min(remaining, slot.remaining)
			slot.remaining -= take
			remaining -= take
			plan.BatchAllocations = append(plan.BatchAllocations, BatchAllocation{BatchID: slot.batch.ID, QuantityTaken: take})
		}
		plan.Shortfall = remaining
		plans = append(plans, plan)
	}
	return plans, nil
}

func validate(reqs []Requirement, batchesBySKU map[string][]Batch) error {
	for i, req := range reqs {
		if req.QuantityNeeded < 1 {
			return fmt.Errorf("%w: requirement %d (line %q, sku %q) needs %d units", ErrInvalidInput, i, req.OrderLineID, req.SKUID, req.QuantityNeeded)
		}
	}
	seen := make(map[string]string)
	for sku, batches := range batchesBySKU {
		for _, b := range batches {
			if b.QuantityAvailable < 0 {
				return fmt.Errorf("%w: batch %q of sku %q has negative quantity %d", ErrInvalidInput, b.ID, sku, b.QuantityAvailable)
			}
			// Batch ids are unique across all SKUs.
			if prev, dup := seen[b.ID]; dup {
				return fmt.Errorf("%w: batch %q listed more than once (skus %q and %q)", ErrInvalidInput, b.ID, prev, sku)
			}
			seen[b.ID] = sku
		}
	}
	return nil
}

// slot tracks what is left of one batch during a single Allocate call.
type slot struct {
	batch     Batch
	remaining int
}

type ledger struct {
	source map[string][]Batch
	bySKU  map[string][]*slot
}

func newLedger(source map[string][]Batch) *ledger {
	return &ledger{source: source, bySKU: make(map[string][]*slot, len(source))}
}

// candidates returns the FIFO-ordered slots of sku, building them on first use.
func (l *ledger) candidates(sku string) []*slot {
	if slots, ok := l.bySKU[sku]; ok {
		return slots
	}
	batches := l.source[sku]
	slots := make([]*slot, 0, len(batches))
	for _, b := range batches {
		slots = append(slots, &slot{batch: b, remaining: b.QuantityAvailable})
	}
	sort.SliceStable(slots, func(i, j int) bool {
		return fifoLess(slots[i].batch, slots[j].batch)
	})
	l.bySKU[sku] = slots
	return slots
}

func fifoLess(a, b Batch) bool {
	switch {
	case a.ExpiryDate != nil && b.ExpiryDate == nil:
		return true
	case a.ExpiryDate == nil && b.ExpiryDate != nil:
		return false
	case a.ExpiryDate != nil && !a.ExpiryDate.Equal(*b.ExpiryDate):
		return a.ExpiryDate.Before(*b.ExpiryDate)
	}
	if !a.ReceivedAt.Equal(b.ReceivedAt) {
		return a.ReceivedAt.Before(b.ReceivedAt)
	}
	return a.ID < b.ID
}
