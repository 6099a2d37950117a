package fulfillment

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-fulfillment/internal/allocation"
)

func TestExpandLines(t *testing.T) {
	items := NewItemIndex([]Item{
		{ID: "tea", SKUID: "sku-tea"},
		{ID: "bare"},
		{ID: "gift-box", Components: []Component{
			{SKUID: "sku-tea", QuantityPerUnit: 2},
			{SKUID: "sku-cup", QuantityPerUnit: 1, Gift: true},
			{SKUID: "sku-tea", QuantityPerUnit: 1, Gift: true},
		}},
	})
	lines := []OrderLine{
		{ID: "l1", ItemID: "tea", Quantity: 3},
		{ID: "l2", ItemID: "gift-box", Quantity: 2},
		{ID: "l3", ItemID: "bare", Quantity: 1},
	}
	reqs, err := ExpandLines(lines, items)
	require.NoError(t, err)
	require.Equal(t, []allocation.Requirement{
		{OrderLineID: "l1", SKUID: "sku-tea", QuantityNeeded: 3},
		{OrderLineID: "l2", SKUID: "sku-tea", QuantityNeeded: 6},
		{OrderLineID: "l2", SKUID: "sku-cup", QuantityNeeded: 2, Gift: true},
		{OrderLineID: "l3", SKUID: "bare", QuantityNeeded: 1},
	}, reqs)
}

func TestExpandLinesErrors(t *testing.T) {
	items := NewItemIndex([]Item{{ID: "broken", Components: []Component{{SKUID: "x", QuantityPerUnit: 0}}}})

	_, err := ExpandLines([]OrderLine{{ID: "l1", ItemID: "missing", Quantity: 1}}, items)
	require.True(t, errors.Is(err, ErrUnknownItem))

	_, err = ExpandLines([]OrderLine{{ID: "l1", ItemID: "broken", Quantity: 1}}, items)
	require.ErrorIs(t, err, allocation.ErrInvalidInput)

	_, err = ExpandLines([]OrderLine{{ID: "l1", ItemID: "broken", Quantity: 0}}, items)
	require.ErrorIs(t, err, allocation.ErrInvalidInput)
}

func TestExpandLinesRejectsQuantityOverflow(t *testing.T) {
	items := NewItemIndex([]Item{
		{ID: "crate", Components: []Component{{SKUID: "x", QuantityPerUnit: 4}}},
		{ID: "pair", Components: []Component{{SKUID: "x", QuantityPerUnit: math.MaxInt / 2}, {SKUID: "x", QuantityPerUnit: math.MaxInt / 2}}},
	})

	_, err := ExpandLines([]OrderLine{{ID: "l1", ItemID: "crate", Quantity: math.MaxInt/4 + 1}}, items)
	require.ErrorIs(t, err, allocation.ErrInvalidInput)

	_, err = ExpandLines([]OrderLine{{ID: "l2", ItemID: "pair", Quantity: 2}}, items)
	require.ErrorIs(t, err, allocation.ErrInvalidInput)

	reqs, err := ExpandLines([]OrderLine{{ID: "l3", ItemID: "crate", Quantity: math.MaxInt / 4}}, items)
	require.NoError(t, err)
	require.Equal(t, math.MaxInt/4*4, reqs[0].QuantityNeeded)
}

func TestItemIDs(t *testing.T) {
	ids := ItemIDs([]OrderLine{{ItemID: "b"}, {ItemID: "a"}, {ItemID: "b"}})
	require.Equal(t, []string{"b", "a"}, ids)
}
