package cart_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-fulfillment/internal/cart"
	"github.com/noah-isme/toko-fulfillment/internal/events"
	"github.com/noah-isme/toko-fulfillment/internal/pricing"
	"github.com/noah-isme/toko-fulfillment/internal/voucher"
)

type stubCatalog map[string]pricing.CatalogEntry

func (s stubCatalog) Entries(_ context.Context, ids []string) ([]pricing.CatalogEntry, error) {
	var out []pricing.CatalogEntry
	for _, id := range ids {
		if e, ok := s[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

type stubWallet struct {
	instruments []voucher.Instrument
	used        map[string]string
}

func (w *stubWallet) ListInstruments(context.Context, string) ([]voucher.Instrument, error) {
	return w.instruments, nil
}

func (w *stubWallet) MarkUsed(_ context.Context, _ string, id, orderID string) error {
	if w.used == nil {
		w.used = map[string]string{}
	}
	w.used[id] = orderID
	return nil
}

type recordingEmitter struct {
	topics     []string
	aggregates []string
}

func (r *recordingEmitter) Emit(_ context.Context, topic, aggregateID string, _ any) (events.Event, error) {
	r.topics = append(r.topics, topic)
	r.aggregates = append(r.aggregates, aggregateID)
	return events.Event{Topic: topic, AggregateID: aggregateID}, nil
}

func minimum(v int64) *int64 { return &v }

func newService() (*cart.Service, *stubWallet) {
	wallet := &stubWallet{instruments: []voucher.Instrument{
		{ID: "v10", Kind: voucher.KindPercent, PercentRate: decimal.NewFromInt(10), CapAmount: minimum(15_000), Active: true},
		{ID: "v-big", Kind: voucher.KindFixed, FixedAmount: 50_000, Active: true, MinimumSubtotal: minimum(300_000)},
		{ID: "v-used", Kind: voucher.KindFixed, FixedAmount: 1_000, Active: true, Used: true},
	}}
	return &cart.Service{Catalog: stubCatalog{"tea": {ID: "tea", BasePrice: 100_000}}, Wallet: wallet}, wallet
}

func TestQuoteAppliesSelectedInstrument(t *testing.T) {
	svc, _ := newService()
	q, err := svc.Quote(context.Background(), "u1", []pricing.CartLine{{CatalogEntryID: "tea", Quantity: 2}}, "v10")
	require.NoError(t, err)
	require.Equal(t, pricing.Money(200_000), q.Subtotal)
	require.Equal(t, pricing.Money(15_000), q.DiscountAmount)
	require.Equal(t, pricing.Money(185_000), q.Total)
	require.Nil(t, q.Deselected)
	require.Len(t, q.Eligible, 1)
	require.Equal(t, "v10", q.Eligible[0].ID)
}

func TestQuoteDeselectsBelowMinimum(t *testing.T) {
	svc, _ := newService()
	q, err := svc.Quote(context.Background(), "u1", []pricing.CartLine{{CatalogEntryID: "tea", Quantity: 2}}, "v-big")
	require.NoError(t, err)
	require.NotNil(t, q.Deselected)
	require.ErrorIs(t, q.Deselected.Reason, voucher.ErrMinimumSpendUnmet)
	require.Zero(t, q.DiscountAmount)

	q, err = svc.Quote(context.Background(), "u1", []pricing.CartLine{{CatalogEntryID: "tea", Quantity: 3}}, "v-big")
	require.NoError(t, err)
	require.Nil(t, q.Deselected)
	require.Equal(t, pricing.Money(250_000), q.Total)
}

func TestQuoteRejectsBadInput(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Quote(context.Background(), "u1", []pricing.CartLine{{CatalogEntryID: "tea", Quantity: 0}}, "")
	require.ErrorIs(t, err, cart.ErrInvalidInput)

	_, err = svc.Quote(context.Background(), "u1", []pricing.CartLine{{CatalogEntryID: "tea", Quantity: 1}}, "unknown")
	require.ErrorIs(t, err, cart.ErrInvalidInput)

	_, err = svc.Quote(context.Background(), "u1", []pricing.CartLine{{CatalogEntryID: "tea", Quantity: 100_000_000_000_000}}, "")
	require.ErrorIs(t, err, cart.ErrInvalidInput)
	require.ErrorIs(t, err, pricing.ErrAmountOverflow)
}

func TestSettleMarksUsed(t *testing.T) {
	svc, wallet := newService()
	emitter := &recordingEmitter{}
	svc.Events = emitter
	require.NoError(t, svc.Settle(context.Background(), "u1", "v10", "order-9"))
	require.Equal(t, "order-9", wallet.used["v10"])
	require.Equal(t, []string{events.TopicInstrumentSettled}, emitter.topics)
	require.Equal(t, []string{"v10"}, emitter.aggregates)

	require.ErrorIs(t, svc.Settle(context.Background(), "u1", "", "order-9"), cart.ErrInvalidInput)
	require.Len(t, emitter.topics, 1)
}
