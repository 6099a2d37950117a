package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-fulfillment/internal/allocation"
	"github.com/noah-isme/toko-fulfillment/internal/common"
	"github.com/noah-isme/toko-fulfillment/internal/pricing"
	"github.com/noah-isme/toko-fulfillment/internal/voucher"
)

type cartLinePayload struct {
	CatalogEntryID string `json:"catalogEntryId" validate:"required"`
	Quantity       int    `json:"quantity" validate:"min=1"`
}

type catalogEntryPayload struct {
	ID               string `json:"id" validate:"required"`
	BasePrice        int64  `json:"basePrice" validate:"min=0"`
	PromotionalPrice *int64 `json:"promotionalPrice" validate:"omitempty,min=0"`
	PromotionActive  bool   `json:"isPromotionActive"`
}

type instrumentPayload struct {
	ID              string          `json:"id" validate:"required"`
	Code            string          `json:"code"`
	Kind            string          `json:"kind" validate:"required"`
	FixedAmount     int64           `json:"fixedAmount" validate:"min=0"`
	PercentRate     decimal.Decimal `json:"percentRate"`
	CapAmount       *int64          `json:"capAmount" validate:"omitempty,min=0"`
	MinimumSubtotal *int64          `json:"minimumSubtotal" validate:"omitempty,min=0"`
	Active          *bool           `json:"active"`
	Used            bool            `json:"used"`
}

type quoteRequest struct {
	Lines      []cartLinePayload     `json:"lines" validate:"dive"`
	Catalog    []catalogEntryPayload `json:"catalog" validate:"dive"`
	Instrument *instrumentPayload    `json:"instrument"`
}

type eligibleRequest struct {
	Subtotal    int64               `json:"subtotal" validate:"min=0"`
	Instruments []instrumentPayload `json:"instruments" validate:"dive"`
}

type walletQuoteRequest struct {
	Lines        []cartLinePayload `json:"lines" validate:"dive"`
	InstrumentID string            `json:"instrumentId"`
}

type settleRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

type requirementPayload struct {
	OrderLineID    string `json:"orderLineId" validate:"required"`
	SKUID          string `json:"skuId" validate:"required"`
	QuantityNeeded int    `json:"quantityNeeded" validate:"min=1"`
	Gift           bool   `json:"gift"`
}

type batchPayload struct {
	ID                string    `json:"id" validate:"required"`
	SKUID             string    `json:"skuId" validate:"required"`
	QuantityAvailable int       `json:"quantityAvailable" validate:"min=0"`
	ExpiryDate        string    `json:"expiryDate"`
	ReceivedAt        time.Time `json:"receivedAt"`
}

type allocationRequest struct {
	Requirements []requirementPayload `json:"requirements" validate:"dive"`
	Batches      []batchPayload       `json:"batches" validate:"dive"`
}

func invalidField(field, message string) *common.AppError {
	return common.InvalidInput(message, nil).
		WithDetails(map[string]any{"fields": []common.FieldError{{Field: field, Rule: "format"}}})
}

func toCartLines(in []cartLinePayload) []pricing.CartLine {
	out := make([]pricing.CartLine, 0, len(in))
	for _, l := range in {
		out = append(out, pricing.CartLine{CatalogEntryID: l.CatalogEntryID, Quantity: l.Quantity})
	}
	return out
}

func toCatalog(in []catalogEntryPayload) pricing.CatalogIndex {
	entries := make([]pricing.CatalogEntry, 0, len(in))
	for _, e := range in {
		entries = append(entries, pricing.CatalogEntry{
			ID:               e.ID,
			BasePrice:        e.BasePrice,
			PromotionalPrice: e.PromotionalPrice,
			PromotionActive:  e.PromotionActive,
		})
	}
	return pricing.NewCatalogIndex(entries)
}

func (p instrumentPayload) toInstrument(field string) (voucher.Instrument, error) {
	kind, ok := voucher.ParseKind(p.Kind)
	if !ok {
		return voucher.Instrument{}, invalidField(field+".kind", fmt.Sprintf("unknown instrument kind %q", p.Kind))
	}
	if p.PercentRate.IsNegative() {
		return voucher.Instrument{}, invalidField(field+".percentRate", "percent rate must not be negative")
	}
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	return voucher.Instrument{
		ID:              p.ID,
		Code:            p.Code,
		Kind:            kind,
		FixedAmount:     p.FixedAmount,
		PercentRate:     p.PercentRate,
		CapAmount:       p.CapAmount,
		MinimumSubtotal: p.MinimumSubtotal,
		Active:          active,
		Used:            p.Used,
	}, nil
}

func toInstruments(in []instrumentPayload) ([]voucher.Instrument, error) {
	out := make([]voucher.Instrument, 0, len(in))
	for i, p := range in {
		inst, err := p.toInstrument(fmt.Sprintf("instruments[%d]", i))
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func toRequirements(in []requirementPayload) []allocation.Requirement {
	out := make([]allocation.Requirement, 0, len(in))
	for _, r := range in {
		out = append(out, allocation.Requirement{
			OrderLineID:    r.OrderLineID,
			SKUID:          r.SKUID,
			QuantityNeeded: r.QuantityNeeded,
			Gift:           r.Gift,
		})
	}
	return out
}

// parseExpiry accepts a calendar date or a full RFC 3339 timestamp; blank means undated.
func parseExpiry(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func toBatches(in []batchPayload) ([]allocation.Batch, error) {
	out := make([]allocation.Batch, 0, len(in))
	for i, b := range in {
		expiry, err := parseExpiry(b.ExpiryDate)
		if err != nil {
			return nil, invalidField(fmt.Sprintf("batches[%d].expiryDate", i), "expiry date must be YYYY-MM-DD or RFC 3339")
		}
		out = append(out, allocation.Batch{
			ID:                b.ID,
			SKUID:             b.SKUID,
			QuantityAvailable: b.QuantityAvailable,
			ExpiryDate:        expiry,
			ReceivedAt:        b.ReceivedAt,
		})
	}
	return out, nil
}
