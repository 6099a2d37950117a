package httpapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-fulfillment/internal/allocation"
	"github.com/noah-isme/toko-fulfillment/internal/cart"
	"github.com/noah-isme/toko-fulfillment/internal/common"
	"github.com/noah-isme/toko-fulfillment/internal/fulfillment"
	"github.com/noah-isme/toko-fulfillment/internal/httpapi"
	"github.com/noah-isme/toko-fulfillment/internal/lock"
	"github.com/noah-isme/toko-fulfillment/internal/pricing"
	"github.com/noah-isme/toko-fulfillment/internal/repo"
)

type stubWallet struct {
	quote    cart.Quote
	err      error
	settled  []string
	gotLines []pricing.CartLine
}

func (s *stubWallet) Quote(_ context.Context, userID string, lines []pricing.CartLine, instrumentID string) (cart.Quote, error) {
	s.gotLines = lines
	return s.quote, s.err
}

func (s *stubWallet) Settle(_ context.Context, userID, instrumentID, orderID string) error {
	if s.err != nil {
		return s.err
	}
	s.settled = append(s.settled, userID+"/"+instrumentID+"/"+orderID)
	return nil
}

type stubFulfillment struct {
	res fulfillment.Result
	err error
}

func (s stubFulfillment) Plan(_ context.Context, orderID string) (fulfillment.Result, error) {
	res := s.res
	res.OrderID = orderID
	return res, s.err
}

func (s stubFulfillment) Commit(_ context.Context, orderID string) (fulfillment.Result, error) {
	res := s.res
	res.OrderID = orderID
	return res, s.err
}

type errorEnvelope struct {
	Error common.ErrorBody `json:"error"`
}

func newRouter(t *testing.T, h *httpapi.Handler) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	h.Logger = zerolog.Nop()
	return httpapi.NewRouter(httpapi.RouterConfig{
		Handler:   h,
		Logger:    zerolog.Nop(),
		BodyLimit: 1 << 16,
		Idem:      common.Idem{R: client, TTL: time.Minute},
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

const quoteBody = `{
  "lines": [{"catalogEntryId": "p1", "quantity": 2}, {"catalogEntryId": "p2", "quantity": 1}],
  "catalog": [
    {"id": "p1", "basePrice": 50000},
    {"id": "p2", "basePrice": 30000, "promotionalPrice": 25000, "isPromotionActive": true}
  ],
  "instrument": {"id": "v1", "kind": "PERCENTAGE", "percentRate": 10, "capAmount": 5000, "minimumSubtotal": 100000}
}`

func TestPricingQuoteAppliesCappedPercent(t *testing.T) {
	router := newRouter(t, &httpapi.Handler{})
	rr := do(t, router, http.MethodPost, "/api/v1/pricing/quote", quoteBody)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decode[map[string]any](t, rr)
	require.Equal(t, float64(125000), body["subtotal"])
	require.Equal(t, float64(5000), body["discountAmount"])
	require.Equal(t, float64(120000), body["total"])
	require.Equal(t, "v1", body["appliedInstrumentId"])
	require.NotContains(t, body, "deselected")
}

func TestPricingQuoteReportsDeselection(t *testing.T) {
	router := newRouter(t, &httpapi.Handler{})
	body := strings.Replace(quoteBody, `"quantity": 2`, `"quantity": 1`, 1)
	rr := do(t, router, http.MethodPost, "/api/v1/pricing/quote", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out struct {
		Subtotal       int64 `json:"subtotal"`
		DiscountAmount int64 `json:"discountAmount"`
		Deselected     struct {
			InstrumentID    string `json:"instrumentId"`
			Reason          string `json:"reason"`
			MinimumSubtotal int64  `json:"minimumSubtotal"`
		} `json:"deselected"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, int64(75000), out.Subtotal)
	require.Zero(t, out.DiscountAmount)
	require.Equal(t, "v1", out.Deselected.InstrumentID)
	require.Equal(t, "MINIMUM_SPEND_UNMET", out.Deselected.Reason)
	require.Equal(t, int64(100000), out.Deselected.MinimumSubtotal)
}

func TestPricingQuoteValidation(t *testing.T) {
	router := newRouter(t, &httpapi.Handler{})

	rr := do(t, router, http.MethodPost, "/api/v1/pricing/quote", `{"lines":[{"catalogEntryId":"p1","quantity":0}]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "INVALID_INPUT", decode[errorEnvelope](t, rr).Error.Code)

	rr = do(t, router, http.MethodPost, "/api/v1/pricing/quote", `{"instrument":{"id":"v","kind":"BOGUS"}}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "instrument.kind")
}

func TestPricingQuoteRejectsOverflowingTotal(t *testing.T) {
	router := newRouter(t, &httpapi.Handler{})
	rr := do(t, router, http.MethodPost, "/api/v1/pricing/quote", `{
  "lines": [{"catalogEntryId": "gold", "quantity": 3}],
  "catalog": [{"id": "gold", "basePrice": 4000000000000000000}]
}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "INVALID_INPUT", decode[errorEnvelope](t, rr).Error.Code)
}

func TestPricingQuoteEmptyCart(t *testing.T) {
	router := newRouter(t, &httpapi.Handler{})
	rr := do(t, router, http.MethodPost, "/api/v1/pricing/quote", `{"lines":[],"catalog":[]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[map[string]any](t, rr)
	require.Equal(t, float64(0), body["total"])
}

func TestPricingEligible(t *testing.T) {
	router := newRouter(t, &httpapi.Handler{})
	rr := do(t, router, http.MethodPost, "/api/v1/pricing/eligible", `{
	  "subtotal": 60000,
	  "instruments": [
	    {"id": "a", "kind": "FIXED", "fixedAmount": 1000, "minimumSubtotal": 50000},
	    {"id": "b", "kind": "FIXED", "fixedAmount": 1000, "minimumSubtotal": 70000},
	    {"id": "c", "kind": "FIXED", "fixedAmount": 1000, "used": true},
	    {"id": "d", "kind": "PERCENT", "percentRate": "5", "active": false}
	  ]
	}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out struct {
		Eligible []struct {
			ID string `json:"id"`
		} `json:"eligible"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out.Eligible, 1)
	require.Equal(t, "a", out.Eligible[0].ID)
}

func TestAllocationPlanSplitsAcrossBatches(t *testing.T) {
	router := newRouter(t, &httpapi.Handler{})
	rr := do(t, router, http.MethodPost, "/api/v1/allocations/plan", `{
	  "requirements": [{"orderLineId": "L1", "skuId": "X", "quantityNeeded": 8}],
	  "batches": [
	    {"id": "B2", "skuId": "X", "quantityAvailable": 10, "expiryDate": "2024-06-01", "receivedAt": "2024-01-02T00:00:00Z"},
	    {"id": "B1", "skuId": "X", "quantityAvailable": 5, "expiryDate": "2024-03-01", "receivedAt": "2024-01-01T00:00:00Z"}
	  ]
	}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var out struct {
		Plans          allocation.Plans   `json:"plans"`
		Debits         []allocation.Debit `json:"debits"`
		Fulfilled      bool               `json:"fulfilled"`
		TotalShortfall int                `json:"totalShortfall"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.True(t, out.Fulfilled)
	require.Equal(t, []allocation.BatchAllocation{{BatchID: "B1", QuantityTaken: 5}, {BatchID: "B2", QuantityTaken: 3}}, out.Plans[0].BatchAllocations)
	require.Len(t, out.Debits, 2)
}

func TestAllocationPlanShortfallIsData(t *testing.T) {
	router := newRouter(t, &httpapi.Handler{})
	rr := do(t, router, http.MethodPost, "/api/v1/allocations/plan", `{
	  "requirements": [{"orderLineId": "L1", "skuId": "Y", "quantityNeeded": 3}],
	  "batches": [{"id": "B1", "skuId": "Y", "quantityAvailable": 1, "receivedAt": "2024-01-01T00:00:00Z"}]
	}`)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[map[string]any](t, rr)
	require.Equal(t, false, body["fulfilled"])
	require.Equal(t, float64(2), body["totalShortfall"])
}

func TestAllocationPlanRejectsBadExpiry(t *testing.T) {
	router := newRouter(t, &httpapi.Handler{})
	rr := do(t, router, http.MethodPost, "/api/v1/allocations/plan", `{
	  "requirements": [{"orderLineId": "L1", "skuId": "Y", "quantityNeeded": 1}],
	  "batches": [{"id": "B1", "skuId": "Y", "quantityAvailable": 1, "expiryDate": "next week"}]
	}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "batches[0].expiryDate")
}

func TestAllocationPlanRejectsDuplicateBatch(t *testing.T) {
	router := newRouter(t, &httpapi.Handler{})
	rr := do(t, router, http.MethodPost, "/api/v1/allocations/plan", `{
	  "requirements": [{"orderLineId": "L1", "skuId": "X", "quantityNeeded": 10}],
	  "batches": [
	    {"id": "A", "skuId": "X", "quantityAvailable": 5, "receivedAt": "2024-01-01T00:00:00Z"},
	    {"id": "A", "skuId": "X", "quantityAvailable": 5, "receivedAt": "2024-01-01T00:00:00Z"}
	  ]
	}`)
	require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), "INVALID_INPUT")
}

func TestWalletQuoteAndSettle(t *testing.T) {
	wallet := &stubWallet{quote: cart.Quote{Result: pricing.Result{Subtotal: 100, Total: 100}}}
	router := newRouter(t, &httpapi.Handler{Wallet: wallet})

	rr := do(t, router, http.MethodPost, "/api/v1/wallets/u1/quote", `{"lines":[{"catalogEntryId":"p1","quantity":1}]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, []pricing.CartLine{{CatalogEntryID: "p1", Quantity: 1}}, wallet.gotLines)
	body := decode[map[string]any](t, rr)
	require.Equal(t, []any{}, body["eligibleInstruments"])

	rr = do(t, router, http.MethodPost, "/api/v1/wallets/u1/instruments/v9/settle", `{"orderId":"o-1"}`)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, []string{"u1/v9/o-1"}, wallet.settled)
}

func TestWalletQuoteMapsInvalidInput(t *testing.T) {
	wallet := &stubWallet{err: fmt.Errorf("instrument x not in wallet: %w", cart.ErrInvalidInput)}
	router := newRouter(t, &httpapi.Handler{Wallet: wallet})
	rr := do(t, router, http.MethodPost, "/api/v1/wallets/u1/quote", `{"lines":[],"instrumentId":"x"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWalletSettleMapsNotFound(t *testing.T) {
	wallet := &stubWallet{err: repo.ErrNotFound}
	router := newRouter(t, &httpapi.Handler{Wallet: wallet})
	rr := do(t, router, http.MethodPost, "/api/v1/wallets/u1/instruments/v9/settle", `{"orderId":"o-1"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestFulfillmentPlan(t *testing.T) {
	svc := stubFulfillment{res: fulfillment.Result{Ready: true, Plans: allocation.Plans{}}}
	router := newRouter(t, &httpapi.Handler{Fulfillment: svc})
	rr := do(t, router, http.MethodGet, "/api/v1/orders/o-5/fulfillment-plan", "")
	require.Equal(t, http.StatusOK, rr.Code)
	res := decode[fulfillment.Result](t, rr)
	require.Equal(t, "o-5", res.OrderID)
	require.True(t, res.Ready)
}

func TestFulfillmentCommitShortfall(t *testing.T) {
	short := allocation.Plan{Requirement: allocation.Requirement{OrderLineID: "L1", SKUID: "X", QuantityNeeded: 4}, Shortfall: 3}
	svc := stubFulfillment{
		res: fulfillment.Result{Plans: allocation.Plans{short}, TotalShortfall: 3},
		err: fmt.Errorf("%w: 3 units short", fulfillment.ErrShortfall),
	}
	router := newRouter(t, &httpapi.Handler{Fulfillment: svc})
	rr := do(t, router, http.MethodPost, "/api/v1/orders/o-5/fulfillment", "")
	require.Equal(t, http.StatusConflict, rr.Code)

	var out struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				TotalShortfall int              `json:"totalShortfall"`
				Short          allocation.Plans `json:"short"`
			} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, "SHORTFALL", out.Error.Code)
	require.Equal(t, 3, out.Error.Details.TotalShortfall)
	require.Len(t, out.Error.Details.Short, 1)
}

func TestFulfillmentCommitErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: sku X: %w", lock.ErrTimeout, context.DeadlineExceeded), http.StatusLocked, "LOCKED"},
		{repo.ErrStaleBatch, http.StatusConflict, "STALE_STOCK"},
		{fmt.Errorf("%w: ghost", fulfillment.ErrUnknownItem), http.StatusUnprocessableEntity, "UNKNOWN_ITEM"},
		{fmt.Errorf("%w: order has no lines", allocation.ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		router := newRouter(t, &httpapi.Handler{Fulfillment: stubFulfillment{err: tc.err}})
		rr := do(t, router, http.MethodPost, "/api/v1/orders/o-1/fulfillment", "")
		require.Equal(t, tc.status, rr.Code, tc.err.Error())
		require.Equal(t, tc.code, decode[errorEnvelope](t, rr).Error.Code)
	}
}

func TestFulfillmentCommitIdempotencyKey(t *testing.T) {
	router := newRouter(t, &httpapi.Handler{Fulfillment: stubFulfillment{res: fulfillment.Result{Ready: true}}})
	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/o-1/fulfillment", nil)
		req.Header.Set("Idempotency-Key", "commit-o-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}
	require.Equal(t, http.StatusOK, send())
	require.Equal(t, http.StatusConflict, send())
}

func TestUnknownRoute(t *testing.T) {
	router := newRouter(t, &httpapi.Handler{})
	rr := do(t, router, http.MethodGet, "/api/v1/nope", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "NOT_FOUND", decode[errorEnvelope](t, rr).Error.Code)
}
