// Package httpapi exposes pricing, allocation and fulfillment over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-fulfillment/internal/allocation"
	"github.com/noah-isme/toko-fulfillment/internal/cart"
	"github.com/noah-isme/toko-fulfillment/internal/common"
	"github.com/noah-isme/toko-fulfillment/internal/fulfillment"
	"github.com/noah-isme/toko-fulfillment/internal/pricing"
	"github.com/noah-isme/toko-fulfillment/internal/voucher"
)

// QuoteService prices carts against stored catalog and wallet data.
type QuoteService interface {
	Quote(ctx context.Context, userID string, lines []pricing.CartLine, instrumentID string) (cart.Quote, error)
	Settle(ctx context.Context, userID, instrumentID, orderID string) error
}

// FulfillmentService plans and commits stock allocation for stored orders.
type FulfillmentService interface {
	Plan(ctx context.Context, orderID string) (fulfillment.Result, error)
	Commit(ctx context.Context, orderID string) (fulfillment.Result, error)
}

// Handler serves the API endpoints. The stateless pricing and allocation endpoints
// work without any configured service.
type Handler struct {
	Wallet      QuoteService
	Fulfillment FulfillmentService
	Logger      zerolog.Logger
}

type deselectionView struct {
	InstrumentID    string `json:"instrumentId"`
	Reason          string `json:"reason"`
	Subtotal        int64  `json:"subtotal"`
	MinimumSubtotal *int64 `json:"minimumSubtotal,omitempty"`
}

type quoteView struct {
	pricing.Result
	Deselected *deselectionView `json:"deselected,omitempty"`
}

type walletQuoteView struct {
	quoteView
	Eligible []voucher.Instrument `json:"eligibleInstruments"`
}

func newQuoteView(res pricing.Result, d *pricing.Deselection) quoteView {
	view := quoteView{Result: res}
	if d != nil {
		view.Deselected = &deselectionView{
			InstrumentID:    d.InstrumentID,
			Reason:          reasonCode(d.Reason),
			Subtotal:        d.Subtotal,
			MinimumSubtotal: d.MinimumSubtotal,
		}
	}
	return view
}

type allocationView struct {
	Plans          allocation.Plans   `json:"plans"`
	Debits         []allocation.Debit `json:"debits"`
	Fulfilled      bool               `json:"fulfilled"`
	TotalShortfall int                `json:"totalShortfall"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.Logger.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request_failed")
	}
	common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
}

// PricingQuote computes totals for a caller-supplied cart, catalog and optional instrument.
func (h *Handler) PricingQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	var selected *voucher.Instrument
	if req.Instrument != nil {
		inst, err := req.Instrument.toInstrument("instrument")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		selected = &inst
	}
	lines, catalog := toCartLines(req.Lines), toCatalog(req.Catalog)
	if _, err := pricing.CheckedSubtotal(lines, catalog); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, deselected := pricing.Reconcile(lines, catalog, selected)
	common.JSON(w, http.StatusOK, newQuoteView(res, deselected))
}

// PricingEligible filters instruments down to those applicable at a subtotal.
func (h *Handler) PricingEligible(w http.ResponseWriter, r *http.Request) {
	var req eligibleRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	instruments, err := toInstruments(req.Instruments)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	eligible := pricing.FilterEligible(instruments, req.Subtotal)
	if eligible == nil {
		eligible = []voucher.Instrument{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"eligible": eligible})
}

// AllocationPlan allocates caller-supplied batches to requirements without touching stock.
func (h *Handler) AllocationPlan(w http.ResponseWriter, r *http.Request) {
	var req allocationRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	batches, err := toBatches(req.Batches)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	plans, err := allocation.Allocate(toRequirements(req.Requirements), allocation.GroupBySKU(batches))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, allocationView{
		Plans:          plans,
		Debits:         plans.Debits(),
		Fulfilled:      !plans.HasShortfall(),
		TotalShortfall: plans.TotalShortfall(),
	})
}

// WalletQuote prices a cart for a user against stored prices and their wallet.
func (h *Handler) WalletQuote(w http.ResponseWriter, r *http.Request) {
	if h.Wallet == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "wallet service not configured", nil)
		return
	}
	var req walletQuoteRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	q, err := h.Wallet.Quote(r.Context(), chi.URLParam(r, "userID"), toCartLines(req.Lines), strings.TrimSpace(req.InstrumentID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	eligible := q.Eligible
	if eligible == nil {
		eligible = []voucher.Instrument{}
	}
	common.JSON(w, http.StatusOK, walletQuoteView{quoteView: newQuoteView(q.Result, q.Deselected), Eligible: eligible})
}

// WalletSettle marks an instrument as consumed by a committed order.
func (h *Handler) WalletSettle(w http.ResponseWriter, r *http.Request) {
	if h.Wallet == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "wallet service not configured", nil)
		return
	}
	var req settleRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Wallet.Settle(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "instrumentID"), req.OrderID); err != nil {
		h.writeError(w, r, err)
		return
	}
	common.NoContent(w)
}

// FulfillmentPlan previews the lot allocation for a stored order.
func (h *Handler) FulfillmentPlan(w http.ResponseWriter, r *http.Request) {
	if h.Fulfillment == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "fulfillment service not configured", nil)
		return
	}
	res, err := h.Fulfillment.Plan(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, res)
}

// FulfillmentCommit reserves stock for a stored order. A shortfall is refused with
// 409 and the short requirements in the error details.
func (h *Handler) FulfillmentCommit(w http.ResponseWriter, r *http.Request) {
	if h.Fulfillment == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "fulfillment service not configured", nil)
		return
	}
	orderID := chi.URLParam(r, "orderID")
	res, err := h.Fulfillment.Commit(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, fulfillment.ErrShortfall) {
			appErr := toAppError(err).WithDetails(map[string]any{
				"orderId":        orderID,
				"totalShortfall": res.TotalShortfall,
				"short":          res.Plans.Short(),
			})
			h.writeError(w, r, appErr)
			return
		}
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, res)
}
