package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/noah-isme/toko-fulfillment/internal/allocation"
	"github.com/noah-isme/toko-fulfillment/internal/cart"
	"github.com/noah-isme/toko-fulfillment/internal/common"
	"github.com/noah-isme/toko-fulfillment/internal/fulfillment"
	"github.com/noah-isme/toko-fulfillment/internal/lock"
	"github.com/noah-isme/toko-fulfillment/internal/pricing"
	"github.com/noah-isme/toko-fulfillment/internal/repo"
	"github.com/noah-isme/toko-fulfillment/internal/voucher"
)

// toAppError maps domain errors onto API error codes.
func toAppError(err error) *common.AppError {
	var appErr *common.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, allocation.ErrInvalidInput),
		errors.Is(err, cart.ErrInvalidInput),
		errors.Is(err, repo.ErrInvalidID),
		errors.Is(err, pricing.ErrAmountOverflow):
		return common.InvalidInput(err.Error(), err)
	case errors.Is(err, fulfillment.ErrUnknownItem):
		return common.NewAppError(common.CodeUnknownItem, err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, fulfillment.ErrShortfall):
		return common.NewAppError(common.CodeShortfall, "insufficient stock to fulfil order", http.StatusConflict, err)
	case errors.Is(err, repo.ErrStaleBatch):
		return common.NewAppError(common.CodeStaleStock, "stock changed while committing, retry", http.StatusConflict, err)
	case errors.Is(err, repo.ErrNotFound):
		return common.NewAppError(common.CodeNotFound, "resource not found", http.StatusNotFound, err)
	case errors.Is(err, lock.ErrTimeout):
		return common.NewAppError(common.CodeLocked, "stock is being committed by another request, retry", http.StatusLocked, err)
	case errors.Is(err, context.DeadlineExceeded):
		return common.NewAppError(common.CodeTimeout, "request timed out", http.StatusGatewayTimeout, err)
	default:
		return common.Internal(err)
	}
}

// reasonCode names why an instrument stopped applying.
func reasonCode(err error) string {
	switch {
	case errors.Is(err, voucher.ErrMinimumSpendUnmet):
		return "MINIMUM_SPEND_UNMET"
	case errors.Is(err, voucher.ErrInstrumentInactive):
		return "INSTRUMENT_INACTIVE"
	case errors.Is(err, voucher.ErrInstrumentUsed):
		return "INSTRUMENT_USED"
	default:
		return "NOT_APPLICABLE"
	}
}
