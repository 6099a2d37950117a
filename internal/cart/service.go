package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-fulfillment/internal/events"
	"github.com/noah-isme/toko-fulfillment/internal/obs"
	"github.com/noah-isme/toko-fulfillment/internal/pricing"
	"github.com/noah-isme/toko-fulfillment/internal/voucher"
)

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// CatalogSource resolves price data for catalog ids.
type CatalogSource interface {
	Entries(ctx context.Context, ids []string) ([]pricing.CatalogEntry, error)
}

// WalletSource reads and settles the instruments held by a user.
type WalletSource interface {
	ListInstruments(ctx context.Context, userID string) ([]voucher.Instrument, error)
	MarkUsed(ctx context.Context, userID, instrumentID, orderID string) error
}

// Emitter records domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Quote is a priced cart together with what the caller should offer or clear.
type Quote struct {
	pricing.Result
	Deselected *pricing.Deselection `json:"deselected,omitempty"`
	Eligible   []voucher.Instrument `json:"eligibleInstruments"`
}

// Service prices carts against the stored catalog and the user's wallet.
type Service struct {
	Catalog CatalogSource
	Wallet  WalletSource
	Events  Emitter
	Logger  zerolog.Logger
}

// Quote prices lines for userID. instrumentID may be empty. When the selected
// instrument does not apply to the resulting subtotal the quote carries a
// Deselected notice and no discount.
func (s *Service) Quote(ctx context.Context, userID string, lines []pricing.CartLine, instrumentID string) (Quote, error) {
	if s == nil || s.Catalog == nil || s.Wallet == nil {
		return Quote{}, errors.New("cart service not configured")
	}
	if err := validateLines(lines); err != nil {
		return Quote{}, err
	}
	catalog, err := s.catalogIndex(ctx, lines)
	if err != nil {
		return Quote{}, err
	}
	if _, err := pricing.CheckedSubtotal(lines, catalog); err != nil {
		return Quote{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	wallet, err := s.Wallet.ListInstruments(ctx, userID)
	if err != nil {
		return Quote{}, fmt.Errorf("load wallet: %w", err)
	}
	var selected *voucher.Instrument
	if id := strings.TrimSpace(instrumentID); id != "" {
		for i := range wallet {
			if wallet[i].ID == id {
				selected = &wallet[i]
				break
			}
		}
		if selected == nil {
			return Quote{}, fmt.Errorf("instrument %s not in wallet: %w", id, ErrInvalidInput)
		}
	}
	res, notice := pricing.Reconcile(lines, catalog, selected)
	quote := Quote{Result: res, Deselected: notice, Eligible: pricing.FilterEligible(wallet, res.Subtotal)}

	switch {
	case notice != nil:
		obs.RecordQuote("deselected")
		s.Logger.Info().
			Str("user_id", userID).
			Str("instrument_id", notice.InstrumentID).
			Int64("subtotal", notice.Subtotal).
			AnErr("reason", notice.Reason).
			Msg("instrument_deselected")
	case res.AppliedInstrumentID != nil:
		obs.RecordQuote("applied")
	default:
		obs.RecordQuote("none")
	}
	return quote, nil
}

// Settle marks the instrument as used by orderID once the order is committed.
func (s *Service) Settle(ctx context.Context, userID, instrumentID, orderID string) error {
	if s == nil || s.Wallet == nil {
		return errors.New("cart service not configured")
	}
	if strings.TrimSpace(instrumentID) == "" || strings.TrimSpace(orderID) == "" {
		return fmt.Errorf("instrument and order are required: %w", ErrInvalidInput)
	}
	if err := s.Wallet.MarkUsed(ctx, userID, instrumentID, orderID); err != nil {
		return err
	}
	s.Logger.Info().Str("user_id", userID).Str("instrument_id", instrumentID).Str("order_id", orderID).Msg("instrument_settled")
	if s.Events != nil {
		payload := map[string]string{"userId": userID, "instrumentId": instrumentID, "orderId": orderID}
		if _, err := s.Events.Emit(ctx, events.TopicInstrumentSettled, instrumentID, payload); err != nil {
			s.Logger.Error().Err(err).Str("instrument_id", instrumentID).Msg("instrument_event_failed")
		}
	}
	return nil
}

func (s *Service) catalogIndex(ctx context.Context, lines []pricing.CartLine) (pricing.CatalogIndex, error) {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.CatalogEntryID)
	}
	entries, err := s.Catalog.Entries(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return pricing.NewCatalogIndex(entries), nil
}

func validateLines(lines []pricing.CartLine) error {
	for i, l := range lines {
		if strings.TrimSpace(l.CatalogEntryID) == "" {
			return fmt.Errorf("line %d: catalog entry is required: %w", i, ErrInvalidInput)
		}
		if l.Quantity < 1 {
			return fmt.Errorf("line %d: quantity must be positive: %w", i, ErrInvalidInput)
		}
	}
	return nil
}
