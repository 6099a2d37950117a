package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-fulfillment/internal/voucher"
)

const instrumentColumns = `id, code, kind, fixed_amount, COALESCE(percent_rate, 0)::text, cap_amount, minimum_subtotal, active, used`

const listWalletInstruments = `SELECT ` + instrumentColumns + `
FROM wallet_instruments
WHERE user_id = $1
ORDER BY redeemed_at, id`

const markInstrumentUsed = `UPDATE wallet_instruments
SET used = TRUE, used_order_id = $3, used_at = NOW()
WHERE user_id = $1 AND id = $2 AND (used = FALSE OR used_order_id = $3)`

// WalletStore reads and settles the discount instruments redeemed by a user.
type WalletStore struct {
	DB DB
}

// ListInstruments returns every instrument in the user's wallet, oldest first.
func (s WalletStore) ListInstruments(ctx context.Context, userID string) ([]voucher.Instrument, error) {
	uid, err := uuidValue(userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, listWalletInstruments, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []voucher.Instrument
	for rows.Next() {
		in, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// MarkUsed flags the instrument as consumed by orderID. Repeating the call for the
// same order is a no-op; an instrument used by another order yields ErrNotFound.
func (s WalletStore) MarkUsed(ctx context.Context, userID, instrumentID, orderID string) error {
	uid, err := uuidValue(userID)
	if err != nil {
		return err
	}
	iid, err := uuidValue(instrumentID)
	if err != nil {
		return err
	}
	oid, err := uuidValue(orderID)
	if err != nil {
		return err
	}
	tag, err := s.DB.Exec(ctx, markInstrumentUsed, uid, iid, oid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanInstrument(row pgx.Row) (voucher.Instrument, error) {
	var (
		id      pgtype.UUID
		code    pgtype.Text
		kind    string
		rate    string
		capAmt  pgtype.Int8
		minimum pgtype.Int8
		in      voucher.Instrument
	)
	if err := row.Scan(&id, &code, &kind, &in.FixedAmount, &rate, &capAmt, &minimum, &in.Active, &in.Used); err != nil {
		return voucher.Instrument{}, err
	}
	k, ok := voucher.ParseKind(kind)
	if !ok {
		return voucher.Instrument{}, fmt.Errorf("instrument %s: unknown kind %q", uuidString(id), kind)
	}
	pct, err := decimal.NewFromString(rate)
	if err != nil {
		return voucher.Instrument{}, fmt.Errorf("instrument %s: percent rate: %w", uuidString(id), err)
	}
	in.ID = uuidString(id)
	in.Code = code.String
	in.Kind = k
	in.PercentRate = pct
	in.CapAmount = int8Ptr(capAmt)
	in.MinimumSubtotal = int8Ptr(minimum)
	return in, nil
}
