package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/toko-fulfillment/internal/fulfillment"
)

const listOrderLines = `SELECT id, order_id, item_id, quantity
FROM order_lines
WHERE order_id = $1
ORDER BY position, id`

// OrderStore reads order lines awaiting fulfillment.
type OrderStore struct {
	DB DB
}

// ListOrderLines returns the lines of an order in their original sequence.
func (s OrderStore) ListOrderLines(ctx context.Context, orderID string) ([]fulfillment.OrderLine, error) {
	oid, err := uuidValue(orderID)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, listOrderLines, oid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []fulfillment.OrderLine
	for rows.Next() {
		var (
			id, order, item pgtype.UUID
			qty             int32
		)
		if err := rows.Scan(&id, &order, &item, &qty); err != nil {
			return nil, err
		}
		out = append(out, fulfillment.OrderLine{
			ID:       uuidString(id),
			OrderID:  uuidString(order),
			ItemID:   uuidString(item),
			Quantity: int(qty),
		})
	}
	return out, rows.Err()
}
