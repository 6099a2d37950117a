package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/toko-fulfillment/internal/allocation"
)

const listBatchesBySKU = `SELECT id, sku_id, quantity_available, expiry_date, received_at
FROM stock_batches
WHERE sku_id = ANY($1)`

const debitBatch = `UPDATE stock_batches
SET quantity_available = quantity_available - $2, updated_at = NOW()
WHERE id = $1 AND quantity_available >= $2`

const insertAllocation = `INSERT INTO fulfillment_allocations (order_id, order_line_id, sku_id, batch_id, quantity, gift)
VALUES ($1, $2, $3, $4, $5, $6)`

// InventoryStore reads stock batches and persists accepted allocation plans.
type InventoryStore struct {
	DB DB
}

// ListBatches returns every batch of the requested SKUs.
func (s InventoryStore) ListBatches(ctx context.Context, skuIDs []string) ([]allocation.Batch, error) {
	if len(skuIDs) == 0 {
		return nil, nil
	}
	rows, err := s.DB.Query(ctx, listBatchesBySKU, skuIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []allocation.Batch
	for rows.Next() {
		var (
			id       pgtype.UUID
			expiry   pgtype.Date
			received pgtype.Timestamptz
			b        allocation.Batch
		)
		if err := rows.Scan(&id, &b.SKUID, &b.QuantityAvailable, &expiry, &received); err != nil {
			return nil, err
		}
		b.ID = uuidString(id)
		if expiry.Valid {
			t := time.Date(expiry.Time.Year(), expiry.Time.Month(), expiry.Time.Day(), 0, 0, 0, 0, time.UTC)
			b.ExpiryDate = &t
		}
		if received.Valid {
			b.ReceivedAt = received.Time.UTC()
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ApplyPlan debits every batch drawn by plans and records the allocations against the
// order in one transaction. A batch holding less than its debit aborts with ErrStaleBatch.
func (s InventoryStore) ApplyPlan(ctx context.Context, orderID string, plans allocation.Plans) error {
	oid, err := uuidValue(orderID)
	if err != nil {
		return err
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	for _, d := range plans.Debits() {
		bid, err := uuidValue(d.BatchID)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, debitBatch, bid, d.Quantity)
		if err != nil {
			return fmt.Errorf("debit batch %s: %w", d.BatchID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrStaleBatch, d.BatchID)
		}
	}
	for _, p := range plans {
		lineID, err := uuidValue(p.Requirement.OrderLineID)
		if err != nil {
			return err
		}
		for _, a := range p.BatchAllocations {
			bid, err := uuidValue(a.BatchID)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, insertAllocation, oid, lineID, p.Requirement.SKUID, bid, a.QuantityTaken, p.Requirement.Gift); err != nil {
				return fmt.Errorf("record allocation: %w", err)
			}
		}
	}
	return tx.Commit(ctx)
}
