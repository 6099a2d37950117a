package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/toko-fulfillment/internal/fulfillment"
	"github.com/noah-isme/toko-fulfillment/internal/pricing"
)

const listCatalogEntries = `SELECT id, base_price, promotional_price, promotion_active
FROM catalog_entries
WHERE id = ANY($1)`

const listItems = `SELECT e.id, e.sku_id, c.sku_id, c.quantity_per_unit, c.gift
FROM catalog_entries e
LEFT JOIN combo_components c ON c.combo_id = e.id
WHERE e.id = ANY($1)
ORDER BY e.id, c.position`

// CatalogStore reads price and composition data of sellable items.
type CatalogStore struct {
	DB DB
}

// ListEntries returns price data for the requested ids. Unknown ids are skipped.
func (s CatalogStore) ListEntries(ctx context.Context, ids []string) ([]pricing.CatalogEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys, err := uuidValues(ids)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, listCatalogEntries, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pricing.CatalogEntry
	for rows.Next() {
		var (
			id    pgtype.UUID
			promo pgtype.Int8
			entry pricing.CatalogEntry
		)
		if err := rows.Scan(&id, &entry.BasePrice, &promo, &entry.PromotionActive); err != nil {
			return nil, err
		}
		entry.ID = uuidString(id)
		entry.PromotionalPrice = int8Ptr(promo)
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ListItems returns items with their combo components in declared order.
func (s CatalogStore) ListItems(ctx context.Context, ids []string) ([]fulfillment.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys, err := uuidValues(ids)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, listItems, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var (
		out   []fulfillment.Item
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			id      pgtype.UUID
			sku     pgtype.Text
			compSKU pgtype.Text
			perUnit pgtype.Int4
			gift    pgtype.Bool
		)
		if err := rows.Scan(&id, &sku, &compSKU, &perUnit, &gift); err != nil {
			return nil, err
		}
		key := uuidString(id)
		pos, ok := index[key]
		if !ok {
			pos = len(out)
			index[key] = pos
			out = append(out, fulfillment.Item{ID: key, SKUID: sku.String})
		}
		if compSKU.Valid {
			out[pos].Components = append(out[pos].Components, fulfillment.Component{
				SKUID:           compSKU.String,
				QuantityPerUnit: int(perUnit.Int32),
				Gift:            gift.Valid && gift.Bool,
			})
		}
	}
	return out, rows.Err()
}
