package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-fulfillment/internal/config"
	"github.com/noah-isme/toko-fulfillment/internal/obs"
)

// seedNamespace derives stable ids so reseeding updates rows instead of duplicating them.
var seedNamespace = uuid.MustParse("6f1c0c1e-5b0e-4c47-9a57-1d2f8f0e4a10")

func id(name string) uuid.UUID { return uuid.NewSHA1(seedNamespace, []byte(name)) }

type entry struct {
	Name             string
	SKU              string
	BasePrice        int64
	PromotionalPrice *int64
	PromotionActive  bool
	Components       []component
}

type component struct {
	SKU      string
	Quantity int
	Gift     bool
}

type batch struct {
	Name     string
	SKU      string
	Quantity int
	Expiry   *time.Time
	Received time.Time
}

type instrument struct {
	Name     string
	Code     string
	Kind     string
	Fixed    int64
	Rate     string
	Cap      *int64
	Minimum  *int64
	UserName string
}

func ptr[T any](v T) *T { return &v }

func main() {
	cfg := config.MustLoad()
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "seed").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	today := time.Now().UTC().Truncate(24 * time.Hour)
	entries := []entry{
		{Name: "green-tea-250g", SKU: "SKU-TEA-GREEN", BasePrice: 45000},
		{Name: "jasmine-tea-250g", SKU: "SKU-TEA-JASMINE", BasePrice: 50000, PromotionalPrice: ptr[int64](42000), PromotionActive: true},
		{Name: "ceramic-cup", SKU: "SKU-CUP", BasePrice: 30000},
		{Name: "tea-lover-bundle", BasePrice: 150000, Components: []component{
			{SKU: "SKU-TEA-GREEN", Quantity: 2},
			{SKU: "SKU-TEA-JASMINE", Quantity: 1},
			{SKU: "SKU-CUP", Quantity: 1, Gift: true},
		}},
	}
	batches := []batch{
		{Name: "green-a", SKU: "SKU-TEA-GREEN", Quantity: 5, Expiry: ptr(today.AddDate(0, 2, 0)), Received: today.AddDate(0, -1, 0)},
		{Name: "green-b", SKU: "SKU-TEA-GREEN", Quantity: 20, Expiry: ptr(today.AddDate(0, 6, 0)), Received: today.AddDate(0, 0, -7)},
		{Name: "jasmine-a", SKU: "SKU-TEA-JASMINE", Quantity: 8, Expiry: ptr(today.AddDate(0, 3, 0)), Received: today.AddDate(0, 0, -14)},
		{Name: "cup-a", SKU: "SKU-CUP", Quantity: 3, Received: today.AddDate(0, -2, 0)},
	}
	instruments := []instrument{
		{Name: "welcome-10", Code: "WELCOME10", Kind: "PERCENT", Rate: "10", Cap: ptr[int64](25000), Minimum: ptr[int64](100000), UserName: "demo"},
		{Name: "flat-15k", Code: "HEMAT15", Kind: "FIXED", Fixed: 15000, Minimum: ptr[int64](75000), UserName: "demo"},
	}

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := seedCatalog(ctx, tx, entries); err != nil {
			return err
		}
		if err := seedBatches(ctx, tx, batches); err != nil {
			return err
		}
		if err := seedWallet(ctx, tx, instruments); err != nil {
			return err
		}
		return seedOrder(ctx, tx)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}
	logSummary(logger, entries, batches, instruments)
}

func seedCatalog(ctx context.Context, tx pgx.Tx, entries []entry) error {
	for _, e := range entries {
		var sku *string
		if e.SKU != "" {
			sku = &e.SKU
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO catalog_entries (id, sku_id, title, base_price, promotional_price, promotion_active)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				sku_id = EXCLUDED.sku_id,
				title = EXCLUDED.title,
				base_price = EXCLUDED.base_price,
				promotional_price = EXCLUDED.promotional_price,
				promotion_active = EXCLUDED.promotion_active,
				updated_at = NOW()`,
			id("entry:"+e.Name), sku, e.Name, e.BasePrice, e.PromotionalPrice, e.PromotionActive,
		); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM combo_components WHERE combo_id = $1`, id("entry:"+e.Name)); err != nil {
			return err
		}
		for pos, c := range e.Components {
			if _, err := tx.Exec(ctx, `
				INSERT INTO combo_components (combo_id, position, sku_id, quantity_per_unit, gift)
				VALUES ($1, $2, $3, $4, $5)`,
				id("entry:"+e.Name), pos, c.SKU, c.Quantity, c.Gift,
			); err != nil {
				return err
			}
		}
	}
	return nil
}

func seedBatches(ctx context.Context, tx pgx.Tx, batches []batch) error {
	for _, b := range batches {
		if _, err := tx.Exec(ctx, `
			INSERT INTO stock_batches (id, sku_id, quantity_available, expiry_date, received_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				quantity_available = EXCLUDED.quantity_available,
				expiry_date = EXCLUDED.expiry_date,
				updated_at = NOW()`,
			id("batch:"+b.Name), b.SKU, b.Quantity, b.Expiry, b.Received,
		); err != nil {
			return err
		}
	}
	return nil
}

func seedWallet(ctx context.Context, tx pgx.Tx, instruments []instrument) error {
	for _, in := range instruments {
		var rate *string
		if in.Rate != "" {
			rate = &in.Rate
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO wallet_instruments (id, user_id, code, kind, fixed_amount, percent_rate, cap_amount, minimum_subtotal)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8)
			ON CONFLICT (id) DO UPDATE SET active = TRUE, used = FALSE, used_order_id = NULL, used_at = NULL`,
			id("instrument:"+in.Name), id("user:"+in.UserName), in.Code, in.Kind, in.Fixed, rate, in.Cap, in.Minimum,
		); err != nil {
			return err
		}
	}
	return nil
}

func seedOrder(ctx context.Context, tx pgx.Tx) error {
	orderID := id("order:demo-1")
	lines := []struct {
		name     string
		item     string
		quantity int
	}{
		{"demo-1:bundle", "tea-lover-bundle", 1},
		{"demo-1:green", "green-tea-250g", 4},
	}
	for pos, l := range lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_lines (id, order_id, position, item_id, quantity)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET quantity = EXCLUDED.quantity`,
			id("line:"+l.name), orderID, pos, id("entry:"+l.item), l.quantity,
		); err != nil {
			return err
		}
	}
	return nil
}

func logSummary(logger zerolog.Logger, entries []entry, batches []batch, instruments []instrument) {
	logger.Info().
		Int("catalog_entries", len(entries)).
		Int("stock_batches", len(batches)).
		Int("wallet_instruments", len(instruments)).
		Str("demo_user_id", id("user:demo").String()).
		Str("demo_order_id", id("order:demo-1").String()).
		Msg("seed completed")
}
