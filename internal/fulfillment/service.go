package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-fulfillment/internal/allocation"
	"github.com/noah-isme/toko-fulfillment/internal/events"
	"github.com/noah-isme/toko-fulfillment/internal/obs"
)

// ErrShortfall is returned by Commit when available stock does not cover the order.
var ErrShortfall = errors.New("fulfillment: insufficient stock")

// OrderSource loads order lines awaiting fulfillment.
type OrderSource interface {
	ListOrderLines(ctx context.Context, orderID string) ([]OrderLine, error)
}

// ItemSource loads sellable item definitions including combo components.
type ItemSource interface {
	ListItems(ctx context.Context, ids []string) ([]Item, error)
}

// InventorySource reads stock batches and persists accepted plans.
type InventorySource interface {
	ListBatches(ctx context.Context, skuIDs []string) ([]allocation.Batch, error)
	ApplyPlan(ctx context.Context, orderID string, plans allocation.Plans) error
}

// Locker serialises work across a set of keys.
type Locker interface {
	WithLocks(ctx context.Context, keys []string, ttl time.Duration, fn func(context.Context) error) error
}

// Emitter records domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Result is a fulfillment plan for one order.
type Result struct {
	OrderID string             `json:"orderId"`
	Plans   allocation.Plans   `json:"plans"`
	Debits  []allocation.Debit `json:"debits"`
	// Ready is true when every requirement is fully covered and the order may move to processing.
	Ready          bool `json:"ready"`
	TotalShortfall int  `json:"totalShortfall"`
}

// Service builds and commits lot allocation plans for orders.
type Service struct {
	Orders    OrderSource
	Items     ItemSource
	Inventory InventorySource
	Locker    Locker
	Events    Emitter
	LockTTL   time.Duration
	LockWait  time.Duration
	KeyPrefix string
	Logger    zerolog.Logger
	Now       func() time.Time
}

func (s *Service) configured() error {
	if s == nil || s.Orders == nil || s.Items == nil || s.Inventory == nil {
		return errors.New("fulfillment service not configured")
	}
	return nil
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 15 * time.Second
	}
	return s.LockTTL
}

func (s *Service) lockWait() time.Duration {
	if s.LockWait <= 0 {
		return 5 * time.Second
	}
	return s.LockWait
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Plan computes the allocation plan for an order against current stock without
// reserving anything.
func (s *Service) Plan(ctx context.Context, orderID string) (Result, error) {
	if err := s.configured(); err != nil {
		return Result{}, err
	}
	ctx, span := otel.Tracer("fulfillment").Start(ctx, "fulfillment.plan")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	reqs, err := s.requirements(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	res, err := s.allocate(ctx, orderID, reqs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.Bool("fulfillment.ready", res.Ready), attribute.Int("fulfillment.shortfall", res.TotalShortfall))
	return res, nil
}

// Commit re-allocates the order against authoritative stock while holding a lock on
// every affected SKU and persists the resulting debits. It refuses with ErrShortfall
// when the order cannot be covered in full; nothing is written in that case.
func (s *Service) Commit(ctx context.Context, orderID string) (Result, error) {
	if err := s.configured(); err != nil {
		return Result{}, err
	}
	if s.Locker == nil {
		return Result{}, errors.New("fulfillment locker not configured")
	}
	start := s.now()
	ctx, span := otel.Tracer("fulfillment").Start(ctx, "fulfillment.commit")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	reqs, err := s.requirements(ctx, orderID)
	if err != nil {
		obs.RecordCommit("invalid", s.now().Sub(start))
		span.RecordError(err)
		return Result{}, err
	}
	keys := make([]string, 0, len(reqs))
	for _, sku := range allocation.SKUs(reqs) {
		keys = append(keys, s.KeyPrefix+"alloc:sku:"+sku)
	}

	// LockWait bounds acquisition only; the work under the locks runs on ctx.
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait())
	defer cancel()

	var res Result
	err = s.Locker.WithLocks(lockCtx, keys, s.lockTTL(), func(context.Context) error {
		var allocErr error
		res, allocErr = s.allocate(ctx, orderID, reqs)
		if allocErr != nil {
			return allocErr
		}
		if !res.Ready {
			return fmt.Errorf("%w: %d units short for order %s", ErrShortfall, res.TotalShortfall, orderID)
		}
		return s.Inventory.ApplyPlan(ctx, orderID, res.Plans)
	})
	elapsed := s.now().Sub(start)
	if err != nil {
		outcome := "error"
		switch {
		case errors.Is(err, ErrShortfall):
			outcome = "shortfall"
		case errors.Is(err, context.DeadlineExceeded):
			outcome = "timeout"
		}
		obs.RecordCommit(outcome, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.Logger.Warn().Err(err).Str("order_id", orderID).Str("outcome", outcome).Msg("fulfillment_commit_failed")
		if outcome == "shortfall" {
			s.emit(ctx, events.TopicFulfillmentShortfall, orderID, shortfallPayload(res))
		}
		return res, err
	}
	obs.RecordCommit("committed", elapsed)
	s.Logger.Info().
		Str("order_id", orderID).
		Int("requirements", len(res.Plans)).
		Int("batches", len(res.Debits)).
		Int64("duration_ms", elapsed.Milliseconds()).
		Msg("fulfillment_committed")
	s.emit(ctx, events.TopicFulfillmentCommitted, orderID, map[string]any{
		"orderId": orderID,
		"debits":  res.Debits,
	})
	return res, nil
}

func (s *Service) emit(ctx context.Context, topic, orderID string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, orderID, payload); err != nil {
		s.Logger.Error().Err(err).Str("order_id", orderID).Str("topic", topic).Msg("fulfillment_event_failed")
	}
}

func shortfallPayload(res Result) map[string]any {
	short := make([]map[string]any, 0)
	for _, p := range res.Plans.Short() {
		short = append(short, map[string]any{
			"orderLineId": p.Requirement.OrderLineID,
			"skuId":       p.Requirement.SKUID,
			"needed":      p.Requirement.QuantityNeeded,
			"shortfall":   p.Shortfall,
		})
	}
	return map[string]any{
		"orderId":        res.OrderID,
		"totalShortfall": res.TotalShortfall,
		"short":          short,
	}
}

func (s *Service) requirements(ctx context.Context, orderID string) ([]allocation.Requirement, error) {
	lines, err := s.Orders.ListOrderLines(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: order %s has no lines", allocation.ErrInvalidInput, orderID)
	}
	items, err := s.Items.ListItems(ctx, ItemIDs(lines))
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	return ExpandLines(lines, NewItemIndex(items))
}

func (s *Service) allocate(ctx context.Context, orderID string, reqs []allocation.Requirement) (Result, error) {
	batches, err := s.Inventory.ListBatches(ctx, allocation.SKUs(reqs))
	if err != nil {
		return Result{}, fmt.Errorf("load batches: %w", err)
	}
	plans, err := allocation.Allocate(reqs, allocation.GroupBySKU(batches))
	if err != nil {
		obs.RecordAllocation("invalid", 0)
		return Result{}, err
	}
	res := Result{
		OrderID:        orderID,
		Plans:          plans,
		Debits:         plans.Debits(),
		Ready:          !plans.HasShortfall(),
		TotalShortfall: plans.TotalShortfall(),
	}
	if res.Ready {
		obs.RecordAllocation("complete", 0)
	} else {
		obs.RecordAllocation("shortfall", res.TotalShortfall)
		short := zerolog.Arr()
		for _, p := range plans.Short() {
			short = short.Dict(zerolog.Dict().
				Str("order_line_id", p.Requirement.OrderLineID).
				Str("sku_id", p.Requirement.SKUID).
				Int("needed", p.Requirement.QuantityNeeded).
				Int("shortfall", p.Shortfall))
		}
		s.Logger.Info().
			Str("order_id", orderID).
			Int("shortfall", res.TotalShortfall).
			Array("short", short).
			Msg("allocation_shortfall")
	}
	return res, nil
}
