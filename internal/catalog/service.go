package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-fulfillment/internal/pricing"
	"github.com/noah-isme/toko-fulfillment/internal/resilience"
)

// EntryStore loads authoritative price data.
type EntryStore interface {
	ListEntries(ctx context.Context, ids []string) ([]pricing.CatalogEntry, error)
}

// Service serves catalog entries, consulting the cache before the store. While
// the breaker is open the cache is bypassed entirely.
type Service struct {
	store   EntryStore
	cache   *Cache
	breaker *resilience.Breaker
	logger  zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store   EntryStore
	Cache   *Cache
	Breaker *resilience.Breaker
	Logger  zerolog.Logger
}

// NewService validates the configuration and builds a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	return &Service{store: cfg.Store, cache: cfg.Cache, breaker: cfg.Breaker, logger: cfg.Logger}, nil
}

// Entries returns the catalog entries for ids. Ids unknown to the store are omitted;
// cache failures fall back to the store.
func (s *Service) Entries(ctx context.Context, ids []string) ([]pricing.CatalogEntry, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	var cached map[string]pricing.CatalogEntry
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		var lookupErr error
		cached, lookupErr = s.cache.Lookup(ctx, ids)
		return lookupErr
	})
	if err != nil && !errors.Is(err, resilience.ErrOpenCircuit) {
		s.logger.Warn().Err(err).Int("ids", len(ids)).Msg("catalog_cache_lookup")
	}

	out := make([]pricing.CatalogEntry, 0, len(ids))
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if entry, ok := cached[id]; ok {
			out = append(out, entry)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := s.store.ListEntries(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(loaded) > 0 {
		err = s.breaker.Do(ctx, func(ctx context.Context) error {
			return s.cache.Store(ctx, loaded)
		})
		if err != nil && !errors.Is(err, resilience.ErrOpenCircuit) {
			s.logger.Warn().Err(err).Int("entries", len(loaded)).Msg("catalog_cache_store")
		}
	}
	return append(out, loaded...), nil
}

// Invalidate drops cached entries so the next read goes to the store.
func (s *Service) Invalidate(ctx context.Context, ids ...string) error {
	return s.cache.Evict(ctx, dedupe(ids)...)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
