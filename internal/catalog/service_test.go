package catalog_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-fulfillment/internal/catalog"
	"github.com/noah-isme/toko-fulfillment/internal/pricing"
	"github.com/noah-isme/toko-fulfillment/internal/resilience"
)

type countingStore struct {
	entries map[string]pricing.CatalogEntry
	calls   [][]string
}

func (s *countingStore) ListEntries(_ context.Context, ids []string) ([]pricing.CatalogEntry, error) {
	s.calls = append(s.calls, append([]string(nil), ids...))
	var out []pricing.CatalogEntry
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func setup(t *testing.T) (*catalog.Service, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	promo := int64(9_000)
	store := &countingStore{entries: map[string]pricing.CatalogEntry{
		"a": {ID: "a", BasePrice: 10_000, PromotionalPrice: &promo, PromotionActive: true},
		"b": {ID: "b", BasePrice: 5_000},
	}}
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Store:  store,
		Cache:  catalog.NewCache(client, time.Minute, ""),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return svc, store, mr
}

func TestEntriesCachesStoreResults(t *testing.T) {
	svc, store, mr := setup(t)
	ctx := context.Background()

	first, err := svc.Entries(ctx, []string{"a", "b", "a", "ghost"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, [][]string{{"a", "b", "ghost"}}, store.calls)
	require.True(t, mr.Exists("catalog:entry:a"))

	second, err := svc.Entries(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.ElementsMatch(t, first, second)
	require.Len(t, store.calls, 1)

	idx := pricing.NewCatalogIndex(second)
	require.Equal(t, pricing.Money(9_000), idx["a"].UnitPrice())
}

func TestInvalidateForcesReload(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Entries(ctx, []string{"b"})
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx, "b"))
	_, err = svc.Entries(ctx, []string{"b"})
	require.NoError(t, err)
	require.Len(t, store.calls, 2)
}

func TestEntriesWithoutCache(t *testing.T) {
	store := &countingStore{entries: map[string]pricing.CatalogEntry{"b": {ID: "b", BasePrice: 1}}}
	svc, err := catalog.NewService(catalog.ServiceConfig{Store: store})
	require.NoError(t, err)
	out, err := svc.Entries(context.Background(), []string{"b"})
	require.NoError(t, err)
	require.Len(t, out, 1)

	_, err = catalog.NewService(catalog.ServiceConfig{})
	require.Error(t, err)
}

func TestEntriesBypassCacheWhenBreakerOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	breaker := resilience.NewBreaker(resilience.BreakerConfig{Target: "catalog_cache", MinRequests: 2, OpenFor: time.Hour})
	store := &countingStore{entries: map[string]pricing.CatalogEntry{"b": {ID: "b", BasePrice: 5_000}}}
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Store:   store,
		Cache:   catalog.NewCache(client, time.Minute, ""),
		Breaker: breaker,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	out, err := svc.Entries(context.Background(), []string{"b"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, resilience.Open, breaker.State())

	out, err = svc.Entries(context.Background(), []string{"b"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, store.calls, 2)
}
