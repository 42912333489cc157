package storagesync

import (
	"context"
	"maps"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/extstore"
	"github.com/dmitrijs2005/matakeeper/internal/logging"
	"github.com/dmitrijs2005/matakeeper/internal/relay"
	"github.com/dmitrijs2005/matakeeper/internal/relay/relaytest"
	"github.com/stretchr/testify/require"
)

func fastOptions() Options {
	return Options{
		CriticalStoreTimeout: 200 * time.Millisecond,
		RelayTimeout:         200 * time.Millisecond,
		DiscoveryTimeout:     200 * time.Millisecond,
		SyncTimeout:          2 * time.Second,
	}
}

func newStore(t *testing.T) *extstore.SQLStore {
	t.Helper()
	s, err := extstore.Open(context.Background(), "sqlite", ":memory:", extstore.DefaultQuota, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newService(t *testing.T, store extstore.Store, opts Options, relays ...relay.Relay) (*Service, *relaytest.Locator) {
	t.Helper()
	loc := relaytest.NewLocator(relays...)
	svc := New(store, loc, logging.Discard(), nil, opts)
	t.Cleanup(svc.Wait)
	return svc, loc
}

func seed(t *testing.T, s extstore.Store, items map[string]any) {
	t.Helper()
	require.NoError(t, s.Set(context.Background(), items))
}

func stored(t *testing.T, s extstore.Store, key string) (any, bool) {
	t.Helper()
	items, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	v, ok := items[key]
	return v, ok
}

// storeKeys returns every key in the store, sorted.
func storeKeys(t *testing.T, s extstore.Store) []string {
	t.Helper()
	all, err := s.All(context.Background())
	require.NoError(t, err)
	return slices.Sorted(maps.Keys(all))
}

// missOnceStore hides everything from the first Get, as if a writer landed
// right after it.
type missOnceStore struct {
	extstore.Store
	gets atomic.Int32
}

func (m *missOnceStore) Get(ctx context.Context, keys ...string) (map[string]any, error) {
	if m.gets.Add(1) == 1 {
		return map[string]any{}, nil
	}
	return m.Store.Get(ctx, keys...)
}
