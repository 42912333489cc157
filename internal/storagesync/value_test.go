package storagesync

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/relay/relaytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet_RoundTripWithoutRelay(t *testing.T) {
	store := newStore(t)
	svc, _ := newService(t, store, fastOptions())
	ctx := context.Background()

	values := map[string]any{
		"mata_active_user":  "a@b.com",
		"mata_keys_a_b_com": map[string]any{"publicKey": "PUB1", "user": map[string]any{"name": "A"}},
		"mata_salt_a_b_com": "c2FsdA",
	}
	for k, v := range values {
		res, err := svc.Set(ctx, k, v)
		require.NoError(t, err, k)
		assert.Equal(t, SourceStorageOnly, res.Source, k)
		assert.NotEmpty(t, res.Warning)

		got, err := svc.Get(ctx, k)
		require.NoError(t, err, k)
		assert.Equal(t, v, got.Value, k)
		assert.Equal(t, SourceStoragePrimary, got.Source)
	}

	_, ok := stored(t, store, "mata_keys_a_b_com_updated")
	assert.True(t, ok, "timestamp sibling")
	legacy, ok := stored(t, store, "user_a_b_com_keys")
	assert.True(t, ok, "legacy twin")
	assert.Equal(t, values["mata_keys_a_b_com"], legacy)
}

func TestSet_CriticalJSONStringIsStoredStructured(t *testing.T) {
	store := newStore(t)
	svc, _ := newService(t, store, fastOptions())

	_, err := svc.Set(context.Background(), "mata_keys_a_b_com", `{"publicKey":"PUB1"}`)
	require.NoError(t, err)

	v, _ := stored(t, store, "mata_keys_a_b_com")
	assert.Equal(t, map[string]any{"publicKey": "PUB1"}, v)
}

func TestGet_CriticalServedFromStoreThenRefreshed(t *testing.T) {
	store := newStore(t)
	seed(t, store, map[string]any{"mata_keys_a_b_com": map[string]any{"publicKey": "OLD"}})
	page := relaytest.New("tab", map[string]string{"mata_keys_a_b_com": `{"publicKey":"NEW"}`})
	svc, _ := newService(t, store, fastOptions(), page)

	got, err := svc.Get(context.Background(), "mata_keys_a_b_com")
	require.NoError(t, err)
	assert.Equal(t, SourceStoragePrimary, got.Source)
	assert.Equal(t, map[string]any{"publicKey": "OLD"}, got.Value)

	svc.Wait()
	v, _ := stored(t, store, "mata_keys_a_b_com")
	assert.Equal(t, map[string]any{"publicKey": "NEW"}, v)
}

func TestGet_CriticalFromPageIsCached(t *testing.T) {
	store := newStore(t)
	page := relaytest.New("tab", map[string]string{"mata_keys_x_y_com": `{"publicKey":"PUB2"}`})
	svc, _ := newService(t, store, fastOptions(), page)

	got, err := svc.Get(context.Background(), "mata_keys_x_y_com")
	require.NoError(t, err)
	assert.Equal(t, SourceLocalStorage, got.Source)
	assert.Equal(t, map[string]any{"publicKey": "PUB2"}, got.Value)

	v, ok := stored(t, store, "mata_keys_x_y_com")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"publicKey": "PUB2"}, v)
	_, ok = stored(t, store, "mata_keys_x_y_com_updated")
	assert.True(t, ok)
}

func TestGet_StoreValueWinsWhenPageUnreachable(t *testing.T) {
	store := newStore(t)
	seed(t, store, map[string]any{"mata_active_user": "a@b.com"})
	broken := relaytest.New("tab", nil)
	broken.Err = relaytest.ErrBroken
	svc, _ := newService(t, store, fastOptions(), broken)

	got, err := svc.Get(context.Background(), "mata_active_user")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", got.Value)
}

func TestGet_LastResortRead(t *testing.T) {
	inner := newStore(t)
	seed(t, inner, map[string]any{"mata_salt_a_b_com": "SALT"})
	svc, _ := newService(t, &missOnceStore{Store: inner}, fastOptions())

	got, err := svc.Get(context.Background(), "mata_salt_a_b_com")
	require.NoError(t, err)
	assert.Equal(t, SourceStorageLastResort, got.Source)
	assert.Equal(t, "SALT", got.Value)
	require.ErrorIs(t, got.RelayErr, common.ErrNoRelay)
}

func TestGet_UnresponsivePageDoesNotHang(t *testing.T) {
	store := newStore(t)
	slow := relaytest.New("tab", map[string]string{"mata_keys_a_b_com": "{}"})
	slow.Delay = 3 * time.Second
	opts := fastOptions()
	opts.RelayTimeout = 50 * time.Millisecond
	svc, _ := newService(t, store, opts, slow)

	start := time.Now()
	_, err := svc.Get(context.Background(), "mata_keys_a_b_com")
	require.ErrorIs(t, err, common.ErrNotFound)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGet_NonCritical(t *testing.T) {
	store := newStore(t)
	seed(t, store, map[string]any{"theme": "dark"})
	svc, loc := newService(t, store, fastOptions())
	ctx := context.Background()

	got, err := svc.Get(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, SourceStorage, got.Source)

	page := relaytest.New("tab", map[string]string{"theme": "light"})
	loc.Set(page)
	got, err = svc.Get(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, SourceLocalStorage, got.Source)
	assert.Equal(t, "light", got.Value)

	v, _ := stored(t, store, "theme")
	assert.Equal(t, "dark", v, "non-critical reads are not cached")

	_, err = svc.Get(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSet_NonCriticalNeedsRelay(t *testing.T) {
	svc, loc := newService(t, newStore(t), fastOptions())
	ctx := context.Background()

	_, err := svc.Set(ctx, "theme", "dark")
	require.ErrorIs(t, err, common.ErrNoRelay)

	page := relaytest.New("tab", nil)
	loc.Set(page)
	res, err := svc.Set(ctx, "prefs", map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, SourceLocalStorage, res.Source)
	v, _ := page.Store.GetItem("prefs")
	assert.JSONEq(t, `{"a":1}`, v)
}

func TestSet_CriticalWritesBoth(t *testing.T) {
	store := newStore(t)
	page := relaytest.New("tab", nil)
	svc, _ := newService(t, store, fastOptions(), page)

	res, err := svc.Set(context.Background(), "mata_active_user", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, SourceBoth, res.Source)

	v, _ := page.Store.GetItem("mata_active_user")
	assert.Equal(t, "a@b.com", v)
	got, _ := stored(t, store, "mata_active_user")
	assert.Equal(t, "a@b.com", got)
}

func TestSet_CriticalPageFailureIsWarning(t *testing.T) {
	page := relaytest.New("tab", nil)
	page.Err = relaytest.ErrBroken
	svc, _ := newService(t, newStore(t), fastOptions(), page)

	res, err := svc.Set(context.Background(), "mata_salt_a_b_com", "s")
	require.NoError(t, err)
	assert.Equal(t, SourceStorageOnly, res.Source)
	assert.Contains(t, res.Warning, "relay broken")
}

func TestEmptyKeyRejected(t *testing.T) {
	svc, _ := newService(t, newStore(t), fastOptions())
	_, err := svc.Get(context.Background(), "")
	require.ErrorIs(t, err, common.ErrInvalidRequest)
	_, err = svc.Set(context.Background(), "", "x")
	require.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestRemove(t *testing.T) {
	store := newStore(t)
	page := relaytest.New("tab", map[string]string{"mata_keys_a_b_com": "{}"})
	svc, _ := newService(t, store, fastOptions(), page)
	ctx := context.Background()

	_, err := svc.Set(ctx, "mata_keys_a_b_com", map[string]any{"publicKey": "P"})
	require.NoError(t, err)
	require.NoError(t, svc.Remove(ctx, "mata_keys_a_b_com"))

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	_, ok := page.Store.GetItem("mata_keys_a_b_com")
	assert.False(t, ok)
}
