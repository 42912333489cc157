package extstore

import (
	"context"
	"strings"
	"testing"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, quota int64) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:", quota, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStore_SetGet_PreservesStructure(t *testing.T) {
	s := newTestStore(t, DefaultQuota)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, map[string]any{
		"mata_active_user":   "a@b.com",
		"mata_keys_a_b_com":  map[string]any{"publicKey": "PUB1"},
		"mata_sync_duration": 12,
	}))

	got, err := s.Get(ctx, "mata_active_user", "mata_keys_a_b_com", "missing")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"mata_active_user":  "a@b.com",
		"mata_keys_a_b_com": map[string]any{"publicKey": "PUB1"},
	}, got)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, 12.0, all["mata_sync_duration"])
}

func TestSQLStore_StringThatLooksLikeJSONStaysString(t *testing.T) {
	s := newTestStore(t, DefaultQuota)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, map[string]any{"k": `{"a":1}`}))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, got["k"])
}

func TestSQLStore_UpsertAndRemove(t *testing.T) {
	s := newTestStore(t, DefaultQuota)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, map[string]any{"k": "old", "other": true}))
	require.NoError(t, s.Set(ctx, map[string]any{"k": "new"}))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", got["k"])

	require.NoError(t, s.Remove(ctx, "k", "never-there"))
	got, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"other": true}, got)
}

func TestSQLStore_QuotaExceeded_RollsBackWholeBatch(t *testing.T) {
	s := newTestStore(t, 64)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, map[string]any{"a": "1"}))

	err := s.Set(ctx, map[string]any{
		"b":   "2",
		"big": strings.Repeat("x", 100),
	})
	require.ErrorIs(t, err, common.ErrQuotaExceeded)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1"}, all, "nothing from the failed batch is kept")
}

func TestSQLStore_Quota(t *testing.T) {
	s := newTestStore(t, 1000)
	ctx := context.Background()

	u, err := s.Quota(ctx)
	require.NoError(t, err)
	assert.Equal(t, Usage{Used: 0, Granted: 1000}, u)

	require.NoError(t, s.Set(ctx, map[string]any{"key": "value"}))
	u, err = s.Quota(ctx)
	require.NoError(t, err)
	// "key" + `"value"`
	assert.Equal(t, int64(10), u.Used)
	assert.InDelta(t, 1.0, u.Percent, 0.001)
}

func TestSQLStore_EmptyCallsAreNoops(t *testing.T) {
	s := newTestStore(t, DefaultQuota)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, nil))
	require.NoError(t, s.Remove(ctx))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "x", 0, logging.Discard())
	require.Error(t, err)
}
