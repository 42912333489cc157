package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/logging"
	"github.com/dmitrijs2005/matakeeper/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var testSecret = []byte("relay-secret")

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(testSecret, nil, logging.Discard(), metrics.New())
	mux := http.NewServeMux()
	mux.Handle(Path, hub)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return hub, srv
}

func connectPage(t *testing.T, srv *httptest.Server, store PageStore) *websocket.Conn {
	t.Helper()
	token, err := IssueToken(testSecret, "http://localhost:5000", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ws, err := Dial(ctx, srv.URL, token)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close(websocket.StatusNormalClosure, "") })

	go func() { _ = Serve(ctx, ws, store) }()
	return ws
}

func waitForRelay(t *testing.T, hub *Hub, n int) Relay {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Count() == n }, 2*time.Second, 10*time.Millisecond)
	r, err := First(context.Background(), hub)
	require.NoError(t, err)
	return r
}

func TestHub_NoRelay(t *testing.T) {
	hub, _ := startHub(t)
	_, err := hub.Relays(context.Background())
	require.ErrorIs(t, err, common.ErrNoRelay)
}

func TestHub_RejectsBadToken(t *testing.T) {
	_, srv := startHub(t)

	_, err := Dial(context.Background(), srv.URL, "garbage")
	require.ErrorIs(t, err, common.ErrInvalidToken)

	other, err := IssueToken([]byte("other-secret"), "x", time.Minute)
	require.NoError(t, err)
	_, err = Dial(context.Background(), srv.URL, other)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestHub_StorageRoundTrip(t *testing.T) {
	hub, srv := startHub(t)
	store := NewMemoryPageStore(map[string]string{
		"mata_active_user":  "a@b.com",
		"mata_keys_a_b_com": `{"publicKey":"PUB1"}`,
		"unrelated":         "x",
	})
	connectPage(t, srv, store)
	r := waitForRelay(t, hub, 1)
	ctx := context.Background()

	v, ok, err := r.GetItem(ctx, "mata_keys_a_b_com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"publicKey":"PUB1"}`, v)

	_, ok, err = r.GetItem(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.SetItem(ctx, "mata_salt_a_b_com", "SALT"))
	got, _ := store.GetItem("mata_salt_a_b_com")
	assert.Equal(t, "SALT", got)

	require.NoError(t, r.RemoveItem(ctx, "unrelated"))
	all, err := r.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"mata_active_user":  "a@b.com",
		"mata_keys_a_b_com": `{"publicKey":"PUB1"}`,
		"mata_salt_a_b_com": "SALT",
	}, all)

	dir, err := r.FindAllUserEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@b.com"}, dir.Users)
	assert.Equal(t, []string{"a_b_com"}, dir.SanitizedUsers)

	critical, err := r.TriggerCriticalSync(ctx)
	require.NoError(t, err)
	assert.Len(t, critical, 3)
}

func TestHub_MostRecentFirstAndDropOnClose(t *testing.T) {
	hub, srv := startHub(t)

	first := connectPage(t, srv, NewMemoryPageStore(map[string]string{"who": "first"}))
	waitForRelay(t, hub, 1)
	connectPage(t, srv, NewMemoryPageStore(map[string]string{"who": "second"}))
	r := waitForRelay(t, hub, 2)

	v, _, err := r.GetItem(context.Background(), "who")
	require.NoError(t, err)
	assert.Equal(t, "second", v)

	require.NoError(t, first.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_UnresponsivePageTimesOut(t *testing.T) {
	hub, srv := startHub(t)
	token, err := IssueToken(testSecret, "", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ws, err := Dial(ctx, srv.URL, token)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	// read requests but never answer
	go func() {
		for {
			var req request
			if err := wsjson.Read(ctx, ws, &req); err != nil {
				return
			}
		}
	}()

	r := waitForRelay(t, hub, 1)

	callCtx, callCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer callCancel()
	start := time.Now()
	_, _, err = r.GetItem(callCtx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestHub_OnConnect(t *testing.T) {
	hub, srv := startHub(t)
	got := make(chan map[string]string, 1)
	hub.OnConnect(func(ctx context.Context, r Relay) {
		files, err := r.TriggerCriticalSync(ctx)
		if err == nil {
			got <- files
		}
	})

	connectPage(t, srv, NewMemoryPageStore(map[string]string{"mata_active_user": "a@b.com", "other": "1"}))

	select {
	case files := <-got:
		assert.Equal(t, map[string]string{"mata_active_user": "a@b.com"}, files)
	case <-time.After(2 * time.Second):
		t.Fatal("onConnect was not called")
	}
}
