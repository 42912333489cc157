package relay

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/logging"
	"github.com/dmitrijs2005/matakeeper/internal/metrics"
	"nhooyr.io/websocket"
)

// DefaultOriginPatterns are the hosts the web app is served from.
var DefaultOriginPatterns = []string{
	"*.replit.app",
	"*.vercel.app",
	"*.netlify.app",
	"mata-app.com",
	"app.mata-app.com",
	"localhost:*",
}

// Hub accepts page relay connections and hands them out as Relays.
type Hub struct {
	secret         []byte
	originPatterns []string
	log            logging.Logger
	metrics        *metrics.Metrics

	mu        sync.RWMutex
	conns     []*conn
	onConnect func(context.Context, Relay)
}

func NewHub(secret []byte, originPatterns []string, log logging.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		secret:         secret,
		originPatterns: originPatterns,
		log:            log.With("module", "relay"),
		metrics:        m,
	}
}

// OnConnect registers fn to run in its own goroutine for each new relay.
func (h *Hub) OnConnect(fn func(context.Context, Relay)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConnect = fn
}

// Relays implements Locator.
func (h *Hub) Relays(ctx context.Context) ([]Relay, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.conns) == 0 {
		return nil, common.ErrNoRelay
	}
	out := make([]Relay, 0, len(h.conns))
	for i := len(h.conns) - 1; i >= 0; i-- {
		out = append(out, h.conns[i])
	}
	return out, nil
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.URL.Query().Get(common.RelayTokenQueryParam)
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get(common.RelayTokenHeaderName), "Bearer ")
	}
	claims, err := VerifyToken(token, h.secret)
	if err != nil {
		h.log.Warn(ctx, "relay rejected", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "invalid relay token", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.log.Warn(ctx, "websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(readLimit)

	c := newConn(ws, claims.Origin, h.log, h.metrics)
	h.add(c)
	defer h.remove(c)

	c.log.Info(ctx, "relay connected", "remote", r.RemoteAddr)

	h.mu.RLock()
	onConnect := h.onConnect
	h.mu.RUnlock()
	if onConnect != nil {
		go onConnect(context.WithoutCancel(ctx), c)
	}

	if err := c.readLoop(ctx); err != nil {
		c.log.Info(ctx, "relay disconnected", "error", err)
		_ = ws.Close(websocket.StatusInternalError, "read failed")
		return
	}
	c.log.Info(ctx, "relay disconnected")
	_ = ws.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) add(c *conn) {
	h.mu.Lock()
	h.conns = append(h.conns, c)
	h.mu.Unlock()
	h.metrics.RelayConnected()
}

func (h *Hub) remove(c *conn) {
	c.shutdown()
	h.mu.Lock()
	h.conns = slices.DeleteFunc(h.conns, func(x *conn) bool { return x == c })
	h.mu.Unlock()
	h.metrics.RelayDisconnected()
}
