package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/logging"
	"github.com/dmitrijs2005/matakeeper/internal/metrics"
	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// writeTimeout is independent of caller deadlines: an expired write context
// makes the websocket library close the connection.
const writeTimeout = 5 * time.Second

// conn is the agent side of one page connection.
type conn struct {
	id          string
	origin      string
	ws          *websocket.Conn
	log         logging.Logger
	metrics     *metrics.Metrics
	connectedAt time.Time

	mu      sync.Mutex
	pending map[string]chan response
	closed  chan struct{}
	once    sync.Once
}

func newConn(ws *websocket.Conn, origin string, log logging.Logger, m *metrics.Metrics) *conn {
	id := uuid.NewString()
	return &conn{
		id:          id,
		origin:      origin,
		ws:          ws,
		log:         log.With("relay", id, "origin", origin),
		metrics:     m,
		connectedAt: time.Now(),
		pending:     make(map[string]chan response),
		closed:      make(chan struct{}),
	}
}

func (c *conn) ID() string { return c.id }

func (c *conn) GetItem(ctx context.Context, key string) (string, bool, error) {
	resp, err := c.call(ctx, request{Action: ActionGet, Key: key})
	if err != nil {
		return "", false, err
	}
	return resp.Value, resp.ValueExists, nil
}

func (c *conn) SetItem(ctx context.Context, key, value string) error {
	_, err := c.call(ctx, request{Action: ActionSet, Key: key, Value: value})
	return err
}

func (c *conn) RemoveItem(ctx context.Context, key string) error {
	_, err := c.call(ctx, request{Action: ActionRemove, Key: key})
	return err
}

func (c *conn) GetAll(ctx context.Context) (map[string]string, error) {
	resp, err := c.call(ctx, request{Action: ActionGetAll})
	if err != nil {
		return nil, err
	}
	if resp.Storage == nil {
		return map[string]string{}, nil
	}
	return resp.Storage, nil
}

func (c *conn) FindAllUserEmails(ctx context.Context) (Directory, error) {
	resp, err := c.call(ctx, request{Action: ActionFindUsers})
	if err != nil {
		return Directory{}, err
	}
	return Directory{Users: resp.Users, SanitizedUsers: resp.SanitizedUsers}, nil
}

func (c *conn) TriggerCriticalSync(ctx context.Context) (map[string]string, error) {
	resp, err := c.call(ctx, request{Action: ActionCriticalSync})
	if err != nil {
		return nil, err
	}
	return resp.Storage, nil
}

func (c *conn) call(ctx context.Context, req request) (response, error) {
	req.ID = uuid.NewString()
	ch := make(chan response, 1)

	c.mu.Lock()
	c.pending[req.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	select {
	case <-c.closed:
		return response{}, fmt.Errorf("relay %s: %w", c.id, ErrRelayClosed)
	default:
	}

	wctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	err := wsjson.Write(wctx, c.ws, req)
	cancel()
	if err != nil {
		c.metrics.RelayRequest(req.Action, false)
		return response{}, fmt.Errorf("relay %s: write %s: %w", c.id, req.Action, err)
	}

	select {
	case resp := <-ch:
		c.metrics.RelayRequest(req.Action, resp.Success)
		if !resp.Success {
			return resp, fmt.Errorf("relay %s: %s failed: %s", c.id, req.Action, resp.Error)
		}
		return resp, nil
	case <-c.closed:
		c.metrics.RelayRequest(req.Action, false)
		return response{}, fmt.Errorf("relay %s: %w", c.id, ErrRelayClosed)
	case <-ctx.Done():
		c.metrics.RelayRequest(req.Action, false)
		return response{}, ctx.Err()
	}
}

// readLoop dispatches replies to waiting callers until the socket fails.
func (c *conn) readLoop(ctx context.Context) error {
	defer c.shutdown()
	for {
		var resp response
		if err := wsjson.Read(ctx, c.ws, &resp); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		c.mu.Unlock()
		if !ok {
			c.log.Debug(ctx, "dropping reply with no waiter", "id", resp.ID)
			continue
		}
		ch <- resp
	}
}

func (c *conn) shutdown() {
	c.once.Do(func() { close(c.closed) })
}
