package pagerelay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/jsonx"
	"github.com/dmitrijs2005/matakeeper/internal/logging"
	"github.com/dmitrijs2005/matakeeper/internal/relay"
	"nhooyr.io/websocket"
)

// LoadSeed reads a JSON object of page storage items. String values are
// kept as is; anything else is stored as its JSON text, the way a page
// would have written it.
func LoadSeed(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}

	items := make(map[string]string, len(raw))
	for k, v := range raw {
		s, err := jsonx.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("seed item %s: %w", k, err)
		}
		items[k] = s
	}
	return items, nil
}

type Relay struct {
	config *Config
	store  relay.PageStore
	logger logging.Logger
}

func New(c *Config, store relay.PageStore, logger logging.Logger) *Relay {
	return &Relay{config: c, store: store, logger: logger.With("module", "pagerelay")}
}

// Run keeps a connection to the agent open, reconnecting after
// ReconnectDelay, until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	for {
		if err := r.serveOnce(ctx); err != nil {
			r.logger.Warn(ctx, "relay connection ended", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.config.ReconnectDelay):
		}
	}
}

func (r *Relay) serveOnce(ctx context.Context) error {
	token, err := relay.IssueToken([]byte(r.config.Secret), r.config.Origin, r.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	ws, err := relay.Dial(ctx, r.config.AgentURL, token)
	if err != nil {
		return err
	}
	defer ws.CloseNow()

	r.logger.Info(ctx, "connected to agent", "url", r.config.AgentURL, "items", len(r.store.All()))

	if err := relay.Serve(ctx, ws, r.store); err != nil && ctx.Err() == nil {
		return err
	}
	_ = ws.Close(websocket.StatusNormalClosure, "")
	return nil
}
