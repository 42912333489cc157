package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/identity"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Dial connects a page relay to the agent at baseURL (http or ws scheme).
func Dial(ctx context.Context, baseURL, token string) (*websocket.Conn, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + Path
	q := u.Query()
	q.Set(common.RelayTokenQueryParam, token)
	u.RawQuery = q.Encode()

	ws, resp, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial relay: %w", common.ErrInvalidToken)
		}
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	ws.SetReadLimit(readLimit)
	return ws, nil
}

// Serve answers agent requests from store until the connection closes or
// ctx is done.
func Serve(ctx context.Context, ws *websocket.Conn, store PageStore) error {
	for {
		var req request
		if err := wsjson.Read(ctx, ws, &req); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := wsjson.Write(ctx, ws, handle(store, req)); err != nil {
			return err
		}
	}
}

func handle(store PageStore, req request) response {
	resp := response{ID: req.ID, Success: true}

	switch req.Action {
	case ActionGet:
		resp.Value, resp.ValueExists = store.GetItem(req.Key)
	case ActionSet:
		store.SetItem(req.Key, req.Value)
	case ActionRemove:
		store.RemoveItem(req.Key)
	case ActionGetAll:
		resp.Storage = store.All()
	case ActionFindUsers:
		dir := scanUsers(store.All())
		resp.Users, resp.SanitizedUsers = dir.Users, dir.SanitizedUsers
	case ActionCriticalSync:
		resp.Storage = criticalItems(store.All())
	default:
		resp.Success = false
		resp.Error = "unknown action: " + req.Action
	}
	return resp
}

// scanUsers collects the active user and every token that has a keys or
// salt record. Tokens are turned back into emails heuristically.
func scanUsers(items map[string]string) Directory {
	users := map[string]struct{}{}
	tokens := map[string]struct{}{}

	if active := items[common.ActiveUserKey]; active != "" {
		users[active] = struct{}{}
		tokens[identity.Sanitize(active)] = struct{}{}
	}
	for k := range items {
		token, ok := identity.TokenFromKey(k)
		if !ok {
			continue
		}
		tokens[token] = struct{}{}
		if email := identity.Unsanitize(token); email != token {
			users[email] = struct{}{}
		}
	}

	return Directory{Users: sortedKeys(users), SanitizedUsers: sortedKeys(tokens)}
}

func criticalItems(items map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range items {
		if identity.IsCritical(k) {
			out[k] = v
		}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
