// Package relaytest provides in-process relays for tests of components that
// talk to page storage.
package relaytest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/identity"
	"github.com/dmitrijs2005/matakeeper/internal/relay"
)

// Relay answers from a MemoryPageStore. Delay postpones every reply (until
// ctx is done); Err, when set, fails every call.
type Relay struct {
	Name  string
	Store *relay.MemoryPageStore
	Delay time.Duration
	Err   error

	mu    sync.Mutex
	calls []string
}

func New(name string, items map[string]string) *Relay {
	return &Relay{Name: name, Store: relay.NewMemoryPageStore(items)}
}

func (r *Relay) ID() string { return r.Name }

// Calls returns the actions seen so far, in order.
func (r *Relay) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *Relay) enter(ctx context.Context, action string) error {
	r.mu.Lock()
	r.calls = append(r.calls, action)
	r.mu.Unlock()

	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.Err
}

func (r *Relay) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := r.enter(ctx, relay.ActionGet); err != nil {
		return "", false, err
	}
	v, ok := r.Store.GetItem(key)
	return v, ok, nil
}

func (r *Relay) SetItem(ctx context.Context, key, value string) error {
	if err := r.enter(ctx, relay.ActionSet); err != nil {
		return err
	}
	r.Store.SetItem(key, value)
	return nil
}

func (r *Relay) RemoveItem(ctx context.Context, key string) error {
	if err := r.enter(ctx, relay.ActionRemove); err != nil {
		return err
	}
	r.Store.RemoveItem(key)
	return nil
}

func (r *Relay) GetAll(ctx context.Context) (map[string]string, error) {
	if err := r.enter(ctx, relay.ActionGetAll); err != nil {
		return nil, err
	}
	return r.Store.All(), nil
}

func (r *Relay) FindAllUserEmails(ctx context.Context) (relay.Directory, error) {
	if err := r.enter(ctx, relay.ActionFindUsers); err != nil {
		return relay.Directory{}, err
	}
	var dir relay.Directory
	seen := map[string]bool{}
	items := r.Store.All()
	if active := items[common.ActiveUserKey]; active != "" {
		dir.Users = append(dir.Users, active)
		tok := identity.Sanitize(active)
		dir.SanitizedUsers = append(dir.SanitizedUsers, tok)
		seen[tok] = true
	}
	for k := range items {
		if tok, ok := identity.TokenFromKey(k); ok && !seen[tok] {
			seen[tok] = true
			dir.SanitizedUsers = append(dir.SanitizedUsers, tok)
			dir.Users = append(dir.Users, identity.Unsanitize(tok))
		}
	}
	return dir, nil
}

func (r *Relay) TriggerCriticalSync(ctx context.Context) (map[string]string, error) {
	if err := r.enter(ctx, relay.ActionCriticalSync); err != nil {
		return nil, err
	}
	out := map[string]string{}
	for k, v := range r.Store.All() {
		if identity.IsCritical(k) {
			out[k] = v
		}
	}
	return out, nil
}

// Locator hands out a fixed list of relays.
type Locator struct {
	mu     sync.Mutex
	relays []relay.Relay
}

func NewLocator(relays ...relay.Relay) *Locator {
	return &Locator{relays: relays}
}

func (l *Locator) Set(relays ...relay.Relay) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.relays = relays
}

func (l *Locator) Relays(ctx context.Context) ([]relay.Relay, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.relays) == 0 {
		return nil, common.ErrNoRelay
	}
	return append([]relay.Relay(nil), l.relays...), nil
}

// ErrBroken is a convenience failure for Relay.Err.
var ErrBroken = errors.New("relay broken")
