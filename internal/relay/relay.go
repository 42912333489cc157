// Package relay gives the agent access to page-scoped storage (backend a).
//
// A page relay is a web-app page that dials the agent over a websocket and
// answers storage requests on behalf of its localStorage. The agent side is
// Hub, which turns every live connection into a Relay; the page side is Serve.
// Page storage only holds strings.
package relay

import (
	"context"
	"errors"
)

// ErrRelayClosed is returned for calls on a relay whose socket went away.
var ErrRelayClosed = errors.New("relay connection closed")

// Directory is what a relay reports from a scan of its storage.
type Directory struct {
	Users          []string `json:"users"`
	SanitizedUsers []string `json:"sanitizedUsers"`
}

// Relay is one reachable page context.
type Relay interface {
	ID() string
	// GetItem reports exists=false for a missing key.
	GetItem(ctx context.Context, key string) (value string, exists bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
	GetAll(ctx context.Context) (map[string]string, error)
	FindAllUserEmails(ctx context.Context) (Directory, error)
	// TriggerCriticalSync asks the page for its critical records.
	TriggerCriticalSync(ctx context.Context) (map[string]string, error)
}

// Locator lists reachable relays, most recently connected first. It returns
// common.ErrNoRelay when there are none.
type Locator interface {
	Relays(ctx context.Context) ([]Relay, error)
}

// First returns the most recently connected relay.
func First(ctx context.Context, l Locator) (Relay, error) {
	relays, err := l.Relays(ctx)
	if err != nil {
		return nil, err
	}
	return relays[0], nil
}
