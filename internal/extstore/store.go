// Package extstore is the extension-scoped structured store (backend b):
// always reachable, JSON values, capacity-limited.
package extstore

import "context"

// DefaultQuota mirrors the extension storage allowance.
const DefaultQuota int64 = 5 * 1024 * 1024

// Store is a structured key/value store. Values come back decoded
// (map[string]any, []any, string, float64, bool or nil).
type Store interface {
	// Get returns the present subset of keys. With no keys it returns everything.
	Get(ctx context.Context, keys ...string) (map[string]any, error)
	// Set writes all items in one transaction or none of them.
	Set(ctx context.Context, items map[string]any) error
	Remove(ctx context.Context, keys ...string) error
	All(ctx context.Context) (map[string]any, error)
	BytesInUse(ctx context.Context) (int64, error)
	Quota(ctx context.Context) (Usage, error)
}

// Usage describes how much of the allowance is taken.
type Usage struct {
	Used    int64   `json:"used"`
	Granted int64   `json:"granted"`
	Percent float64 `json:"percentUsed"`
}

func newUsage(used, granted int64) Usage {
	u := Usage{Used: used, Granted: granted}
	if granted > 0 {
		u.Percent = float64(used) / float64(granted) * 100
	}
	return u
}
