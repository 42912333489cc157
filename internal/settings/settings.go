// Package settings stores the user-facing extension settings record.
package settings

import (
	"context"
	"fmt"
	"maps"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/extstore"
	"github.com/dmitrijs2005/matakeeper/internal/jsonx"
)

// Defaults is the record written on first run.
func Defaults() map[string]any {
	return map[string]any{
		"autoLockMinutes": 5.0,
		"requirePassword": true,
		"dataSync":        true,
	}
}

// Load returns the stored settings merged over the defaults.
func Load(ctx context.Context, store extstore.Store) (map[string]any, error) {
	items, err := store.Get(ctx, common.SettingsKey)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	out := Defaults()
	if m, ok := jsonx.Decode(items[common.SettingsKey]).(map[string]any); ok {
		maps.Copy(out, m)
	}
	return out, nil
}

// Save replaces the stored settings.
func Save(ctx context.Context, store extstore.Store, s map[string]any) error {
	if s == nil {
		return fmt.Errorf("%w: no settings provided", common.ErrInvalidRequest)
	}
	if err := store.Set(ctx, map[string]any{common.SettingsKey: s}); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// EnsureDefaults writes the defaults when no settings are stored. It reports
// whether it did.
func EnsureDefaults(ctx context.Context, store extstore.Store) (bool, error) {
	items, err := store.Get(ctx, common.SettingsKey)
	if err != nil {
		return false, fmt.Errorf("load settings: %w", err)
	}
	if _, ok := items[common.SettingsKey]; ok {
		return false, nil
	}
	return true, Save(ctx, store, Defaults())
}
