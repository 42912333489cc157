package storagesync

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/identity"
	"github.com/dmitrijs2005/matakeeper/internal/jsonx"
	"github.com/dmitrijs2005/matakeeper/internal/relay"
)

// GetResult is a value read by GetValue. RelayErr records why page storage
// was not used when the value came from a fallback.
type GetResult struct {
	Value    any
	Source   Source
	RelayErr error
}

type SetResult struct {
	Source  Source
	Warning string
}

// Get reads key, treating it as critical when it is an active-user, keys or
// salt record.
func (s *Service) Get(ctx context.Context, key string) (GetResult, error) {
	return s.GetValue(ctx, key, identity.IsCritical(key))
}

// Set writes key, treating it as critical when identity.IsCritical says so.
func (s *Service) Set(ctx context.Context, key string, value any) (SetResult, error) {
	return s.SetValue(ctx, key, value, identity.IsCritical(key))
}

// GetValue walks the fallback chain for key. Timeouts and missing relays
// only move the walk on; the returned error wraps common.ErrNotFound once
// every backend has been tried.
func (s *Service) GetValue(ctx context.Context, key string, critical bool) (GetResult, error) {
	if key == "" {
		return GetResult{}, fmt.Errorf("%w: empty key", common.ErrInvalidRequest)
	}

	if critical {
		if v, ok := s.storeGet(ctx, key); ok {
			s.refreshInBackground(ctx, key)
			return GetResult{Value: v, Source: SourceStoragePrimary}, nil
		}
	}

	v, relayErr := s.relayGet(ctx, key)
	if relayErr == nil {
		if critical {
			s.cache(ctx, key, v)
		}
		return GetResult{Value: v, Source: SourceLocalStorage}, nil
	}
	s.log.Debug(ctx, "page storage read failed", "key", key, "error", relayErr)

	// a concurrent writer may have filled the store in the meantime
	if v, ok := s.storeGet(ctx, key); ok {
		src := SourceStorage
		if critical {
			src = SourceStorageLastResort
		}
		return GetResult{Value: v, Source: src, RelayErr: relayErr}, nil
	}

	return GetResult{RelayErr: relayErr}, fmt.Errorf("%w: %s: all storage methods failed: %v", common.ErrNotFound, key, relayErr)
}

// SetValue writes value. Critical keys go to the structured store first and
// succeed without a relay; other keys need one.
func (s *Service) SetValue(ctx context.Context, key string, value any, critical bool) (SetResult, error) {
	if key == "" {
		return SetResult{}, fmt.Errorf("%w: empty key", common.ErrInvalidRequest)
	}

	var storeErr error
	if critical {
		decoded, err := jsonx.Normalize(jsonx.Decode(value))
		if err != nil {
			return SetResult{}, fmt.Errorf("%w: %s: %v", common.ErrParse, key, err)
		}
		batch := make(map[string]any, 3)
		s.stamp(batch, key, decoded, s.nowMillis())
		if storeErr = s.store.Set(ctx, batch); storeErr != nil {
			s.log.Error(ctx, "critical write to store failed", "key", key, "error", storeErr)
		}
	}

	r, err := relay.First(ctx, s.relays)
	if err != nil {
		if critical && storeErr == nil {
			return SetResult{
				Source:  SourceStorageOnly,
				Warning: "value only saved to extension storage, not to page storage",
			}, nil
		}
		if storeErr != nil {
			return SetResult{}, fmt.Errorf("set %s: %w", key, errors.Join(storeErr, err))
		}
		return SetResult{}, fmt.Errorf("set %s: %w", key, err)
	}

	raw, err := jsonx.Encode(value)
	if err != nil {
		return SetResult{}, fmt.Errorf("set %s: %w", key, err)
	}

	_, relayErr := jsonx.WithTimeout(ctx, s.opts.RelayTimeout, struct{}{}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.SetItem(ctx, key, raw)
	})

	switch {
	case relayErr == nil && critical && storeErr == nil:
		return SetResult{Source: SourceBoth}, nil
	case relayErr == nil && storeErr != nil:
		return SetResult{Source: SourceLocalStorage, Warning: "extension storage write failed: " + storeErr.Error()}, nil
	case relayErr == nil:
		return SetResult{Source: SourceLocalStorage}, nil
	case critical && storeErr == nil:
		s.log.Warn(ctx, "page storage write failed", "key", key, "relay", r.ID(), "error", relayErr)
		return SetResult{
			Source:  SourceStorageOnly,
			Warning: "value only saved to extension storage: " + relayErr.Error(),
		}, nil
	default:
		return SetResult{}, fmt.Errorf("set %s: %w", key, relayErr)
	}
}

// Remove deletes key from both backends. A missing relay is not an error.
func (s *Service) Remove(ctx context.Context, key string) error {
	keys := []string{key, common.UpdatedKey(key)}
	if legacy, ok := identity.LegacySibling(key); ok {
		keys = append(keys, legacy)
	}
	if err := s.store.Remove(ctx, keys...); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}

	r, err := relay.First(ctx, s.relays)
	if err != nil {
		return nil
	}
	_, err = jsonx.WithTimeout(ctx, s.opts.RelayTimeout, struct{}{}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.RemoveItem(ctx, key)
	})
	if err != nil {
		s.log.Warn(ctx, "page storage remove failed", "key", key, "error", err)
	}
	return nil
}

// storeGet reads one key from the structured store within the critical
// timeout. Failures count as a miss.
func (s *Service) storeGet(ctx context.Context, key string) (any, bool) {
	type hit struct {
		v  any
		ok bool
	}
	h, err := jsonx.WithTimeout(ctx, s.opts.CriticalStoreTimeout, hit{}, func(ctx context.Context) (hit, error) {
		items, err := s.store.Get(ctx, key)
		if err != nil {
			return hit{}, err
		}
		v, ok := items[key]
		return hit{v, ok}, nil
	})
	if err != nil {
		s.log.Warn(ctx, "store read failed", "key", key, "error", err)
		return nil, false
	}
	return h.v, h.ok
}

// relayGet reads key from the most recent relay and decodes JSON-shaped
// strings. A key the page does not have is reported as ErrNotFound.
func (s *Service) relayGet(ctx context.Context, key string) (any, error) {
	raw, ok, err := s.relayGetRaw(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("page storage: %w", common.ErrNotFound)
	}
	return jsonx.Decode(raw), nil
}

func (s *Service) relayGetRaw(ctx context.Context, key string) (string, bool, error) {
	r, err := relay.First(ctx, s.relays)
	if err != nil {
		return "", false, err
	}
	return s.relayGetFrom(ctx, r, key)
}

func (s *Service) relayGetFrom(ctx context.Context, r relay.Relay, key string) (string, bool, error) {
	type item struct {
		v  string
		ok bool
	}
	it, err := jsonx.WithTimeout(ctx, s.opts.RelayTimeout, item{}, func(ctx context.Context) (item, error) {
		v, ok, err := r.GetItem(ctx, key)
		return item{v, ok}, err
	})
	return it.v, it.ok, err
}

// cache stores a value fresh from page storage, with its timestamp.
func (s *Service) cache(ctx context.Context, key string, value any) {
	if value == nil || value == "" {
		return
	}
	batch := make(map[string]any, 3)
	s.stamp(batch, key, value, s.nowMillis())
	if err := s.store.Set(ctx, batch); err != nil {
		s.log.Warn(ctx, "caching page value failed", "key", key, "error", err)
	}
}

// refreshInBackground re-reads key from page storage after the caller has
// been answered. It outlives the caller's context but not its own timeout.
func (s *Service) refreshInBackground(ctx context.Context, key string) {
	ctx = context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		v, err := s.relayGet(ctx, key)
		if err != nil {
			s.log.Debug(ctx, "background refresh skipped", "key", key, "error", err)
			return
		}
		s.cache(ctx, key, v)
	}()
}
