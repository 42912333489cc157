package storagesync

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/identity"
	"github.com/dmitrijs2005/matakeeper/internal/jsonx"
	"github.com/dmitrijs2005/matakeeper/internal/relay"
)

// SyncCriticalFiles stores the critical records a page pushed to the agent.
// Other keys are ignored. It returns how many records were stored.
func (s *Service) SyncCriticalFiles(ctx context.Context, files map[string]any) (int, error) {
	if len(files) == 0 {
		return 0, nil
	}

	ts := s.nowMillis()
	batch := map[string]any{}
	count := 0
	for k, v := range files {
		if !identity.IsCritical(k) {
			s.log.Debug(ctx, "ignoring non-critical file", "key", k)
			continue
		}
		s.stamp(batch, k, jsonx.Decode(v), ts)
		count++
	}
	if count == 0 {
		return 0, nil
	}

	if active, ok := files[common.ActiveUserKey].(string); ok && active != "" {
		s.warnIfIncomplete(ctx, active, batch)
	}

	if err := s.store.Set(ctx, batch); err != nil {
		return 0, fmt.Errorf("sync critical files: %w", err)
	}
	s.log.Info(ctx, "critical files stored", "count", count)
	return count, nil
}

// warnIfIncomplete logs when the active user's keys or salt are neither in
// the batch nor already stored.
func (s *Service) warnIfIncomplete(ctx context.Context, email string, batch map[string]any) {
	token := identity.Sanitize(email)
	keysKey := identity.CriticalKey(identity.Keys, token)
	saltKey := identity.CriticalKey(identity.Salt, token)

	_, haveKeys := batch[keysKey]
	_, haveSalt := batch[saltKey]
	if haveKeys && haveSalt {
		return
	}
	stored, err := s.store.Get(ctx, keysKey, saltKey)
	if err != nil {
		return
	}
	if _, ok := stored[keysKey]; !ok && !haveKeys {
		s.log.Warn(ctx, "active user has no keys", "key", keysKey)
	}
	if _, ok := stored[saltKey]; !ok && !haveSalt {
		s.log.Warn(ctx, "active user has no salt", "key", saltKey)
	}
}

// StoreKeys saves a user's key bundle, its embedded salt (if any) and
// optionally makes the user active. It returns the sanitized token.
func (s *Service) StoreKeys(ctx context.Context, email string, bundle map[string]any, setActive bool) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%w: no email provided for key storage", common.ErrInvalidRequest)
	}
	if len(bundle) == 0 {
		return "", fmt.Errorf("%w: no keys provided for storage", common.ErrInvalidRequest)
	}

	token := identity.Sanitize(email)
	ts := s.nowMillis()
	batch := map[string]any{}

	s.stamp(batch, identity.CriticalKey(identity.Keys, token), bundle, ts)
	if salt, ok := bundle["salt"]; ok && salt != nil && salt != "" {
		s.stamp(batch, identity.CriticalKey(identity.Salt, token), salt, ts)
	}
	if setActive {
		s.stamp(batch, common.ActiveUserKey, email, ts)
	}

	if err := s.store.Set(ctx, batch); err != nil {
		return "", fmt.Errorf("store keys: %w", err)
	}
	s.log.Info(ctx, "keys stored", "user", token, "active", setActive)
	return token, nil
}

// SetActiveUser points the agent at email in both backends.
func (s *Service) SetActiveUser(ctx context.Context, email string) (SetResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return SetResult{}, fmt.Errorf("%w: empty email", common.ErrInvalidRequest)
	}
	return s.SetValue(ctx, common.ActiveUserKey, email, true)
}

// ClearActiveUser removes the pointer from both backends. Its _updated
// sibling stays behind as a record that a user was once active.
func (s *Service) ClearActiveUser(ctx context.Context) error {
	if err := s.store.Remove(ctx, common.ActiveUserKey); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	r, err := relay.First(ctx, s.relays)
	if err != nil {
		return nil
	}
	_, err = jsonx.WithTimeout(ctx, s.opts.RelayTimeout, struct{}{}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.RemoveItem(ctx, common.ActiveUserKey)
	})
	if err != nil {
		s.log.Warn(ctx, "clearing active user on page failed", "error", err)
	}
	return nil
}
