package storagesync

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/identity"
	"github.com/dmitrijs2005/matakeeper/internal/jsonx"
	"github.com/dmitrijs2005/matakeeper/internal/relay"
)

// SyncResult summarises one SyncAll run.
type SyncResult struct {
	Success        bool          `json:"success"`
	SyncedCount    int           `json:"syncedCount"`
	ErrorCount     int           `json:"errorCount"`
	UsersProcessed int           `json:"usersProcessed"`
	PartialSync    bool          `json:"partialSync,omitempty"`
	ExistingUsers  int           `json:"existingUsers,omitempty"`
	TimedOut       bool          `json:"timedOut,omitempty"`
	Message        string        `json:"message"`
	Duration       time.Duration `json:"-"`
}

// syncBatch collects reconciled records from concurrent per-user workers.
type syncBatch struct {
	mu     sync.Mutex
	items  map[string]any
	synced int
	errors int
}

func (b *syncBatch) snapshot() (map[string]any, int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.items), b.synced, b.errors
}

// SyncAll reconciles the active-user pointer and every known user's keys and
// salt into the structured store. Page values win over stored ones. Without
// a relay the run only succeeds (partially) when the store already knows
// some users.
func (s *Service) SyncAll(ctx context.Context) (SyncResult, error) {
	start := s.now()
	res, err := s.syncAll(ctx, start)
	res.Duration = s.now().Sub(start)
	s.metrics.SyncRun(err == nil, res.SyncedCount, res.ErrorCount, res.Duration.Seconds())
	return res, err
}

func (s *Service) syncAll(ctx context.Context, start time.Time) (SyncResult, error) {
	existing := s.storeUsers(ctx)

	r, err := relay.First(ctx, s.relays)
	if err != nil {
		if len(existing) > 0 {
			s.log.Info(ctx, "no relay for sync, keeping stored users", "users", len(existing))
			return SyncResult{
				Success:       true,
				PartialSync:   true,
				ExistingUsers: len(existing),
				Message:       fmt.Sprintf("no page relay available, %d existing users maintained in storage", len(existing)),
			}, nil
		}
		return SyncResult{Message: "no page relay available"}, fmt.Errorf("sync: %w", err)
	}

	batch := &syncBatch{items: map[string]any{}}
	var pageUsers []string

	active, ok, err := s.relayGetFrom(ctx, r, common.ActiveUserKey)
	switch {
	case err != nil:
		s.log.Warn(ctx, "reading active user from page failed", "relay", r.ID(), "error", err)
	case ok && active != "":
		pointer := map[string]any{
			common.ActiveUserKey:                    active,
			common.UpdatedKey(common.ActiveUserKey): s.nowMillis(),
		}
		if err := s.store.Set(ctx, pointer); err != nil {
			s.log.Error(ctx, "storing active user failed", "error", err)
		}
		maps.Copy(batch.items, pointer)
		batch.synced++
		pageUsers = append(pageUsers, identity.Sanitize(active))
	}

	dir, err := jsonx.WithTimeout(ctx, s.opts.DiscoveryTimeout, relay.Directory{}, r.FindAllUserEmails)
	if err != nil {
		s.log.Warn(ctx, "user discovery on page failed", "relay", r.ID(), "error", err)
	}
	for _, email := range dir.Users {
		pageUsers = append(pageUsers, identity.Sanitize(email))
	}
	pageUsers = append(pageUsers, dir.SanitizedUsers...)

	all := union(existing, pageUsers)
	if len(all) == 0 {
		return SyncResult{Success: true, SyncedCount: batch.synced, Message: "no users found to sync"}, nil
	}

	var wg sync.WaitGroup
	for _, token := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.syncUser(ctx, r, token, batch)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timedOut := false
	timer := time.NewTimer(max(s.opts.SyncTimeout-s.now().Sub(start), 0))
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		timedOut = true
		s.log.Warn(ctx, "sync timed out, saving partial results", "users", len(all))
	case <-ctx.Done():
		timedOut = true
		s.log.Warn(ctx, "sync cancelled, saving partial results", "error", ctx.Err())
	}

	items, synced, errCount := batch.snapshot()

	// the caller may have given up; the collected work is still worth keeping
	wctx := context.WithoutCancel(ctx)
	if len(items) > 0 {
		if err := s.store.Set(wctx, items); err != nil {
			s.log.Error(wctx, "saving sync batch failed", "error", err)
			errCount++
		}
	}

	stats := map[string]any{
		common.LastSyncKey:       s.nowMillis(),
		common.SyncItemCountKey:  synced,
		common.SyncErrorCountKey: errCount,
		common.SyncDurationKey:   s.now().Sub(start).Milliseconds(),
	}
	if err := s.store.Set(wctx, stats); err != nil {
		s.log.Warn(wctx, "saving sync stats failed", "error", err)
	}

	s.log.Info(ctx, "sync finished", "synced", synced, "errors", errCount, "users", len(all), "timed_out", timedOut)

	return SyncResult{
		Success:        true,
		SyncedCount:    synced,
		ErrorCount:     errCount,
		UsersProcessed: len(all),
		TimedOut:       timedOut,
		Message:        fmt.Sprintf("synced %d items across %d users with %d errors", synced, len(all), errCount),
	}, nil
}

// syncUser reconciles one user's keys and salt into batch. Page reads that
// fail or time out count as absent.
func (s *Service) syncUser(ctx context.Context, r relay.Relay, token string, batch *syncBatch) {
	keysKey := identity.CriticalKey(identity.Keys, token)
	saltKey := identity.CriticalKey(identity.Salt, token)

	pageKeys := s.pageValue(ctx, r, keysKey)
	pageSalt := s.pageValue(ctx, r, saltKey)

	stored, err := jsonx.WithTimeout(ctx, s.opts.CriticalStoreTimeout, map[string]any(nil), func(ctx context.Context) (map[string]any, error) {
		return s.store.Get(ctx, keysKey, saltKey)
	})
	if err != nil {
		s.log.Warn(ctx, "reading stored user records failed", "user", token, "error", err)
	}

	ts := s.nowMillis()
	out := map[string]any{}
	synced, failed := 0, 0

	for _, rec := range []struct {
		key   string
		page  any
		parse func(any) (any, error)
	}{
		{keysKey, pageKeys, parseKeys},
		{saltKey, pageSalt, parseSalt},
	} {
		v, found, err := s.reconcile(ctx, token, rec.key, rec.page, stored[rec.key], rec.parse)
		switch {
		case err != nil:
			failed++
		case found:
			s.stamp(out, rec.key, v, ts)
			synced++
		}
	}

	batch.mu.Lock()
	maps.Copy(batch.items, out)
	batch.synced += synced
	batch.errors += failed
	batch.mu.Unlock()
}

func (s *Service) pageValue(ctx context.Context, r relay.Relay, key string) any {
	v, ok, err := s.relayGetFrom(ctx, r, key)
	if err != nil || !ok || v == "" {
		return nil
	}
	return v
}

// storeUsers lists tokens that have keys or salt in the structured store.
func (s *Service) storeUsers(ctx context.Context) []string {
	all, err := jsonx.WithTimeout(ctx, s.opts.DiscoveryTimeout, map[string]any(nil), s.store.All)
	if err != nil {
		s.log.Warn(ctx, "scanning store for users failed", "error", err)
		return nil
	}
	var tokens []string
	for k := range all {
		if tok, ok := identity.TokenFromKey(k); ok {
			tokens = append(tokens, tok)
		}
	}
	sort.Strings(tokens)
	return union(tokens)
}

// reconcile returns the page value for key, or the stored one when the page
// has none or it does not parse. An unparsable record counts as absent; only
// when no candidate parses is the parse error returned.
func (s *Service) reconcile(ctx context.Context, token, key string, page, stored any, parse func(any) (any, error)) (any, bool, error) {
	var lastErr error
	for _, c := range []struct {
		from string
		v    any
	}{{"page", page}, {"store", stored}} {
		if c.v == nil || c.v == "" {
			continue
		}
		v, err := parse(c.v)
		if err != nil {
			s.log.Warn(ctx, "record is not valid JSON", "user", token, "key", key, "from", c.from, "error", err)
			lastErr = err
			continue
		}
		return v, true, nil
	}
	return nil, false, lastErr
}

// parseKeys requires string keys to be JSON.
func parseKeys(v any) (any, error) {
	str, ok := v.(string)
	if !ok {
		return v, nil
	}
	var out any
	if err := json.Unmarshal([]byte(str), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrParse, err)
	}
	return out, nil
}

// parseSalt only parses object-shaped strings; plain salts stay strings.
func parseSalt(v any) (any, error) {
	str, ok := v.(string)
	if !ok || !strings.HasPrefix(str, "{") {
		return v, nil
	}
	var out any
	if err := json.Unmarshal([]byte(str), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrParse, err)
	}
	return out, nil
}

// union merges lists keeping first-seen order and dropping blanks.
func union(lists ...[]string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, l := range lists {
		for _, v := range l {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
