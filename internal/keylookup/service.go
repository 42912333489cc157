// Package keylookup finds a user's key bundle across the structured store
// and page storage.
package keylookup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/extstore"
	"github.com/dmitrijs2005/matakeeper/internal/identity"
	"github.com/dmitrijs2005/matakeeper/internal/jsonx"
	"github.com/dmitrijs2005/matakeeper/internal/keys"
	"github.com/dmitrijs2005/matakeeper/internal/logging"
	"github.com/dmitrijs2005/matakeeper/internal/metrics"
	"github.com/dmitrijs2005/matakeeper/internal/relay"
	"github.com/google/uuid"
)

const (
	BackendStore = "chrome.storage"
	BackendPage  = "localStorage"
)

// ErrNoUser means no email was given, no active user is set and nobody
// could be discovered.
var ErrNoUser = errors.New("no email provided and no users found in storage")

type Options struct {
	StoreTimeout     time.Duration
	RelayTimeout     time.Duration
	DiscoveryTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		StoreTimeout:     time.Second,
		RelayTimeout:     2 * time.Second,
		DiscoveryTimeout: 3 * time.Second,
	}
}

// Result is a found bundle and where it came from.
type Result struct {
	Keys     keys.Bundle
	Email    string
	Source   string
	Format   string
	Adopted  bool
	Duration time.Duration
}

type Service struct {
	store   extstore.Store
	relays  relay.Locator
	log     logging.Logger
	metrics *metrics.Metrics
	opts    Options
	now     func() time.Time
}

func New(store extstore.Store, relays relay.Locator, log logging.Logger, m *metrics.Metrics, opts Options) *Service {
	return &Service{
		store:   store,
		relays:  relays,
		log:     log.With("module", "keylookup"),
		metrics: m,
		opts:    opts,
		now:     time.Now,
	}
}

// GetKeys returns the bundle for email, or for the active user when email is
// empty. Salt and email are filled in when the bundle lacks them.
func (s *Service) GetKeys(ctx context.Context, email string) (Result, error) {
	start := s.now()
	email = strings.TrimSpace(email)

	adopted := false
	if email == "" {
		var err error
		email, adopted, err = s.ResolveEmail(ctx)
		if err != nil {
			s.metrics.KeyLookup(outcome(err))
			return Result{}, err
		}
	}

	res, err := s.lookup(ctx, email)
	res.Adopted = adopted
	res.Duration = s.now().Sub(start)
	if err != nil {
		s.metrics.KeyLookup(outcome(err))
		return res, err
	}
	s.metrics.KeyLookup(res.Source)
	s.log.Info(ctx, "keys found", "user", identity.Sanitize(email), "source", res.Source, "format", res.Format)
	return res, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, common.ErrIsolationViolation):
		return "isolation"
	case errors.Is(err, common.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (s *Service) lookup(ctx context.Context, email string) (Result, error) {
	nf := &NotFoundError{TraceID: uuid.NewString(), Email: email}

	for _, format := range identity.Variants(email) {
		a := Attempt{
			Format:  format,
			KeysKey: identity.CriticalKey(identity.Keys, format),
			SaltKey: identity.CriticalKey(identity.Salt, format),
		}

		if b, ok := s.fromStore(ctx, &a); ok {
			return Result{Keys: b.WithDefaults(nil, email), Email: email, Source: BackendStore, Format: format}, nil
		}
		if b, ok := s.fromPage(ctx, &a, email); ok {
			return Result{Keys: b, Email: email, Source: BackendPage, Format: format}, nil
		}
		nf.Attempts = append(nf.Attempts, a)
	}

	s.log.Warn(ctx, "keys not found", "trace", nf.TraceID, "formats", len(nf.Attempts))
	return Result{}, nf
}

// legacyKeys returns the user_<token>_keys / user_<token>_salt pair for a
// lookup format.
func legacyKeys(format string) (string, string) {
	return identity.LegacyKey(format, identity.Keys.String()), identity.LegacyKey(format, identity.Salt.String())
}

func (s *Service) fromStore(ctx context.Context, a *Attempt) (keys.Bundle, bool) {
	legacyKeysKey, legacySaltKey := legacyKeys(a.Format)

	started := s.now()
	items, err := jsonx.WithTimeout(ctx, s.opts.StoreTimeout, map[string]any(nil), func(ctx context.Context) (map[string]any, error) {
		return s.store.Get(ctx, a.KeysKey, a.SaltKey, legacyKeysKey, legacySaltKey)
	})
	step := Step{Backend: BackendStore, Duration: s.now().Sub(started)}
	defer func() { a.Steps = append(a.Steps, step) }()

	if err != nil {
		step.Outcome, step.Error = "error", err.Error()
		return nil, false
	}

	raw, salt, legacy := items[a.KeysKey], items[a.SaltKey], false
	if isBlank(raw) {
		raw, legacy = items[legacyKeysKey], true
	}
	if isBlank(raw) {
		step.Outcome = "miss"
		return nil, false
	}
	if isBlank(salt) {
		salt = items[legacySaltKey]
	}

	b, err := keys.Parse(raw)
	if err != nil {
		step.Outcome, step.Error = "parse_error", err.Error()
		return nil, false
	}
	b = b.WithDefaults(salt, "")

	step.Outcome = "found"
	if legacy {
		step.Outcome = "found_legacy"
		s.cache(ctx, a, b)
	}
	return b, true
}

func isBlank(v any) bool {
	return v == nil || v == ""
}

func (s *Service) fromPage(ctx context.Context, a *Attempt, email string) (keys.Bundle, bool) {
	started := s.now()
	step := Step{Backend: BackendPage}
	defer func() {
		step.Duration = s.now().Sub(started)
		a.Steps = append(a.Steps, step)
	}()

	r, err := relay.First(ctx, s.relays)
	if err != nil {
		step.Outcome, step.Error = "no_relay", err.Error()
		return nil, false
	}

	legacyKeysKey, legacySaltKey := legacyKeys(a.Format)
	keysKey, saltKey := a.KeysKey, a.SaltKey

	raw, ok, err := s.pageGet(ctx, r, keysKey)
	if err == nil && (!ok || raw == "") {
		keysKey, saltKey = legacyKeysKey, legacySaltKey
		raw, ok, err = s.pageGet(ctx, r, keysKey)
	}
	if err != nil {
		step.Outcome, step.Error = "error", err.Error()
		return nil, false
	}
	if !ok || raw == "" {
		step.Outcome = "miss"
		return nil, false
	}
	b, err := keys.Parse(raw)
	if err != nil {
		step.Outcome, step.Error = "parse_error", err.Error()
		return nil, false
	}

	var salt any
	if _, has := b.Salt(); !has {
		if v, ok, err := s.pageGet(ctx, r, saltKey); err == nil && ok && v != "" {
			salt = v
			if strings.HasPrefix(v, "{") {
				if parsed, err := jsonx.DecodeStrict(v); err == nil {
					salt = parsed
				}
			}
		}
	}
	b = b.WithDefaults(salt, email)
	step.Outcome = "found"
	if keysKey == legacyKeysKey {
		step.Outcome = "found_legacy"
	}

	s.cache(ctx, a, b)
	return b, true
}

func (s *Service) pageGet(ctx context.Context, r relay.Relay, key string) (string, bool, error) {
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

// cache keeps a bundle found in page storage, or under a legacy key, in the
// structured store under both namings.
func (s *Service) cache(ctx context.Context, a *Attempt, b keys.Bundle) {
	ts := common.UnixMillis(s.now())
	legacyKeysKey, legacySaltKey := legacyKeys(a.Format)

	batch := map[string]any{
		a.KeysKey:                    b.Map(),
		common.UpdatedKey(a.KeysKey): ts,
		legacyKeysKey:                b.Map(),
	}
	if salt, ok := b.Salt(); ok {
		batch[a.SaltKey] = salt
		batch[common.UpdatedKey(a.SaltKey)] = ts
		batch[legacySaltKey] = salt
	}
	if err := s.store.Set(ctx, batch); err != nil {
		s.log.Warn(ctx, "caching keys failed", "key", a.KeysKey, "error", err)
	}
}

// ResolveEmail finds the active user: the structured store's pointer, then
// the page's (copied into the store). Only when the store was read and shows
// no pointer and no pointer history is the first discovered user adopted and
// persisted as active.
func (s *Service) ResolveEmail(ctx context.Context) (email string, adopted bool, err error) {
	items, err := jsonx.WithTimeout(ctx, s.opts.StoreTimeout, map[string]any(nil), func(ctx context.Context) (map[string]any, error) {
		return s.store.Get(ctx, common.ActiveUserKey, common.UpdatedKey(common.ActiveUserKey))
	})
	storeRead := err == nil
	if err != nil {
		s.log.Warn(ctx, "reading active user from store failed", "error", err)
	}
	if v, ok := items[common.ActiveUserKey].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), false, nil
	}
	_, hadActive := items[common.UpdatedKey(common.ActiveUserKey)]

	r, relayErr := relay.First(ctx, s.relays)
	if relayErr == nil {
		v, ok, err := s.pageGet(ctx, r, common.ActiveUserKey)
		switch {
		case err != nil:
			s.log.Warn(ctx, "reading active user from page failed", "relay", r.ID(), "error", err)
		case ok && strings.TrimSpace(v) != "":
			v = strings.TrimSpace(v)
			s.persistActive(ctx, v)
			return v, false, nil
		}
	}

	users := s.discover(ctx, r)
	// an unreadable store may hide the pointer; never adopt over it
	if hadActive || !storeRead {
		return "", false, &IsolationError{Users: users}
	}
	if len(users) == 0 {
		return "", false, fmt.Errorf("%w: %w", ErrNoUser, common.ErrNotFound)
	}

	s.log.Info(ctx, "adopting first discovered user as active", "user", identity.Sanitize(users[0]), "discovered", len(users))
	s.persistActive(ctx, users[0])
	return users[0], true, nil
}

func (s *Service) persistActive(ctx context.Context, email string) {
	err := s.store.Set(ctx, map[string]any{
		common.ActiveUserKey:                    email,
		common.UpdatedKey(common.ActiveUserKey): common.UnixMillis(s.now()),
	})
	if err != nil {
		s.log.Warn(ctx, "saving active user failed", "error", err)
	}
}

// FindAllUsers lists every user either backend knows about.
func (s *Service) FindAllUsers(ctx context.Context) []string {
	r, _ := relay.First(ctx, s.relays)
	return s.discover(ctx, r)
}

// discover lists users known to the store (sorted) followed by those only
// the page knows. r may be nil.
func (s *Service) discover(ctx context.Context, r relay.Relay) []string {
	seen := map[string]bool{}
	var users []string
	add := func(email string) {
		email = strings.TrimSpace(email)
		if email == "" || seen[identity.Sanitize(email)] {
			return
		}
		seen[identity.Sanitize(email)] = true
		users = append(users, email)
	}

	all, err := jsonx.WithTimeout(ctx, s.opts.DiscoveryTimeout, map[string]any(nil), s.store.All)
	if err != nil {
		s.log.Warn(ctx, "scanning store for users failed", "error", err)
	}
	var tokens []string
	for k := range all {
		if tok, ok := identity.TokenFromKey(k); ok {
			tokens = append(tokens, tok)
		}
	}
	sort.Strings(tokens)
	for _, tok := range tokens {
		add(identity.Unsanitize(tok))
	}

	if r != nil {
		dir, err := jsonx.WithTimeout(ctx, s.opts.DiscoveryTimeout, relay.Directory{}, r.FindAllUserEmails)
		if err != nil {
			s.log.Warn(ctx, "user discovery on page failed", "relay", r.ID(), "error", err)
		}
		for _, u := range dir.Users {
			add(u)
		}
	}
	return users
}
