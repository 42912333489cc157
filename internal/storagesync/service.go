// Package storagesync keeps critical records consistent between page storage
// (reached through relays) and the structured extension store.
//
// Reads of critical keys prefer the structured store and refresh it from the
// page in the background. Writes of critical keys always land in the
// structured store first, so the agent keeps working with no page open.
package storagesync

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/extstore"
	"github.com/dmitrijs2005/matakeeper/internal/identity"
	"github.com/dmitrijs2005/matakeeper/internal/logging"
	"github.com/dmitrijs2005/matakeeper/internal/metrics"
	"github.com/dmitrijs2005/matakeeper/internal/relay"
)

// Source names where a value came from or went to. The strings are part of
// the message bus contract.
type Source string

const (
	SourceStoragePrimary    Source = "chrome.storage_primary"
	SourceLocalStorage      Source = "localStorage"
	SourceStorageLastResort Source = "chrome.storage_last_resort"
	SourceStorage           Source = "chrome.storage"
	SourceStorageOnly       Source = "chrome.storage_only"
	SourceBoth              Source = "both"
)

// Options bound every call into a backend.
type Options struct {
	// CriticalStoreTimeout caps the fast structured-store read of a critical key.
	CriticalStoreTimeout time.Duration
	// RelayTimeout caps a single page request.
	RelayTimeout time.Duration
	// DiscoveryTimeout caps user discovery scans.
	DiscoveryTimeout time.Duration
	// SyncTimeout caps a whole SyncAll run.
	SyncTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		CriticalStoreTimeout: time.Second,
		RelayTimeout:         2 * time.Second,
		DiscoveryTimeout:     3 * time.Second,
		SyncTimeout:          10 * time.Second,
	}
}

type Service struct {
	store   extstore.Store
	relays  relay.Locator
	log     logging.Logger
	metrics *metrics.Metrics
	opts    Options
	now     func() time.Time

	background sync.WaitGroup
}

func New(store extstore.Store, relays relay.Locator, log logging.Logger, m *metrics.Metrics, opts Options) *Service {
	return &Service{
		store:   store,
		relays:  relays,
		log:     log.With("module", "storagesync"),
		metrics: m,
		opts:    opts,
		now:     time.Now,
	}
}

// Wait blocks until background refreshes started so far have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

func (s *Service) nowMillis() int64 {
	return common.UnixMillis(s.now())
}

// stamp adds the _updated sibling (and the legacy twin, for keys and salt)
// of key to batch.
func (s *Service) stamp(batch map[string]any, key string, value any, ts int64) {
	batch[key] = value
	batch[common.UpdatedKey(key)] = ts
	if legacy, ok := identity.LegacySibling(key); ok {
		batch[legacy] = value
	}
}
