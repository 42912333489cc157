// Package config handles configuration for the agent: defaults, then an
// optional JSON file (-c/-config), then command-line flags.
package config

import (
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/backup"
	"github.com/dmitrijs2005/matakeeper/internal/buildinfo"
	"github.com/dmitrijs2005/matakeeper/internal/extstore"
	"github.com/dmitrijs2005/matakeeper/internal/keylookup"
	"github.com/dmitrijs2005/matakeeper/internal/storagesync"
)

// Config holds runtime settings for the agent.
//
// Fields:
//   - GRPCAddr: bind address of the message bus.
//   - RelayAddr: bind address of the page-relay websocket and /metrics.
//   - DatabaseDriver / DatabaseDSN: backend (b) database ("sqlite" or "pgx").
//   - QuotaBytes: capacity of backend (b).
//   - RelaySecret / RelayTokenTTL: HMAC secret and lifetime of relay tokens.
//     Do not use the default secret outside development.
//   - *Timeout: per-call budgets for store, relay, discovery and full sync.
//   - SyncInterval / HeartbeatInterval: periodic jobs.
//   - S3*: optional off-site backup bucket.
type Config struct {
	GRPCAddr             string
	RelayAddr            string
	DatabaseDriver       string
	DatabaseDSN          string
	QuotaBytes           int64
	RelaySecret          string
	RelayTokenTTL        time.Duration
	CriticalStoreTimeout time.Duration
	RelayTimeout         time.Duration
	DiscoveryTimeout     time.Duration
	SyncTimeout          time.Duration
	SyncInterval         time.Duration
	HeartbeatInterval    time.Duration
	Version              string
	S3Bucket             string
	S3Region             string
	S3Endpoint           string
	S3AccessKey          string
	S3SecretKey          string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.GRPCAddr = ":50061"
	c.RelayAddr = ":8765"
	c.DatabaseDriver = "sqlite"
	c.DatabaseDSN = "extension.db"
	c.QuotaBytes = extstore.DefaultQuota
	c.RelaySecret = "dev-relay-secret"
	c.RelayTokenTTL = 24 * time.Hour
	c.CriticalStoreTimeout = time.Second
	c.RelayTimeout = 2 * time.Second
	c.DiscoveryTimeout = 3 * time.Second
	c.SyncTimeout = 10 * time.Second
	c.SyncInterval = 5 * time.Minute
	c.HeartbeatInterval = 20 * time.Second
	c.Version = buildinfo.VersionOr("1.0.0")
	c.S3Region = "us-east-1"
}

// LoadConfig builds a Config from defaults, the JSON file named in args and
// the flags in args.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SyncOptions returns the synchronizer's budgets.
func (c *Config) SyncOptions() storagesync.Options {
	return storagesync.Options{
		CriticalStoreTimeout: c.CriticalStoreTimeout,
		RelayTimeout:         c.RelayTimeout,
		DiscoveryTimeout:     c.DiscoveryTimeout,
		SyncTimeout:          c.SyncTimeout,
	}
}

// LookupOptions returns the key lookup budgets.
func (c *Config) LookupOptions() keylookup.Options {
	return keylookup.Options{
		StoreTimeout:     c.CriticalStoreTimeout,
		RelayTimeout:     c.RelayTimeout,
		DiscoveryTimeout: c.DiscoveryTimeout,
	}
}

func (c *Config) S3() backup.S3Config {
	return backup.S3Config{
		Bucket:    c.S3Bucket,
		Region:    c.S3Region,
		Endpoint:  c.S3Endpoint,
		AccessKey: c.S3AccessKey,
		SecretKey: c.S3SecretKey,
	}
}
