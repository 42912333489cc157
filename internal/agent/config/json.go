package config

import (
	"github.com/dmitrijs2005/matakeeper/internal/flagx"
	"github.com/dmitrijs2005/matakeeper/internal/timex"
)

// JSONConfig is the file form of Config. Durations accept "2s" or integer
// nanoseconds. Keys missing from the file keep their current values.
type JSONConfig struct {
	GRPCAddr             string         `json:"grpc_addr"`
	RelayAddr            string         `json:"relay_addr"`
	DatabaseDriver       string         `json:"database_driver"`
	DatabaseDSN          string         `json:"database_dsn"`
	QuotaBytes           int64          `json:"quota_bytes"`
	RelaySecret          string         `json:"relay_secret"`
	RelayTokenTTL        timex.Duration `json:"relay_token_ttl"`
	CriticalStoreTimeout timex.Duration `json:"critical_store_timeout"`
	RelayTimeout         timex.Duration `json:"relay_timeout"`
	DiscoveryTimeout     timex.Duration `json:"discovery_timeout"`
	SyncTimeout          timex.Duration `json:"sync_timeout"`
	SyncInterval         timex.Duration `json:"sync_interval"`
	HeartbeatInterval    timex.Duration `json:"heartbeat_interval"`
	Version              string         `json:"version"`
	S3Bucket             string         `json:"s3_bucket"`
	S3Region             string         `json:"s3_region"`
	S3Endpoint           string         `json:"s3_endpoint"`
	S3AccessKey          string         `json:"s3_access_key"`
	S3SecretKey          string         `json:"s3_secret_key"`
}

// parseJSON overlays the file named by -c/-config in args onto config.
func parseJSON(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	c := &JSONConfig{
		GRPCAddr:             config.GRPCAddr,
		RelayAddr:            config.RelayAddr,
		DatabaseDriver:       config.DatabaseDriver,
		DatabaseDSN:          config.DatabaseDSN,
		QuotaBytes:           config.QuotaBytes,
		RelaySecret:          config.RelaySecret,
		RelayTokenTTL:        timex.Duration{Duration: config.RelayTokenTTL},
		CriticalStoreTimeout: timex.Duration{Duration: config.CriticalStoreTimeout},
		RelayTimeout:         timex.Duration{Duration: config.RelayTimeout},
		DiscoveryTimeout:     timex.Duration{Duration: config.DiscoveryTimeout},
		SyncTimeout:          timex.Duration{Duration: config.SyncTimeout},
		SyncInterval:         timex.Duration{Duration: config.SyncInterval},
		HeartbeatInterval:    timex.Duration{Duration: config.HeartbeatInterval},
		Version:              config.Version,
		S3Bucket:             config.S3Bucket,
		S3Region:             config.S3Region,
		S3Endpoint:           config.S3Endpoint,
		S3AccessKey:          config.S3AccessKey,
		S3SecretKey:          config.S3SecretKey,
	}
	if err := flagx.LoadJSON(path, c); err != nil {
		return err
	}

	config.GRPCAddr = c.GRPCAddr
	config.RelayAddr = c.RelayAddr
	config.DatabaseDriver = c.DatabaseDriver
	config.DatabaseDSN = c.DatabaseDSN
	config.QuotaBytes = c.QuotaBytes
	config.RelaySecret = c.RelaySecret
	config.RelayTokenTTL = c.RelayTokenTTL.Duration
	config.CriticalStoreTimeout = c.CriticalStoreTimeout.Duration
	config.RelayTimeout = c.RelayTimeout.Duration
	config.DiscoveryTimeout = c.DiscoveryTimeout.Duration
	config.SyncTimeout = c.SyncTimeout.Duration
	config.SyncInterval = c.SyncInterval.Duration
	config.HeartbeatInterval = c.HeartbeatInterval.Duration
	config.Version = c.Version
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3Endpoint = c.S3Endpoint
	config.S3AccessKey = c.S3AccessKey
	config.S3SecretKey = c.S3SecretKey
	return nil
}
