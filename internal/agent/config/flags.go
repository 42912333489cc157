package config

import (
	"flag"
	"fmt"

	"github.com/dmitrijs2005/matakeeper/internal/flagx"
)

// parseFlags overlays command-line flags onto config.
//
// Supported flags:
//
//	-a string     message bus address (e.g. ":50061")
//	-r string     relay websocket address (e.g. ":8765")
//	-D string     database driver: sqlite or pgx
//	-d string     database DSN
//	-q int        store quota in bytes
//	-s string     relay token secret
//	-t duration   relay token lifetime
//	-i duration   sync interval
//	-h duration   heartbeat interval
//	-v string     agent version
//	-b string     S3 bucket for backups (empty disables upload)
//	-g string     S3 region
//	-e string     S3 endpoint
//	-u string     S3 access key
//	-p string     S3 secret key
//
// Arguments other than these are ignored.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-r", "-D", "-d", "-q", "-s", "-t", "-i", "-h", "-v", "-b", "-g", "-e", "-u", "-p"})

	fs := flag.NewFlagSet("agent", flag.ContinueOnError)

	fs.StringVar(&config.GRPCAddr, "a", config.GRPCAddr, "message bus address")
	fs.StringVar(&config.RelayAddr, "r", config.RelayAddr, "relay websocket address")
	fs.StringVar(&config.DatabaseDriver, "D", config.DatabaseDriver, "database driver (sqlite or pgx)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.Int64Var(&config.QuotaBytes, "q", config.QuotaBytes, "store quota in bytes")
	fs.StringVar(&config.RelaySecret, "s", config.RelaySecret, "relay token secret")
	fs.DurationVar(&config.RelayTokenTTL, "t", config.RelayTokenTTL, "relay token lifetime")
	fs.DurationVar(&config.SyncInterval, "i", config.SyncInterval, "sync interval")
	fs.DurationVar(&config.HeartbeatInterval, "h", config.HeartbeatInterval, "heartbeat interval")
	fs.StringVar(&config.Version, "v", config.Version, "agent version")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket for backups")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3Endpoint, "e", config.S3Endpoint, "S3 endpoint")
	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
