package common

// Persisted key names in the structured store. They are shared with the web
// app and must stay bit-exact.
const (
	ActiveUserKey = "mata_active_user"
	KeysPrefix    = "mata_keys_"
	SaltPrefix    = "mata_salt_"
	LegacyPrefix  = "user_"

	// UpdatedSuffix is appended to a key to form its timestamp sibling.
	UpdatedSuffix = "_updated"

	LastSyncKey       = "mata_last_sync"
	SyncItemCountKey  = "mata_sync_item_count"
	SyncErrorCountKey = "mata_sync_error_count"
	SyncDurationKey   = "mata_sync_duration"

	SettingsKey            = "mata_settings"
	LastVersionKey         = "mata_last_version"
	ExtensionVersionKey    = "mata_extension_version"
	InitializedKey         = "mata_service_worker_initialized"
	HeartbeatKey           = "mata_service_worker_heartbeat"
	StorageTestKeyPrefix   = "mata_extension_test_"
	RelayTokenQueryParam   = "token"
	RelayTokenHeaderName   = "X-Mata-Relay-Token"
	BusRequestIDHeaderName = "x-mata-request-id"
)

// UpdatedKey returns the timestamp sibling of key.
func UpdatedKey(key string) string {
	return key + UpdatedSuffix
}
