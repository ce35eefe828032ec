package config

// CheckpointBackend selects where sync cursors are persisted.
type CheckpointBackend string

const (
	CheckpointFile   CheckpointBackend = "file"
	CheckpointSQLite CheckpointBackend = "sqlite"
)

// Config is the top-level relaybot configuration, corresponding to
// .relaybot.yml with RELAYBOT_* environment overrides.
type Config struct {
	// MembersJSONURL points at the remote members document
	// ({"members": {memberId: ...}}) fetched once at startup.
	MembersJSONURL string `yaml:"members_json_url" koanf:"members_json_url"`

	// MuteTime is the default mute window in minutes applied to
	// subscriptions created without an explicit mute argument.
	MuteTime int `yaml:"mute_time" koanf:"mute_time"`

	// ErrorInterval is the sleep in seconds before a failed long-lived
	// task (polling loop, monitor stream) restarts from scratch.
	ErrorInterval int `yaml:"error_interval" koanf:"error_interval"`

	// DataPath is the directory for file-based state (sync cursors,
	// checkpoint database).
	DataPath string `yaml:"data_path" koanf:"data_path"`

	// AllowedServices, when non-empty, restricts delivery to alerts whose
	// serviceId is listed. Empty means no whitelist.
	AllowedServices []string `yaml:"allowed_services" koanf:"allowed_services"`

	Checkpoint CheckpointBackend `yaml:"checkpoint" koanf:"checkpoint"`

	Matrix  MatrixConfig  `yaml:"matrix" koanf:"matrix"`
	API     APIConfig     `yaml:"api" koanf:"api"`
	Redis   RedisConfig   `yaml:"redis" koanf:"redis"`
	Monitor MonitorConfig `yaml:"monitor" koanf:"monitor"`
}

// MatrixConfig holds the chat-transport settings.
type MatrixConfig struct {
	// HomeserverURL is the base client-server API URL.
	HomeserverURL string `yaml:"homeserver_url" koanf:"homeserver_url"`

	// PublicRoom is the shared broadcast room alias without the leading
	// '#', e.g. "relay-alerts:matrix.org".
	PublicRoom string `yaml:"public_room" koanf:"public_room"`

	// BotUser is the fully qualified bot account,
	// e.g. "@relay-bot:matrix.org".
	BotUser     string `yaml:"bot_user" koanf:"bot_user"`
	BotPassword string `yaml:"bot_password" koanf:"bot_password"`

	// Disabled turns every transport call into a no-op success. Used for
	// tests and offline runs.
	Disabled           bool `yaml:"disabled" koanf:"disabled"`
	PublicRoomDisabled bool `yaml:"public_room_disabled" koanf:"public_room_disabled"`

	// CalloutRooms are extra public room IDs for callout broadcasts.
	CalloutRooms []string `yaml:"callout_rooms" koanf:"callout_rooms"`
}

// APIConfig holds the alert ingestion HTTP server settings.
type APIConfig struct {
	Host            string   `yaml:"host" koanf:"host"`
	Port            int      `yaml:"port" koanf:"port"`
	CORSAllowOrigin []string `yaml:"cors_allow_origin" koanf:"cors_allow_origin"`
}

// RedisConfig holds cache store connection and pool settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" koanf:"addr"`
	Password string `yaml:"password" koanf:"password"`
	Database int    `yaml:"database" koanf:"database"`

	PoolSize        int `yaml:"pool_size" koanf:"pool_size"`
	MinIdleConns    int `yaml:"min_idle_conns" koanf:"min_idle_conns"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime" koanf:"conn_max_lifetime"` // seconds
	PoolTimeout     int `yaml:"pool_timeout" koanf:"pool_timeout"`           // seconds
}

// MonitorConfig holds the monitor websocket stream settings.
type MonitorConfig struct {
	URL    string `yaml:"url" koanf:"url"`
	APIKey string `yaml:"api_key" koanf:"api_key"`
}
