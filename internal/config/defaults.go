package config

// DefaultConfig returns a Config populated with working defaults. Values
// are overridden by the YAML file and RELAYBOT_* environment variables.
func DefaultConfig() *Config {
	return &Config{
		MuteTime:      5,
		ErrorInterval: 30,
		DataPath:      "./",
		Checkpoint:    CheckpointFile,
		Matrix: MatrixConfig{
			HomeserverURL: "https://matrix.org/_matrix/client/r0",
		},
		API: APIConfig{
			Host:            "127.0.0.1",
			Port:            5010,
			CORSAllowOrigin: []string{"*"},
		},
		Redis: RedisConfig{
			Addr:            "127.0.0.1:6379",
			Database:        0,
			PoolSize:        20,
			MinIdleConns:    8,
			ConnMaxLifetime: 60,
			PoolTimeout:     30,
		},
	}
}
