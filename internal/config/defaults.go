package config

// DefaultConfig returns the default configuration values.
func DefaultConfig() Config {
	return Config{
		Client: ClientConfig{
			Endpoint: DefaultClientEndpoint,
			AuthFile: DefaultAuthPath(),
			Identity: DefaultIdentityPath(),
			TLSDir:   DefaultTLSDir(),
		},
		Tasks: TasksConfig{
			Timeout:  DefaultTaskTimeout,
			Interval: DefaultTaskInterval,
		},
		Simulator: SimulatorConfig{
			Listen:     DefaultListenAddr,
			BasePath:   DefaultBasePath,
			UsersFile:  DefaultUsersPath(),
			AccessTTL:  DefaultAccessTTL,
			RefreshTTL: DefaultRefreshTTL,
			TaskPolls:  DefaultTaskPolls,
			TLS: TLSConfig{
				Mode:     DefaultTLSMode,
				Dir:      DefaultTLSDir(),
				CacheDir: DefaultTLSCacheDir(),
			},
		},
	}
}
