package vmplane

import "pkt.systems/vmplane/internal/config"

// Config mirrors the vmplane configuration file.
type Config = config.Config

// ClientConfig configures how the CLI reaches the control plane.
type ClientConfig = config.ClientConfig

// TasksConfig bounds task polling.
type TasksConfig = config.TasksConfig

// SimulatorConfig configures the in-process control plane.
type SimulatorConfig = config.SimulatorConfig

// TLSConfig configures TLS for the simulator.
type TLSConfig = config.TLSConfig

// Loader wraps configuration loading via Viper.
type Loader = config.Loader

const (
	EnvPrefix             = config.EnvPrefix
	DefaultConfigDirName  = config.DefaultConfigDirName
	DefaultConfigFileName = config.DefaultConfigFileName
	DefaultAuthFileName   = config.DefaultAuthFileName
	DefaultTLSDirName     = config.DefaultTLSDirName
	DefaultUsersFileName  = config.DefaultUsersFileName

	DefaultClientEndpoint = config.DefaultClientEndpoint
	DefaultListenAddr     = config.DefaultListenAddr
	DefaultBasePath       = config.DefaultBasePath
	DefaultTLSMode        = config.DefaultTLSMode
	DefaultTaskTimeout    = config.DefaultTaskTimeout
	DefaultTaskInterval   = config.DefaultTaskInterval
	DefaultAccessTTL      = config.DefaultAccessTTL
	DefaultRefreshTTL     = config.DefaultRefreshTTL
	DefaultTaskPolls      = config.DefaultTaskPolls
)

// NewLoader returns a config loader with the default values registered.
func NewLoader() *config.Loader {
	l := config.NewLoader()
	l.SetDefaults(config.DefaultConfig())
	return l
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return config.DefaultConfig()
}

// DefaultConfigDir returns the default config directory.
func DefaultConfigDir() string {
	return config.DefaultConfigDir()
}

// DefaultConfigPath returns the default config path.
func DefaultConfigPath() string {
	return config.DefaultConfigPath()
}

// DefaultAuthPath returns the default token store path.
func DefaultAuthPath() string {
	return config.DefaultAuthPath()
}

// DefaultIdentityPath returns the default age identity path.
func DefaultIdentityPath() string {
	return config.DefaultIdentityPath()
}

// DefaultTLSDir returns the default TLS directory.
func DefaultTLSDir() string {
	return config.DefaultTLSDir()
}

// DefaultTLSCacheDir returns the default ACME cache directory.
func DefaultTLSCacheDir() string {
	return config.DefaultTLSCacheDir()
}

// DefaultUsersPath returns the default simulator users file path.
func DefaultUsersPath() string {
	return config.DefaultUsersPath()
}
