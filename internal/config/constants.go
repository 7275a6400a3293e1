package config

import "time"

const (
	// EnvPrefix prefixes environment overrides, e.g. VMPLANE_CLIENT_ENDPOINT.
	EnvPrefix = "VMPLANE"
	// DefaultConfigDirName is the directory name under the home directory.
	DefaultConfigDirName = ".vmplane"
	// DefaultConfigFileName is the default config file name.
	DefaultConfigFileName = "config.yaml"
	// DefaultAuthFileName is the default token store file name.
	DefaultAuthFileName = "auth.json"
	// DefaultIdentityFileName is the age identity used to seal the token store.
	DefaultIdentityFileName = "identity.age"
	// DefaultTLSDirName is the TLS directory name under the config directory.
	DefaultTLSDirName = "tls"
	// DefaultTLSCacheDirName is the ACME cache directory name under the TLS directory.
	DefaultTLSCacheDirName = "cache"
	// DefaultUsersFileName is the simulator users file name.
	DefaultUsersFileName = "users.json"

	// DefaultClientEndpoint is the default control plane endpoint.
	DefaultClientEndpoint = "https://localhost:8443/api/v1"
	// DefaultListenAddr is the default simulator listen address.
	DefaultListenAddr = "127.0.0.1:8443"
	// DefaultBasePath is the default simulator API mount point.
	DefaultBasePath = "/api/v1"
	// DefaultTLSMode is the default simulator TLS mode.
	DefaultTLSMode = "auto"

	// DefaultTaskTimeout bounds waiting for a task.
	DefaultTaskTimeout = 300 * time.Second
	// DefaultTaskInterval is the pause between task polls.
	DefaultTaskInterval = time.Second

	// DefaultAccessTTL is the simulator access token lifetime.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL is the simulator refresh token lifetime.
	DefaultRefreshTTL = 7 * 24 * time.Hour
	// DefaultTaskPolls is how many polls a simulated task takes.
	DefaultTaskPolls = 2
)
