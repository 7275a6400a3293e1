package config

import (
	"os"
	"path/filepath"
)

// DefaultConfigDir returns the default vmplane config directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return DefaultConfigDirName
	}
	return filepath.Join(home, DefaultConfigDirName)
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), DefaultConfigFileName)
}

// DefaultAuthPath returns the default token store path.
func DefaultAuthPath() string {
	return filepath.Join(DefaultConfigDir(), DefaultAuthFileName)
}

// DefaultIdentityPath returns the default age identity path.
func DefaultIdentityPath() string {
	return filepath.Join(DefaultConfigDir(), DefaultIdentityFileName)
}

// DefaultTLSDir returns the default TLS directory.
func DefaultTLSDir() string {
	return filepath.Join(DefaultConfigDir(), DefaultTLSDirName)
}

// DefaultTLSCacheDir returns the default ACME cache directory.
func DefaultTLSCacheDir() string {
	return filepath.Join(DefaultTLSDir(), DefaultTLSCacheDirName)
}

// DefaultUsersPath returns the default simulator users file path.
func DefaultUsersPath() string {
	return filepath.Join(DefaultConfigDir(), DefaultUsersFileName)
}
