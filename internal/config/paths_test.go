package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	expectedDir := filepath.Join(home, DefaultConfigDirName)
	if got := DefaultConfigDir(); got != expectedDir {
		t.Fatalf("DefaultConfigDir() = %q, want %q", got, expectedDir)
	}

	cases := map[string]struct{ got, want string }{
		"config":    {DefaultConfigPath(), filepath.Join(expectedDir, DefaultConfigFileName)},
		"auth":      {DefaultAuthPath(), filepath.Join(expectedDir, DefaultAuthFileName)},
		"identity":  {DefaultIdentityPath(), filepath.Join(expectedDir, DefaultIdentityFileName)},
		"tls":       {DefaultTLSDir(), filepath.Join(expectedDir, DefaultTLSDirName)},
		"tls cache": {DefaultTLSCacheDir(), filepath.Join(expectedDir, DefaultTLSDirName, DefaultTLSCacheDirName)},
		"users":     {DefaultUsersPath(), filepath.Join(expectedDir, DefaultUsersFileName)},
	}
	for name, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("%s path = %q, want %q", name, tc.got, tc.want)
		}
	}
}
