package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoaderReadsFileOverDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "client:\n  endpoint: https://cp.example.com/api/v1\n  user: alice\ntasks:\n  timeout: 45s\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoader()
	loader.SetDefaults(DefaultConfig())
	loader.SetConfigFile(path)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Client.Endpoint != "https://cp.example.com/api/v1" {
		t.Fatalf("Client.Endpoint = %q", cfg.Client.Endpoint)
	}
	if cfg.Client.User != "alice" {
		t.Fatalf("Client.User = %q, want alice", cfg.Client.User)
	}
	if cfg.Tasks.Timeout != 45*time.Second {
		t.Fatalf("Tasks.Timeout = %v, want 45s", cfg.Tasks.Timeout)
	}
	if cfg.Tasks.Interval != DefaultTaskInterval {
		t.Fatalf("Tasks.Interval = %v, want default %v", cfg.Tasks.Interval, DefaultTaskInterval)
	}
}

func TestLoaderEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VMPLANE_CLIENT_ENDPOINT", "http://127.0.0.1:9000/api/v1")
	t.Setenv("VMPLANE_SIMULATOR_TASK_POLLS", "5")

	loader := NewLoader()
	loader.SetDefaults(DefaultConfig())
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Client.Endpoint != "http://127.0.0.1:9000/api/v1" {
		t.Fatalf("Client.Endpoint = %q", cfg.Client.Endpoint)
	}
	if cfg.Simulator.TaskPolls != 5 {
		t.Fatalf("Simulator.TaskPolls = %d, want 5", cfg.Simulator.TaskPolls)
	}
}

func TestLoaderMissingFileIsNotAnError(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	if _, err := NewLoader().Load(); err != nil {
		t.Fatalf("Load without config file: %v", err)
	}
}
