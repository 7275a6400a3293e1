package vmplane

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"pkt.systems/pslog"

	"pkt.systems/vmplane/internal/tlsmgr"
)

// BootstrapOptions configures Bootstrap.
type BootstrapOptions struct {
	Config Config
	// Path defaults to DefaultConfigPath.
	Path   string
	Logger pslog.Logger
}

// Bootstrap writes cfg as YAML, creates the token store identity and,
// for auto TLS, the local CA and server certificate. It refuses to
// overwrite an existing config file.
func Bootstrap(ctx context.Context, opts BootstrapOptions) (string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}
	cfg := opts.Config
	path := opts.Path
	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config already exists at %s", path)
	} else if !os.IsNotExist(err) {
		return "", err
	}

	if tlsmgr.Mode(cfg.Simulator.TLS.Mode) == tlsmgr.ModeAuto {
		err := tlsmgr.GenerateLocal(ctx, cfg.Simulator.TLS.Dir, cfg.Simulator.TLS.Hosts, logger)
		if err != nil && !errors.Is(err, tlsmgr.ErrExists) {
			return "", err
		}
	}
	if cfg.Client.Identity != "" {
		if _, err := OpenFileTokenStore(cfg.Client.AuthFile, cfg.Client.Identity); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	logger.Info("bootstrapped config", "path", path)
	return path, nil
}
