// Package tlsmgr builds the simulator's server TLS configuration and the
// client trust pool used to reach it.
package tlsmgr

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"

	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
	"pkt.systems/pslog"
)

// Mode selects where server certificates come from.
type Mode string

const (
	// ModeOff serves plain HTTP.
	ModeOff Mode = "off"
	// ModeAuto issues certificates from a local CA kept in Dir.
	ModeAuto Mode = "auto"
	// ModeBundle loads a certificate chain and key from PEM files.
	ModeBundle Mode = "bundle"
	// ModeACME obtains certificates over TLS-ALPN-01.
	ModeACME Mode = "acme"
)

// Config configures ServerConfig.
type Config struct {
	Mode        Mode
	BundleFiles []string
	Hosts       []string
	Dir         string
	CacheDir    string
}

// ServerConfig returns the TLS configuration for cfg, or nil for ModeOff.
// An empty mode resolves to bundle when files are given and auto
// otherwise.
func ServerConfig(ctx context.Context, cfg Config, logger pslog.Logger) (*tls.Config, error) {
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeAuto
		if len(cfg.BundleFiles) > 0 {
			mode = ModeBundle
		}
	}
	switch mode {
	case ModeOff:
		return nil, nil
	case ModeBundle:
		cert, err := LoadBundle(cfg.BundleFiles)
		if err != nil {
			return nil, err
		}
		return &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}}, nil
	case ModeACME:
		if len(cfg.Hosts) == 0 {
			return nil, fmt.Errorf("acme mode requires at least one host name")
		}
		if cfg.CacheDir == "" {
			return nil, fmt.Errorf("acme mode requires a cache dir")
		}
		if err := os.MkdirAll(cfg.CacheDir, 0o700); err != nil {
			return nil, err
		}
		manager := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Cache:      autocert.DirCache(cfg.CacheDir),
			HostPolicy: autocert.HostWhitelist(cfg.Hosts...),
		}
		logger.Info("acme tls enabled", "hosts", cfg.Hosts, "cache_dir", cfg.CacheDir)
		return &tls.Config{
			MinVersion:     tls.VersionTLS12,
			GetCertificate: manager.GetCertificate,
			NextProtos:     []string{acme.ALPNProto, "http/1.1"},
		}, nil
	case ModeAuto:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("auto tls mode requires a tls dir")
		}
		cert, err := EnsureLocal(ctx, cfg.Dir, cfg.Hosts, logger)
		if err != nil {
			return nil, err
		}
		return &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}}, nil
	default:
		return nil, fmt.Errorf("unsupported tls mode %q", mode)
	}
}
