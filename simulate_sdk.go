package vmplane

import (
	"context"
	"net"
	"strings"
	"time"

	"pkt.systems/pslog"

	"pkt.systems/vmplane/internal/server"
	"pkt.systems/vmplane/internal/simulator"
	"pkt.systems/vmplane/internal/tlsmgr"
)

// SimulateOptions configures Simulate.
type SimulateOptions struct {
	Config Config
	Logger pslog.Logger
	// AdminUser and AdminSecret seed the user store when it is empty.
	AdminUser   string
	AdminSecret string
	// Listener overrides Config.Simulator.Listen.
	Listener net.Listener
}

// Simulate runs the in-process control plane until ctx is done.
func Simulate(ctx context.Context, opts SimulateOptions) error {
	cfg := opts.Config.Simulator
	logger := opts.Logger
	if logger == nil {
		logger = pslog.LoggerFromEnv()
	}

	tlsCfg, err := tlsmgr.ServerConfig(ctx, tlsmgr.Config{
		Mode:        tlsmgr.Mode(strings.ToLower(cfg.TLS.Mode)),
		BundleFiles: cfg.TLS.Bundle,
		Hosts:       cfg.TLS.Hosts,
		Dir:         cfg.TLS.Dir,
		CacheDir:    cfg.TLS.CacheDir,
	}, logger.With("component", "tls"))
	if err != nil {
		return err
	}

	users, err := simulator.LoadUserStore(cfg.UsersFile)
	if err != nil {
		return err
	}
	sim, err := simulator.New(simulator.Options{
		Users:        users,
		UsersFile:    cfg.UsersFile,
		Logger:       logger,
		AccessTTL:    cfg.AccessTTL,
		RefreshTTL:   cfg.RefreshTTL,
		TaskPolls:    cfg.TaskPolls,
		BasePath:     cfg.BasePath,
		PublishedURL: cfg.PublishedURL,
	})
	if err != nil {
		return err
	}
	if opts.AdminUser != "" {
		if err := sim.Bootstrap(opts.AdminUser, opts.AdminSecret); err != nil {
			return err
		}
	} else {
		simulator.Seed(sim.Inventory())
	}

	srv := server.NewServer(server.Config{
		ListenAddr: cfg.Listen,
		TLSConfig:  tlsCfg,
		Logger:     logger.With("component", "http"),
		// No read or write timeouts so monitor websockets stay open.
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}, sim.Handler())

	logger.Info("starting simulator", "listen", cfg.Listen, "base", sim.BasePath(), "tls_mode", cfg.TLS.Mode)
	if opts.Listener != nil {
		return srv.Serve(ctx, opts.Listener)
	}
	return srv.ListenAndServe(ctx)
}
