package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"pkt.systems/vmplane"
)

// newClient builds an unauthenticated client from the loaded config.
func newClient(cmd *cobra.Command, loader *vmplane.Loader) (*vmplane.Client, vmplane.Config, error) {
	cfg, err := loader.Load()
	if err != nil {
		return nil, vmplane.Config{}, err
	}
	if strings.TrimSpace(cfg.Client.Endpoint) == "" {
		return nil, cfg, fmt.Errorf("endpoint is required")
	}
	store, err := vmplane.OpenFileTokenStore(cfg.Client.AuthFile, cfg.Client.Identity)
	if err != nil {
		return nil, cfg, err
	}
	client, err := vmplane.NewClient(vmplane.ClientOptions{
		Endpoint:     cfg.Client.Endpoint,
		Device:       cfg.Client.Device,
		Store:        store,
		Logger:       pslog.Ctx(cmd.Context()),
		TLSDir:       cfg.Client.TLSDir,
		TaskTimeout:  cfg.Tasks.Timeout,
		TaskInterval: cfg.Tasks.Interval,
		RawMonitor:   cfg.Client.RawMonitor,
	})
	if err != nil {
		return nil, cfg, err
	}
	return client, cfg, nil
}

// connect returns a client restored from the token store.
func connect(cmd *cobra.Command, loader *vmplane.Loader) (*vmplane.Client, error) {
	client, cfg, err := newClient(cmd, loader)
	if err != nil {
		return nil, err
	}
	if _, err := client.Restore(cmd.Context()); err != nil {
		_ = client.Close()
		var verr *vmplane.ValidationError
		switch {
		case errors.Is(err, vmplane.ErrUnauthenticated):
			return nil, fmt.Errorf("not logged in to %s; run `vmplane login`", cfg.Client.Endpoint)
		case errors.As(err, &verr):
			return nil, fmt.Errorf("stored session is no longer valid (%v); run `vmplane login`", err)
		default:
			return nil, err
		}
	}
	return client, nil
}

// withClient runs fn against a restored client and releases it.
func withClient(loader *vmplane.Loader, fn func(*cobra.Command, *vmplane.Client, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, err := connect(cmd, loader)
		if err != nil {
			return err
		}
		defer client.Close()
		return vmplane.CatchTaskTimeout(func() error {
			return fn(cmd, client, args)
		})
	}
}

func readLine(cmd *cobra.Command) (string, error) {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("empty input")
	}
	return line, nil
}
