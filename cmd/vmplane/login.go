package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pkt.systems/pslog"

	"pkt.systems/vmplane"
	"pkt.systems/vmplane/internal/render"
)

// NewLoginCommand builds the password login command.
func NewLoginCommand(loader *vmplane.Loader) *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with a password and store tokens locally",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, cfg, err := newClient(cmd, loader)
			if err != nil {
				return err
			}
			defer client.Close()

			reader := bufio.NewReader(cmd.InOrStdin())
			username := strings.TrimSpace(cfg.Client.User)
			if username == "" {
				if passwordStdin {
					return fmt.Errorf("--user is required with --password-stdin")
				}
				fmt.Fprint(cmd.ErrOrStderr(), "Username: ")
				line, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				username = strings.TrimSpace(line)
			}
			if username == "" {
				return fmt.Errorf("username is required")
			}

			var password string
			if passwordStdin {
				line, err := reader.ReadString('\n')
				if err != nil && err != io.EOF {
					return err
				}
				password = strings.TrimRight(line, "\r\n")
			} else {
				password, err = promptPassword(cmd, "Password: ")
				if err != nil {
					return err
				}
			}

			bundle, err := client.LoginPassword(cmd.Context(), username, password)
			if err != nil {
				return formatLoginError(err, cfg.Client.Endpoint)
			}
			pslog.Ctx(cmd.Context()).Info("login succeeded", "user", bundle.User, "auth_file", cfg.Client.AuthFile)
			return nil
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")

	return cmd
}

// NewLoginKeyCommand builds the access key login command.
func NewLoginKeyCommand(loader *vmplane.Loader) *cobra.Command {
	var keyFile string

	cmd := &cobra.Command{
		Use:   "login-key [token]",
		Short: "Authenticate with an access key token",
		Long:  "Authenticate with an access key token given as argument, read from --file, or read from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := readKeyToken(cmd, args, keyFile)
			if err != nil {
				return err
			}
			client, cfg, err := newClient(cmd, loader)
			if err != nil {
				return err
			}
			defer client.Close()

			bundle, err := client.LoginToken(cmd.Context(), token)
			if err != nil {
				return formatLoginError(err, cfg.Client.Endpoint)
			}
			pslog.Ctx(cmd.Context()).Info("login succeeded", "user", bundle.User, "auth_file", cfg.Client.AuthFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&keyFile, "file", "f", "", "read the token from a file")

	return cmd
}

// NewLogoutCommand builds the logout command.
func NewLogoutCommand(loader *vmplane.Loader) *cobra.Command {
	var revoke bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget stored tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !revoke {
				client, _, err := newClient(cmd, loader)
				if err != nil {
					return err
				}
				defer client.Close()
				client.Logout(cmd.Context())
				return done(cmd, "logged out")
			}
			client, err := connect(cmd, loader)
			if err != nil {
				return err
			}
			defer client.Close()
			if err := client.LogoutDevice(cmd.Context()); err != nil {
				return err
			}
			return done(cmd, "device logged out")
		},
	}

	cmd.Flags().BoolVar(&revoke, "revoke", false, "also revoke this device's tokens on the control plane")

	return cmd
}

// NewWhoamiCommand builds the whoami command.
func NewWhoamiCommand(loader *vmplane.Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, _ []string) error {
			tokens := client.Tokens()
			if wantJSON(cmd) {
				return printJSON(cmd, map[string]any{
					"user":               client.User(),
					"roles":              client.Roles(),
					"device":             client.Device(),
					"endpoint":           client.Endpoint(),
					"access_expired_at":  tokens.AccessExpiredAt,
					"refresh_expired_at": tokens.RefreshExpiredAt,
				})
			}
			return render.KeyValues(cmd.OutOrStdout(),
				[2]string{"user", client.User()},
				[2]string{"roles", joined(client.Roles())},
				[2]string{"device", client.Device()},
				[2]string{"endpoint", client.Endpoint()},
				[2]string{"access expires", tokens.AccessExpiredAt},
				[2]string{"refresh expires", tokens.RefreshExpiredAt},
			)
		}),
	}
}

func promptPassword(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readKeyToken(cmd *cobra.Command, args []string, file string) (string, error) {
	switch {
	case len(args) == 1:
		return strings.TrimSpace(args[0]), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	default:
		b, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 64<<10))
		if err != nil {
			return "", err
		}
		token := strings.TrimSpace(string(b))
		if token == "" {
			return "", fmt.Errorf("access key token is required")
		}
		return token, nil
	}
}

func formatLoginError(err error, endpoint string) error {
	switch {
	case errors.Is(err, vmplane.ErrUnauthenticated):
		return fmt.Errorf("login to %s rejected: %w", endpoint, err)
	case errors.Is(err, vmplane.ErrInvalidTokenFormat):
		return fmt.Errorf("access key token is malformed: %w", err)
	default:
		return err
	}
}
