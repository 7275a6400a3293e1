package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"pkt.systems/vmplane"
	"pkt.systems/vmplane/internal/simulator"
)

// NewKeysCommand builds the access key command.
func NewKeysCommand(_ *vmplane.Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage Ed25519 access keys",
	}
	cmd.AddCommand(newKeysNewCommand())
	cmd.AddCommand(newKeysShowCommand())
	return cmd
}

func newKeysNewCommand() *cobra.Command {
	var out string
	var qr bool
	var usersFile string

	cmd := &cobra.Command{
		Use:   "new <user>",
		Short: "Generate an access key token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, token, err := vmplane.NewAccessKey(args[0])
			if err != nil {
				return err
			}
			if usersFile != "" {
				if err := registerKey(usersFile, args[0], key); err != nil {
					return err
				}
			}
			w := cmd.OutOrStdout()
			if out != "" {
				if err := os.WriteFile(out, []byte(token+"\n"), 0o600); err != nil {
					return err
				}
			} else {
				_, _ = fmt.Fprintf(w, "token: %s\n", token)
			}
			printPublicKey(w, key)
			if qr {
				_, _ = fmt.Fprintln(w, "token_qr:")
				qrterminal.GenerateHalfBlock(token, qrterminal.L, w)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&out, "out", "o", "", "write the token to a file (0600) instead of stdout")
	flags.BoolVar(&qr, "qr", false, "also print the token as a QR code")
	flags.StringVar(&usersFile, "users-file", "", "register the public key in a simulator users file")

	return cmd
}

func newKeysShowCommand() *cobra.Command {
	var keyFile string

	cmd := &cobra.Command{
		Use:   "show [token]",
		Short: "Print the public half of an access key token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := readKeyToken(cmd, args, keyFile)
			if err != nil {
				return err
			}
			key, err := vmplane.DecodeKeyToken(token)
			if err != nil {
				return err
			}
			printPublicKey(cmd.OutOrStdout(), key)
			return nil
		},
	}

	cmd.Flags().StringVarP(&keyFile, "file", "f", "", "read the token from a file")

	return cmd
}

func printPublicKey(w io.Writer, key vmplane.KeyDescriptor) {
	_, _ = fmt.Fprintf(w, "id: %s\n", key.ID)
	_, _ = fmt.Fprintf(w, "serial: %s\n", key.Serial)
	_, _ = fmt.Fprintf(w, "algorithm: %s\n", key.Algorithm)
	_, _ = fmt.Fprintf(w, "public_key: %s\n", key.PublicKey)
	if key.CreatedTime != "" {
		_, _ = fmt.Fprintf(w, "created: %s\n", key.CreatedTime)
	}
}

func registerKey(path, user string, key vmplane.KeyDescriptor) error {
	store, err := simulator.LoadUserStore(path)
	if err != nil {
		return err
	}
	if err := simulator.RegisterKey(store, user, key.Serial, key.PublicKey); err != nil {
		return fmt.Errorf("register key for %s: %w", user, err)
	}
	return store.Save(path)
}
