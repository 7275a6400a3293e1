package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pkt.systems/vmplane"
	"pkt.systems/vmplane/internal/render"
)

// NewUsersCommand builds the users management command.
func NewUsersCommand(loader *vmplane.Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage control plane users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.SetUsageTemplate(subcommandUsageTemplate)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, _ []string) error {
			users, err := client.QueryUsers(cmd.Context())
			if err != nil {
				return err
			}
			return printTable(cmd, users, []string{"name", "roles"}, func(t *render.Table) {
				for _, u := range users {
					t.Append(u.Name, joined(u.Roles))
				}
			})
		}),
	})

	var addPrompt bool
	var roles []string
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a user",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" {
				return fmt.Errorf("user name is required")
			}
			secret, generated, err := userSecret(cmd, addPrompt)
			if err != nil {
				return err
			}
			if err := client.CreateUser(cmd.Context(), name, secret, roles...); err != nil {
				return formatUserError(err)
			}
			return printUserSecret(cmd, name, secret, generated)
		}),
	}
	addCmd.Flags().BoolVar(&addPrompt, "prompt", false, "prompt for the secret instead of generating one")
	addCmd.Flags().StringSliceVar(&roles, "role", nil, "role to grant (repeatable)")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a user and revoke its tokens",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			if err := client.DeleteUser(cmd.Context(), args[0]); err != nil {
				return formatUserError(err)
			}
			return done(cmd, "user "+args[0]+" deleted")
		}),
	})

	var passwdPrompt bool
	passwdCmd := &cobra.Command{
		Use:   "passwd <name>",
		Short: "Change a user's secret",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(loader, func(cmd *cobra.Command, client *vmplane.Client, args []string) error {
			secret, generated, err := userSecret(cmd, passwdPrompt)
			if err != nil {
				return err
			}
			if err := client.ChangeUserSecret(cmd.Context(), args[0], secret); err != nil {
				return formatUserError(err)
			}
			return printUserSecret(cmd, args[0], secret, generated)
		}),
	}
	passwdCmd.Flags().BoolVar(&passwdPrompt, "prompt", false, "prompt for the secret instead of generating one")
	cmd.AddCommand(passwdCmd)

	return cmd
}

func userSecret(cmd *cobra.Command, prompt bool) (string, bool, error) {
	if !prompt {
		return uuid.NewString(), true, nil
	}
	secret, err := promptPassword(cmd, "Secret: ")
	if err != nil {
		return "", false, err
	}
	if secret == "" {
		return "", false, fmt.Errorf("secret is required")
	}
	return secret, false, nil
}

func printUserSecret(cmd *cobra.Command, name, secret string, generated bool) error {
	if !generated {
		return done(cmd, "user "+name+" updated")
	}
	if wantJSON(cmd) {
		return printJSON(cmd, map[string]string{"user": name, "secret": secret})
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "user: %s\nsecret: %s\n", name, secret)
	return err
}

func formatUserError(err error) error {
	var cerr *vmplane.CommandError
	switch {
	case errors.Is(err, vmplane.ErrAuthorizationFailed):
		return fmt.Errorf("permission denied: %w", err)
	case errors.As(err, &cerr):
		return fmt.Errorf("control plane refused: %s", cerr.Message)
	default:
		return err
	}
}

const subcommandUsageTemplate = `Usage:
  {{.CommandPath}} [command] [flags]

{{if .HasAvailableSubCommands}}Available Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}{{rpad .Name .NamePadding }} {{.Short}}
{{end}}{{end}}{{end}}
{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}

{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}

{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`
