package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/prettyx"

	"pkt.systems/vmplane/internal/render"
)

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return prettyx.PrettyTo(cmd.OutOrStdout(), data, prettyx.DefaultOptions)
}

// printTable prints v as JSON when --json is set, otherwise as a table.
func printTable(cmd *cobra.Command, v any, header []string, rows func(*render.Table)) error {
	if wantJSON(cmd) {
		return printJSON(cmd, v)
	}
	tbl := &render.Table{Header: header, MaxCell: 48}
	rows(tbl)
	return tbl.Render(cmd.OutOrStdout())
}

// printTask reports a submitted or finished task.
func printTask(cmd *cobra.Command, label, id string) error {
	if wantJSON(cmd) {
		return printJSON(cmd, map[string]string{label: id})
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), id)
	return err
}

func done(cmd *cobra.Command, msg string) error {
	if wantJSON(cmd) {
		return printJSON(cmd, map[string]bool{"ok": true})
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), msg)
	return err
}

func itoa(n int) string { return strconv.Itoa(n) }

func utoa(n uint64) string { return strconv.FormatUint(n, 10) }

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func joined(s []string) string { return strings.Join(s, ",") }
