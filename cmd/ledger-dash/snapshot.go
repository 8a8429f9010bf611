package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ledger-dash/internal/highlight"
	"ledger-dash/internal/snapshot"
)

func newSnapshotCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch the system state once and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := snapshot.New(a.cfg.Upstream).FetchSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			return writeSnapshot(cmd.OutOrStdout(), snap.Raw, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	return cmd
}

// writeSnapshot prints a state body in the server's key order.
func writeSnapshot(w io.Writer, raw []byte, format string) error {
	switch strings.ToLower(format) {
	case "json":
		out, err := highlight.Indent(raw)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, out)
		return err
	case "yaml", "yml":
		// JSON is valid YAML; decoding into a node keeps the key order.
		var node yaml.Node
		if err := yaml.Unmarshal(raw, &node); err != nil {
			return fmt.Errorf("%w: %v", snapshot.ErrMalformed, err)
		}
		clearStyle(&node)
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(&node); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

// clearStyle drops the JSON flow collections and quoting so the encoder
// picks plain YAML. Tags are kept, so "true" stays a string.
func clearStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle | yaml.DoubleQuotedStyle
	for _, c := range n.Content {
		clearStyle(c)
	}
}
