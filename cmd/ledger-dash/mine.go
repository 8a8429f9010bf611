package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ledger-dash/internal/dashboard"
	"ledger-dash/internal/snapshot"
	"ledger-dash/internal/state"
)

func newMineCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "Mine the pending pool once and print the server's answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			appState := state.New(a.cfg.Log.MaxEntries)
			ctrl := dashboard.New(snapshot.New(a.cfg.Upstream), appState, nil)

			res, err := ctrl.Mine(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			if r := appState.Regions(); r != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "blocks: %d, pending: %d\n", r.BlockCount, pendingCount(r))
			}
			if !res.Success {
				return fmt.Errorf("mine rejected: %s", res.Message)
			}
			return nil
		},
	}
}

func pendingCount(r *state.Regions) int {
	if !r.Pending.MineVisible {
		return 0
	}
	return len(r.Pending.Entries)
}
