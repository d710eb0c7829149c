package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the session service",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := kc.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			if err := printJSON(map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(stdout, "Health: %s\n", status)
		}

		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

var bridgesCmd = &cobra.Command{
	Use:     "bridges",
	Short:   "List bridges the service has heard from",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		liveOnly, _ := cmd.Flags().GetBool("live")
		bridges, err := kc.ListBridges(cmd.Context(), liveOnly)
		if err != nil {
			return fmt.Errorf("listing bridges: %w", err)
		}
		if jsonOutput {
			return printJSON(bridges)
		}
		if len(bridges) == 0 {
			fmt.Fprintln(stdout, "No bridges. Start one with `klicker bridge` on the presenting machine.")
			return nil
		}
		printBridgeTable(bridges)
		return nil
	},
}

func init() {
	bridgesCmd.Flags().Bool("live", false, "hide stale bridges")
}
