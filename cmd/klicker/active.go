package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/klicker/internal/client"
)

var activeCmd = &cobra.Command{
	Use:     "active [id]",
	Short:   "Show the active session, or point the bridge at session id",
	GroupID: "sessions",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if len(args) == 0 {
			p, err := kc.GetActive(ctx)
			if errors.Is(err, client.ErrNotFound) {
				return errors.New("no active session")
			}
			if err != nil {
				return fmt.Errorf("getting active session: %w", err)
			}
			if jsonOutput {
				return printJSON(p)
			}
			fmt.Fprintf(stdout, "Active: %s (set by %s at %s)\n", p.SessionID, p.PresenterUID, p.UpdatedAt.Local().Format(timeLayout))
			return nil
		}

		id := args[0]
		err := withAuth(ctx, func() error {
			_, err := kc.SetActiveSession(ctx, id)
			return err
		})
		if err != nil {
			return fmt.Errorf("activating %s: %w", id, err)
		}
		state.SessionID = id
		if err := saveState(state); err != nil {
			return fmt.Errorf("saving state: %w", err)
		}
		if jsonOutput {
			return printJSON(map[string]string{"sessionId": id})
		}
		fmt.Fprintf(stdout, "Active: %s\n", id)
		return nil
	},
}
