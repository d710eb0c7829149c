package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/klicker/internal/client"
	"github.com/alfredjeanlab/klicker/internal/model"
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Short:   "Create and inspect sessions",
	GroupID: "sessions",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a session and make it the active one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var sess *model.Session
		err := withAuth(ctx, func() error {
			var err error
			sess, err = kc.CreateSession(ctx)
			return err
		})
		if err != nil {
			return fmt.Errorf("creating session: %w", err)
		}

		state.SessionID = sess.ID
		if err := saveState(state); err != nil {
			return fmt.Errorf("saving state: %w", err)
		}

		if noActivate, _ := cmd.Flags().GetBool("no-activate"); !noActivate {
			if _, err := kc.SetActiveSession(ctx, sess.ID); err != nil {
				return fmt.Errorf("activating session %s: %w", sess.ID, err)
			}
		}

		if jsonOutput {
			return printJSON(sess)
		}
		printSession(sess)
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a session (default: the current one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := state.SessionID
		if len(args) == 1 {
			id = args[0]
		}
		if id == "" {
			return errors.New("no session given and none saved; run `klicker session create`")
		}
		sess, err := kc.GetSession(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("getting session %s: %w", id, err)
		}
		if jsonOutput {
			return printJSON(sess)
		}
		printSession(sess)
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := model.SessionFilter{}
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		if mine, _ := cmd.Flags().GetBool("mine"); mine {
			if state.UID == "" {
				return errors.New("--mine needs a saved identity; run `klicker login`")
			}
			filter.PresenterUID = state.UID
		}

		sessions, err := kc.ListSessions(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}
		if jsonOutput {
			return printJSON(sessions)
		}

		activeID := ""
		if p, err := kc.GetActive(cmd.Context()); err == nil {
			activeID = p.SessionID
		} else if !errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("getting active session: %w", err)
		}
		printSessionTable(sessions, activeID)
		return nil
	},
}

func init() {
	sessionCreateCmd.Flags().Bool("no-activate", false, "do not point the bridge at the new session")
	sessionListCmd.Flags().Int("limit", 20, "maximum number of sessions")
	sessionListCmd.Flags().Bool("mine", false, "only sessions created by the saved identity")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionListCmd)
}
