package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/klicker/internal/client"
	"github.com/alfredjeanlab/klicker/internal/model"
)

var nextCmd = &cobra.Command{
	Use:     "next",
	Short:   "Advance one slide",
	GroupID: "present",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommand(cmd, model.CommandNext)
	},
}

var prevCmd = &cobra.Command{
	Use:     "prev",
	Short:   "Go back one slide",
	GroupID: "present",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommand(cmd, model.CommandPrev)
	},
}

// targetSession picks --session, then the saved session, then the active one.
func targetSession(ctx context.Context, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if state.SessionID != "" {
		return state.SessionID, nil
	}
	p, err := kc.GetActive(ctx)
	if errors.Is(err, client.ErrNotFound) {
		return "", errors.New("no session; run `klicker session create` first")
	}
	if err != nil {
		return "", fmt.Errorf("getting active session: %w", err)
	}
	return p.SessionID, nil
}

func sendCommand(cmd *cobra.Command, c model.Command) error {
	ctx := cmd.Context()
	flag, _ := cmd.Flags().GetString("session")
	id, err := targetSession(ctx, flag)
	if err != nil {
		return err
	}

	var sess *model.Session
	err = withAuth(ctx, func() error {
		var err error
		sess, err = kc.SendCommand(ctx, id, c)
		return err
	})
	if err != nil {
		return fmt.Errorf("sending %s: %w", c, err)
	}

	if jsonOutput {
		return printJSON(sess)
	}
	fmt.Fprintf(stdout, "Sent: %s (session %s, id %d)\n", c, sess.ID, sess.CommandID)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{nextCmd, prevCmd} {
		c.Flags().String("session", "", "session id (default: saved session, then the active one)")
	}
}
