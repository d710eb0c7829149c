package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/klicker/internal/client"
)

// signIn obtains a fresh anonymous identity and saves it.
func signIn(ctx context.Context) error {
	id, err := kc.SignInAnonymously(ctx)
	if err != nil {
		return fmt.Errorf("signing in: %w", err)
	}
	state.SetIdentity(serverURL, id)
	if err := saveState(state); err != nil {
		slog.Warn("could not save identity", "error", err)
	}
	return nil
}

// withAuth runs fn with a bearer token. A saved token the server rejects is
// replaced by a fresh sign-in and fn runs once more.
func withAuth(ctx context.Context, fn func() error) error {
	fresh := false
	if kc.Token() == "" {
		if err := signIn(ctx); err != nil {
			return err
		}
		fresh = true
	}
	err := fn()
	if fresh || !errors.Is(err, client.ErrUnauthorized) {
		return err
	}
	slog.Debug("saved token rejected; signing in again")
	if err := signIn(ctx); err != nil {
		return err
	}
	return fn()
}

var loginCmd = &cobra.Command{
	Use:     "login",
	Short:   "Sign in anonymously and remember the identity",
	GroupID: "sessions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := signIn(cmd.Context()); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]any{"uid": state.UID, "expiresAt": state.ExpiresAt})
		}
		fmt.Fprintf(stdout, "Signed in as %s (expires %s)\n", state.UID, state.ExpiresAt.Local().Format(timeLayout))
		return nil
	},
}
