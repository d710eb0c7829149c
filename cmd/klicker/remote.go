package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/klicker/internal/auth"
	"github.com/alfredjeanlab/klicker/internal/presenter"
	"github.com/alfredjeanlab/klicker/internal/timer"
	"github.com/alfredjeanlab/klicker/internal/ui"
)

// actionTimeout bounds each network action taken from the remote.
const actionTimeout = 10 * time.Second

type key int

const (
	keyNone key = iota
	keyCreate
	keyNext
	keyPrev
	keyToggle
	keyReset
	keyLimitUp
	keyLimitDown
	keyQuit
)

// parseKeys decodes raw terminal input. Arrow keys arrive as ESC [ C / ESC [ D.
func parseKeys(buf []byte) []key {
	var keys []key
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		if b == 0x1b && i+2 < len(buf) && buf[i+1] == '[' {
			switch buf[i+2] {
			case 'C':
				keys = append(keys, keyNext)
			case 'D':
				keys = append(keys, keyPrev)
			}
			i += 2
			continue
		}
		switch b {
		case 'c', 'C':
			keys = append(keys, keyCreate)
		case 'n', 'N':
			keys = append(keys, keyNext)
		case 'p', 'P':
			keys = append(keys, keyPrev)
		case ' ':
			keys = append(keys, keyToggle)
		case 'r', 'R':
			keys = append(keys, keyReset)
		case '+', '=':
			keys = append(keys, keyLimitUp)
		case '-', '_':
			keys = append(keys, keyLimitDown)
		case 'q', 'Q', 0x03: // Ctrl-C arrives as a byte in raw mode
			keys = append(keys, keyQuit)
		}
	}
	return keys
}

// renderRemote draws one frame of the remote.
func renderRemote(v presenter.View) string {
	session := ui.RenderMuted("none (press c)")
	if v.SessionID != "" {
		session = ui.RenderAccent(v.SessionID)
	}
	state := "paused"
	if v.Running {
		state = "running"
	}
	status := v.Status
	if strings.Contains(status, "failed") || status == presenter.StatusCreateFailed {
		status = ui.RenderWarn(status)
	}
	return ui.Frame(
		ui.RenderAccent("Clicker Remote"),
		"",
		"Session:  "+session,
		fmt.Sprintf("Timer:    %s  (%s, limit %d min)", ui.RenderTimer(v.Elapsed, v.Over), state, v.LimitMinutes),
		"Status:   "+status,
		"",
		ui.RenderMuted("c create   n/→ next   p/← prev   space start/pause   r reset   +/- limit   q quit"),
	)
}

// remoteLoop drives the presenter from keys and redraws on every key and
// timer tick until q or ctx ends.
func remoteLoop(ctx context.Context, p *presenter.Presenter, keys <-chan key, out io.Writer, onChange func()) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ticks := p.Timer().Ticks(ctx)

	draw := func() { fmt.Fprint(out, renderRemote(p.View())) }
	draw()

	act := func(fn func(context.Context) error) {
		actx, acancel := context.WithTimeout(ctx, actionTimeout)
		defer acancel()
		if err := fn(actx); err != nil {
			slog.Debug("remote action failed", "error", err)
		}
		onChange()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ticks:
			if !ok {
				return nil
			}
		case k, ok := <-keys:
			if !ok {
				return nil
			}
			switch k {
			case keyQuit:
				return nil
			case keyCreate:
				act(p.CreateSession)
			case keyNext:
				act(p.Next)
			case keyPrev:
				act(p.Prev)
			case keyToggle:
				p.ToggleTimer()
			case keyReset:
				p.ResetTimer()
			case keyLimitUp:
				p.AdjustLimit(+1)
			case keyLimitDown:
				p.AdjustLimit(-1)
			}
		}
		draw()
	}
}

// readKeys forwards decoded keys from r until it fails.
func readKeys(r io.Reader, keys chan<- key) {
	defer close(keys)
	buf := make([]byte, 16)
	for {
		n, err := r.Read(buf)
		for _, k := range parseKeys(buf[:n]) {
			keys <- k
		}
		if err != nil {
			return
		}
	}
}

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Interactive presenter remote with a speaking timer",
	GroupID: "present",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !ui.IsTerminal(os.Stdin) {
			return errors.New("remote needs an interactive terminal; use `klicker next` / `klicker prev` in scripts")
		}
		watch := timer.New(nil)
		limit, _ := cmd.Flags().GetInt("limit")
		watch.SetLimit(limit)

		p := presenter.New(kc, watch)
		p.Restore(state.UID, state.TokenFor(serverURL), state.SessionID)
		persist := func() {
			uid, token := p.Identity()
			if token != "" && token != state.Token {
				state.SetIdentity(serverURL, &auth.Identity{UID: uid, Token: token})
			}
			state.SessionID = p.SessionID()
			if err := saveState(state); err != nil {
				slog.Warn("could not save state", "error", err)
			}
		}

		restore, err := ui.RawMode(os.Stdin)
		if err != nil {
			return fmt.Errorf("entering raw mode: %w", err)
		}
		defer restore()
		fmt.Fprint(os.Stdout, "\x1b[?25l")       // hide cursor
		defer fmt.Fprint(os.Stdout, "\x1b[?25h") // show cursor

		keys := make(chan key)
		go readKeys(os.Stdin, keys)
		return remoteLoop(cmd.Context(), p, keys, os.Stdout, persist)
	},
}

func init() {
	remoteCmd.Flags().Int("limit", timer.DefaultLimitMinutes, "speaking time limit in minutes")
}
