package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/klicker/internal/model"
	"github.com/alfredjeanlab/klicker/internal/presence"
	"github.com/alfredjeanlab/klicker/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

var stdout io.Writer = os.Stdout

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(stdout, string(data))
	return nil
}

func printSession(s *model.Session) {
	fmt.Fprintf(stdout, "ID:          %s\n", ui.RenderAccent(s.ID))
	fmt.Fprintf(stdout, "Presenter:   %s\n", s.PresenterUID)
	if s.HasCommand() {
		fmt.Fprintf(stdout, "Command:     %s (id %d)\n", s.Command, s.CommandID)
	} else {
		fmt.Fprintf(stdout, "Command:     %s\n", ui.RenderMuted("none"))
	}
	if !s.CreatedAt.IsZero() {
		fmt.Fprintf(stdout, "Created At:  %s\n", s.CreatedAt.Local().Format(timeLayout))
	}
	if !s.UpdatedAt.IsZero() {
		fmt.Fprintf(stdout, "Updated At:  %s\n", s.UpdatedAt.Local().Format(timeLayout))
	}
}

func printSessionTable(sessions []*model.Session, activeID string) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tACTIVE\tPRESENTER\tLAST COMMAND\tUPDATED")
	for _, s := range sessions {
		active := ""
		if s.ID == activeID {
			active = "*"
		}
		last := "-"
		if s.HasCommand() {
			last = fmt.Sprintf("%s #%d", s.Command, s.CommandID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, active, s.PresenterUID, last, s.UpdatedAt.Local().Format(timeLayout))
	}
	w.Flush()
	fmt.Fprintf(stdout, "\n%d sessions\n", len(sessions))
}

func printBridgeTable(bridges []presence.Entry) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BRIDGE\tHOST\tINJECTOR\tTRANSPORT\tSESSION\tLAST SEEN\tSTATE")
	for _, b := range bridges {
		st := ui.RenderOK("live")
		if b.Stale {
			st = ui.RenderWarn("stale")
		}
		idle := time.Duration(b.IdleSecs * float64(time.Second)).Round(time.Second)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s ago\t%s\n", b.BridgeID, b.Host, b.Injector, b.Transport, b.SessionID, idle, st)
	}
	w.Flush()
}
