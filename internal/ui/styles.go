// Package ui holds the terminal styling shared by the klicker commands.
package ui

import (
	"fmt"
	"strings"
)

// ANSI256 color codes.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorOK     = 108 // sage
	colorWarn   = 167 // red
)

var noColor bool

func paint(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderOK returns s in the success (sage) color.
func RenderOK(s string) string { return paint(colorOK, s) }

// RenderWarn returns s in the warning (red) color.
func RenderWarn(s string) string { return paint(colorWarn, s) }

// RenderTimer styles an elapsed time, red once it is past the limit.
func RenderTimer(elapsed string, over bool) string {
	if over {
		return RenderWarn(elapsed + "  over limit")
	}
	return RenderOK(elapsed)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

// Frame clears the screen and joins lines with CRLF, which a terminal in raw
// mode needs to return to column zero.
func Frame(lines ...string) string {
	return "\x1b[H\x1b[2J" + strings.Join(lines, "\r\n") + "\r\n"
}
