package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"

	"github.com/alfredjeanlab/klicker/internal/model"
)

// Injector presses the key for a navigation command on the local machine.
type Injector interface {
	Press(ctx context.Context, cmd model.Command) error
	Name() string
}

// runFunc runs an external command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// AppleScriptInjector sends macOS key codes through System Events.
type AppleScriptInjector struct {
	keys KeyCodes
	run  runFunc
}

func NewAppleScriptInjector(keys KeyCodes) *AppleScriptInjector {
	return &AppleScriptInjector{keys: keys, run: execRun}
}

func (a *AppleScriptInjector) Name() string { return "applescript" }

func (a *AppleScriptInjector) Press(ctx context.Context, cmd model.Command) error {
	code, ok := a.keys.code(cmd)
	if !ok {
		return fmt.Errorf("%w: %q", model.ErrUnrecognizedCommand, cmd)
	}
	script := fmt.Sprintf(`tell application "System Events" to key code %d`, code)
	if out, err := a.run(ctx, "osascript", "-e", script); err != nil {
		return fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// XdotoolInjector sends X11 key names through xdotool.
type XdotoolInjector struct {
	keys KeyNames
	run  runFunc
}

func NewXdotoolInjector(keys KeyNames) *XdotoolInjector {
	return &XdotoolInjector{keys: keys, run: execRun}
}

func (x *XdotoolInjector) Name() string { return "xdotool" }

func (x *XdotoolInjector) Press(ctx context.Context, cmd model.Command) error {
	key, ok := x.keys.name(cmd)
	if !ok {
		return fmt.Errorf("%w: %q", model.ErrUnrecognizedCommand, cmd)
	}
	if out, err := x.run(ctx, "xdotool", "key", key); err != nil {
		return fmt.Errorf("xdotool: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// LogInjector only logs. It backs --dry-run.
type LogInjector struct{}

func (LogInjector) Name() string { return "log" }

func (LogInjector) Press(_ context.Context, cmd model.Command) error {
	slog.Info("key press (dry run)", "command", cmd)
	return nil
}

// NewInjector returns the injector named by cfg.Injector. "auto" picks one
// for the running OS.
func NewInjector(cfg Config) (Injector, error) {
	name := cfg.Injector
	if name == "" || name == "auto" {
		switch runtime.GOOS {
		case "darwin":
			name = "applescript"
		case "linux", "freebsd", "openbsd":
			name = "xdotool"
		default:
			return nil, fmt.Errorf("no key injector for %s; use --injector log", runtime.GOOS)
		}
	}
	switch name {
	case "applescript":
		return NewAppleScriptInjector(cfg.AppleScript), nil
	case "xdotool":
		return NewXdotoolInjector(cfg.Xdotool), nil
	case "log":
		return LogInjector{}, nil
	}
	return nil, fmt.Errorf("unknown injector %q (want auto, applescript, xdotool or log)", name)
}
