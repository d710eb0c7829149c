package bridge

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/klicker/internal/model"
)

// KeyCodes are macOS virtual key codes.
type KeyCodes struct {
	Next int `toml:"next"`
	Prev int `toml:"prev"`
}

func (k KeyCodes) code(cmd model.Command) (int, bool) {
	switch cmd {
	case model.CommandNext:
		return k.Next, true
	case model.CommandPrev:
		return k.Prev, true
	}
	return 0, false
}

// KeyNames are X11 keysym names.
type KeyNames struct {
	Next string `toml:"next"`
	Prev string `toml:"prev"`
}

func (k KeyNames) name(cmd model.Command) (string, bool) {
	switch cmd {
	case model.CommandNext:
		return k.Next, true
	case model.CommandPrev:
		return k.Prev, true
	}
	return "", false
}

// Config selects the injector and the keys it sends.
//
//	injector = "auto"
//
//	[applescript]
//	next = 124
//	prev = 123
//
//	[xdotool]
//	next = "Right"
//	prev = "Left"
type Config struct {
	Injector    string   `toml:"injector"`
	AppleScript KeyCodes `toml:"applescript"`
	Xdotool     KeyNames `toml:"xdotool"`
}

// DefaultConfig presses the right arrow for next and the left arrow for prev.
func DefaultConfig() Config {
	return Config{
		Injector:    "auto",
		AppleScript: KeyCodes{Next: 124, Prev: 123},
		Xdotool:     KeyNames{Next: "Right", Prev: "Left"},
	}
}

// LoadConfig reads path over DefaultConfig. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading bridge config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("bridge config %s: unknown key %q", path, undecoded[0].String())
	}
	if cfg.AppleScript.Next < 0 || cfg.AppleScript.Prev < 0 {
		return Config{}, fmt.Errorf("bridge config %s: applescript key codes must not be negative", path)
	}
	if cfg.Xdotool.Next == "" || cfg.Xdotool.Prev == "" {
		return Config{}, fmt.Errorf("bridge config %s: xdotool key names must not be empty", path)
	}
	return cfg, nil
}
