package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/klicker/internal/auth"
)

// State is what the CLI remembers between runs: the anonymous identity for
// one server and the session last created or activated.
type State struct {
	URL       string    `toml:"url,omitempty"`
	UID       string    `toml:"uid,omitempty"`
	Token     string    `toml:"token,omitempty"`
	ExpiresAt time.Time `toml:"expires_at,omitempty"`
	SessionID string    `toml:"session_id,omitempty"`
}

// TokenFor returns the saved token if it was issued by url and has not
// expired.
func (s *State) TokenFor(url string) string {
	if s.Token == "" || s.URL != url {
		return ""
	}
	if !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt) {
		return ""
	}
	return s.Token
}

// SetIdentity records a fresh sign-in against url. A session from another
// server is forgotten.
func (s *State) SetIdentity(url string, id *auth.Identity) {
	if s.URL != url {
		s.SessionID = ""
	}
	s.URL = url
	s.UID = id.UID
	s.Token = id.Token
	s.ExpiresAt = id.ExpiresAt
}

// statePath honors KLICKER_STATE_FILE, then XDG_STATE_HOME, then
// ~/.local/state.
func statePath() (string, error) {
	if p := os.Getenv("KLICKER_STATE_FILE"); p != "" {
		return p, nil
	}
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "klicker", "state.toml"), nil
}

func loadState() (*State, error) {
	path, err := statePath()
	if err != nil {
		return nil, err
	}
	var s State
	if _, err := toml.DecodeFile(path, &s); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &s, nil
}

func saveState(s *State) error {
	path, err := statePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(s)
}
