package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/klicker/internal/auth"
	"github.com/alfredjeanlab/klicker/internal/model"
	"github.com/alfredjeanlab/klicker/internal/presence"
	"github.com/alfredjeanlab/klicker/internal/ui"
)

func TestMain(m *testing.M) {
	ui.ForceNoColor()
	os.Exit(m.Run())
}

// fakeAPI is an in-memory stand-in for the session service's REST API.
type fakeAPI struct {
	mu       sync.Mutex
	signIns  int
	tokens   map[string]string // token -> uid
	sessions map[string]*model.Session
	order    []string
	active   *model.ActivePointer
	nextID   int64
	bridges  *presence.Tracker
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{tokens: map[string]string{}, sessions: map[string]*model.Session{}, bridges: presence.New(nil)}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/anonymous", f.signIn)
	mux.HandleFunc("POST /v1/sessions", f.authed(f.createSession))
	mux.HandleFunc("GET /v1/sessions", f.listSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", f.getSession)
	mux.HandleFunc("POST /v1/sessions/{id}/commands", f.authed(f.sendCommand))
	mux.HandleFunc("PUT /v1/active", f.authed(f.setActive))
	mux.HandleFunc("GET /v1/active", f.getActive)
	mux.HandleFunc("GET /v1/bridges", func(w http.ResponseWriter, r *http.Request) {
		f.reply(w, http.StatusOK, map[string]any{"bridges": f.bridges.Roster(r.URL.Query().Get("live") == "true")})
	})
	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		f.reply(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

// addSession seeds a session owned by uid.
func (f *fakeAPI) addSession(id, uid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id] = &model.Session{ID: id, PresenterUID: uid, UpdatedAt: time.Now()}
	f.order = append(f.order, id)
}

func (f *fakeAPI) addToken(token, uid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = uid
}

func (f *fakeAPI) reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) authed(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		f.mu.Lock()
		uid, ok := f.tokens[token]
		f.mu.Unlock()
		if !ok {
			f.reply(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		next(w, r, uid)
	}
}

func (f *fakeAPI) signIn(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	f.signIns++
	n := f.signIns
	id := auth.Identity{
		UID:       "anon-" + string(rune('a'+n-1)),
		Token:     "tok-" + string(rune('a'+n-1)),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	f.tokens[id.Token] = id.UID
	f.mu.Unlock()
	f.reply(w, http.StatusCreated, id)
}

func (f *fakeAPI) createSession(w http.ResponseWriter, _ *http.Request, uid string) {
	f.mu.Lock()
	id := "ses-" + string(rune('0'+len(f.sessions)+1))
	f.mu.Unlock()
	f.addSession(id, uid)
	f.mu.Lock()
	sess := *f.sessions[id]
	f.mu.Unlock()
	f.reply(w, http.StatusCreated, sess)
}

func (f *fakeAPI) listSessions(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	presenter := r.URL.Query().Get("presenter")
	out := []*model.Session{}
	for i := len(f.order) - 1; i >= 0; i-- {
		s := f.sessions[f.order[i]]
		if presenter == "" || s.PresenterUID == presenter {
			out = append(out, s)
		}
	}
	f.reply(w, http.StatusOK, map[string]any{"sessions": out})
}

func (f *fakeAPI) getSession(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[r.PathValue("id")]
	if !ok {
		f.reply(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	f.reply(w, http.StatusOK, s)
}

func (f *fakeAPI) sendCommand(w http.ResponseWriter, r *http.Request, _ string) {
	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		f.reply(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[r.PathValue("id")]
	if !ok {
		f.reply(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	f.nextID++
	s.Command = model.Command(req.Command)
	s.CommandID = f.nextID
	f.reply(w, http.StatusOK, s)
}

func (f *fakeAPI) setActive(w http.ResponseWriter, r *http.Request, uid string) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		f.reply(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[req.SessionID]; !ok {
		f.reply(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	f.active = &model.ActivePointer{SessionID: req.SessionID, PresenterUID: uid, UpdatedAt: time.Now()}
	f.reply(w, http.StatusOK, f.active)
}

func (f *fakeAPI) getActive(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == nil {
		f.reply(w, http.StatusNotFound, map[string]string{"error": "no active session"})
		return
	}
	f.reply(w, http.StatusOK, f.active)
}

func (f *fakeAPI) signInCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signIns
}

func (f *fakeAPI) activeID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == nil {
		return ""
	}
	return f.active.SessionID
}

func (f *fakeAPI) lastCommand(id string) (model.Command, int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[id]
	if s == nil {
		return "", 0
	}
	return s.Command, s.CommandID
}

// useStateFile points the CLI at a fresh state file, seeded with s if non-nil.
func useStateFile(t *testing.T, s *State) {
	t.Helper()
	t.Setenv("KLICKER_STATE_FILE", t.TempDir()+"/state.toml")
	if s != nil {
		if err := saveState(s); err != nil {
			t.Fatalf("seeding state: %v", err)
		}
	}
}

// runCLI executes the root command with args and returns what it printed.
func runCLI(t *testing.T, serverURL string, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	stdout = &buf
	t.Cleanup(func() {
		stdout = os.Stdout
		jsonOutput = false
		_ = nextCmd.Flags().Set("session", "")
		_ = prevCmd.Flags().Set("session", "")
		_ = sessionCreateCmd.Flags().Set("no-activate", "false")
		_ = sessionListCmd.Flags().Set("mine", "false")
		_ = bridgesCmd.Flags().Set("live", "false")
	})
	rootCmd.SetArgs(append([]string{"--url", serverURL, "--log-level", "error"}, args...))
	err := rootCmd.Execute()
	return buf.String(), err
}
