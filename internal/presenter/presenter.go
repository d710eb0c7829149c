// Package presenter is the view model behind the presenter front ends. It
// signs in on first use, creates and activates sessions, sends navigation
// commands and runs the local speaking timer. It holds no durable state.
package presenter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/klicker/internal/client"
	"github.com/alfredjeanlab/klicker/internal/model"
	"github.com/alfredjeanlab/klicker/internal/timer"
)

// Status strings shown to the presenter.
const (
	StatusCreating      = "Creating session..."
	StatusSessionReady  = "Session ready."
	StatusCreateFailed  = "Failed to create session."
	StatusTimerRunning  = "Timer running"
	StatusTimerPaused   = "Timer paused"
	StatusTimerReset    = "Timer reset"
	statusSentFormat    = "Sent: %s"
	statusFailedFormat  = "%s failed: %s"
	statusLimitFormat   = "Limit: %d min"
	unknownFailedReason = "unknown error"
)

// View is a snapshot of everything a front end renders.
type View struct {
	UID          string
	SessionID    string
	Status       string
	Elapsed      string
	Running      bool
	Over         bool
	LimitMinutes int
}

// Presenter is safe for use from a render loop and an input loop at once.
type Presenter struct {
	client client.Client
	watch  *timer.Stopwatch

	mu        sync.Mutex
	uid       string
	token     string
	sessionID string
	status    string
}

// New returns a presenter talking to c and timing with watch.
func New(c client.Client, watch *timer.Stopwatch) *Presenter {
	return &Presenter{client: c, watch: watch}
}

// Restore resumes a previous identity and session, e.g. from the CLI state
// file. Empty values are ignored.
func (p *Presenter) Restore(uid, token, sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if token != "" {
		p.uid, p.token = uid, token
		p.client.SetToken(token)
	}
	if sessionID != "" {
		p.sessionID = sessionID
	}
}

// Identity returns the current uid and token, empty before sign-in.
func (p *Presenter) Identity() (uid, token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uid, p.token
}

// SessionID returns the session commands are sent to, or "".
func (p *Presenter) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// Timer exposes the stopwatch so front ends can subscribe to its ticks.
func (p *Presenter) Timer() *timer.Stopwatch {
	return p.watch
}

func (p *Presenter) setStatus(s string) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// ensureSignedIn signs in anonymously unless a token is already held.
func (p *Presenter) ensureSignedIn(ctx context.Context) error {
	p.mu.Lock()
	signedIn := p.token != ""
	p.mu.Unlock()
	if signedIn {
		return nil
	}

	id, err := p.client.SignInAnonymously(ctx)
	if err != nil {
		return fmt.Errorf("signing in: %w", err)
	}
	p.mu.Lock()
	p.uid, p.token = id.UID, id.Token
	p.mu.Unlock()
	slog.Debug("signed in anonymously", "uid", id.UID)
	return nil
}

// forgetTokenOn drops the held token when the server rejected it, so the
// next action signs in again.
func (p *Presenter) forgetTokenOn(err error) {
	if !errors.Is(err, client.ErrUnauthorized) {
		return
	}
	p.mu.Lock()
	p.uid, p.token = "", ""
	p.mu.Unlock()
	p.client.SetToken("")
}

// CreateSession signs in if needed, creates a session and marks it active.
// The new session replaces the current one even if activation fails.
func (p *Presenter) CreateSession(ctx context.Context) error {
	p.setStatus(StatusCreating)

	err := p.createSession(ctx)
	if err != nil {
		slog.Warn("create session failed", "error", err)
		p.forgetTokenOn(err)
		p.setStatus(StatusCreateFailed)
		return err
	}
	p.setStatus(StatusSessionReady)
	return nil
}

func (p *Presenter) createSession(ctx context.Context) error {
	if err := p.ensureSignedIn(ctx); err != nil {
		return err
	}
	sess, err := p.client.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	p.mu.Lock()
	p.sessionID = sess.ID
	p.mu.Unlock()

	if _, err := p.client.SetActiveSession(ctx, sess.ID); err != nil {
		return fmt.Errorf("activating session %s: %w", sess.ID, err)
	}
	slog.Info("session ready", "session_id", sess.ID)
	return nil
}

// Next sends a next command. Without a session it does nothing.
func (p *Presenter) Next(ctx context.Context) error {
	return p.send(ctx, model.CommandNext)
}

// Prev sends a prev command. Without a session it does nothing.
func (p *Presenter) Prev(ctx context.Context) error {
	return p.send(ctx, model.CommandPrev)
}

func (p *Presenter) send(ctx context.Context, cmd model.Command) error {
	id := p.SessionID()
	if id == "" {
		return nil
	}

	err := p.ensureSignedIn(ctx)
	if err == nil {
		_, err = p.client.SendCommand(ctx, id, cmd)
	}
	if err != nil {
		p.forgetTokenOn(err)
		p.setStatus(fmt.Sprintf(statusFailedFormat, commandLabel(cmd), failureReason(err)))
		return err
	}
	p.setStatus(fmt.Sprintf(statusSentFormat, cmd))
	return nil
}

// ToggleTimer starts or pauses the timer.
func (p *Presenter) ToggleTimer() {
	if p.watch.Toggle() {
		p.setStatus(StatusTimerRunning)
	} else {
		p.setStatus(StatusTimerPaused)
	}
}

// ResetTimer stops the timer and zeroes it.
func (p *Presenter) ResetTimer() {
	p.watch.Reset()
	p.setStatus(StatusTimerReset)
}

// SetLimit sets the limit in minutes, clamped to at least one.
func (p *Presenter) SetLimit(minutes int) {
	p.watch.SetLimit(minutes)
	p.setStatus(fmt.Sprintf(statusLimitFormat, p.watch.Limit()))
}

// AdjustLimit moves the limit by delta minutes.
func (p *Presenter) AdjustLimit(delta int) {
	p.SetLimit(p.watch.Limit() + delta)
}

// View returns the current state for rendering.
func (p *Presenter) View() View {
	elapsed := p.watch.Elapsed()
	p.mu.Lock()
	defer p.mu.Unlock()
	return View{
		UID:          p.uid,
		SessionID:    p.sessionID,
		Status:       p.status,
		Elapsed:      timer.Format(elapsed),
		Running:      p.watch.Running(),
		Over:         elapsed > time.Duration(p.watch.Limit())*time.Minute,
		LimitMinutes: p.watch.Limit(),
	}
}

func commandLabel(cmd model.Command) string {
	switch cmd {
	case model.CommandNext:
		return "Next"
	case model.CommandPrev:
		return "Prev"
	}
	return string(cmd)
}

// failureReason prefers the short error kind over the full chain.
func failureReason(err error) string {
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	case errors.Is(err, client.ErrStoreUnavailable):
		return client.ErrStoreUnavailable.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case err != nil:
		return err.Error()
	}
	return unknownFailedReason
}
