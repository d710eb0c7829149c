package model

import "time"

// Document collections. The bridge and the session service agree on these
// names; they also form the event topics.
const (
	CollectionSessions = "sessions"
	CollectionActive   = "active"

	// ActiveDocID is the id of the singleton active session pointer.
	ActiveDocID = "current"
)

// Session is a single presentation run. It carries the latest command sent by
// its presenter.
type Session struct {
	ID           string    `json:"id"`
	PresenterUID string    `json:"presenterUid"`
	Command      Command   `json:"command,omitempty"`
	CommandID    int64     `json:"commandId,omitempty"` // 0 means no command sent yet
	SlideIndex   int       `json:"slideIndex"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasCommand reports whether both the command and its id are present.
func (s *Session) HasCommand() bool {
	return s.Command != "" && s.CommandID != 0
}

// ActivePointer names the session the bridge should follow.
type ActivePointer struct {
	SessionID    string    `json:"sessionId"`
	PresenterUID string    `json:"presenterUid"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SessionFilter holds criteria for listing sessions.
type SessionFilter struct {
	PresenterUID string `json:"presenterUid,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}
