// Package idgen generates the opaque, URL-safe ids handed out by the session
// service: session document ids, anonymous presenter uids and bridge ids.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// SessionPrefix marks session document ids.
	SessionPrefix = "ses-"
	// AnonymousPrefix marks anonymous presenter uids.
	AnonymousPrefix = "anon-"
	// BridgePrefix marks bridge process ids in the presence roster.
	BridgePrefix = "br-"
)

// alphabet excludes look-alike characters so ids survive being read aloud
// or typed from a tablet screen.
const alphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Length is the number of random characters generated (excluding the prefix).
const Length = 12

// SessionID returns a new session document id.
func SessionID() (string, error) {
	return withPrefix(SessionPrefix)
}

// AnonymousUID returns a new anonymous presenter uid.
func AnonymousUID() (string, error) {
	return withPrefix(AnonymousPrefix)
}

// BridgeID returns a new id for a bridge process.
func BridgeID() (string, error) {
	return withPrefix(BridgePrefix)
}

func withPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
