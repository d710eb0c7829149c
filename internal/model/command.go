package model

import (
	"errors"
	"fmt"
)

// ErrUnrecognizedCommand is returned when a command is neither next nor prev.
var ErrUnrecognizedCommand = errors.New("unrecognized command")

// Command is a slide navigation direction.
type Command string

const (
	CommandNext Command = "next"
	CommandPrev Command = "prev"
)

// String returns the string representation of the command.
func (c Command) String() string {
	return string(c)
}

// IsValid reports whether the command is next or prev.
func (c Command) IsValid() bool {
	switch c {
	case CommandNext, CommandPrev:
		return true
	}
	return false
}

// ParseCommand converts s into a Command, rejecting anything else.
func ParseCommand(s string) (Command, error) {
	c := Command(s)
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnrecognizedCommand, s)
	}
	return c, nil
}
