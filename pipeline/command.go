package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCommandQueueFull is returned by Send when commands are arriving
	// faster than frames are processed
	ErrCommandQueueFull = errors.New("command queue full")
)

// Command is an external request handled between frames
type Command int

const (
	// Quit ends the run cleanly, exports are written as at end of stream
	Quit Command = iota + 1
	// ResetCounts clears the counts, tracks and trails and starts a fresh
	// session
	ResetCounts
	// SaveSnapshot writes the current annotated frame and an export of
	// the current counts
	SaveSnapshot
)

// String returns the command name
func (c Command) String() string {
	switch c {
	case Quit:
		return "quit"
	case ResetCounts:
		return "reset"
	case SaveSnapshot:
		return "snapshot"
	}

	return fmt.Sprintf("command(%d)", int(c))
}

// ParseCommand converts a command name into a Command
func ParseCommand(s string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quit", "q":
		return Quit, nil
	case "reset", "r":
		return ResetCounts, nil
	case "snapshot", "save", "s":
		return SaveSnapshot, nil
	}

	return 0, fmt.Errorf("unknown command %q", s)
}

// KeyCommand maps a key code returned by the display window to a command.
// q and Esc quit, r resets and s saves a snapshot.
func KeyCommand(key int) (Command, bool) {

	// WaitKey can return modifier bits above the key code
	switch key & 0xFF {
	case 'q', 'Q', 27:
		return Quit, true
	case 'r', 'R':
		return ResetCounts, true
	case 's', 'S':
		return SaveSnapshot, true
	}

	return 0, false
}
