// Package domain holds the identifiers and error taxonomy shared by every bot component.
package domain

import (
	"errors"
	"strings"
)

// ConversationID identifies a chat. It is the Telegram chat id.
type ConversationID int64

var (
	// ErrNotFound: referenced title, episode or variant does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransientIO: a messaging or persistence call failed and may succeed later.
	ErrTransientIO = errors.New("transient io failure")
	// ErrCorruptState: a persisted document could not be parsed.
	ErrCorruptState = errors.New("corrupt persisted state")
	// ErrPermissionDenied: a non-admin conversation invoked an admin operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNoPresentation: nothing could be shown to the conversation at all.
	ErrNoPresentation = errors.New("no presentation available")
)

type Status string

const (
	StatusOngoing  Status = "ongoing"
	StatusFinished Status = "finished"
)

// ParseStatus normalizes the spellings found in older catalog documents.
// Anything that is not recognisably finished is ongoing.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "finish", "finished", "completed", "complete", "done":
		return StatusFinished
	default:
		return StatusOngoing
	}
}
