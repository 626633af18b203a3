// Package submission submits proposal and block archives to the SALT API and
// tracks their server-side processing.
//
// A Submission exposes a cached view of the submission progress that is
// lazily refreshed from the server (see Submission), as well as a streaming
// view over a websocket (see Submission.Stream). Both views merge progress
// batches into the same state, so log entries are never duplicated or lost
// across reconnects.
package submission

import (
	"fmt"
	"time"
)

// Status is the processing status of a submission.
type Status string

// Submission status values, as reported by the server.
const (
	StatusInProgress Status = "In progress"
	StatusFailed     Status = "Failed"
	StatusSuccessful Status = "Successful"
)

// ParseStatus maps a status string from the server onto a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusInProgress, StatusFailed, StatusSuccessful:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown submission status %q", s)
	}
}

// Terminal reports whether the status is final. Terminal submissions are
// never polled again.
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusSuccessful
}

// MessageType is the severity of a submission log entry.
type MessageType string

// Submission log message types, as reported by the server.
const (
	MessageTypeInfo    MessageType = "Info"
	MessageTypeWarning MessageType = "Warning"
	MessageTypeError   MessageType = "Error"
)

// ParseMessageType maps a message type string from the server onto a
// MessageType.
func ParseMessageType(s string) (MessageType, error) {
	switch MessageType(s) {
	case MessageTypeInfo, MessageTypeWarning, MessageTypeError:
		return MessageType(s), nil
	default:
		return "", fmt.Errorf("unknown message type %q", s)
	}
}

// LogEntry is one line of the submission progress log.
type LogEntry struct {
	// LoggedAt is when the entry was made, with timezone.
	LoggedAt time.Time
	// MessageType is the severity of the entry.
	MessageType MessageType
	// Message is the log text.
	Message string
}
