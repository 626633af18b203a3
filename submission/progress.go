package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"
)

// Batch is one server-delivered chunk of submission progress: the current
// status plus the log entries from a requested position onwards.
type Batch struct {
	// Status is the submission status at the time of the batch.
	Status Status
	// Entries are the new log entries, in entry-number order.
	Entries []LogEntry
	// ProposalCode is set only when Status is StatusSuccessful.
	ProposalCode string
}

// progressPayload is the wire format of a progress batch, shared by the
// polling endpoint and the websocket variant.
type progressPayload struct {
	Status       string            `json:"status"`
	LogEntries   []logEntryPayload `json:"log_entries"`
	ProposalCode *string           `json:"proposal_code"`
}

type logEntryPayload struct {
	EntryNumber int    `json:"entry_number"`
	LoggedAt    string `json:"logged_at"`
	MessageType string `json:"message_type"`
	Message     string `json:"message"`
}

// decodeBatch parses a progress payload and validates that its entry numbers
// start at fromEntry and are consecutive.
func decodeBatch(data []byte, fromEntry int) (*Batch, error) {
	var payload progressPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &ParseError{Err: err}
	}

	status, err := ParseStatus(payload.Status)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	batch := &Batch{Status: status}
	expected := fromEntry
	for _, e := range payload.LogEntries {
		if e.EntryNumber != expected {
			return nil, &SequenceError{Expected: expected, Got: e.EntryNumber}
		}
		expected++

		loggedAt, err := time.Parse(time.RFC3339, e.LoggedAt)
		if err != nil {
			return nil, &ParseError{Err: fmt.Errorf("entry %d: %w", e.EntryNumber, err)}
		}
		messageType, err := ParseMessageType(e.MessageType)
		if err != nil {
			return nil, &ParseError{Err: fmt.Errorf("entry %d: %w", e.EntryNumber, err)}
		}
		batch.Entries = append(batch.Entries, LogEntry{
			LoggedAt:    loggedAt,
			MessageType: messageType,
			Message:     e.Message,
		})
	}

	if payload.ProposalCode != nil && status == StatusSuccessful {
		batch.ProposalCode = *payload.ProposalCode
	}
	return batch, nil
}

// poller fetches progress batches from the server. Each fetch is exactly one
// HTTP request; retries are the reconnector's concern.
type poller struct {
	session apiSession
}

// fetch requests all progress entries for the submission from fromEntry
// onwards. Transport failures are returned as *TransportError, undecodable
// responses as *ParseError and non-contiguous entry numbers as
// *SequenceError.
func (p *poller) fetch(ctx context.Context, identifier string, fromEntry int) (*Batch, error) {
	endpoint := "/submissions/" + url.PathEscape(identifier) + "/progress"
	query := url.Values{"from_entry_number": []string{strconv.Itoa(fromEntry)}}

	resp, err := p.session.Get(ctx, endpoint, query)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return decodeBatch(body, fromEntry)
}
