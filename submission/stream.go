package submission

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/saltastro/goastrosalt/internal/logging"
)

// Update is one progress message received while streaming.
type Update struct {
	// Status is the submission status carried by the message.
	Status Status
	// Entries are the new log entries carried by the message, possibly none.
	Entries []LogEntry
	// ProposalCode is set only when Status is StatusSuccessful.
	ProposalCode string
}

// progressSocket is the websocket surface the stream loop uses. It is
// satisfied by *websocket.Conn.
type progressSocket interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type wsDialFunc func(ctx context.Context, wsURL string) (progressSocket, error)

func dialProgressSocket(ctx context.Context, wsURL string) (progressSocket, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Stream follows the submission progress over the websocket variant of the
// progress endpoint and returns a channel of updates, one per received
// message, plus an error channel.
//
// The stream reconnects after transient failures, asking the server to omit
// entries received already, with the same retry budget and reconnect
// interval as polling mode. Both channels are closed when the server closes
// the connection, the status becomes terminal, the context is cancelled, or
// the retry budget is exhausted; in the last case the final failure is sent
// on the error channel first.
//
// Updates are merged into the same cached state served by the accessors, so
// mixing streaming and polling never duplicates log entries.
func (s *Submission) Stream(ctx context.Context) (<-chan Update, <-chan error) {
	updates := make(chan Update, 16)
	errc := make(chan error, 1)
	go s.streamLoop(ctx, updates, errc)
	return updates, errc
}

func (s *Submission) streamLoop(ctx context.Context, updates chan<- Update, errc chan<- error) {
	defer close(updates)
	defer close(errc)

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := s.streamOnce(ctx, updates, &failures)
		if done {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if failures > s.maxRetries {
			logging.Error("progress stream retry budget exhausted",
				"submission", s.identifier, "failures", failures, "error", err)
			errc <- err
			return
		}
		failures++
		logging.Warn("progress stream interrupted, reconnecting",
			"submission", s.identifier, "failures", failures, "error", err)
		if sleepContext(ctx, s.reconnectInterval) != nil {
			return
		}
	}
}

// streamOnce holds one websocket connection, merging and emitting every
// message until the connection ends. It returns done for the cases that
// finish the stream; otherwise the returned error is the transient failure
// to retry after.
func (s *Submission) streamOnce(ctx context.Context, updates chan<- Update, failures *int) (done bool, err error) {
	s.mu.Lock()
	fromEntry := s.nextEntry
	s.mu.Unlock()

	logging.Debug("connecting to progress stream",
		"submission", s.identifier, "from_entry", fromEntry)
	conn, err := s.dial(ctx, s.progressSocketURL(fromEntry))
	if err != nil {
		return false, &TransportError{Err: err}
	}
	defer conn.Close()

	// ReadMessage has no context support, so unblock it on cancellation by
	// closing the connection.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	// The server expects the access token as the first message.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(s.session.AccessToken())); err != nil {
		return false, &TransportError{Err: err}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return true, nil
			}
			if ctx.Err() != nil {
				return true, nil
			}
			return false, &TransportError{Err: err}
		}

		s.mu.Lock()
		batch, err := decodeBatch(data, s.nextEntry)
		if err != nil {
			s.mu.Unlock()
			return false, err
		}
		progressed := len(batch.Entries) > 0 || batch.Status != s.status
		s.mergeLocked(batch)
		s.lastRefreshed = s.now()
		s.mu.Unlock()

		if progressed {
			*failures = 0
		}

		select {
		case <-ctx.Done():
			return true, nil
		case updates <- Update{Status: batch.Status, Entries: batch.Entries, ProposalCode: batch.ProposalCode}:
		}

		if batch.Status.Terminal() {
			return true, nil
		}
	}
}

// progressSocketURL derives the websocket progress URL from the session base
// URL, preserving transport security.
func (s *Submission) progressSocketURL(fromEntry int) string {
	base := s.session.BaseURL()
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return fmt.Sprintf("%s/submissions/%s/progress/ws?from_entry_number=%s",
		base, url.PathEscape(s.identifier), strconv.Itoa(fromEntry))
}
