package submission

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	salt "github.com/saltastro/goastrosalt"
	"github.com/saltastro/goastrosalt/internal/testutil"
)

// streamServer serves the websocket progress endpoint, running one handler
// per connection in order and recording the requested cursors and handshake
// tokens.
type streamServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers []func(conn *websocket.Conn)
	cursors  []string
	tokens   []string
}

func newStreamServer(t *testing.T, handlers ...func(conn *websocket.Conn)) *streamServer {
	t.Helper()

	s := &streamServer{handlers: handlers}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/submissions/abcd/progress/ws", r.URL.Path)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("websocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		_, token, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("failed to read handshake token: %v", err)
			return
		}

		s.mu.Lock()
		s.cursors = append(s.cursors, r.URL.Query().Get("from_entry_number"))
		s.tokens = append(s.tokens, string(token))
		connection := len(s.cursors)
		s.mu.Unlock()

		if connection > len(s.handlers) {
			t.Errorf("unexpected connection %d", connection)
			return
		}
		s.handlers[connection-1](conn)
	}))
	t.Cleanup(s.Server.Close)
	return s
}

func (s *streamServer) requestedCursors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cursors...)
}

func (s *streamServer) handshakeTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

func sendProgress(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Errorf("failed to send progress message: %v", err)
	}
}

func closeNormally(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		t.Errorf("failed to send close message: %v", err)
	}
}

func newStreamSubmission(t *testing.T, server *streamServer, opts ...Option) *Submission {
	t.Helper()

	session, err := salt.NewSession(server.URL, salt.WithAccessToken("secret-token"))
	require.NoError(t, err)

	opts = append([]Option{WithReconnectInterval(time.Millisecond)}, opts...)
	return NewSubmission(session, "abcd", opts...)
}

// collectStream drains both stream channels until they are closed.
func collectStream(t *testing.T, updates <-chan Update, errc <-chan error) ([]Update, error) {
	t.Helper()

	var got []Update
	var streamErr error
	timeout := time.After(5 * time.Second)
	for updates != nil || errc != nil {
		select {
		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			got = append(got, u)
		case err, ok := <-errc:
			if !ok {
				errc = nil
				continue
			}
			streamErr = err
		case <-timeout:
			t.Fatal("timed out waiting for the stream to finish")
		}
	}
	return got, streamErr
}

func TestStreamEmitsUpdates(t *testing.T) {
	t.Parallel()

	server := newStreamServer(t, func(conn *websocket.Conn) {
		sendProgress(t, conn, testutil.ProgressJSON("In progress", 1, []string{"Info", "Warning"}, ""))
		sendProgress(t, conn, testutil.ProgressJSON("Successful", 3, []string{"Info"}, "2024-2-SCI-055"))
	})

	sub := newStreamSubmission(t, server)
	updates, errc := sub.Stream(context.Background())

	got, err := collectStream(t, updates, errc)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, StatusInProgress, got[0].Status)
	assert.Len(t, got[0].Entries, 2)
	assert.Equal(t, StatusSuccessful, got[1].Status)
	assert.Equal(t, "2024-2-SCI-055", got[1].ProposalCode)

	// The stream feeds the same state served by the accessors.
	ctx := context.Background()
	status, err := sub.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccessful, status)
	log, err := sub.Log(ctx)
	require.NoError(t, err)
	assert.Len(t, log, 3)
	code, err := sub.ProposalCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-2-SCI-055", code)

	assert.Equal(t, []string{"secret-token"}, server.handshakeTokens())
	assert.Equal(t, []string{"1"}, server.requestedCursors())
}

func TestStreamStopsOnServerClose(t *testing.T) {
	t.Parallel()

	server := newStreamServer(t, func(conn *websocket.Conn) {
		sendProgress(t, conn, testutil.ProgressJSON("In progress", 1, []string{"Info"}, ""))
		closeNormally(t, conn)
	})

	sub := newStreamSubmission(t, server)
	updates, errc := sub.Stream(context.Background())

	got, err := collectStream(t, updates, errc)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, StatusInProgress, got[0].Status)
}

func TestStreamReconnectsFromCursor(t *testing.T) {
	t.Parallel()

	server := newStreamServer(t,
		func(conn *websocket.Conn) {
			sendProgress(t, conn, testutil.ProgressJSON("In progress", 1, []string{"Info", "Warning"}, ""))
			// Drop the connection without a close handshake.
		},
		func(conn *websocket.Conn) {
			sendProgress(t, conn, testutil.ProgressJSON("Successful", 3, []string{"Info"}, "2024-2-SCI-055"))
		},
	)

	sub := newStreamSubmission(t, server)
	updates, errc := sub.Stream(context.Background())

	got, err := collectStream(t, updates, errc)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, StatusSuccessful, got[1].Status)

	// The second connection resumed after the entries received already.
	assert.Equal(t, []string{"1", "3"}, server.requestedCursors())
}

func TestStreamEmitsHeartbeats(t *testing.T) {
	t.Parallel()

	// A heartbeat is an empty batch with an unchanged status. It is emitted
	// but does not reset the failure counter: one dropped connection, a
	// heartbeat, and two more drops exhaust a budget of one retry. A reset
	// on the heartbeat would grant a fourth connection.
	dropConnection := func(conn *websocket.Conn) {}
	server := newStreamServer(t,
		dropConnection,
		func(conn *websocket.Conn) {
			sendProgress(t, conn, testutil.ProgressJSON("In progress", 1, nil, ""))
		},
		dropConnection,
	)

	sub := newStreamSubmission(t, server, WithMaxRetries(1))
	updates, errc := sub.Stream(context.Background())

	got, err := collectStream(t, updates, errc)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)

	require.Len(t, got, 1)
	assert.Equal(t, StatusInProgress, got[0].Status)
	assert.Empty(t, got[0].Entries)

	assert.Equal(t, []string{"1", "1", "1"}, server.requestedCursors())
}

func TestStreamLogsReconnects(t *testing.T) {
	buf := captureLogs(t)

	server := newStreamServer(t,
		func(conn *websocket.Conn) {},
		func(conn *websocket.Conn) {
			sendProgress(t, conn, testutil.ProgressJSON("Successful", 1, []string{"Info"}, "2024-2-SCI-055"))
		},
	)

	sub := newStreamSubmission(t, server)
	updates, errc := sub.Stream(context.Background())
	_, err := collectStream(t, updates, errc)
	require.NoError(t, err)

	logs := buf.String()
	assert.Contains(t, logs, "DEBUG: connecting to progress stream submission=abcd from_entry=1")
	assert.Contains(t, logs, "WARN: progress stream interrupted, reconnecting submission=abcd failures=1")
}

func TestStreamRetryBudgetExhausted(t *testing.T) {
	t.Parallel()

	server := newStreamServer(t)
	sub := newStreamSubmission(t, server, WithMaxRetries(1))

	dialErr := errors.New("connection refused")
	var dials int
	sub.dial = func(ctx context.Context, wsURL string) (progressSocket, error) {
		dials++
		return nil, dialErr
	}

	updates, errc := sub.Stream(context.Background())
	got, err := collectStream(t, updates, errc)

	assert.Empty(t, got)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.ErrorIs(t, err, dialErr)

	// max_retries 1 tolerates two consecutive failures; the third propagates.
	assert.Equal(t, 3, dials)
}

func TestStreamStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := newStreamServer(t, func(conn *websocket.Conn) {
		sendProgress(t, conn, testutil.ProgressJSON("In progress", 1, []string{"Info"}, ""))
		<-release
	})
	defer close(release)

	sub := newStreamSubmission(t, server)
	ctx, cancel := context.WithCancel(context.Background())
	updates, errc := sub.Stream(ctx)

	select {
	case u := <-updates:
		assert.Equal(t, StatusInProgress, u.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the first update")
	}

	cancel()
	got, err := collectStream(t, updates, errc)
	require.NoError(t, err)
	assert.Empty(t, got)
}
