package submission

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// APISession is the part of the API session the submission package uses.
// *salt.Session implements it.
type APISession interface {
	// Get makes a GET request to the given endpoint, returning an error for
	// network failures and HTTP error statuses alike.
	Get(ctx context.Context, endpoint string, query url.Values) (*http.Response, error)
	// Post makes a POST request with the given body.
	Post(ctx context.Context, endpoint, contentType string, body io.Reader) (*http.Response, error)
	// BaseURL is the base URL relative to which endpoints are resolved.
	BaseURL() string
	// AccessToken is the bearer token of the logged-in user, or empty.
	AccessToken() string
}

// apiSession is the internal alias used by collaborators in this package.
type apiSession = APISession

// Submission tracks the server-side processing of one submitted proposal or
// block archive.
//
// The accessors (Status, Log, ErrorMessage, ProposalCode) serve a cached
// view of the progress. The cache is refreshed from the server at most once
// per poll interval, and never again once the status is terminal. Concurrent
// accessors serialize on one in-flight refresh; a caller arriving during a
// refresh waits for it and reuses its result.
type Submission struct {
	identifier string
	session    apiSession

	pollInterval time.Duration
	now          func() time.Time

	mu            sync.Mutex
	reconnect     *reconnector
	status        Status
	log           []LogEntry
	nextEntry     int
	lastRefreshed time.Time
	proposalCode  string

	// streaming knobs, shared with Stream
	maxRetries        int
	reconnectInterval time.Duration
	dial              wsDialFunc
}

// Option configures a Submission.
type Option func(*Submission)

// WithPollInterval sets the minimum time between server queries in polling
// mode.
func WithPollInterval(d time.Duration) Option {
	return func(s *Submission) {
		s.pollInterval = d
	}
}

// WithReconnectInterval sets the wait between attempts after a transient
// failure.
func WithReconnectInterval(d time.Duration) Option {
	return func(s *Submission) {
		s.reconnectInterval = d
	}
}

// WithMaxRetries sets the number of consecutive transient failures tolerated
// beyond the initial attempt before tracking gives up.
func WithMaxRetries(n int) Option {
	return func(s *Submission) {
		s.maxRetries = n
	}
}

// WithClock sets the time source used for cache-freshness decisions.
// Intended for testing.
func WithClock(now func() time.Time) Option {
	return func(s *Submission) {
		s.now = now
	}
}

// NewSubmission returns a Submission tracking the submission with the given
// identifier. The submission starts out in progress with an empty log; the
// first accessor call fetches the actual state from the server.
func NewSubmission(session APISession, identifier string, opts ...Option) *Submission {
	s := &Submission{
		identifier:        identifier,
		session:           session,
		pollInterval:      DefaultPollInterval,
		reconnectInterval: DefaultReconnectInterval,
		maxRetries:        DefaultMaxRetries,
		now:               time.Now,
		status:            StatusInProgress,
		nextEntry:         1,
		dial:              dialProgressSocket,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reconnect = newReconnector(&poller{session: session}, s.maxRetries, s.reconnectInterval)
	return s
}

// Identifier returns the unique identifier of the submission.
func (s *Submission) Identifier() string {
	return s.identifier
}

// Status returns the submission status, refreshing the cached view first if
// it is stale.
func (s *Submission) Status(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.status, nil
}

// Log returns all progress log entries received so far, in entry order,
// refreshing the cached view first if it is stale. The returned slice is a
// copy.
func (s *Submission) Log(ctx context.Context) ([]LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(ctx); err != nil {
		return nil, err
	}
	log := make([]LogEntry, len(s.log))
	copy(log, s.log)
	return log, nil
}

// ErrorMessage returns the message of the last Error-typed log entry if the
// submission has failed, and an empty string otherwise. A failed submission
// without any Error-typed entries also yields an empty string.
func (s *Submission) ErrorMessage(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	if s.status != StatusFailed {
		return "", nil
	}
	for i := len(s.log) - 1; i >= 0; i-- {
		if s.log[i].MessageType == MessageTypeError {
			return s.log[i].Message, nil
		}
	}
	return "", nil
}

// ProposalCode returns the proposal code assigned by the server, or an empty
// string unless the submission has been successful.
func (s *Submission) ProposalCode(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.proposalCode, nil
}

// refreshLocked brings the cached view up to date if it is stale. The caller
// must hold s.mu.
func (s *Submission) refreshLocked(ctx context.Context) error {
	if !s.lastRefreshed.IsZero() && s.now().Sub(s.lastRefreshed) < s.pollInterval {
		return nil
	}
	if s.status.Terminal() {
		return nil
	}

	batch, err := s.reconnect.fetch(ctx, s.identifier, s.nextEntry)
	if err != nil {
		return err
	}

	s.mergeLocked(batch)
	s.lastRefreshed = s.now()
	return nil
}

// mergeLocked folds a batch into the cached state. The batch entries have
// already been validated to continue at s.nextEntry. The caller must hold
// s.mu.
func (s *Submission) mergeLocked(batch *Batch) {
	statusChanged := batch.Status != s.status

	s.log = append(s.log, batch.Entries...)
	s.nextEntry += len(batch.Entries)
	s.status = batch.Status
	if batch.Status == StatusSuccessful {
		s.proposalCode = batch.ProposalCode
	}

	if len(batch.Entries) > 0 || statusChanged {
		s.reconnect.reset()
	}
}
