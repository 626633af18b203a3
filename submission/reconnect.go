package submission

import (
	"context"
	"time"

	"github.com/saltastro/goastrosalt/internal/logging"
)

// Defaults for progress tracking.
const (
	// DefaultPollInterval is the minimum time between server queries in
	// polling mode.
	DefaultPollInterval = 10 * time.Second
	// DefaultReconnectInterval is the wait between attempts after a
	// transient failure.
	DefaultReconnectInterval = 10 * time.Second
	// DefaultMaxRetries is the number of retries granted after the failure
	// budget has been consumed by an initial attempt.
	DefaultMaxRetries = 5
)

// reconnector retries progress fetches across transient failures. The
// failure counter spans calls: it keeps counting across polls until the
// owning Submission observes merge progress and calls reset. The interval
// between attempts is fixed, not exponential.
type reconnector struct {
	poller     *poller
	maxRetries int
	interval   time.Duration
	sleep      func(ctx context.Context, d time.Duration) error

	failures int
}

func newReconnector(p *poller, maxRetries int, interval time.Duration) *reconnector {
	return &reconnector{
		poller:     p,
		maxRetries: maxRetries,
		interval:   interval,
		sleep:      sleepContext,
	}
}

// fetch polls for progress from the given entry number, retrying transient
// failures. Once the consecutive-failure count exceeds the retry budget the
// last failure is returned. The same fromEntry is used for every attempt,
// since nothing has been merged in between.
func (r *reconnector) fetch(ctx context.Context, identifier string, fromEntry int) (*Batch, error) {
	for {
		logging.Debug("requesting submission progress",
			"submission", identifier, "from_entry", fromEntry)
		batch, err := r.poller.fetch(ctx, identifier, fromEntry)
		if err == nil {
			return batch, nil
		}
		if !retryable(err) {
			return nil, err
		}
		if r.failures > r.maxRetries {
			logging.Error("progress retry budget exhausted",
				"submission", identifier, "failures", r.failures, "error", err)
			return nil, err
		}
		r.failures++
		logging.Warn("progress request failed, retrying",
			"submission", identifier, "failures", r.failures, "error", err)
		if serr := r.sleep(ctx, r.interval); serr != nil {
			return nil, serr
		}
	}
}

// reset clears the consecutive-failure counter. Called by the owner when a
// fetch has led to actual progress, which is a merge outcome the
// reconnector cannot see on its own.
func (r *reconnector) reset() {
	r.failures = 0
}

// sleepContext waits for the duration or until the context is done,
// whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
