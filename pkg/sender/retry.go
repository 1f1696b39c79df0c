package sender

import (
	"context"
	"math/rand"
	"time"

	"github.com/ajitpratap0/linewire/pkg/errors"
	"github.com/ajitpratap0/linewire/pkg/logger"
	"github.com/ajitpratap0/linewire/pkg/metrics"
	"go.uber.org/zap"
)

// retryJitter is the maximum random delay added to each backoff step so
// that fleets of senders recovering from the same outage do not stampede.
const retryJitter = 10 * time.Millisecond

// sendWithRetry delivers one payload over the request transport, retrying
// retryable failures (connection, timeout, server busy) with exponential
// backoff until the configured budget is exhausted. Non-retryable failures
// such as a 4xx rejection return immediately.
//
// The budget is a wall-clock deadline measured from the first attempt, and
// it is checked both before and after each backoff sleep: an attempt only
// starts while the deadline has not passed, so the loop overruns the
// budget by at most one request timeout plus one backoff step.
func (s *Sender) sendWithRetry(ctx context.Context, payload []byte) error {
	budget := s.cfg.Retry.Budget
	deadline := time.Now().Add(budget)
	delay := s.cfg.Retry.InitialDelay

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = s.tr.Send(ctx, payload)
		if lastErr == nil {
			return nil
		}
		if budget <= 0 || !errors.IsRetryable(lastErr) {
			return lastErr
		}
		if time.Now().After(deadline) {
			break
		}

		sleep := delay + time.Duration(rand.Int63n(int64(retryJitter)))
		logger.Get().Debug("flush attempt failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", sleep),
			zap.Error(lastErr))

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			if ctx.Err() == context.DeadlineExceeded {
				return errors.Wrap(lastErr, errors.ErrorTypeTimeout,
					"flush deadline exceeded during retry backoff")
			}
			return errors.Wrap(lastErr, errors.ErrorTypeFlushFailed,
				"flush canceled during retry backoff")
		case <-timer.C:
		}
		metrics.FlushRetries.Inc()

		if time.Now().After(deadline) {
			break
		}
		delay *= 2
		if delay > s.cfg.Retry.MaxDelay {
			delay = s.cfg.Retry.MaxDelay
		}
	}

	return errors.Wrap(lastErr, errors.ErrorTypeFlushFailed,
		"retry budget exhausted")
}
