package tiercache

import (
	"context"
	"errors"
	log "log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// Retry executes task with Fibonacci backoff up to 5 retries.
// If task still fails after the last retry, or returns an error not marked
// retryable, gaveUpTask is invoked (when not nil) and the final error is returned.
//
// This is the building block for loaderwriter.RetryingLoaderWriter: a
// LoaderWriter backend's transient I/O error should be retried before it is
// ever classified as a LoadingError/WritingError and handed to the
// ResilienceStrategy.
func Retry(ctx context.Context, task func(ctx context.Context) error, gaveUpTask func(ctx context.Context)) error {
	b := retry.NewFibonacci(1 * time.Second)
	if err := retry.Do(ctx, retry.WithMaxRetries(5, b), task); err != nil {
		log.Warn(err.Error() + ", gave up")
		if gaveUpTask != nil {
			gaveUpTask(ctx)
		}
		return err
	}
	return nil
}

// ShouldRetry reports whether err looks worth retrying, as opposed to a
// permanent failure (context cancellation/deadline) that a retry loop
// would only waste time on.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	// Context cancellations/timeouts are permanent from the caller's POV.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
