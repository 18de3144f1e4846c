package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"predictflow/logger"
)

// APIError describes a non-2xx response from the quote service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Body)
}

// ExhaustedError is raised once the final retry has failed. Attempts counts
// every call made, including the initial one.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

type failureClass int

const (
	classFatal failureClass = iota
	classRateLimited
	classRetryable
)

// classify maps a request failure onto the venue's retry conventions:
// authentication failures and client errors are fatal, rate-limit responses
// pause a flat interval, server-side and transport failures back off
// exponentially.
func classify(err error) failureClass {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return classFatal
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return classRateLimited
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return classFatal
		case apiErr.StatusCode >= 500:
			return classRetryable
		case apiErr.StatusCode >= 400:
			return classFatal
		default:
			return classRetryable
		}
	}

	// Transport-level failure (timeout, connection reset, DNS).
	return classRetryable
}

// Policy drives the retry engine. MaxAttempts is the number of additional
// attempts after the first call.
type Policy struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	RateLimitPause time.Duration
}

// DefaultPolicy matches the venue rate-limit conventions.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialDelay:   time.Second,
		RateLimitPause: time.Minute,
	}
}

// Do executes op up to 1+MaxAttempts times. Rate-limit responses pause the
// flat RateLimitPause without advancing the exponential delay; retryable
// failures double the delay on every use. Fatal failures return immediately.
func (p Policy) Do(ctx context.Context, log *logger.Entry, op func(context.Context) error) error {
	delay := p.InitialDelay
	if delay <= 0 {
		delay = time.Second
	}
	pause := p.RateLimitPause
	if pause <= 0 {
		pause = time.Minute
	}

	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		class := classify(err)
		if class == classFatal {
			return err
		}

		if attempt >= p.MaxAttempts {
			return &ExhaustedError{Attempts: attempt + 1, Last: err}
		}

		var wait time.Duration
		switch class {
		case classRateLimited:
			wait = pause
		default:
			wait = delay
			delay *= 2
		}

		log.WithError(err).WithFields(logger.Fields{
			"attempt":  attempt + 1,
			"delay_ms": wait.Milliseconds(),
		}).Warn("request failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
