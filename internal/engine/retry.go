package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

var errStreamCancelled = errors.New("stream cancelled")

// RetryPolicy defines retry behavior for opening a provider stream.
type RetryPolicy struct {
	MaxRetries   int // 0 disables retries
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryPolicy returns the policy used when Options leaves it unset.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// RetryableFunc is a function that can be retried.
type RetryableFunc[T any] func(ctx context.Context) (T, error)

// RetryWithPolicy executes fn until it succeeds, fails with a non-retryable
// error, or the policy is exhausted.
func RetryWithPolicy[T any](
	ctx context.Context,
	policy RetryPolicy,
	fn RetryableFunc[T],
	classify func(error) RetryClass,
	onRetry func(attempt int, delay time.Duration, err error),
) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		class := classify(err)
		switch {
		case class == RetryClassNonRetryable:
			return zero, err
		case attempt >= policy.MaxRetries:
			return zero, &RetryExhaustedError{Err: err, Attempts: attempt}
		case class == RetryClassMaybe && attempt >= 2:
			return zero, &RetryExhaustedError{Err: err, Attempts: attempt, IsGuarded: true}
		}

		delay := backoff(policy, attempt, err)
		if onRetry != nil {
			onRetry(attempt+1, delay, err)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func backoff(policy RetryPolicy, attempt int, err error) time.Duration {
	if hint := ExtractRetryAfter(err); hint > 0 {
		return min(hint, policy.MaxDelay)
	}
	delay := float64(policy.InitialDelay) * math.Pow(policy.Multiplier, float64(attempt))
	if delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}
	if policy.Jitter {
		delay += rand.Float64() * 0.2 * delay
	}
	return time.Duration(delay)
}

// StreamOpener starts one provider stream.
type StreamOpener func(ctx context.Context) (<-chan StreamEvent, <-chan error)

// openedStream is a provider stream whose first item has already been read.
type openedStream struct {
	first  *StreamEvent
	events <-chan StreamEvent
	errs   <-chan error
}

// openStream retries only failures that arrive before the first event.
// Once any event was delivered the stream is committed and later errors
// surface to the consumer.
func openStream(
	ctx context.Context,
	policy RetryPolicy,
	open StreamOpener,
	onRetry func(attempt int, delay time.Duration, err error),
) (openedStream, error) {
	return RetryWithPolicy(ctx, policy, func(ctx context.Context) (openedStream, error) {
		events, errs := open(ctx)
		select {
		case <-ctx.Done():
			return openedStream{}, errStreamCancelled
		case ev, ok := <-events:
			if !ok {
				// No events at all: the terminal error (if any) decides.
				if err, ok := <-errs; ok && err != nil {
					return openedStream{}, err
				}
				return openedStream{}, nil
			}
			return openedStream{first: &ev, events: events, errs: errs}, nil
		case err, ok := <-errs:
			if ok && err != nil {
				return openedStream{}, err
			}
			// Completed; buffered events may still be pending.
			return openedStream{events: events}, nil
		}
	}, ClassifyLLMError, onRetry)
}
