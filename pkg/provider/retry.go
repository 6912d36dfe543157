package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v5"

	"github.com/driftbyte/autosnap/pkg/logging"
)

// RetryConfig bounds the retry loop shared by every provider call.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	return c
}

// Throttling and transient server-side failures are worth another attempt.
// Everything else is permanent for the scope of one call.
var retryableCodes = map[string]struct{}{
	"Throttling":           {},
	"ThrottlingException":  {},
	"RequestThrottled":     {},
	"RequestLimitExceeded": {},
	"ServiceUnavailable":   {},
	"InternalError":        {},
	"InternalFailure":      {},
}

func isRetryable(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if _, found := retryableCodes[apiErr.ErrorCode()]; found {
		return true
	}
	return apiErr.ErrorFault() == smithy.FaultServer
}

// Retry runs one provider operation with bounded exponential backoff. A
// failure after the final attempt is surfaced as a *Error; context
// cancellation passes through untouched.
func Retry[T any](ctx context.Context, log *logging.Logger, cfg RetryConfig, op string, fn func(context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BaseDelay

	res, err := backoff.Retry(
		ctx,
		func() (T, error) {
			v, err := fn(ctx)
			if err != nil && !isRetryable(err) {
				return v, backoff.Permanent(err)
			}
			return v, err
		},
		backoff.WithMaxTries(uint(cfg.MaxAttempts)),
		backoff.WithBackOff(bo),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Warnf("%s failed, retrying in %s: %v", op, wait, err)
		}),
	)
	if err != nil {
		return res, wrapError(op, err)
	}
	return res, nil
}

func wrapError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &Error{Code: apiErr.ErrorCode(), Message: fmt.Sprintf("%s: %s", op, apiErr.ErrorMessage())}
	}
	return &Error{Code: "Unknown", Message: fmt.Sprintf("%s: %v", op, err)}
}
