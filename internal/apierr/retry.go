package apierr

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
)

// RetryPolicy is the advice attached to a failure classification.
type RetryPolicy struct {
	Recoverable bool
	Delay       time.Duration // suggested wait before re-invoking
}

// PolicyFor returns the retry advice for code. Codes outside the taxonomy are
// not recoverable.
func PolicyFor(code Code) RetryPolicy {
	return codeTable[code].policy
}

// Policy returns the retry advice for err. Unclassified errors are treated as
// CodeUnknown and are not recoverable.
func Policy(err error) RetryPolicy {
	if err == nil {
		return RetryPolicy{}
	}
	return PolicyFor(As(err).Code)
}

// Retry re-invokes fn while it fails with a recoverable classification, up to
// attempts calls in total, waiting the policy's suggested delay between calls.
// maxDelay caps that wait (0 means no cap). This is opt-in: the transport
// client never calls it.
func Retry(ctx context.Context, attempts uint, maxDelay time.Duration, fn func() error) error {
	if attempts == 0 {
		attempts = 1
	}
	err := retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return Policy(err).Recoverable
		}),
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			delay := Policy(err).Delay
			if maxDelay > 0 && delay > maxDelay {
				delay = maxDelay
			}
			return delay
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().
				Uint("attempt", n+1).
				Str("code", string(As(err).Code)).
				Msg("Retrying after recoverable failure")
		}),
	)
	return classifyContextErr(err)
}

// classifyContextErr maps a bare context error from the caller's ctx onto the
// taxonomy. Errors fn already classified pass through unchanged.
func classifyContextErr(err error) error {
	var classified *Error
	if err == nil || errors.As(err, &classified) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return New(CodeTimeout, err)
	case errors.Is(err, context.Canceled):
		return New(CodeNetwork, err)
	}
	return err
}
