package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: the retry loop. For any attempt budget, the loop calls the
// operation exactly until first success or budget exhaustion, sleeps the
// documented backoff sequence between attempts, and hands the final error
// back unchanged.
func TestProperty_RetryLoop(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	genMaxAttempts := gen.IntRange(1, 10)
	genBackoff := gen.IntRange(1, 1000).Map(func(ms int) time.Duration {
		return time.Duration(ms) * time.Millisecond
	})

	newRetrier := func(cfg RetryConfig) (*Retrier, *[]time.Duration) {
		r := NewRetrier(cfg, nil)
		delays := &[]time.Duration{}
		r.sleep = fakeSleep(delays)
		return r, delays
	}

	properties.Property("attempts stop at the first success", prop.ForAll(
		func(maxAttempts, succeedAt int) bool {
			r, _ := newRetrier(RetryConfig{MaxAttempts: maxAttempts, Backoff: time.Millisecond})

			calls := 0
			err := r.Do(context.Background(), "op", func(context.Context) error {
				calls++
				if calls >= succeedAt {
					return nil
				}
				return errors.New("transient")
			})

			if succeedAt <= maxAttempts {
				return err == nil && calls == succeedAt
			}
			return err != nil && calls == maxAttempts
		},
		genMaxAttempts,
		gen.IntRange(1, 15),
	))

	properties.Property("exhaustion returns the final attempt's error unchanged", prop.ForAll(
		func(maxAttempts int) bool {
			r, delays := newRetrier(RetryConfig{MaxAttempts: maxAttempts, Backoff: time.Millisecond})

			calls := 0
			var attemptErrs []error
			err := r.Do(context.Background(), "op", func(context.Context) error {
				calls++
				e := fmt.Errorf("attempt %d failed", calls)
				attemptErrs = append(attemptErrs, e)
				return e
			})

			if calls != maxAttempts {
				t.Logf("expected %d attempts, got %d", maxAttempts, calls)
				return false
			}
			if !errors.Is(err, attemptErrs[len(attemptErrs)-1]) {
				t.Logf("expected final attempt error, got %v", err)
				return false
			}
			return len(*delays) == maxAttempts-1
		},
		genMaxAttempts,
	))

	properties.Property("exponential backoff doubles and caps at the maximum", prop.ForAll(
		func(maxAttempts int, backoff time.Duration, capMultiple int) bool {
			maxBackoff := backoff * time.Duration(capMultiple)
			r, delays := newRetrier(RetryConfig{
				MaxAttempts: maxAttempts,
				Backoff:     backoff,
				Exponential: true,
				MaxBackoff:  maxBackoff,
			})

			_ = r.Do(context.Background(), "op", func(context.Context) error {
				return errors.New("failed")
			})

			expected := backoff
			for i, got := range *delays {
				want := expected
				if want > maxBackoff {
					want = maxBackoff
				}
				if got != want {
					t.Logf("sleep %d = %v, want %v (base %v, cap %v)", i, got, want, backoff, maxBackoff)
					return false
				}
				expected *= 2
			}
			return true
		},
		genMaxAttempts,
		genBackoff,
		gen.IntRange(1, 16),
	))

	properties.Property("constant backoff sleeps the same delay every time", prop.ForAll(
		func(maxAttempts int, backoff time.Duration) bool {
			r, delays := newRetrier(RetryConfig{MaxAttempts: maxAttempts, Backoff: backoff})

			_ = r.Do(context.Background(), "op", func(context.Context) error {
				return errors.New("failed")
			})

			for _, got := range *delays {
				if got != backoff {
					return false
				}
			}
			return len(*delays) == maxAttempts-1
		},
		genMaxAttempts,
		genBackoff,
	))

	properties.TestingRun(t)
}
