package studio

import (
	"context"
	"time"

	"studio/internal/infra"
	"studio/internal/media"
	"studio/internal/providers/gemini"
)

// RetryPolicy bounds how often a rate-limited call is retried.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy retries three times after 800ms, 1.6s and 3.2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialDelay: 800 * time.Millisecond, Multiplier: 2}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type retrier struct {
	policy RetryPolicy
	sleep  SleepFunc
	logger *infra.Logger
}

func newRetrier(policy RetryPolicy, sleep SleepFunc, logger *infra.Logger) *retrier {
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if sleep == nil {
		sleep = sleepContext
	}
	return &retrier{policy: policy, sleep: sleep, logger: logger}
}

// do runs fn until it succeeds, fails with something other than a rate
// limit, or the retry budget runs out.
func (r *retrier) do(ctx context.Context, label string, fn func(context.Context) (media.ImageAsset, error)) (media.ImageAsset, error) {
	delay := r.policy.InitialDelay
	attempts := r.policy.MaxRetries + 1
	for attempt := 1; ; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if !gemini.IsRateLimit(err) {
			return media.ImageAsset{}, err
		}
		if attempt >= attempts {
			return media.ImageAsset{}, &RateLimitError{Label: label, Attempts: attempt, Err: err}
		}
		r.logger.Warn().
			Str("field", label).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("rate limited, backing off")
		if err := r.sleep(ctx, delay); err != nil {
			return media.ImageAsset{}, err
		}
		delay = time.Duration(float64(delay) * r.policy.Multiplier)
	}
}

// Source selects which input image a field is extracted from.
type Source int

const (
	SourceCharacter Source = iota + 1
	SourceConcept
)

// FieldStrategy is how one component field is produced: a primary
// instruction and an optional softer one tried once when ShouldFallback
// accepts the primary failure.
type FieldStrategy struct {
	Field          Field
	Source         Source
	Primary        string
	Fallback       string
	ShouldFallback func(error) bool
}

func (s FieldStrategy) run(ctx context.Context, r *retrier, model ImageModel, src media.ImageAsset) (media.ImageAsset, error) {
	label := string(s.Field)
	call := func(instruction string) func(context.Context) (media.ImageAsset, error) {
		return func(ctx context.Context) (media.ImageAsset, error) {
			return model.GenerateImage(ctx, instruction, src)
		}
	}
	out, err := r.do(ctx, label, call(s.Primary))
	if err == nil {
		return out, nil
	}
	shouldFallback := s.ShouldFallback
	if shouldFallback == nil {
		shouldFallback = IsPolicyFallbackTrigger
	}
	if s.Fallback == "" || ctx.Err() != nil || !shouldFallback(err) {
		return media.ImageAsset{}, asPolicyRefusal(err)
	}
	r.logger.Warn().Err(err).Str("field", label).Msg("primary instruction refused, trying fallback")
	out, err = r.do(ctx, label+"_fallback", call(s.Fallback))
	if err != nil {
		return media.ImageAsset{}, asPolicyRefusal(err)
	}
	return out, nil
}
