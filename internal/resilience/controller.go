// Package resilience wraps fallible generation calls with a primary attempt
// plus an ordered fallback chain. A call through the controller never
// surfaces a Go error: exhaustion yields a failed Outcome the caller converts
// into deterministic emergency content. Continuity is prioritized over
// correctness.
package resilience

import (
	"context"
	"errors"
	"log"
	"time"
)

// Attempt is the operation shape fallback strategies rewrite between
// invocations.
type Attempt struct {
	Prompt         string
	Input          any
	Temperature    float32
	HasTemperature bool
	MaxWords       int // 0 means no explicit budget
	Simplified     bool
}

// Op executes one generation attempt with the given shape.
type Op func(ctx context.Context, att Attempt) (string, error)

// Config controls the fallback chain for one call.
type Config struct {
	// MaxRetries caps total attempts, primary included. Values below 1 are
	// raised to 1.
	MaxRetries int
	// Strategies is the ordered fallback chain tried after the primary
	// attempt fails.
	Strategies []Strategy
	// EmergencyMode tells the caller to substitute deterministic emergency
	// content for a failed outcome instead of flagging the unit for manual
	// regeneration. The controller itself only carries the flag through.
	EmergencyMode bool
	// Timeout bounds each attempt; 0 disables the per-attempt deadline.
	Timeout time.Duration
	// Backoff between attempts. Defaults to 2.5s.
	Backoff time.Duration
}

// Outcome is the result of one resilient call. Produced once per call,
// never persisted.
type Outcome struct {
	Succeeded    bool
	Payload      string
	StrategyUsed string
	AttemptsUsed int
	Degraded     bool
	ErrMessage   string
}

// Controller runs resilient calls. The zero value is usable.
type Controller struct {
	// sleep is injectable for tests; nil means time.Sleep.
	sleep func(time.Duration)
}

func NewController() *Controller { return &Controller{} }

// NewControllerWithSleep is for tests that must not wait out real backoffs.
func NewControllerWithSleep(sleep func(time.Duration)) *Controller {
	return &Controller{sleep: sleep}
}

// Run invokes op once with the primary attempt shape, then walks the
// strategy chain while attempts remain. Each fallback attempt is derived
// from the primary shape by the strategy's Transform.
func (c *Controller) Run(ctx context.Context, name string, att Attempt, op Op, cfg Config) Outcome {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 2500 * time.Millisecond
	}

	attempts := 0
	out, err := c.attempt(ctx, att, op, cfg.Timeout)
	attempts++
	if err == nil {
		return Outcome{Succeeded: true, Payload: out, StrategyUsed: "primary", AttemptsUsed: attempts}
	}
	lastErr := err
	log.Printf("resilience: %s primary attempt failed: %v", name, err)

	for _, s := range cfg.Strategies {
		if attempts >= cfg.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		c.wait(backoff)
		out, err = c.attempt(ctx, s.Transform(att), op, cfg.Timeout)
		attempts++
		if err == nil {
			return Outcome{Succeeded: true, Payload: out, StrategyUsed: s.String(), AttemptsUsed: attempts, Degraded: true}
		}
		lastErr = err
		log.Printf("resilience: %s strategy %s failed: %v", name, s, err)
	}

	return Outcome{
		Succeeded:    false,
		StrategyUsed: "none",
		AttemptsUsed: attempts,
		Degraded:     true,
		ErrMessage:   lastErr.Error(),
	}
}

func (c *Controller) attempt(ctx context.Context, att Attempt, op Op, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return op(ctx, att)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(actx, att)
}

func (c *Controller) wait(d time.Duration) {
	if c.sleep != nil {
		c.sleep(d)
		return
	}
	time.Sleep(d)
}

// RunWithTimeout cancels op at the deadline and substitutes fallback's
// result instead of surfacing the cancellation. Any other error from op is
// returned unchanged.
func RunWithTimeout(ctx context.Context, timeout time.Duration, op func(context.Context) (string, error), fallback func() string) (string, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := op(tctx)
		done <- result{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && fallback != nil {
			return fallback(), nil
		}
		return res.out, res.err
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) && fallback != nil {
			return fallback(), nil
		}
		return "", tctx.Err()
	}
}
