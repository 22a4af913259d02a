// Package reliability provides the failure-handling primitives the saga
// leans on: bounded retries with backoff, a circuit breaker for the
// synchronous inventory call, and a token-bucket rate limiter for the
// HTTP surface.
package reliability

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrCircuitOpen indicates the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// RetryPolicy bounds retries of a failure-prone call. The zero value runs
// the call once with no delays. Sleep, Jitter and ShouldRetry default to
// context-aware sleeping, half-to-full jitter and retrying everything
// except cancellation and an open breaker.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      func(time.Duration) time.Duration
	Sleep       func(context.Context, time.Duration) error
	ShouldRetry func(error) bool
}

// Do runs fn up to MaxAttempts times, backing off between failures.
// The error of the last attempt is returned unwrapped.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		if attempt == attempts || !p.retryable(err) {
			return err
		}
		if err := p.pause(ctx, attempt); err != nil {
			return err
		}
	}
}

func (p RetryPolicy) retryable(err error) bool {
	if p.ShouldRetry != nil {
		return p.ShouldRetry(err)
	}
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrCircuitOpen):
		return false
	}
	return true
}

// pause sleeps out the backoff for the given completed attempt: BaseDelay
// doubled per attempt, capped at MaxDelay, then jittered.
func (p RetryPolicy) pause(ctx context.Context, attempt int) error {
	delay := p.BaseDelay
	if delay > 0 {
		delay <<= attempt - 1
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter != nil {
		delay = p.Jitter(delay)
	} else {
		delay = defaultJitter(delay)
	}
	if delay <= 0 {
		return nil
	}
	if p.Sleep != nil {
		return p.Sleep(ctx, delay)
	}
	return SleepWithContext(ctx, delay)
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	MaxFailures  int
	ResetTimeout time.Duration
	Now          func() time.Time
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// CircuitBreaker rejects calls after MaxFailures consecutive failures,
// then admits a single trial call once ResetTimeout has passed. A nil breaker
// passes calls through.
type CircuitBreaker struct {
	mu         sync.Mutex
	maxFails   int
	resetAfter time.Duration
	now        func() time.Time

	state    circuitState
	failures int
	openedAt time.Time
	trialing bool
}

// NewCircuitBreaker constructs a circuit breaker with sane defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	b := &CircuitBreaker{
		maxFails:   cfg.MaxFailures,
		resetAfter: cfg.ResetTimeout,
		now:        cfg.Now,
		state:      circuitClosed,
	}
	if b.maxFails < 1 {
		b.maxFails = 1
	}
	if b.resetAfter <= 0 {
		b.resetAfter = 2 * time.Second
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// Execute runs fn unless the breaker rejects it, then feeds the outcome
// back into the breaker state.
func (c *CircuitBreaker) Execute(fn func() error) error {
	if c == nil {
		return fn()
	}
	if err := c.admit(); err != nil {
		return err
	}
	err := fn()
	c.settle(err)
	return err
}

func (c *CircuitBreaker) admit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case circuitOpen:
		if c.now().Sub(c.openedAt) < c.resetAfter {
			return ErrCircuitOpen
		}
		c.state = circuitHalfOpen
		c.trialing = true
	case circuitHalfOpen:
		// One trial call in flight at a time.
		if c.trialing {
			return ErrCircuitOpen
		}
		c.trialing = true
	}
	return nil
}

func (c *CircuitBreaker) settle(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	trialed := c.state == circuitHalfOpen
	if trialed {
		c.trialing = false
	}

	if err == nil {
		c.state = circuitClosed
		c.failures = 0
		return
	}
	if trialed {
		// A failed trial call reopens immediately.
		c.state = circuitOpen
		c.openedAt = c.now()
		c.failures = 0
		return
	}
	c.failures++
	if c.failures >= c.maxFails {
		c.state = circuitOpen
		c.openedAt = c.now()
	}
}

// RateLimiter is a token-bucket limiter refilling one token per rate.
// A nil or zero-configured limiter admits everything.
type RateLimiter struct {
	mu    sync.Mutex
	rate  time.Duration
	burst int
	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	tokens int
	last   time.Time
}

// NewRateLimiter constructs a limiter that starts with a full bucket.
func NewRateLimiter(rate time.Duration, burst int) *RateLimiter {
	r := &RateLimiter{
		rate:   rate,
		burst:  burst,
		now:    time.Now,
		sleep:  SleepWithContext,
		tokens: burst,
	}
	r.last = r.now()
	return r
}

// Wait blocks until a token is available or the context ends.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil || r.rate <= 0 || r.burst <= 0 {
		if ctx == nil {
			return nil
		}
		return ctx.Err()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait := r.take()
		if wait <= 0 {
			return nil
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// take claims a token, returning 0 on success or the duration until the
// next token arrives.
func (r *RateLimiter) take() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if refills := int(now.Sub(r.last) / r.rate); refills > 0 {
		r.tokens += refills
		if r.tokens > r.burst {
			r.tokens = r.burst
		}
		r.last = r.last.Add(time.Duration(refills) * r.rate)
	}
	if r.tokens > 0 {
		r.tokens--
		return 0
	}
	return r.rate - now.Sub(r.last)
}

// SleepWithContext sleeps for d or until the context ends.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// defaultJitter spreads a delay uniformly over [d/2, d].
func defaultJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := int64(d / 2)
	return time.Duration(half + rand.Int63n(half+1))
}
