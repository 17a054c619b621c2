package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"time"
)

// Config defines retry configuration.
type Config struct {
	// MaxAttempts includes the first attempt.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// MaxElapsedTime caps the total time spent (0 = no limit).
	MaxElapsedTime time.Duration
	Multiplier     float64
	// Jitter spreads delays by ±25%.
	Jitter  bool
	Rand    *rand.Rand
	OnRetry func(attempt int, err error, nextDelay time.Duration)
	// Now and After are replaceable for tests.
	Now   func() time.Time
	After func(d time.Duration) <-chan time.Time
}

// DefaultConfig returns three attempts starting at 100ms with doubling delays.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Normalize validates c and fills optional fields.
func (c *Config) Normalize() error {
	if c.MaxAttempts <= 0 {
		return errors.New("retry: MaxAttempts must be positive")
	}
	if c.InitialDelay <= 0 {
		return errors.New("retry: InitialDelay must be positive")
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.InitialDelay > c.MaxDelay {
		return errors.New("retry: InitialDelay cannot be greater than MaxDelay")
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.Multiplier < 1.0 {
		return errors.New("retry: Multiplier must be >= 1.0")
	}
	if c.MaxElapsedTime < 0 {
		return errors.New("retry: MaxElapsedTime cannot be negative")
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.After == nil {
		c.After = time.After
	}
	return nil
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func(ctx context.Context) error

// IsRetryableFunc decides whether err should trigger another attempt.
type IsRetryableFunc func(err error) bool

// RetriesExceededError is returned when the attempt or time budget is exhausted.
type RetriesExceededError struct {
	LastError     error
	Attempts      int
	TotalDuration time.Duration
	Reason        string
}

func (e *RetriesExceededError) Error() string {
	return fmt.Sprintf("retry: %s after %s (%d attempts): %v", e.Reason, e.TotalDuration, e.Attempts, e.LastError)
}

func (e *RetriesExceededError) Unwrap() error { return e.LastError }

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent or is a cancellation.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p) || errors.Is(err, context.Canceled)
}

// DefaultRetryable retries timeouts, dropped connections and temporary errors.
func DefaultRetryable(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	type temporary interface{ Temporary() bool }
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return false
}

// Do runs fn with DefaultRetryable.
func Do(ctx context.Context, config Config, fn RetryableFunc) error {
	return DoWithRetryable(ctx, config, fn, DefaultRetryable)
}

// DoWithRetryable runs fn until it succeeds, returns a non-retryable error, or the
// budget is exhausted.
func DoWithRetryable(ctx context.Context, config Config, fn RetryableFunc, isRetryable IsRetryableFunc) error {
	c := config
	if err := c.Normalize(); err != nil {
		return err
	}

	var lastErr error
	start := c.Now()
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == c.MaxAttempts {
			break
		}
		if IsPermanent(lastErr) || !isRetryable(lastErr) {
			return lastErr
		}

		delay := c.applyJitter(c.calculateDelay(attempt))
		if c.MaxElapsedTime > 0 {
			elapsed := c.Now().Sub(start)
			if elapsed+delay > c.MaxElapsedTime {
				return &RetriesExceededError{LastError: lastErr, Attempts: attempt, TotalDuration: elapsed, Reason: "max elapsed time exceeded"}
			}
		}
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); delay > remaining {
				delay = remaining
			}
		}
		if c.OnRetry != nil {
			c.OnRetry(attempt, lastErr, delay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.After(delay):
		}
	}
	return &RetriesExceededError{
		LastError:     lastErr,
		Attempts:      c.MaxAttempts,
		TotalDuration: c.Now().Sub(start),
		Reason:        "max attempts exceeded",
	}
}

func (c Config) calculateDelay(attempt int) time.Duration {
	delay := c.InitialDelay
	for i := 1; i < attempt; i++ {
		if delay > time.Duration(float64(c.MaxDelay)/c.Multiplier) {
			return c.MaxDelay
		}
		delay = time.Duration(float64(delay) * c.Multiplier)
	}
	return min(delay, c.MaxDelay)
}

func (c Config) applyJitter(d time.Duration) time.Duration {
	if !c.Jitter || d <= 0 {
		return d
	}
	spread := d / 4
	if spread <= 0 {
		return d
	}
	j := d - spread + time.Duration(c.Rand.Int63n(int64(2*spread)))
	return max(min(j, c.MaxDelay), 0)
}
