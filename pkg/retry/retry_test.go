package retry

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"testing"
	"time"
)

type tempErr struct{ temporary bool }

func (e tempErr) Error() string   { return "temp" }
func (e tempErr) Temporary() bool { return e.temporary }

func instantConfig(attempts int) Config {
	c := DefaultConfig()
	c.MaxAttempts = attempts
	c.Jitter = false
	c.After = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	return c
}

func TestDefaultRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"temporary", tempErr{true}, true},
		{"not temporary", tempErr{false}, false},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"permanent", Permanent(context.DeadlineExceeded), false},
		{"plain", errors.New("bad token"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultRetryable(tt.err); got != tt.want {
				t.Errorf("DefaultRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	var retried []int
	c := instantConfig(5)
	c.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	err := Do(context.Background(), c, func(context.Context) error {
		calls++
		if calls < 3 {
			return context.DeadlineExceeded
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Fatalf("OnRetry attempts = %v", retried)
	}
}

func TestDo_StopsOnPermanent(t *testing.T) {
	calls := 0
	base := errors.New("401 unauthorized")
	err := Do(context.Background(), instantConfig(5), func(context.Context) error {
		calls++
		return Permanent(base)
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, base) {
		t.Fatalf("error %v does not wrap base", err)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	err := Do(context.Background(), instantConfig(3), func(context.Context) error {
		return context.DeadlineExceeded
	})
	var re *RetriesExceededError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetriesExceededError, got %T", err)
	}
	if re.Attempts != 3 || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("unexpected error details: %+v", re)
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, instantConfig(3), func(context.Context) error { calls++; return nil })
	if !errors.Is(err, context.Canceled) || calls != 0 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestNormalize(t *testing.T) {
	bad := []Config{
		{MaxAttempts: 0, InitialDelay: time.Second},
		{MaxAttempts: 1, InitialDelay: 0},
		{MaxAttempts: 1, InitialDelay: time.Minute, MaxDelay: time.Second},
		{MaxAttempts: 1, InitialDelay: time.Second, Multiplier: 0.5},
	}
	for i, c := range bad {
		if err := c.Normalize(); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestCalculateDelay(t *testing.T) {
	c := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for i, w := range want {
		if got := c.calculateDelay(i + 1); got != w {
			t.Errorf("attempt %d: got %v want %v", i+1, got, w)
		}
	}
}

func TestApplyJitterBounds(t *testing.T) {
	c := Config{Jitter: true, MaxDelay: time.Minute, Rand: rand.New(rand.NewSource(1))}
	for i := 0; i < 100; i++ {
		d := c.applyJitter(time.Second)
		if d < 750*time.Millisecond || d > 1250*time.Millisecond {
			t.Fatalf("jittered delay %v out of range", d)
		}
	}
}
