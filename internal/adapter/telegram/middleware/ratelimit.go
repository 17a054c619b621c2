package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"confirmbot/internal/adapter/telegram"
)

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter restricts request frequency per user with a token bucket each.
type RateLimiter struct {
	mu    sync.Mutex
	users map[int64]*userLimiter
	every rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time
}

// NewRateLimiter allows burst requests at once and one more every interval.
func NewRateLimiter(interval time.Duration, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		users: make(map[int64]*userLimiter),
		every: rate.Every(interval),
		burst: burst,
		idle:  10 * time.Minute,
		now:   time.Now,
	}
}

// Allow reports whether userID may make a request now.
func (r *RateLimiter) Allow(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	u, ok := r.users[userID]
	if !ok {
		u = &userLimiter{limiter: rate.NewLimiter(r.every, r.burst)}
		r.users[userID] = u
	}
	u.lastSeen = now
	return u.limiter.AllowN(now, 1)
}

// Prune forgets users idle for longer than the idle window and returns how many.
func (r *RateLimiter) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.idle)
	n := 0
	for id, u := range r.users {
		if u.lastSeen.Before(cutoff) {
			delete(r.users, id)
			n++
		}
	}
	return n
}

// Middleware checks the limit before calling next.
func (r *RateLimiter) Middleware(next telegram.HandlerFunc) telegram.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, upd *models.Update) {
		uid, chat := sender(upd)
		if uid != 0 && !r.Allow(uid) {
			if chat != 0 && b != nil {
				_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
					ChatID: chat,
					Text:   "You're sending commands too fast, please wait a moment.",
				})
			}
			return
		}
		next(ctx, b, upd)
	}
}
