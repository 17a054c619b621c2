package telegram

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Update aliases models.Update for brevity.
type Update = models.Update

type ctxUpdate struct {
	ctx context.Context
	upd *models.Update
}

// HandlerFunc processes a single update.
type HandlerFunc func(ctx context.Context, b *bot.Bot, upd *models.Update)

// Dispatcher routes updates to worker goroutines. Updates from one chat always go
// to the same worker, so they are handled in order.
type Dispatcher struct {
	bot     *bot.Bot
	handler HandlerFunc
	workers int
	chans   []chan ctxUpdate
	log     *slog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewDispatcher starts workers goroutines feeding h.
func NewDispatcher(b *bot.Bot, workers int, h HandlerFunc, log *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{bot: b, handler: h, workers: workers, chans: make([]chan ctxUpdate, workers), log: log}
	for i := 0; i < workers; i++ {
		d.chans[i] = make(chan ctxUpdate, 100)
		d.wg.Add(1)
		go d.worker(d.chans[i])
	}
	return d
}

// Dispatch queues upd on the worker owning its chat. Updates arriving after Close
// are dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, upd *models.Update) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Debug("update dropped, dispatcher closed", slog.Int64("update_id", upd.ID))
		return
	}
	idx := 0
	if chatID := extractChatID(upd); chatID != 0 {
		idx = int(abs(chatID) % int64(d.workers))
	}
	select {
	case d.chans[idx] <- ctxUpdate{ctx: ctx, upd: upd}:
	case <-ctx.Done():
	}
}

// Close stops accepting updates and waits for queued ones to be handled.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		for _, ch := range d.chans {
			close(ch)
		}
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker(in <-chan ctxUpdate) {
	defer d.wg.Done()
	for item := range in {
		d.handle(item)
	}
}

func (d *Dispatcher) handle(item ctxUpdate) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("update handler panicked", slog.Int64("update_id", item.upd.ID), slog.Any("panic", r))
		}
	}()
	d.handler(item.ctx, d.bot, item.upd)
}

func extractChatID(u *models.Update) int64 {
	if u.Message != nil {
		return u.Message.Chat.ID
	}
	if u.CallbackQuery != nil && u.CallbackQuery.Message.Message != nil {
		return u.CallbackQuery.Message.Message.Chat.ID
	}
	return 0
}

func abs(i int64) int64 {
	if i < 0 {
		return -i
	}
	return i
}
