// Package middleware wraps Telegram handlers with owner checks and per-user rate limits.
package middleware

import (
	"github.com/go-telegram/bot/models"

	"confirmbot/internal/adapter/telegram"
)

// Middleware wraps telegram.HandlerFunc.
type Middleware func(telegram.HandlerFunc) telegram.HandlerFunc

// Chain applies middlewares in order: the first one sees the update first.
func Chain(h telegram.HandlerFunc, mws ...Middleware) telegram.HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// sender returns the user and chat of upd, zero when absent.
func sender(upd *models.Update) (uid, chat int64) {
	if m := upd.Message; m != nil {
		chat = m.Chat.ID
		if m.From != nil {
			uid = m.From.ID
		}
	} else if cb := upd.CallbackQuery; cb != nil {
		uid = cb.From.ID
		if cb.Message.Message != nil {
			chat = cb.Message.Message.Chat.ID
		}
	}
	return uid, chat
}
