package middleware

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"confirmbot/internal/adapter/telegram"
	"confirmbot/internal/adapter/telegram/handlers"
)

// ACL restricts a set of commands to the configured owner IDs. Other commands pass.
type ACL struct {
	allowed map[int64]struct{}
	guarded map[string]struct{}
	log     *slog.Logger
}

// NewACL lets ids run the guarded commands. With no ids nobody can run them.
func NewACL(ids []int64, guarded []string, log *slog.Logger) *ACL {
	if log == nil {
		log = slog.Default()
	}
	a := &ACL{
		allowed: make(map[int64]struct{}, len(ids)),
		guarded: make(map[string]struct{}, len(guarded)),
		log:     log,
	}
	for _, id := range ids {
		a.allowed[id] = struct{}{}
	}
	for _, c := range guarded {
		a.guarded[c] = struct{}{}
	}
	return a
}

func (a *ACL) IsAllowed(id int64) bool {
	_, ok := a.allowed[id]
	return ok
}

// Guards reports whether text invokes a guarded command.
func (a *ACL) Guards(text string) bool {
	cmd, ok := handlers.CommandName(text)
	if !ok {
		return false
	}
	_, guarded := a.guarded[cmd]
	return guarded
}

// Middleware drops guarded commands from users outside the allow list and tells them so.
func (a *ACL) Middleware(next telegram.HandlerFunc) telegram.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, upd *models.Update) {
		if upd.Message == nil || !a.Guards(upd.Message.Text) {
			next(ctx, b, upd)
			return
		}
		uid, chat := sender(upd)
		if a.IsAllowed(uid) {
			next(ctx, b, upd)
			return
		}
		a.log.Warn("owner command refused", slog.Int64("user_id", uid), slog.String("text", upd.Message.Text))
		if chat != 0 && b != nil {
			_, _ = b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chat, Text: "This command is only available to the bot owner."})
		}
	}
}
