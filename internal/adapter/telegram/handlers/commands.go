// Package handlers answers Telegram bot commands through the platform independent
// command surface.
package handlers

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"confirmbot/internal/command"
	"confirmbot/internal/reminder"
)

// Router maps commands to replies.
type Router struct {
	surface *command.Surface
	syncer  command.Syncer
	log     *slog.Logger
}

func NewRouter(surface *command.Surface, syncer command.Syncer, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{surface: surface, syncer: syncer, log: log.With(slog.String("component", "telegram-handlers"))}
}

// CommandName extracts the command from text, dropping the leading slash, a
// "@botname" suffix and any arguments.
func CommandName(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd := strings.TrimPrefix(strings.Fields(text)[0], "/")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), cmd != ""
}

// Replies returns the messages answering msg, or nil when msg is not a known command.
func (r *Router) Replies(ctx context.Context, msg *models.Message) []string {
	cmd, ok := CommandName(msg.Text)
	if !ok {
		return nil
	}
	if msg.From == nil {
		return nil
	}
	id := reminder.Identity(strconv.FormatInt(msg.From.ID, 10))

	switch cmd {
	case "start", "help":
		return []string{Start(r.surface)}
	case command.NameAddReminder:
		return []string{r.surface.AddReminder(ctx, id)}
	case command.NameRemoveReminder:
		return []string{r.surface.RemoveReminder(ctx, id)}
	case command.NameConfirm:
		return []string{r.surface.Confirm(ctx, id, displayName(msg.From))}
	case command.NameNextReminder:
		return []string{r.surface.NextReminder(ctx)}
	case command.NameSync:
		return r.surface.Sync(ctx, r.syncer)
	default:
		return nil
	}
}

// Handle answers a command update in the chat it came from.
func (r *Router) Handle(ctx context.Context, b *bot.Bot, upd *models.Update) {
	msg := upd.Message
	if msg == nil {
		return
	}
	for _, text := range r.Replies(ctx, msg) {
		if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: msg.Chat.ID, Text: text}); err != nil {
			r.log.Error("send reply failed", slog.Int64("chat_id", msg.Chat.ID), slog.Any("error", err))
			return
		}
	}
}

func displayName(u *models.User) string {
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
