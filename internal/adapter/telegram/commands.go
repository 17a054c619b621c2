package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"confirmbot/internal/command"
)

// CommandsAPI is the part of *bot.Bot used to publish the command menu.
type CommandsAPI interface {
	SetMyCommands(ctx context.Context, params *bot.SetMyCommandsParams) (bool, error)
}

// CommandSyncer publishes the command menu shown by Telegram clients.
type CommandSyncer struct {
	api   CommandsAPI
	specs func() []command.Spec
	log   *slog.Logger
}

func NewCommandSyncer(api CommandsAPI, specs func() []command.Spec, log *slog.Logger) *CommandSyncer {
	if log == nil {
		log = slog.Default()
	}
	return &CommandSyncer{api: api, specs: specs, log: log.With(slog.String("component", "telegram-commands"))}
}

// SyncCommands replaces the default command menu.
func (s *CommandSyncer) SyncCommands(ctx context.Context) ([]string, error) {
	specs := s.specs()
	cmds := make([]models.BotCommand, 0, len(specs)+1)
	cmds = append(cmds, models.BotCommand{Command: "start", Description: "Show the available commands"})
	for _, sp := range specs {
		cmds = append(cmds, models.BotCommand{Command: sp.Name, Description: sp.Description})
	}
	if _, err := s.api.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: cmds}); err != nil {
		return nil, fmt.Errorf("set commands: %w", err)
	}
	s.log.Info("synced commands", slog.Int("count", len(cmds)))
	return []string{fmt.Sprintf("Synced %d command(s)", len(cmds))}, nil
}
