// Package discord runs the reminder bot on Discord: slash commands for subscribers,
// an owner-only "!sync" text command and direct message delivery.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"confirmbot/internal/command"
	"confirmbot/internal/reminder"
)

const syncTimeout = 30 * time.Second

// Options configures a Bot.
type Options struct {
	Token string
	// OwnerIDs may run !sync. When empty the application owner is used.
	OwnerIDs []string
	Logger   *slog.Logger

	// HTTPClient replaces the session's REST client when set.
	HTTPClient *http.Client
}

// Bot owns the Discord session and routes its events to the command surface.
type Bot struct {
	session *discordgo.Session
	surface *command.Surface
	log     *slog.Logger

	mu     sync.RWMutex
	owners map[string]struct{}
}

// New creates the session. Call Serve before Open to start answering commands.
func New(opts Options) (*Bot, error) {
	s, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	if opts.HTTPClient != nil {
		s.Client = opts.HTTPClient
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	b := &Bot{
		session: s,
		log:     log.With(slog.String("component", "discord")),
		owners:  make(map[string]struct{}, len(opts.OwnerIDs)),
	}
	for _, id := range opts.OwnerIDs {
		b.owners[id] = struct{}{}
	}
	return b, nil
}

// Serve routes gateway events to surface.
func (b *Bot) Serve(surface *command.Surface) {
	b.surface = surface
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onInteraction)
	b.session.AddHandler(b.onMessage)
}

// Channel returns the reminder delivery channel backed by this session.
func (b *Bot) Channel() *Channel { return NewChannel(b.session) }

// Open connects the gateway.
func (b *Bot) Open(context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	return nil
}

func (b *Bot) Close() error { return b.session.Close() }

// SyncCommands overwrites the slash commands in every guild and then globally.
// Per-guild failures are reported and do not stop the global sync.
func (b *Bot) SyncCommands(ctx context.Context) ([]string, error) {
	if b.session.State == nil || b.session.State.User == nil {
		return nil, fmt.Errorf("session not ready")
	}
	appID := b.session.State.User.ID
	cmds := b.applicationCommands()
	opt := discordgo.WithContext(ctx)

	var lines []string
	for _, guildID := range guildIDs(b.session) {
		created, err := b.session.ApplicationCommandBulkOverwrite(appID, guildID, cmds, opt)
		if err != nil {
			b.log.Warn("guild command sync failed", slog.String("guild_id", guildID), slog.Any("error", err))
			lines = append(lines, fmt.Sprintf("Failed to sync commands to guild %s: %v", guildID, err))
			continue
		}
		b.log.Info("synced guild commands", slog.String("guild_id", guildID), slog.Int("count", len(created)))
		lines = append(lines, fmt.Sprintf("Synced %d command(s) to guild %s", len(created), guildID))
	}

	created, err := b.session.ApplicationCommandBulkOverwrite(appID, "", cmds, opt)
	if err != nil {
		return lines, fmt.Errorf("global sync: %w", err)
	}
	b.log.Info("synced global commands", slog.Int("count", len(created)))
	return append(lines, fmt.Sprintf("Synced %d command(s) globally", len(created))), nil
}

func (b *Bot) applicationCommands() []*discordgo.ApplicationCommand {
	specs := b.surface.Specs()
	out := make([]*discordgo.ApplicationCommand, 0, len(specs))
	for _, s := range specs {
		out = append(out, &discordgo.ApplicationCommand{Name: s.Name, Description: s.Description})
	}
	return out
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("logged in", slog.String("user", r.User.Username), slog.String("user_id", r.User.ID), slog.Int("guilds", len(r.Guilds)))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		b.loadApplicationOwner(s)
		if _, err := b.SyncCommands(ctx); err != nil {
			b.log.Error("command sync failed", slog.Any("error", err))
		}
	}()
}

func (b *Bot) loadApplicationOwner(s *discordgo.Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.owners) > 0 {
		return
	}
	app, err := s.Application("@me")
	if err != nil || app.Owner == nil {
		b.log.Warn("application owner unknown, !sync disabled", slog.Any("error", err))
		return
	}
	b.owners[app.Owner.ID] = struct{}{}
}

func (b *Bot) isOwner(userID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.owners[userID]
	return ok
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	name := i.ApplicationCommandData().Name
	text := b.reply(ctx, name, interactionUser(i.Interaction))
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: text, Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(ctx))
	if err != nil {
		b.log.Error("interaction response failed", slog.String("command", name), slog.Any("error", err))
	}
}

// reply runs a slash command for u.
func (b *Bot) reply(ctx context.Context, name string, u *discordgo.User) string {
	if u == nil {
		return command.ErrorReply(fmt.Errorf("unknown user"))
	}
	id := reminder.Identity(u.ID)
	switch name {
	case command.NameAddReminder:
		return b.surface.AddReminder(ctx, id)
	case command.NameRemoveReminder:
		return b.surface.RemoveReminder(ctx, id)
	case command.NameConfirm:
		return b.surface.Confirm(ctx, id, u.Username)
	case command.NameNextReminder:
		return b.surface.NextReminder(ctx)
	default:
		return command.ErrorReply(fmt.Errorf("unknown command %q", name))
	}
}

func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Content != "!"+command.NameSync {
		return
	}
	if !b.isOwner(m.Author.ID) {
		b.log.Warn("sync refused", slog.String("user_id", m.Author.ID))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()
	for _, line := range b.surface.Sync(ctx, b) {
		if _, err := s.ChannelMessageSend(m.ChannelID, line, discordgo.WithContext(ctx)); err != nil {
			b.log.Error("sync reply failed", slog.Any("error", err))
			return
		}
	}
}
