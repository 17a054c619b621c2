package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"confirmbot/internal/adapter/discord"
	"confirmbot/internal/adapter/telegram"
	"confirmbot/internal/adapter/telegram/handlers"
	"confirmbot/internal/adapter/telegram/middleware"
	"confirmbot/internal/command"
	"confirmbot/internal/config"
	"confirmbot/internal/platform/httpclient"
	"confirmbot/internal/reminder"
)

// pollTimeout is the Telegram long poll window; it stays below the HTTP client timeout.
const pollTimeout = 20 * time.Second

// chatPlatform is a chat service the bot runs on.
type chatPlatform interface {
	Name() string
	// Channel delivers reminders.
	Channel() reminder.Channel
	// Serve routes incoming commands to surface. Called once before Connect.
	Serve(surface *command.Surface)
	// Connect authenticates with the platform. It may be retried.
	Connect(ctx context.Context) error
	// Run starts receiving updates until ctx ends.
	Run(ctx context.Context)
	// Webhook returns the inbound update handler, or nil when polling.
	Webhook() http.Handler
	Close() error
}

type discordPlatform struct {
	bot *discord.Bot
}

func newDiscord(cfg config.Config, client *httpclient.Client, log *slog.Logger) (*discordPlatform, error) {
	b, err := discord.New(discord.Options{
		Token:      cfg.Discord.Token,
		OwnerIDs:   cfg.Discord.OwnerIDs,
		Logger:     log,
		HTTPClient: client.Standard(),
	})
	if err != nil {
		return nil, err
	}
	return &discordPlatform{bot: b}, nil
}

func (p *discordPlatform) Name() string                      { return config.PlatformDiscord }
func (p *discordPlatform) Channel() reminder.Channel         { return p.bot.Channel() }
func (p *discordPlatform) Serve(s *command.Surface)          { p.bot.Serve(s) }
func (p *discordPlatform) Connect(ctx context.Context) error { return p.bot.Open(ctx) }
func (p *discordPlatform) Run(context.Context)               {}
func (p *discordPlatform) Webhook() http.Handler             { return nil }
func (p *discordPlatform) Close() error                      { return p.bot.Close() }

type telegramPlatform struct {
	cfg     config.Config
	bot     *bot.Bot
	disp    *telegram.Dispatcher
	syncer  *telegram.CommandSyncer
	limiter *middleware.RateLimiter
	log     *slog.Logger
}

func newTelegram(cfg config.Config, client *httpclient.Client, log *slog.Logger) (*telegramPlatform, error) {
	p := &telegramPlatform{
		cfg:     cfg,
		limiter: middleware.NewRateLimiter(time.Second, 3),
		log:     log.With(slog.String("component", "telegram")),
	}
	opts := []bot.Option{
		bot.WithDefaultHandler(p.dispatch),
		bot.WithAllowedUpdates([]string{"message", "callback_query"}),
		bot.WithHTTPClient(pollTimeout, client.Standard()),
		bot.WithSkipGetMe(),
	}
	if cfg.Telegram.WebhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(cfg.Telegram.WebhookSecret))
	}
	b, err := bot.New(cfg.Telegram.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	p.bot = b
	return p, nil
}

func (p *telegramPlatform) Name() string { return config.PlatformTelegram }

func (p *telegramPlatform) Channel() reminder.Channel {
	return telegram.NewChannel(p.bot, p.cfg.Telegram.ConfirmChats)
}

func (p *telegramPlatform) Serve(surface *command.Surface) {
	p.syncer = telegram.NewCommandSyncer(p.bot, surface.Specs, p.log)
	router := handlers.NewRouter(surface, p.syncer, p.log)
	acl := middleware.NewACL(p.cfg.Telegram.OwnerIDs, []string{command.NameSync}, p.log)
	h := middleware.Chain(router.Handle, p.limiter.Middleware, acl.Middleware)
	p.disp = telegram.NewDispatcher(p.bot, 8, h, p.log)
}

func (p *telegramPlatform) dispatch(ctx context.Context, _ *bot.Bot, upd *models.Update) {
	if p.disp != nil {
		p.disp.Dispatch(ctx, upd)
	}
}

func (p *telegramPlatform) Connect(ctx context.Context) error {
	me, err := p.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	p.log.Info("logged in", slog.String("user", me.Username), slog.Int64("user_id", me.ID))

	if url := p.cfg.Telegram.WebhookURL; url != "" {
		if _, err := p.bot.SetWebhook(ctx, &bot.SetWebhookParams{
			URL:         url,
			SecretToken: p.cfg.Telegram.WebhookSecret,
		}); err != nil {
			return fmt.Errorf("telegram setWebhook: %w", err)
		}
	} else if _, err := p.bot.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		return fmt.Errorf("telegram deleteWebhook: %w", err)
	}

	if _, err := p.syncer.SyncCommands(ctx); err != nil {
		p.log.Warn("command sync failed", slog.Any("error", err))
	}
	return nil
}

func (p *telegramPlatform) Run(ctx context.Context) {
	if p.cfg.Telegram.WebhookURL != "" {
		go p.bot.StartWebhook(ctx)
		return
	}
	go p.bot.Start(ctx)
}

func (p *telegramPlatform) Webhook() http.Handler {
	if p.cfg.Telegram.WebhookURL == "" {
		return nil
	}
	return p.bot.WebhookHandler()
}

// pruneLimiter forgets idle users of the per-user rate limiter.
func (p *telegramPlatform) pruneLimiter(context.Context) error {
	if n := p.limiter.Prune(); n > 0 {
		p.log.Debug("rate limiter pruned", slog.Int("users", n))
	}
	return nil
}

func (p *telegramPlatform) Close() error {
	if p.disp != nil {
		p.disp.Close()
	}
	return nil
}
