package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Platform names accepted in BOT_PLATFORM.
const (
	PlatformDiscord  = "discord"
	PlatformTelegram = "telegram"
)

// Config holds application configuration values.
type Config struct {
	Env      string `validate:"required,oneof=dev prod"`
	Platform string `validate:"required,oneof=discord telegram"`
	Discord  struct {
		Token    string
		OwnerIDs []string
	}
	Telegram struct {
		Token         string
		WebhookURL    string
		WebhookSecret string
		OwnerIDs      []int64
		ConfirmChats  []ConfirmChat
	}
	HTTP struct {
		Addr string
	}
	Store struct {
		Driver string `validate:"required,oneof=json sqlite postgres bolt"`
		Path   string
		DSN    string
	}
	Reminder struct {
		IntervalDays        int           `validate:"gt=0"`
		CheckInterval       time.Duration `validate:"gt=0"`
		CheckCron           string
		Timezone            string
		DeliveryTimeout     time.Duration `validate:"gt=0"`
		DispatchConcurrency int           `validate:"gt=0"`
		DispatchRate        float64       `validate:"gte=0"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
}

// ConfirmChat is a Telegram group where subscribers are asked to confirm.
type ConfirmChat struct {
	ChatID int64
	Link   string
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	var err error
	c.Env = getenv("ENV", "prod")
	c.Platform = strings.ToLower(getenv("BOT_PLATFORM", PlatformDiscord))
	c.Discord.Token = os.Getenv("DISCORD_TOKEN")
	c.Discord.OwnerIDs = splitList(os.Getenv("DISCORD_OWNER_IDS"))
	c.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	c.Telegram.WebhookURL = os.Getenv("TELEGRAM_WEBHOOK_URL")
	c.Telegram.WebhookSecret = os.Getenv("TELEGRAM_WEBHOOK_SECRET")
	if c.Telegram.OwnerIDs, err = parseIDs(os.Getenv("TELEGRAM_OWNER_IDS")); err != nil {
		return Config{}, fmt.Errorf("TELEGRAM_OWNER_IDS: %w", err)
	}
	if c.Telegram.ConfirmChats, err = ParseConfirmChats(os.Getenv("TELEGRAM_CONFIRM_CHATS")); err != nil {
		return Config{}, fmt.Errorf("TELEGRAM_CONFIRM_CHATS: %w", err)
	}
	c.HTTP.Addr = os.Getenv("HTTP_ADDR")
	c.Store.Driver = strings.ToLower(getenv("STORE_DRIVER", "json"))
	c.Store.Path = getenv("STORE_PATH", "reminder_data.json")
	c.Store.DSN = os.Getenv("STORE_DSN")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/bot.log")

	r := &c.Reminder
	if r.IntervalDays, err = getInt("REMINDER_INTERVAL_DAYS", 25); err != nil {
		return Config{}, err
	}
	if r.CheckInterval, err = getDuration("REMINDER_CHECK_INTERVAL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	r.CheckCron = os.Getenv("REMINDER_CHECK_CRON")
	r.Timezone = os.Getenv("REMINDER_TIMEZONE")
	if r.DeliveryTimeout, err = getDuration("REMINDER_DELIVERY_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if r.DispatchConcurrency, err = getInt("REMINDER_DISPATCH_CONCURRENCY", 4); err != nil {
		return Config{}, err
	}
	if r.DispatchRate, err = getFloat("REMINDER_DISPATCH_RATE", 5); err != nil {
		return Config{}, err
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks struct tags and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch c.Platform {
	case PlatformDiscord:
		if c.Discord.Token == "" {
			return errors.New("DISCORD_TOKEN environment variable is not set")
		}
	case PlatformTelegram:
		if c.Telegram.Token == "" {
			return errors.New("TELEGRAM_BOT_TOKEN environment variable is not set")
		}
		if c.Telegram.WebhookURL != "" && c.Telegram.WebhookSecret == "" {
			return errors.New("TELEGRAM_WEBHOOK_SECRET required when TELEGRAM_WEBHOOK_URL is set")
		}
		if c.Telegram.WebhookURL != "" && c.HTTP.Addr == "" {
			return errors.New("HTTP_ADDR required when TELEGRAM_WEBHOOK_URL is set")
		}
	}
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("STORE_DSN required for postgres store")
		}
	default:
		if c.Store.Path == "" {
			return errors.New("STORE_PATH required for file based stores")
		}
	}
	if c.Reminder.Timezone != "" {
		if _, err := time.LoadLocation(c.Reminder.Timezone); err != nil {
			return fmt.Errorf("REMINDER_TIMEZONE: %w", err)
		}
	}
	return nil
}

// Location returns the time zone used to derive calendar dates.
func (c Config) Location() *time.Location {
	if c.Reminder.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Reminder.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ParseConfirmChats parses "chat_id=link" pairs separated by commas or newlines.
func ParseConfirmChats(s string) ([]ConfirmChat, error) {
	var out []ConfirmChat
	for _, item := range splitList(s) {
		id, link, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("expected chat_id=link, got %q", item)
		}
		chatID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("chat id %q: %w", id, err)
		}
		out = append(out, ConfirmChat{ChatID: chatID, Link: strings.TrimSpace(link)})
	}
	return out, nil
}

func parseIDs(s string) ([]int64, error) {
	parts := splitList(s)
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' || r == '\t' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func getFloat(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return f, nil
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}
