package telegram

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"confirmbot/internal/config"
	"confirmbot/internal/reminder"
	"confirmbot/internal/shared"
)

// API is the part of *bot.Bot the channel calls.
type API interface {
	GetChat(ctx context.Context, params *bot.GetChatParams) (*models.ChatFullInfo, error)
	GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*models.ChatMember, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Channel delivers reminders as private messages. The display context is the link
// of the first confirmation chat the subscriber belongs to.
type Channel struct {
	api   API
	chats []config.ConfirmChat
}

func NewChannel(api API, chats []config.ConfirmChat) *Channel {
	return &Channel{api: api, chats: chats}
}

// LookupRecipient checks that id is a user the bot can reach.
func (c *Channel) LookupRecipient(ctx context.Context, id reminder.Identity) (reminder.Recipient, error) {
	chatID, err := userID(id)
	if err != nil {
		return reminder.Recipient{}, err
	}
	chat, err := c.api.GetChat(ctx, &bot.GetChatParams{ChatID: chatID})
	if err != nil {
		return reminder.Recipient{}, fmt.Errorf("get chat: %w", err)
	}
	name := chat.Username
	if name == "" {
		name = chat.FirstName
	}
	return reminder.Recipient{ID: id, Name: name}, nil
}

func (c *Channel) ResolveDisplayContext(ctx context.Context, r reminder.Recipient) (string, error) {
	uid, err := userID(r.ID)
	if err != nil {
		return "", err
	}
	var lastErr error
	for _, chat := range c.chats {
		m, err := c.api.GetChatMember(ctx, &bot.GetChatMemberParams{ChatID: chat.ChatID, UserID: uid})
		if err != nil {
			lastErr = err
			continue
		}
		if isMember(m) {
			return chat.Link, nil
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrResolution, lastErr)
	}
	return "", nil
}

func (c *Channel) SendDirectMessage(ctx context.Context, r reminder.Recipient, text string) error {
	chatID, err := userID(r.ID)
	if err != nil {
		return err
	}
	if _, err := c.api.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func userID(id reminder.Identity) (int64, error) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: telegram user id %q is not numeric", shared.ErrValidation, id)
	}
	return n, nil
}

func isMember(m *models.ChatMember) bool {
	if m == nil {
		return false
	}
	switch m.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator, models.ChatMemberTypeMember:
		return true
	case models.ChatMemberTypeRestricted:
		return m.Restricted != nil && m.Restricted.IsMember
	default:
		return false
	}
}
