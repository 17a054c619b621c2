package discord

import (
	"context"
	"fmt"
	"sort"

	"github.com/bwmarrin/discordgo"

	"confirmbot/internal/reminder"
	"confirmbot/internal/shared"
)

// api is the part of *discordgo.Session the adapter calls.
type api interface {
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	UserChannelPermissions(userID, channelID string, options ...discordgo.RequestOption) (int64, error)
}

// Channel delivers reminders as direct messages.
type Channel struct {
	api    api
	guilds func() []string
}

// NewChannel returns a Channel over s. Guilds come from the session state.
func NewChannel(s *discordgo.Session) *Channel {
	return &Channel{api: s, guilds: func() []string { return guildIDs(s) }}
}

func guildIDs(s *discordgo.Session) []string {
	if s.State == nil {
		return nil
	}
	s.State.RLock()
	defer s.State.RUnlock()
	ids := make([]string, 0, len(s.State.Guilds))
	for _, g := range s.State.Guilds {
		ids = append(ids, g.ID)
	}
	return ids
}

func (c *Channel) LookupRecipient(ctx context.Context, id reminder.Identity) (reminder.Recipient, error) {
	u, err := c.api.User(string(id), discordgo.WithContext(ctx))
	if err != nil {
		return reminder.Recipient{}, fmt.Errorf("fetch user: %w", err)
	}
	return reminder.Recipient{ID: id, Name: u.Username}, nil
}

// ResolveDisplayContext links the first text channel, ordered by position, where r may
// send messages in the first guild r belongs to.
func (c *Channel) ResolveDisplayContext(ctx context.Context, r reminder.Recipient) (string, error) {
	opt := discordgo.WithContext(ctx)
	for _, guildID := range c.guilds() {
		if _, err := c.api.GuildMember(guildID, string(r.ID), opt); err != nil {
			continue
		}
		channels, err := c.api.GuildChannels(guildID, opt)
		if err != nil {
			return "", fmt.Errorf("%w: list channels of %s: %w", shared.ErrResolution, guildID, err)
		}
		sort.SliceStable(channels, func(i, j int) bool { return channels[i].Position < channels[j].Position })
		for _, ch := range channels {
			if ch.Type != discordgo.ChannelTypeGuildText {
				continue
			}
			perms, err := c.api.UserChannelPermissions(string(r.ID), ch.ID, opt)
			if err != nil {
				continue
			}
			if perms&discordgo.PermissionSendMessages != 0 {
				return ChannelLink(guildID, ch.ID), nil
			}
		}
		return "", nil
	}
	return "", nil
}

func (c *Channel) SendDirectMessage(ctx context.Context, r reminder.Recipient, text string) error {
	opt := discordgo.WithContext(ctx)
	dm, err := c.api.UserChannelCreate(string(r.ID), opt)
	if err != nil {
		return fmt.Errorf("open dm: %w", err)
	}
	if _, err := c.api.ChannelMessageSend(dm.ID, text, opt); err != nil {
		return fmt.Errorf("send dm: %w", err)
	}
	return nil
}

// ChannelLink is the web link to a guild channel.
func ChannelLink(guildID, channelID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s", guildID, channelID)
}
