package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confirmbot/internal/command"
	"confirmbot/internal/reminder"
)

type fakeAPI struct {
	users    map[string]*discordgo.User
	members  map[string]map[string]bool // guild -> user
	channels map[string][]*discordgo.Channel
	perms    map[string]int64 // channel -> permissions
	sendErr  error
	sent     map[string]string // dm channel -> content
}

func (f *fakeAPI) User(id string, _ ...discordgo.RequestOption) (*discordgo.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, errors.New("HTTP 404 Not Found")
}

func (f *fakeAPI) UserChannelCreate(id string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: "dm-" + id}, nil
}

func (f *fakeAPI) ChannelMessageSend(ch, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent[ch] = content
	return &discordgo.Message{}, nil
}

func (f *fakeAPI) GuildMember(guildID, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	if f.members[guildID][userID] {
		return &discordgo.Member{User: &discordgo.User{ID: userID}}, nil
	}
	return nil, errors.New("unknown member")
}

func (f *fakeAPI) GuildChannels(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	return f.channels[guildID], nil
}

func (f *fakeAPI) UserChannelPermissions(_, channelID string, _ ...discordgo.RequestOption) (int64, error) {
	return f.perms[channelID], nil
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		users: map[string]*discordgo.User{"1": {ID: "1", Username: "alice"}},
		members: map[string]map[string]bool{
			"g2": {"1": true},
			"g3": {"1": true},
		},
		channels: map[string][]*discordgo.Channel{
			"g2": {
				{ID: "rules", Type: discordgo.ChannelTypeGuildText, Position: 0},
				{ID: "voice", Type: discordgo.ChannelTypeGuildVoice, Position: 1},
				{ID: "general", Type: discordgo.ChannelTypeGuildText, Position: 2},
				{ID: "offtopic", Type: discordgo.ChannelTypeGuildText, Position: 3},
			},
		},
		perms: map[string]int64{
			"rules":    discordgo.PermissionViewChannel,
			"voice":    discordgo.PermissionAllVoice,
			"general":  discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
			"offtopic": discordgo.PermissionSendMessages,
		},
		sent: map[string]string{},
	}
}

func TestChannel_LookupRecipient(t *testing.T) {
	c := &Channel{api: newFakeAPI(), guilds: func() []string { return nil }}

	r, err := c.LookupRecipient(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, reminder.Recipient{ID: "1", Name: "alice"}, r)

	_, err = c.LookupRecipient(context.Background(), "2")
	assert.Error(t, err)
}

func TestChannel_ResolveDisplayContext(t *testing.T) {
	c := &Channel{api: newFakeAPI(), guilds: func() []string { return []string{"g1", "g2", "g3"} }}

	link, err := c.ResolveDisplayContext(context.Background(), reminder.Recipient{ID: "1"})
	require.NoError(t, err)
	assert.Equal(t, "https://discord.com/channels/g2/general", link)

	link, err = c.ResolveDisplayContext(context.Background(), reminder.Recipient{ID: "9"})
	require.NoError(t, err)
	assert.Empty(t, link)
}

func TestChannel_SendDirectMessage(t *testing.T) {
	api := newFakeAPI()
	c := &Channel{api: api, guilds: func() []string { return nil }}

	require.NoError(t, c.SendDirectMessage(context.Background(), reminder.Recipient{ID: "1"}, "hello"))
	assert.Equal(t, "hello", api.sent["dm-1"])

	api.sendErr = errors.New("Cannot send messages to this user")
	assert.Error(t, c.SendDirectMessage(context.Background(), reminder.Recipient{ID: "1"}, "hello"))
}

func TestChannel_WithDispatcher(t *testing.T) {
	api := newFakeAPI()
	api.users["2"] = &discordgo.User{ID: "2", Username: "bob"}
	c := &Channel{api: api, guilds: func() []string { return []string{"g2"} }}

	rep := reminder.NewDispatcher(c, reminder.DispatcherOptions{Concurrency: 1}).Dispatch(context.Background(), []reminder.Identity{"1", "2", "3"})

	assert.Equal(t, 2, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, reminder.ReminderText("https://discord.com/channels/g2/general"), api.sent["dm-1"])
	assert.Equal(t, reminder.ReminderText(reminder.Placeholder), api.sent["dm-2"])
}

type staticEstimate struct{}

func (staticEstimate) NextFireEstimate() reminder.Estimate { return reminder.Estimate{} }

type memRegistry map[reminder.Identity]bool

func (m memRegistry) Add(_ context.Context, id reminder.Identity) (reminder.AddResult, error) {
	if m[id] {
		return reminder.AlreadyPresent, nil
	}
	m[id] = true
	return reminder.Added, nil
}

func (m memRegistry) Remove(_ context.Context, id reminder.Identity) (reminder.RemoveResult, error) {
	if !m[id] {
		return reminder.NotPresent, nil
	}
	delete(m, id)
	return reminder.Removed, nil
}

func TestBot_Reply(t *testing.T) {
	reg := memRegistry{}
	b := &Bot{surface: command.New(reg, staticEstimate{}, func() int { return 25 }, nil)}
	u := &discordgo.User{ID: "42", Username: "alice"}
	ctx := context.Background()

	assert.Contains(t, b.reply(ctx, command.NameAddReminder, u), "You've been added")
	assert.True(t, reg["42"])
	assert.Equal(t, "You've been removed from the reminder list!", b.reply(ctx, command.NameRemoveReminder, u))
	assert.Equal(t, "Thank you for confirming your activity!", b.reply(ctx, command.NameConfirm, u))
	assert.Equal(t, "No reminders have been sent yet.", b.reply(ctx, command.NameNextReminder, u))
	assert.Contains(t, b.reply(ctx, "launch", u), "An error occurred")
	assert.Contains(t, b.reply(ctx, command.NameConfirm, nil), "An error occurred")
}

func TestInteractionUser(t *testing.T) {
	guild := &discordgo.Interaction{Member: &discordgo.Member{User: &discordgo.User{ID: "1"}}}
	dm := &discordgo.Interaction{User: &discordgo.User{ID: "2"}}

	assert.Equal(t, "1", interactionUser(guild).ID)
	assert.Equal(t, "2", interactionUser(dm).ID)
}

func TestBot_IsOwner(t *testing.T) {
	b := &Bot{owners: map[string]struct{}{"7": {}}}
	assert.True(t, b.isOwner("7"))
	assert.False(t, b.isOwner("8"))
}
