package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// api is the slice of *discordgo.Session the adapters in this package call.
// Narrowing it keeps the adapters testable without a live gateway.
type api interface {
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Channel adapts one Discord text channel to the outbound surface the
// stream sender writes to.
type Channel struct {
	chat      api
	channelID string
	guildID   string
}

// NewChannel wraps a Discord channel. guildID may be empty for DMs.
func NewChannel(chat api, channelID, guildID string) *Channel {
	return &Channel{chat: chat, channelID: channelID, guildID: guildID}
}

func (c *Channel) ID() string { return c.channelID }

// SendTyping shows the typing indicator. Discord keeps it visible for
// roughly ten seconds or until the next message lands.
func (c *Channel) SendTyping(ctx context.Context) error {
	return c.chat.ChannelTyping(c.channelID, discordgo.WithContext(ctx))
}

func (c *Channel) Send(ctx context.Context, content string) (string, error) {
	msg, err := c.chat.ChannelMessageSend(c.channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// Reply posts content as a Discord reply referencing toMessageID.
func (c *Channel) Reply(ctx context.Context, toMessageID, content string) (string, error) {
	ref := &discordgo.MessageReference{
		MessageID: toMessageID,
		ChannelID: c.channelID,
		GuildID:   c.guildID,
	}
	msg, err := c.chat.ChannelMessageSendReply(c.channelID, content, ref, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}
