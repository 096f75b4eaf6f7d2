// Package discord adapts the bot to the Discord API through discordgo.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Session is the subset of *discordgo.Session the bot uses.
type Session interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DefaultIntents are the gateway intents the bot needs: guild metadata and
// member lookups for role checks.
const DefaultIntents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

// Connect creates a bot session and opens the gateway connection.
func Connect(token string, intents discordgo.Intent) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	s.Identify.Intents = intents
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("connected to discord", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("opening discord session: %w", err)
	}
	return s, nil
}

// ChannelName fetches the bank channel, failing when the bot cannot see it.
func ChannelName(ctx context.Context, s Session, channelID string) (string, error) {
	ch, err := s.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("fetching channel %s: %w", channelID, err)
	}
	return ch.Name, nil
}
