package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/kalambet/itembank/internal/ledger"
)

// Notifier sends reminders as direct messages and channel alerts.
type Notifier struct {
	session   Session
	channelID string
}

// NewNotifier creates a Notifier posting channel alerts to channelID.
func NewNotifier(s Session, channelID string) *Notifier {
	return &Notifier{session: s, channelID: channelID}
}

// SendDirect opens a DM with userID and sends text with optional buttons.
func (n *Notifier) SendDirect(ctx context.Context, userID, text string, actions []ledger.Action) error {
	ch, err := n.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("opening dm with %s: %w", userID, err)
	}
	msg := &discordgo.MessageSend{
		Content:    text,
		Components: actionRows(actions),
	}
	if _, err := n.session.ChannelMessageSendComplex(ch.ID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("sending dm to %s: %w", userID, err)
	}
	return nil
}

// SendChannel posts text to the bank channel, mentioning only the given users.
func (n *Notifier) SendChannel(ctx context.Context, text string, mentionUserIDs []string) error {
	var b strings.Builder
	for _, id := range mentionUserIDs {
		b.WriteString("<@" + id + "> ")
	}
	b.WriteString(text)

	msg := &discordgo.MessageSend{
		Content: b.String(),
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Users: mentionUserIDs,
		},
	}
	if _, err := n.session.ChannelMessageSendComplex(n.channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("sending channel alert: %w", err)
	}
	return nil
}
