package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/kalambet/itembank/internal/board"
	"github.com/kalambet/itembank/internal/ledger"
)

const (
	colorGold  = 0xF1C40F
	colorGreen = 0x2ECC71
	colorRed   = 0xE74C3C
)

// Names resolves user ids for rendering.
type Names interface {
	DisplayName(ctx context.Context, userID string) string
}

// Publisher renders board views as embeds in the bank channel.
type Publisher struct {
	session   Session
	channelID string
	names     Names
}

// NewPublisher creates a Publisher.
func NewPublisher(s Session, channelID string, names Names) *Publisher {
	return &Publisher{session: s, channelID: channelID, names: names}
}

// Send posts a new message for v and returns its id.
func (p *Publisher) Send(ctx context.Context, v board.View) (string, error) {
	msg, err := p.session.ChannelMessageSendComplex(p.channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{p.embed(ctx, v)},
		Components: viewComponents(v),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// Edit replaces the content of an existing message.
func (p *Publisher) Edit(ctx context.Context, messageID string, v board.View) error {
	embeds := []*discordgo.MessageEmbed{p.embed(ctx, v)}
	components := viewComponents(v)
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	_, err := p.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         messageID,
		Channel:    p.channelID,
		Embeds:     &embeds,
		Components: &components,
	}, discordgo.WithContext(ctx))
	return err
}

func (p *Publisher) embed(ctx context.Context, v board.View) *discordgo.MessageEmbed {
	if v.IsOverview() {
		e := &discordgo.MessageEmbed{
			Title:       "📦 Shared items",
			Description: "Use **Borrow** or **Return** under each item.",
			Color:       colorGold,
			Footer:      &discordgo.MessageEmbedFooter{Text: "✅ Changes are saved automatically"},
		}
		for _, st := range v.Statuses {
			e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
				Name:  st.Item.Label(),
				Value: p.statusLine(ctx, st),
			})
		}
		return e
	}

	if len(v.Statuses) == 0 {
		return &discordgo.MessageEmbed{Title: v.Slot, Color: colorGreen}
	}
	st := v.Statuses[0]
	color := colorGreen
	if !st.Available {
		color = colorRed
	}
	return &discordgo.MessageEmbed{
		Title:       st.Item.Label(),
		Description: p.statusLine(ctx, st),
		Color:       color,
	}
}

func (p *Publisher) statusLine(ctx context.Context, st ledger.ItemStatus) string {
	if st.Available {
		return "🟢 Available"
	}
	names := make([]string, 0, len(st.Holders))
	for _, h := range st.Holders {
		names = append(names, p.names.DisplayName(ctx, h.UserID))
	}
	line := "🔴 Held by " + strings.Join(names, ", ")
	if len(st.Holders) == 1 && !st.Holders[0].BorrowedAt.IsZero() {
		line += fmt.Sprintf(" since <t:%d:R>", st.Holders[0].BorrowedAt.Unix())
	}
	return line
}

func viewComponents(v board.View) []discordgo.MessageComponent {
	if v.IsOverview() {
		return nil
	}
	return actionRows([]ledger.Action{
		{Kind: ledger.CommandBorrow, Item: v.Slot},
		{Kind: ledger.CommandReturn, Item: v.Slot},
	})
}
