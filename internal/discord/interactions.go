package discord

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/kalambet/itembank/internal/bot"
	"github.com/kalambet/itembank/internal/ledger"
)

// CommandHandler executes member commands.
type CommandHandler interface {
	Handle(ctx context.Context, cmd ledger.Command) bot.Reply
}

// InteractionHandler turns button clicks into commands and answers each
// one with an ephemeral reply. The click is acknowledged with a deferred
// response first and the reply is edited in afterwards.
type InteractionHandler struct {
	session  Session
	commands CommandHandler
	timeout  time.Duration
	logger   *slog.Logger
}

// NewInteractionHandler creates an InteractionHandler.
func NewInteractionHandler(s Session, commands CommandHandler) *InteractionHandler {
	return &InteractionHandler{
		session:  s,
		commands: commands,
		timeout:  10 * time.Second,
		logger:   slog.Default(),
	}
}

// OnInteractionCreate is registered with discordgo's AddHandler.
func (h *InteractionHandler) OnInteractionCreate(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	h.Handle(ctx, ic.Interaction)
}

// Handle processes one interaction. Interactions that are not itembank
// buttons are ignored.
func (h *InteractionHandler) Handle(ctx context.Context, i *discordgo.Interaction) {
	if i == nil || i.Type != discordgo.InteractionMessageComponent {
		return
	}
	action, err := ParseCustomID(i.MessageComponentData().CustomID)
	if err != nil {
		h.logger.Debug("ignoring component interaction", "error", err)
		return
	}
	userID := interactionUserID(i)
	if userID == "" {
		h.logger.Warn("component interaction without a user", "interaction_id", i.ID)
		return
	}

	// Acknowledge within Discord's three second window; the reply follows
	// once the command has run.
	err = h.session.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(ctx))
	if err != nil {
		h.logger.Warn("acknowledging interaction failed", "interaction_id", i.ID, "error", err)
		return
	}

	reply := h.commands.Handle(ctx, ledger.Command{Kind: action.Kind, Item: action.Item, UserID: userID})
	_, err = h.session.InteractionResponseEdit(i, &discordgo.WebhookEdit{Content: &reply.Text}, discordgo.WithContext(ctx))
	if err != nil {
		h.logger.Warn("sending interaction reply failed", "interaction_id", i.ID, "error", err)
	}
}

// interactionUserID returns the clicking user. Guild interactions carry a
// member, DM interactions a bare user.
func interactionUserID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
