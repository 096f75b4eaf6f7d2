package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/kalambet/itembank/internal/ledger"
)

const customIDPrefix = "itembank"

// CustomID encodes a as a button custom id: itembank:<kind>:<item>.
func CustomID(a ledger.Action) string {
	return customIDPrefix + ":" + string(a.Kind) + ":" + a.Item
}

// ParseCustomID decodes a button custom id produced by CustomID.
func ParseCustomID(id string) (ledger.Action, error) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 || parts[0] != customIDPrefix {
		return ledger.Action{}, fmt.Errorf("custom id %q: not an itembank button", id)
	}
	kind := ledger.CommandKind(parts[1])
	if !kind.Valid() {
		return ledger.Action{}, fmt.Errorf("custom id %q: unknown action %q", id, parts[1])
	}
	if parts[2] == "" {
		return ledger.Action{}, fmt.Errorf("custom id %q: missing item", id)
	}
	return ledger.Action{Kind: kind, Item: parts[2]}, nil
}

func actionButton(a ledger.Action) discordgo.Button {
	b := discordgo.Button{CustomID: CustomID(a)}
	switch a.Kind {
	case ledger.CommandBorrow:
		b.Label, b.Style = "Borrow", discordgo.SuccessButton
	case ledger.CommandReturn:
		b.Label, b.Style = "Return", discordgo.DangerButton
	default:
		b.Label, b.Style = "I still need it", discordgo.SecondaryButton
	}
	return b
}

// actionRows renders actions as a single row of buttons, or nil.
func actionRows(actions []ledger.Action) []discordgo.MessageComponent {
	if len(actions) == 0 {
		return nil
	}
	row := discordgo.ActionsRow{}
	for _, a := range actions {
		row.Components = append(row.Components, actionButton(a))
	}
	return []discordgo.MessageComponent{row}
}
