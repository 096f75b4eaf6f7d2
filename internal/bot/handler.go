// Package bot turns member commands into ledger operations and replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/itembank/internal/ledger"
)

// Directory answers identity questions about community members.
type Directory interface {
	HasRole(ctx context.Context, userID, role string) (bool, error)
	DisplayName(ctx context.Context, userID string) string
}

// Ledger is the subset of ledger.Service the handler mutates.
type Ledger interface {
	Borrow(item, userID string) error
	Return(item, userID string) error
}

// Refresher is notified after every successful mutation.
type Refresher interface {
	Request()
}

// Reply is the private response to one command.
type Reply struct {
	Text    string
	Success bool
}

// Handler dispatches commands. Borrow and return require the member role;
// acknowledgements do not.
type Handler struct {
	ledger    Ledger
	directory Directory
	board     Refresher
	role      string
	logger    *slog.Logger
}

// NewHandler creates a Handler. board may be nil.
func NewHandler(l Ledger, dir Directory, board Refresher, role string) *Handler {
	return &Handler{
		ledger:    l,
		directory: dir,
		board:     board,
		role:      role,
		logger:    slog.Default(),
	}
}

const genericFailure = "⚠️ Something went wrong, please try again later."

// Handle executes cmd and returns exactly one reply for the requester.
func (h *Handler) Handle(ctx context.Context, cmd ledger.Command) Reply {
	switch cmd.Kind {
	case ledger.CommandAcknowledge:
		return Reply{Text: fmt.Sprintf("👍 Got it, keep **%s** for now. We'll check in again later.", cmd.Item), Success: true}
	case ledger.CommandBorrow, ledger.CommandReturn:
	default:
		return Reply{Text: "❌ Unknown action."}
	}

	ok, err := h.directory.HasRole(ctx, cmd.UserID, h.role)
	if err != nil {
		h.logger.Error("role lookup failed", "user_id", cmd.UserID, "role", h.role, "error", err)
		return Reply{Text: genericFailure}
	}
	if !ok {
		return Reply{Text: fmt.Sprintf("❌ You need the **%s** role to do that.", h.role)}
	}

	if cmd.Kind == ledger.CommandBorrow {
		err = h.ledger.Borrow(cmd.Item, cmd.UserID)
	} else {
		err = h.ledger.Return(cmd.Item, cmd.UserID)
	}
	if err != nil {
		return h.rejection(ctx, cmd, err)
	}

	h.logger.Info("loan updated", "kind", string(cmd.Kind), "item", cmd.Item, "user_id", cmd.UserID)
	if h.board != nil {
		h.board.Request()
	}
	if cmd.Kind == ledger.CommandBorrow {
		return Reply{Text: fmt.Sprintf("✅ You took **%s**! 🎮", cmd.Item), Success: true}
	}
	return Reply{Text: fmt.Sprintf("✅ You returned **%s** to the bank! 🙏", cmd.Item), Success: true}
}

func (h *Handler) rejection(ctx context.Context, cmd ledger.Command, err error) Reply {
	var unavailable *ledger.ItemUnavailableError
	switch {
	case errors.As(err, &unavailable):
		name := h.directory.DisplayName(ctx, unavailable.Holder)
		return Reply{Text: fmt.Sprintf("❌ **%s** is with **%s**. Wait until they bring it back.", cmd.Item, name)}
	case errors.Is(err, ledger.ErrAlreadyHolding):
		return Reply{Text: fmt.Sprintf("⚠️ You already have **%s**!", cmd.Item)}
	case errors.Is(err, ledger.ErrNotHolding):
		return Reply{Text: fmt.Sprintf("❌ You don't have **%s** borrowed!", cmd.Item)}
	case errors.Is(err, ledger.ErrUnknownItem):
		return Reply{Text: fmt.Sprintf("❌ There is no item called **%s**.", cmd.Item)}
	}
	h.logger.Error("loan update failed", "kind", string(cmd.Kind), "item", cmd.Item, "user_id", cmd.UserID, "error", err)
	return Reply{Text: genericFailure}
}
