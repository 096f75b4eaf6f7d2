package board

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/itembank/internal/ledger"
	"github.com/kalambet/itembank/internal/storage"
)

// OverviewSlot is the slot name of the catalog-wide summary message.
const OverviewSlot = ""

// View is what a publisher renders into one message.
type View struct {
	Slot     string // OverviewSlot or an item name
	Statuses []ledger.ItemStatus
}

// IsOverview reports whether v is the summary message.
func (v View) IsOverview() bool { return v.Slot == OverviewSlot }

// Publisher renders views as channel messages.
type Publisher interface {
	Edit(ctx context.Context, messageID string, v View) error
	Send(ctx context.Context, v View) (string, error)
}

// MessageIDStore persists the slot to message id mapping.
type MessageIDStore interface {
	LoadMessageIDs() (storage.MessageIDs, ledger.LoadResult)
	SaveMessageIDs(ids storage.MessageIDs) error
}

// StatusSource provides the current per-item status.
type StatusSource interface {
	Statuses() []ledger.ItemStatus
}

// Board keeps the status messages in sync with the ledger.
type Board struct {
	source    StatusSource
	ids       MessageIDStore
	publisher Publisher
	debounce  time.Duration
	logger    *slog.Logger

	requests  chan struct{}
	refreshMu sync.Mutex
}

// Option configures a Board.
type Option func(*Board)

// WithDebounce sets the coalescing window. Values <= 0 keep the 1s default.
func WithDebounce(d time.Duration) Option {
	return func(b *Board) {
		if d > 0 {
			b.debounce = d
		}
	}
}

// New creates a Board.
func New(source StatusSource, ids MessageIDStore, publisher Publisher, opts ...Option) *Board {
	b := &Board{
		source:    source,
		ids:       ids,
		publisher: publisher,
		debounce:  time.Second,
		logger:    slog.Default(),
		requests:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Request schedules a refresh. It never blocks; requests made while one is
// already pending are merged into it.
func (b *Board) Request() {
	select {
	case b.requests <- struct{}{}:
	default:
	}
}

// Run serves refresh requests until ctx is cancelled. Each request waits out
// the debounce window, so a burst of mutations produces a single refresh.
func (b *Board) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.requests:
		}

		timer := time.NewTimer(b.debounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		select {
		case <-b.requests:
		default:
		}

		if err := b.Refresh(ctx); err != nil {
			b.logger.Error("board refresh failed", "error", err)
		}
	}
}

// Refresh edits every known message in place and sends new messages for
// slots that have none. A failed edit clears the slot so the message is
// recreated in the same pass.
func (b *Board) Refresh(ctx context.Context) error {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()

	statuses := b.source.Statuses()
	ids, res := b.ids.LoadMessageIDs()
	if res == ledger.LoadCorrupt {
		b.logger.Warn("message id file unreadable, recreating board messages")
	}

	views := make([]View, 0, len(statuses)+1)
	views = append(views, View{Slot: OverviewSlot, Statuses: statuses})
	known := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		views = append(views, View{Slot: st.Item.Name, Statuses: []ledger.ItemStatus{st}})
		known[st.Item.Name] = true
	}
	for item := range ids.Items {
		if !known[item] {
			b.logger.Info("forgetting message for item no longer in catalog", "item", item)
			delete(ids.Items, item)
		}
	}

	for _, v := range views {
		id := ids.Get(v.Slot)
		if id == "" {
			continue
		}
		if err := b.publisher.Edit(ctx, id, v); err != nil {
			b.logger.Warn("editing board message failed, will resend", "slot", slotName(v.Slot), "message_id", id, "error", err)
			ids.Set(v.Slot, "")
		}
	}

	var sendErr error
	for _, v := range views {
		if ids.Get(v.Slot) != "" {
			continue
		}
		id, err := b.publisher.Send(ctx, v)
		if err != nil {
			sendErr = fmt.Errorf("sending %s message: %w", slotName(v.Slot), err)
			break
		}
		ids.Set(v.Slot, id)
	}

	if err := b.ids.SaveMessageIDs(ids); err != nil {
		return fmt.Errorf("saving message ids: %w", err)
	}
	return sendErr
}

func slotName(slot string) string {
	if slot == OverviewSlot {
		return "overview"
	}
	return slot
}
