package api

import (
	"time"

	"github.com/kalambet/itembank/internal/ledger"
	"github.com/kalambet/itembank/internal/storage"
)

// Holder is one active loan as returned by the API.
type Holder struct {
	UserID        string    `json:"user_id"`
	BorrowedAt    time.Time `json:"borrowed_at"`
	ReminderStage int       `json:"reminder_stage"`
}

// ItemStatus is the API form of ledger.ItemStatus.
type ItemStatus struct {
	Name      string   `json:"name"`
	Emoji     string   `json:"emoji,omitempty"`
	Available bool     `json:"available"`
	Holders   []Holder `json:"holders"`
}

// HistoryEvent is the API form of storage.Event.
type HistoryEvent struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Item       string    `json:"item"`
	UserID     string    `json:"user_id"`
	Stage      int       `json:"stage"`
	OccurredAt time.Time `json:"occurred_at"`
	Detail     string    `json:"detail,omitempty"`
}

// ToItemStatuses converts ledger statuses for output.
func ToItemStatuses(in []ledger.ItemStatus) []ItemStatus {
	out := make([]ItemStatus, len(in))
	for i, st := range in {
		holders := make([]Holder, len(st.Holders))
		for j, h := range st.Holders {
			holders[j] = Holder{UserID: h.UserID, BorrowedAt: h.BorrowedAt.UTC(), ReminderStage: h.Stage}
		}
		out[i] = ItemStatus{
			Name:      st.Item.Name,
			Emoji:     st.Item.Emoji,
			Available: st.Available,
			Holders:   holders,
		}
	}
	return out
}

// ToHistoryEvents converts stored events for output.
func ToHistoryEvents(in []storage.Event) []HistoryEvent {
	out := make([]HistoryEvent, len(in))
	for i, e := range in {
		out[i] = HistoryEvent{
			ID:         e.ID,
			Kind:       e.Kind,
			Item:       e.Item,
			UserID:     e.UserID,
			Stage:      e.Stage,
			OccurredAt: e.OccurredAt.UTC(),
			Detail:     e.Detail,
		}
	}
	return out
}
