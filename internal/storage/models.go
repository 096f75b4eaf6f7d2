package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Event is one row of loan history.
type Event struct {
	ID         string
	Kind       string // "borrow", "return", "reminder"
	Item       string
	UserID     string
	Stage      int
	OccurredAt time.Time
	Detail     string
}

// MessageIDs maps render slots to platform message ids so later runs can
// edit messages in place. The overview slot is addressed with an empty item name.
type MessageIDs struct {
	Overview *string           `json:"overview"`
	Items    map[string]*string `json:"items"`
}

// NewMessageIDs returns an empty mapping.
func NewMessageIDs() MessageIDs {
	return MessageIDs{Items: make(map[string]*string)}
}

// Get returns the stored id for item ("" for the overview), or "".
func (m MessageIDs) Get(item string) string {
	p := m.Overview
	if item != "" {
		p = m.Items[item]
	}
	if p == nil {
		return ""
	}
	return *p
}

// Set stores id for item ("" for the overview). An empty id clears the slot.
func (m *MessageIDs) Set(item, id string) {
	var p *string
	if id != "" {
		p = &id
	}
	if item == "" {
		m.Overview = p
		return
	}
	if m.Items == nil {
		m.Items = make(map[string]*string)
	}
	m.Items[item] = p
}
