package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/itembank/internal/ledger"
)

type mockLedger struct {
	borrowFn func(item, userID string) error
	returnFn func(item, userID string) error
	calls    int
}

func (m *mockLedger) Borrow(item, userID string) error {
	m.calls++
	if m.borrowFn != nil {
		return m.borrowFn(item, userID)
	}
	return nil
}

func (m *mockLedger) Return(item, userID string) error {
	m.calls++
	if m.returnFn != nil {
		return m.returnFn(item, userID)
	}
	return nil
}

type mockDirectory struct {
	members map[string]bool
	names   map[string]string
	roleErr error
}

func (m *mockDirectory) HasRole(_ context.Context, userID, _ string) (bool, error) {
	if m.roleErr != nil {
		return false, m.roleErr
	}
	return m.members[userID], nil
}

func (m *mockDirectory) DisplayName(_ context.Context, userID string) string {
	if n, ok := m.names[userID]; ok {
		return n
	}
	return "Unknown(" + userID + ")"
}

type countingBoard struct{ requests int }

func (b *countingBoard) Request() { b.requests++ }

func newTestHandler(l *mockLedger, b *countingBoard) *Handler {
	dir := &mockDirectory{
		members: map[string]bool{"u1": true},
		names:   map[string]string{"u2": "Bohdan"},
	}
	return NewHandler(l, dir, b, "Member")
}

func borrow(item, user string) ledger.Command {
	return ledger.Command{Kind: ledger.CommandBorrow, Item: item, UserID: user}
}

func TestHandle_BorrowSuccessRequestsRefresh(t *testing.T) {
	l := &mockLedger{}
	b := &countingBoard{}

	reply := newTestHandler(l, b).Handle(context.Background(), borrow("Baium ring", "u1"))
	assert.True(t, reply.Success)
	assert.Contains(t, reply.Text, "Baium ring")
	assert.Equal(t, 1, b.requests)
}

func TestHandle_MissingRoleRejectedBeforeLedger(t *testing.T) {
	l := &mockLedger{}
	b := &countingBoard{}

	reply := newTestHandler(l, b).Handle(context.Background(), borrow("Baium ring", "stranger"))
	assert.False(t, reply.Success)
	assert.Contains(t, reply.Text, "Member")
	assert.Zero(t, l.calls)
	assert.Zero(t, b.requests)
}

func TestHandle_UnavailableNamesHolder(t *testing.T) {
	l := &mockLedger{borrowFn: func(item, _ string) error {
		return &ledger.ItemUnavailableError{Item: item, Holder: "u2"}
	}}
	b := &countingBoard{}

	reply := newTestHandler(l, b).Handle(context.Background(), borrow("Baium ring", "u1"))
	assert.False(t, reply.Success)
	assert.Contains(t, reply.Text, "Bohdan")
	assert.Zero(t, b.requests)
}

func TestHandle_DomainRejections(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"already holding", ledger.ErrAlreadyHolding, "already have"},
		{"not holding", ledger.ErrNotHolding, "don't have"},
		{"unknown item", ledger.ErrUnknownItem, "no item called"},
		{"persistence", errors.New("saving ledger: disk full"), "Something went wrong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &mockLedger{returnFn: func(string, string) error { return tt.err }}
			reply := newTestHandler(l, &countingBoard{}).Handle(context.Background(),
				ledger.Command{Kind: ledger.CommandReturn, Item: "Baium ring", UserID: "u1"})
			assert.False(t, reply.Success)
			assert.Contains(t, reply.Text, tt.want)
		})
	}
}

func TestHandle_AcknowledgeSkipsRoleCheck(t *testing.T) {
	l := &mockLedger{}
	b := &countingBoard{}

	reply := newTestHandler(l, b).Handle(context.Background(),
		ledger.Command{Kind: ledger.CommandAcknowledge, Item: "Baium ring", UserID: "stranger"})
	require.True(t, reply.Success)
	assert.Zero(t, l.calls)
	assert.Zero(t, b.requests)
}

func TestHandle_RoleLookupError(t *testing.T) {
	l := &mockLedger{}
	h := NewHandler(l, &mockDirectory{roleErr: errors.New("rate limited")}, nil, "Member")

	reply := h.Handle(context.Background(), borrow("Baium ring", "u1"))
	assert.False(t, reply.Success)
	assert.Equal(t, genericFailure, reply.Text)
	assert.Zero(t, l.calls)
}

func TestHandle_UnknownKind(t *testing.T) {
	reply := newTestHandler(&mockLedger{}, &countingBoard{}).Handle(context.Background(),
		ledger.Command{Kind: "steal", Item: "Baium ring", UserID: "u1"})
	assert.False(t, reply.Success)
}
