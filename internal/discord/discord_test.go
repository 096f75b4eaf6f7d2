package discord

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/kalambet/itembank/internal/board"
	"github.com/kalambet/itembank/internal/bot"
	"github.com/kalambet/itembank/internal/ledger"
)

type mockSession struct {
	sendFn    func(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error)
	editFn    func(m *discordgo.MessageEdit) (*discordgo.Message, error)
	dmFn      func(userID string) (*discordgo.Channel, error)
	memberFn  func(guildID, userID string) (*discordgo.Member, error)
	rolesFn   func(guildID string) ([]*discordgo.Role, error)
	respondFn func(i *discordgo.Interaction, r *discordgo.InteractionResponse) error
	replyFn   func(i *discordgo.Interaction, e *discordgo.WebhookEdit) error

	roleCalls int
}

func (m *mockSession) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: channelID, Name: "item-bank"}, nil
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.sendFn(channelID, data)
}

func (m *mockSession) ChannelMessageEditComplex(e *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.editFn(e)
}

func (m *mockSession) UserChannelCreate(userID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return m.dmFn(userID)
}

func (m *mockSession) GuildMember(guildID, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	return m.memberFn(guildID, userID)
}

func (m *mockSession) GuildRoles(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	m.roleCalls++
	return m.rolesFn(guildID)
}

func (m *mockSession) InteractionRespond(i *discordgo.Interaction, r *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	return m.respondFn(i, r)
}

func (m *mockSession) InteractionResponseEdit(i *discordgo.Interaction, e *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if err := m.replyFn(i, e); err != nil {
		return nil, err
	}
	return &discordgo.Message{ID: "reply"}, nil
}

func TestCustomIDRoundTrip(t *testing.T) {
	for _, a := range []ledger.Action{
		{Kind: ledger.CommandBorrow, Item: "Baium ring"},
		{Kind: ledger.CommandReturn, Item: "Item: with colon"},
		{Kind: ledger.CommandAcknowledge, Item: "Freya necklace"},
	} {
		got, err := ParseCustomID(CustomID(a))
		if err != nil {
			t.Fatalf("ParseCustomID(%q): %v", CustomID(a), err)
		}
		if got != a {
			t.Errorf("round trip = %+v, want %+v", got, a)
		}
	}
}

func TestParseCustomIDRejectsForeignIDs(t *testing.T) {
	for _, id := range []string{"", "other:borrow:Ring", "itembank:steal:Ring", "itembank:borrow:", "itembank:borrow"} {
		if _, err := ParseCustomID(id); err == nil {
			t.Errorf("ParseCustomID(%q) succeeded, want error", id)
		}
	}
}

func TestDirectoryDisplayNameFallbacks(t *testing.T) {
	members := map[string]*discordgo.Member{
		"nick":   {Nick: "Nicky", User: &discordgo.User{ID: "nick", GlobalName: "Global", Username: "user"}},
		"global": {User: &discordgo.User{ID: "global", GlobalName: "Global", Username: "user"}},
		"plain":  {User: &discordgo.User{ID: "plain", Username: "user"}},
	}
	s := &mockSession{memberFn: func(_, userID string) (*discordgo.Member, error) {
		if m, ok := members[userID]; ok {
			return m, nil
		}
		return nil, errors.New("unknown member")
	}}
	d := NewDirectory(s, "g1")

	tests := map[string]string{"nick": "Nicky", "global": "Global", "plain": "user", "gone": "Unknown(gone)"}
	for id, want := range tests {
		if got := d.DisplayName(context.Background(), id); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestDirectoryHasRole(t *testing.T) {
	s := &mockSession{
		rolesFn: func(string) ([]*discordgo.Role, error) {
			return []*discordgo.Role{{ID: "r1", Name: "Člen"}, {ID: "r2", Name: "Officer"}}, nil
		},
		memberFn: func(_, userID string) (*discordgo.Member, error) {
			switch userID {
			case "member":
				return &discordgo.Member{Roles: []string{"r1"}}, nil
			case "officer":
				return &discordgo.Member{Roles: []string{"r2"}}, nil
			}
			return nil, &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}
		},
	}
	d := NewDirectory(s, "g1")
	ctx := context.Background()

	for user, want := range map[string]bool{"member": true, "officer": false, "left-guild": false} {
		got, err := d.HasRole(ctx, user, "Člen")
		if err != nil {
			t.Fatalf("HasRole(%q): %v", user, err)
		}
		if got != want {
			t.Errorf("HasRole(%q) = %v, want %v", user, got, want)
		}
	}
	if s.roleCalls != 1 {
		t.Errorf("GuildRoles called %d times, want 1 (cached)", s.roleCalls)
	}

	ok, err := d.HasRole(ctx, "member", "Missing role")
	if err != nil || ok {
		t.Errorf("HasRole with missing role = %v, %v; want false, nil", ok, err)
	}
}

func TestDirectoryRefetchesUnknownRole(t *testing.T) {
	roles := []*discordgo.Role{{ID: "r2", Name: "Officer"}}
	s := &mockSession{
		rolesFn: func(string) ([]*discordgo.Role, error) { return roles, nil },
		memberFn: func(_, _ string) (*discordgo.Member, error) {
			return &discordgo.Member{Roles: []string{"r1"}}, nil
		},
	}
	d := NewDirectory(s, "g1")
	ctx := context.Background()

	ok, err := d.HasRole(ctx, "member", "Člen")
	if err != nil || ok {
		t.Fatalf("HasRole before role exists = %v, %v; want false, nil", ok, err)
	}

	// Created after the first lookup; still inside the refetch window.
	roles = append(roles, &discordgo.Role{ID: "r1", Name: "Člen"})
	if ok, _ := d.HasRole(ctx, "member", "Člen"); ok {
		t.Error("HasRole inside refetch window = true, want cached false")
	}
	if s.roleCalls != 1 {
		t.Fatalf("GuildRoles called %d times, want 1", s.roleCalls)
	}

	d.rolesTTL = 0
	ok, err = d.HasRole(ctx, "member", "Člen")
	if err != nil || !ok {
		t.Fatalf("HasRole after refetch = %v, %v; want true, nil", ok, err)
	}
	if s.roleCalls != 2 {
		t.Errorf("GuildRoles called %d times, want 2", s.roleCalls)
	}
}

func TestNotifierSendDirectWithButtons(t *testing.T) {
	var gotChannel string
	var gotMsg *discordgo.MessageSend
	s := &mockSession{
		dmFn: func(userID string) (*discordgo.Channel, error) {
			return &discordgo.Channel{ID: "dm-" + userID}, nil
		},
		sendFn: func(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
			gotChannel, gotMsg = channelID, data
			return &discordgo.Message{ID: "1"}, nil
		},
	}

	err := NewNotifier(s, "bank").SendDirect(context.Background(), "u1", "hello", []ledger.Action{
		{Kind: ledger.CommandReturn, Item: "Baium ring"},
		{Kind: ledger.CommandAcknowledge, Item: "Baium ring"},
	})
	if err != nil {
		t.Fatalf("SendDirect: %v", err)
	}
	if gotChannel != "dm-u1" {
		t.Errorf("channel = %q, want dm-u1", gotChannel)
	}
	row, ok := gotMsg.Components[0].(discordgo.ActionsRow)
	if !ok || len(row.Components) != 2 {
		t.Fatalf("components = %#v, want one row of two buttons", gotMsg.Components)
	}
	if b := row.Components[0].(discordgo.Button); b.CustomID != "itembank:return:Baium ring" || b.Style != discordgo.DangerButton {
		t.Errorf("first button = %+v", b)
	}
}

func TestNotifierSendDirectFailure(t *testing.T) {
	s := &mockSession{dmFn: func(string) (*discordgo.Channel, error) {
		return nil, errors.New("cannot send messages to this user")
	}}
	if err := NewNotifier(s, "bank").SendDirect(context.Background(), "u1", "hi", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestNotifierSendChannelMentionsOnlyHolder(t *testing.T) {
	var got *discordgo.MessageSend
	s := &mockSession{sendFn: func(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error) {
		if channelID != "bank" {
			t.Errorf("channel = %q, want bank", channelID)
		}
		got = data
		return &discordgo.Message{ID: "1"}, nil
	}}

	if err := NewNotifier(s, "bank").SendChannel(context.Background(), "return it", []string{"u9"}); err != nil {
		t.Fatalf("SendChannel: %v", err)
	}
	if !strings.HasPrefix(got.Content, "<@u9> ") {
		t.Errorf("content = %q, want mention prefix", got.Content)
	}
	if got.AllowedMentions == nil || len(got.AllowedMentions.Users) != 1 || got.AllowedMentions.Users[0] != "u9" {
		t.Errorf("allowed mentions = %+v", got.AllowedMentions)
	}
}

type staticNames map[string]string

func (n staticNames) DisplayName(_ context.Context, id string) string { return n[id] }

func TestPublisherRendersViews(t *testing.T) {
	var sent []*discordgo.MessageSend
	var edited *discordgo.MessageEdit
	s := &mockSession{
		sendFn: func(_ string, data *discordgo.MessageSend) (*discordgo.Message, error) {
			sent = append(sent, data)
			return &discordgo.Message{ID: "m1"}, nil
		},
		editFn: func(e *discordgo.MessageEdit) (*discordgo.Message, error) {
			edited = e
			return &discordgo.Message{ID: e.ID}, nil
		},
	}
	p := NewPublisher(s, "bank", staticNames{"u1": "Ana"})

	ring := ledger.Item{Name: "Baium ring", Emoji: "💍"}
	held := ledger.Summarize(ring, []ledger.LoanRecord{{Item: ring.Name, UserID: "u1", BorrowedAt: time.Unix(1700000000, 0)}})
	free := ledger.Summarize(ledger.Item{Name: "Freya necklace"}, nil)
	ctx := context.Background()

	id, err := p.Send(ctx, board.View{Slot: board.OverviewSlot, Statuses: []ledger.ItemStatus{held, free}})
	if err != nil || id != "m1" {
		t.Fatalf("Send = %q, %v", id, err)
	}
	overview := sent[0].Embeds[0]
	if len(overview.Fields) != 2 || !strings.Contains(overview.Fields[0].Value, "Ana") || !strings.Contains(overview.Fields[1].Value, "Available") {
		t.Errorf("overview fields = %+v", overview.Fields)
	}
	if len(sent[0].Components) != 0 {
		t.Errorf("overview should have no buttons")
	}

	if err := p.Edit(ctx, "m7", board.View{Slot: ring.Name, Statuses: []ledger.ItemStatus{held}}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if edited.ID != "m7" || edited.Channel != "bank" {
		t.Errorf("edit target = %s/%s", edited.Channel, edited.ID)
	}
	e := (*edited.Embeds)[0]
	if e.Color != colorRed || e.Title != "💍 Baium ring" || !strings.Contains(e.Description, "<t:1700000000:R>") {
		t.Errorf("item embed = %+v", e)
	}
	if len(*edited.Components) != 1 {
		t.Errorf("item message should carry one button row")
	}
}

type recordingCommands struct {
	got []ledger.Command
}

func (r *recordingCommands) Handle(_ context.Context, cmd ledger.Command) bot.Reply {
	r.got = append(r.got, cmd)
	return bot.Reply{Text: "✅ done", Success: true}
}

func componentInteraction(customID string) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:   "i1",
		Type: discordgo.InteractionMessageComponent,
		Data: discordgo.MessageComponentInteractionData{CustomID: customID},
	}
}

func TestInteractionHandlerRoutesButtons(t *testing.T) {
	var steps []string
	var resp *discordgo.InteractionResponse
	var replies []string
	cmds := &recordingCommands{}
	s := &mockSession{
		respondFn: func(_ *discordgo.Interaction, r *discordgo.InteractionResponse) error {
			steps = append(steps, "defer")
			resp = r
			return nil
		},
		replyFn: func(_ *discordgo.Interaction, e *discordgo.WebhookEdit) error {
			steps = append(steps, "reply")
			replies = append(replies, *e.Content)
			return nil
		},
	}
	h := NewInteractionHandler(s, cmds)

	guildClick := componentInteraction("itembank:borrow:Baium ring")
	guildClick.Member = &discordgo.Member{User: &discordgo.User{ID: "u1"}}
	h.Handle(context.Background(), guildClick)

	dmClick := componentInteraction("itembank:ack:Baium ring")
	dmClick.User = &discordgo.User{ID: "u2"}
	h.Handle(context.Background(), dmClick)

	want := []ledger.Command{
		{Kind: ledger.CommandBorrow, Item: "Baium ring", UserID: "u1"},
		{Kind: ledger.CommandAcknowledge, Item: "Baium ring", UserID: "u2"},
	}
	if len(cmds.got) != 2 || cmds.got[0] != want[0] || cmds.got[1] != want[1] {
		t.Fatalf("commands = %+v, want %+v", cmds.got, want)
	}
	if resp == nil || resp.Type != discordgo.InteractionResponseDeferredChannelMessageWithSource || resp.Data.Flags != discordgo.MessageFlagsEphemeral {
		t.Errorf("response = %+v, want deferred ephemeral", resp)
	}
	if strings.Join(steps, ",") != "defer,reply,defer,reply" {
		t.Errorf("steps = %v, want acknowledgement before each reply", steps)
	}
	if len(replies) != 2 || replies[0] != "✅ done" {
		t.Errorf("replies = %v", replies)
	}
}

func TestInteractionHandlerSkipsCommandWhenAcknowledgeFails(t *testing.T) {
	s := &mockSession{
		respondFn: func(*discordgo.Interaction, *discordgo.InteractionResponse) error {
			return errors.New("unknown interaction")
		},
		replyFn: func(*discordgo.Interaction, *discordgo.WebhookEdit) error {
			t.Error("unexpected reply")
			return nil
		},
	}
	cmds := &recordingCommands{}
	h := NewInteractionHandler(s, cmds)

	click := componentInteraction("itembank:borrow:Baium ring")
	click.User = &discordgo.User{ID: "u1"}
	h.Handle(context.Background(), click)

	if len(cmds.got) != 0 {
		t.Errorf("commands = %+v, want none", cmds.got)
	}
}

func TestInteractionHandlerIgnoresForeignButtons(t *testing.T) {
	s := &mockSession{respondFn: func(*discordgo.Interaction, *discordgo.InteractionResponse) error {
		t.Error("unexpected response")
		return nil
	}}
	cmds := &recordingCommands{}
	h := NewInteractionHandler(s, cmds)

	click := componentInteraction("poll:vote:1")
	click.User = &discordgo.User{ID: "u1"}
	h.Handle(context.Background(), click)
	h.Handle(context.Background(), &discordgo.Interaction{Type: discordgo.InteractionPing})

	if len(cmds.got) != 0 {
		t.Errorf("commands = %+v, want none", cmds.got)
	}
}
