package registration

import (
	"context"
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chanpost/internal/channels"
	"github.com/m3rciful/chanpost/internal/flows"
	"github.com/m3rciful/chanpost/internal/session"
)

type fakeDirectory struct {
	upserts   []channels.Record
	upsertErr error
}

func (d *fakeDirectory) Upsert(_ context.Context, rec channels.Record) error {
	if d.upsertErr != nil {
		return d.upsertErr
	}
	d.upserts = append(d.upserts, rec)
	return nil
}

func (d *fakeDirectory) ListByOwner(context.Context, int64) ([]channels.Record, error) {
	return nil, nil
}

func (d *fakeDirectory) GetByOwner(context.Context, int64, int64) (channels.Record, error) {
	return channels.Record{}, channels.ErrNotFound
}

type fakeAudit struct {
	actions []string
}

func (a *fakeAudit) Record(_ context.Context, _ int64, action string) error {
	a.actions = append(a.actions, action)
	return nil
}

type fakeGateway struct {
	membership flows.Membership
	memberErr  error
}

func (g *fakeGateway) MemberStatus(context.Context, int64) (flows.Membership, error) {
	return g.membership, g.memberErr
}

func (g *fakeGateway) Publish(context.Context, int64, session.Content, *tele.ReplyMarkup) (int, error) {
	return 0, errors.New("unexpected publish")
}

func (g *fakeGateway) Replace(context.Context, int64, int, session.Content, *tele.ReplyMarkup) error {
	return errors.New("unexpected replace")
}

func newFlow(gw *fakeGateway) (*Flow, *session.Store, *fakeDirectory, *fakeAudit) {
	store := session.NewStore(0)
	dir := &fakeDirectory{}
	trail := &fakeAudit{}
	return New(store, dir, trail, gw), store, dir, trail
}

func channelForward(id int64, title string) *tele.Message {
	return &tele.Message{
		OriginalChat:      &tele.Chat{ID: id, Type: tele.ChatChannel, Title: title},
		OriginalMessageID: 5,
	}
}

func TestStartOpensSession(t *testing.T) {
	f, store, _, _ := newFlow(&fakeGateway{})

	reply := f.Start(42)
	if reply.Text == "" {
		t.Error("expected a prompt")
	}

	sess, ok := store.Get(42)
	if !ok {
		t.Fatal("expected an active session")
	}
	if sess.Mode != session.ModeRegister || sess.Step != session.StepAwaitForward {
		t.Errorf("unexpected session: %+v", sess)
	}
}

func TestSuccessfulRegistration(t *testing.T) {
	f, store, dir, trail := newFlow(&fakeGateway{membership: flows.Membership{Admin: true, CanPost: true}})
	f.Start(42)

	reply, err := f.HandleMessage(context.Background(), 42, channelForward(-1009, "News"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(dir.upserts) != 1 {
		t.Fatalf("expected exactly one persist call, got %d", len(dir.upserts))
	}
	want := channels.Record{ChannelID: -1009, Title: "News", OwnerID: 42}
	if dir.upserts[0] != want {
		t.Errorf("persisted %+v, want %+v", dir.upserts[0], want)
	}
	if store.Active(42) {
		t.Error("session should be cleared after success")
	}
	if len(trail.actions) != 1 || trail.actions[0] != "channel_added" {
		t.Errorf("audit actions = %v", trail.actions)
	}
	if !strings.Contains(reply.Text, "News") || !strings.Contains(reply.Text, "-1009") {
		t.Errorf("confirmation missing channel identity: %q", reply.Text)
	}
}

func TestRejectedForwardKeepsSession(t *testing.T) {
	tests := []struct {
		name string
		msg  *tele.Message
	}{
		{"not a forward", &tele.Message{Text: "hello"}},
		{"hidden origin", &tele.Message{OriginalSenderName: "Someone"}},
		{"wrong source type", &tele.Message{OriginalChat: &tele.Chat{ID: -1, Type: tele.ChatGroup}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, store, dir, _ := newFlow(&fakeGateway{membership: flows.Membership{Admin: true}})
			f.Start(42)

			reply, err := f.HandleMessage(context.Background(), 42, tt.msg)
			if err != nil {
				t.Fatalf("HandleMessage: %v", err)
			}
			if reply.Text == "" {
				t.Error("expected a corrective message")
			}
			if len(dir.upserts) != 0 {
				t.Errorf("no persist call expected, got %d", len(dir.upserts))
			}
			sess, ok := store.Get(42)
			if !ok || sess.Step != session.StepAwaitForward {
				t.Errorf("session should stay in await_forward, got %+v (ok=%v)", sess, ok)
			}
		})
	}
}

func TestBotNotAdminKeepsSession(t *testing.T) {
	f, store, dir, _ := newFlow(&fakeGateway{membership: flows.Membership{}})
	f.Start(42)

	reply, err := f.HandleMessage(context.Background(), 42, channelForward(-1009, "News"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !strings.Contains(reply.Text, "admin") {
		t.Errorf("expected admin-rights error, got %q", reply.Text)
	}
	if len(dir.upserts) != 0 {
		t.Error("no persist call expected")
	}
	if !store.Active(42) {
		t.Error("session should survive a rights rejection")
	}
}

func TestAdminWithoutPostRightKeepsSession(t *testing.T) {
	f, store, dir, _ := newFlow(&fakeGateway{membership: flows.Membership{Admin: true}})
	f.Start(42)

	reply, err := f.HandleMessage(context.Background(), 42, channelForward(-1009, "News"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !strings.Contains(reply.Text, "Post messages") {
		t.Errorf("expected post-right error, got %q", reply.Text)
	}
	if len(dir.upserts) != 0 {
		t.Error("no persist call expected")
	}
	if !store.Active(42) {
		t.Error("session should survive a rights rejection")
	}
}

func TestMembershipLookupFailureKeepsSession(t *testing.T) {
	f, store, dir, _ := newFlow(&fakeGateway{memberErr: errors.New("chat not found")})
	f.Start(42)

	reply, err := f.HandleMessage(context.Background(), 42, channelForward(-1009, "News"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if reply.Text == "" {
		t.Error("expected a user-visible error")
	}
	if len(dir.upserts) != 0 {
		t.Error("no persist call expected")
	}
	if !store.Active(42) {
		t.Error("session should survive a lookup failure")
	}
}

func TestPersistFailureKeepsSession(t *testing.T) {
	f, store, dir, trail := newFlow(&fakeGateway{membership: flows.Membership{Admin: true, CanPost: true}})
	dir.upsertErr = errors.New("db down")
	f.Start(42)

	reply, err := f.HandleMessage(context.Background(), 42, channelForward(-1009, "News"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if reply.Text == "" {
		t.Error("expected a user-visible error")
	}
	if !store.Active(42) {
		t.Error("session should survive a persist failure")
	}
	if len(trail.actions) != 0 {
		t.Errorf("no audit entry expected, got %v", trail.actions)
	}
}
