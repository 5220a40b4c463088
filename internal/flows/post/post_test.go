package post

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chanpost/internal/channels"
	"github.com/m3rciful/chanpost/internal/flows"
	"github.com/m3rciful/chanpost/internal/session"
)

type fakeDirectory struct {
	recs []channels.Record
}

func (d *fakeDirectory) Upsert(_ context.Context, rec channels.Record) error {
	d.recs = append(d.recs, rec)
	return nil
}

func (d *fakeDirectory) ListByOwner(_ context.Context, ownerID int64) ([]channels.Record, error) {
	var out []channels.Record
	for _, rec := range d.recs {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (d *fakeDirectory) GetByOwner(_ context.Context, channelID, ownerID int64) (channels.Record, error) {
	for _, rec := range d.recs {
		if rec.ChannelID == channelID && rec.OwnerID == ownerID {
			return rec, nil
		}
	}
	return channels.Record{}, channels.ErrNotFound
}

type fakeAudit struct {
	actions []string
}

func (a *fakeAudit) Record(_ context.Context, _ int64, action string) error {
	a.actions = append(a.actions, action)
	return nil
}

type publishCall struct {
	channelID int64
	content   session.Content
	markup    *tele.ReplyMarkup
}

type replaceCall struct {
	channelID int64
	messageID int
	content   session.Content
	markup    *tele.ReplyMarkup
}

type fakeGateway struct {
	mu         sync.Mutex
	publishes  []publishCall
	replaces   []replaceCall
	publishErr error
	replaceErr error
}

func (g *fakeGateway) MemberStatus(context.Context, int64) (flows.Membership, error) {
	return flows.Membership{Admin: true, CanPost: true}, nil
}

func (g *fakeGateway) Publish(_ context.Context, channelID int64, content session.Content, markup *tele.ReplyMarkup) (int, error) {
	if g.publishErr != nil {
		return 0, g.publishErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.publishes = append(g.publishes, publishCall{channelID, content, markup})
	return 101, nil
}

func (g *fakeGateway) Replace(_ context.Context, channelID int64, messageID int, content session.Content, markup *tele.ReplyMarkup) error {
	if g.replaceErr != nil {
		return g.replaceErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replaces = append(g.replaces, replaceCall{channelID, messageID, content, markup})
	return nil
}

const userID = int64(42)

func newFlow(t *testing.T, recs ...channels.Record) (*Flow, *session.Store, *fakeGateway, *fakeAudit) {
	t.Helper()
	store := session.NewStore(0)
	dir := &fakeDirectory{recs: recs}
	trail := &fakeAudit{}
	gw := &fakeGateway{}
	return New(store, dir, trail, gw, 0), store, gw, trail
}

func newsChannel() channels.Record {
	return channels.Record{ID: 1, ChannelID: -1009, Title: "News", OwnerID: userID}
}

func textMsg(text string) *tele.Message {
	return &tele.Message{Text: text}
}

func forwardFrom(channelID int64, messageID int) *tele.Message {
	return &tele.Message{
		OriginalChat:      &tele.Chat{ID: channelID, Type: tele.ChatChannel, Title: "News"},
		OriginalMessageID: messageID,
	}
}

func TestStartWithoutChannels(t *testing.T) {
	f, store, _, _ := newFlow(t)

	reply, err := f.Start(context.Background(), userID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.Contains(reply.Text, "/addch") {
		t.Errorf("expected addch hint, got %q", reply.Text)
	}
	if store.Active(userID) {
		t.Error("no session should remain without channels")
	}
}

func TestStartListsChannels(t *testing.T) {
	f, store, _, _ := newFlow(t, newsChannel())

	reply, err := f.Start(context.Background(), userID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if reply.Markup == nil {
		t.Fatal("expected a keyboard")
	}
	sess, _ := store.Get(userID)
	if sess.Step != session.StepSelectChannel {
		t.Errorf("step = %q, want %q", sess.Step, session.StepSelectChannel)
	}
	if !strings.Contains(reply.Text, "Page 1/1") {
		t.Errorf("unexpected page header: %q", reply.Text)
	}
}

func TestPagination(t *testing.T) {
	recs := make([]channels.Record, 0, 30)
	for i := 0; i < 30; i++ {
		recs = append(recs, channels.Record{
			ID:        int64(i + 1),
			ChannelID: int64(-2000 - i),
			Title:     fmt.Sprintf("Channel %02d", i),
			OwnerID:   userID,
		})
	}
	f, store, _, _ := newFlow(t, recs...)

	reply, err := f.Start(context.Background(), userID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	// 12 channels two per row, plus nav and refresh/cancel rows.
	if got := len(reply.Markup.InlineKeyboard); got != 8 {
		t.Errorf("page 0 keyboard rows = %d, want 8", got)
	}

	reply, err = f.Page(context.Background(), userID, 1)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if !strings.Contains(reply.Text, "Page 2/3") {
		t.Errorf("unexpected header after next: %q", reply.Text)
	}
	if !reply.EditCurrent {
		t.Error("navigation should edit in place")
	}

	// Navigation never advances flow state.
	sess, _ := store.Get(userID)
	if sess.Step != session.StepSelectChannel {
		t.Errorf("step changed by pagination: %q", sess.Step)
	}

	// Cursor clamps at both ends.
	if _, err = f.Page(context.Background(), userID, -5); err != nil {
		t.Fatalf("Page back: %v", err)
	}
	sess, _ = store.Get(userID)
	if sess.Page != 0 {
		t.Errorf("page = %d, want 0 after clamping", sess.Page)
	}
	for i := 0; i < 5; i++ {
		if _, err = f.Page(context.Background(), userID, 1); err != nil {
			t.Fatalf("Page next: %v", err)
		}
	}
	sess, _ = store.Get(userID)
	if sess.Page != 2 {
		t.Errorf("page = %d, want 2 after clamping", sess.Page)
	}
}

func TestEndToEndPost(t *testing.T) {
	f, store, gw, trail := newFlow(t, newsChannel())
	ctx := context.Background()

	if _, err := f.Start(ctx, userID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.SelectChannel(ctx, userID, -1009); err != nil {
		t.Fatalf("SelectChannel: %v", err)
	}
	if _, err := f.Begin(ctx, userID, -1009, session.ModePost); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := f.HandleMessage(ctx, userID, textMsg("Hello")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	f.SkipButtons(userID)

	reply, err := f.Confirm(ctx, userID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if len(gw.publishes) != 1 {
		t.Fatalf("expected exactly one publish, got %d", len(gw.publishes))
	}
	call := gw.publishes[0]
	if call.channelID != -1009 {
		t.Errorf("published to %d, want -1009", call.channelID)
	}
	if call.content.Kind != session.ContentText || call.content.Text != "Hello" {
		t.Errorf("published content = %+v", call.content)
	}
	if call.markup != nil {
		t.Errorf("expected nil markup without buttons, got %+v", call.markup)
	}
	if store.Active(userID) {
		t.Error("session should be cleared after dispatch")
	}
	if len(trail.actions) != 1 || trail.actions[0] != "post_sent" {
		t.Errorf("audit actions = %v", trail.actions)
	}
	if !strings.Contains(reply.Text, "successfully") {
		t.Errorf("unexpected confirmation: %q", reply.Text)
	}
}

func TestEditForwardMismatchKeepsState(t *testing.T) {
	f, store, gw, _ := newFlow(t, channels.Record{ID: 1, ChannelID: -100123, Title: "News", OwnerID: userID})
	ctx := context.Background()

	if _, err := f.Start(ctx, userID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.Begin(ctx, userID, -100123, session.ModeEdit); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	reply, err := f.HandleMessage(ctx, userID, forwardFrom(-100999, 7))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !strings.Contains(reply.Text, "not from the target channel") {
		t.Errorf("unexpected rejection: %q", reply.Text)
	}
	sess, _ := store.Get(userID)
	if sess.Step != session.StepAwaitEditForward {
		t.Errorf("step = %q, want %q", sess.Step, session.StepAwaitEditForward)
	}
	if len(gw.replaces) != 0 {
		t.Errorf("no edit call expected, got %d", len(gw.replaces))
	}
}

func TestEditFlowDispatchesReplace(t *testing.T) {
	f, store, gw, trail := newFlow(t, channels.Record{ID: 1, ChannelID: -100123, Title: "News", OwnerID: userID})
	ctx := context.Background()

	if _, err := f.Start(ctx, userID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.Begin(ctx, userID, -100123, session.ModeEdit); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := f.HandleMessage(ctx, userID, forwardFrom(-100123, 7)); err != nil {
		t.Fatalf("forward capture: %v", err)
	}

	sess, _ := store.Get(userID)
	if sess.EditTargetID != 7 {
		t.Fatalf("edit target = %d, want 7", sess.EditTargetID)
	}
	if sess.Step != session.StepAwaitEditContent {
		t.Fatalf("step = %q, want %q", sess.Step, session.StepAwaitEditContent)
	}

	if _, err := f.HandleMessage(ctx, userID, textMsg("Updated")); err != nil {
		t.Fatalf("content capture: %v", err)
	}
	f.SkipButtons(userID)
	if _, err := f.Confirm(ctx, userID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if len(gw.replaces) != 1 {
		t.Fatalf("expected exactly one replace, got %d", len(gw.replaces))
	}
	call := gw.replaces[0]
	if call.channelID != -100123 || call.messageID != 7 || call.content.Text != "Updated" {
		t.Errorf("replace call = %+v", call)
	}
	if len(trail.actions) != 1 || trail.actions[0] != "post_edited" {
		t.Errorf("audit actions = %v", trail.actions)
	}
}

func TestButtonLoop(t *testing.T) {
	f, store, gw, _ := newFlow(t, newsChannel())
	ctx := context.Background()

	if _, err := f.Start(ctx, userID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.Begin(ctx, userID, -1009, session.ModePost); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := f.HandleMessage(ctx, userID, textMsg("Hello")); err != nil {
		t.Fatalf("content: %v", err)
	}
	f.AskButtons(userID)

	// A malformed line keeps the step and leaves accumulated rows alone.
	reply, err := f.HandleMessage(ctx, userID, textMsg("NoDelimiterHere"))
	if err != nil {
		t.Fatalf("bad button: %v", err)
	}
	if !strings.Contains(reply.Text, "❌") {
		t.Errorf("expected a parse error message, got %q", reply.Text)
	}
	sess, _ := store.Get(userID)
	if sess.Step != session.StepAwaitButtonFormat {
		t.Errorf("step = %q, want %q", sess.Step, session.StepAwaitButtonFormat)
	}

	if _, err := f.HandleMessage(ctx, userID, textMsg("Go - https://example.com")); err != nil {
		t.Fatalf("good button: %v", err)
	}
	sess, _ = store.Get(userID)
	if len(sess.Buttons) != 1 || len(sess.Buttons[0]) != 1 {
		t.Fatalf("buttons = %+v", sess.Buttons)
	}
	if sess.Step != session.StepAskButtons {
		t.Errorf("step = %q, want %q", sess.Step, session.StepAskButtons)
	}

	f.SkipButtons(userID)
	if _, err := f.Confirm(ctx, userID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if len(gw.publishes) != 1 {
		t.Fatalf("expected one publish, got %d", len(gw.publishes))
	}
	markup := gw.publishes[0].markup
	if markup == nil || len(markup.InlineKeyboard) != 1 {
		t.Fatalf("expected one keyboard row, got %+v", markup)
	}
	if markup.InlineKeyboard[0][0].URL != "https://example.com" {
		t.Errorf("button = %+v", markup.InlineKeyboard[0][0])
	}
}

func TestClearButtons(t *testing.T) {
	f, store, _, _ := newFlow(t, newsChannel())
	ctx := context.Background()

	if _, err := f.Start(ctx, userID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.Begin(ctx, userID, -1009, session.ModePost); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := f.HandleMessage(ctx, userID, textMsg("Hello")); err != nil {
		t.Fatalf("content: %v", err)
	}
	f.AskButtons(userID)
	if _, err := f.HandleMessage(ctx, userID, textMsg("Go - https://example.com")); err != nil {
		t.Fatalf("button: %v", err)
	}

	before, _ := store.Get(userID)
	f.ClearButtons(userID)
	after, _ := store.Get(userID)
	if len(after.Buttons) != 0 {
		t.Errorf("buttons not cleared: %+v", after.Buttons)
	}
	if after.Step != before.Step {
		t.Errorf("clear changed state: %q -> %q", before.Step, after.Step)
	}
}

func TestDispatchFailureClearsSession(t *testing.T) {
	f, store, gw, trail := newFlow(t, newsChannel())
	gw.publishErr = errors.New("forbidden: bot is not a member")
	ctx := context.Background()

	if _, err := f.Start(ctx, userID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.Begin(ctx, userID, -1009, session.ModePost); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := f.HandleMessage(ctx, userID, textMsg("Hello")); err != nil {
		t.Fatalf("content: %v", err)
	}
	f.SkipButtons(userID)

	reply, err := f.Confirm(ctx, userID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !strings.Contains(reply.Text, "forbidden: bot is not a member") {
		t.Errorf("raw failure text not surfaced: %q", reply.Text)
	}
	if store.Active(userID) {
		t.Error("session should be cleared after dispatch failure")
	}
	if len(trail.actions) != 0 {
		t.Errorf("no audit entry expected on failure, got %v", trail.actions)
	}
}

func TestConcurrentConfirmDispatchesOnce(t *testing.T) {
	f, store, gw, trail := newFlow(t, newsChannel())
	ctx := context.Background()

	if _, err := f.Start(ctx, userID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.Begin(ctx, userID, -1009, session.ModePost); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := f.HandleMessage(ctx, userID, textMsg("Hello")); err != nil {
		t.Fatalf("content: %v", err)
	}
	f.SkipButtons(userID)

	// A doubled confirmation tap delivers the same callback twice; only one
	// of the racing handlers may consume the session and publish.
	const racers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	expired := 0
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := f.Confirm(ctx, userID)
			if err != nil {
				t.Errorf("Confirm: %v", err)
				return
			}
			if strings.Contains(reply.Text, "Session expired") {
				mu.Lock()
				expired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(gw.publishes) != 1 {
		t.Fatalf("expected exactly one publish, got %d", len(gw.publishes))
	}
	if expired != racers-1 {
		t.Errorf("expired replies = %d, want %d", expired, racers-1)
	}
	if len(trail.actions) != 1 {
		t.Errorf("audit actions = %v, want one entry", trail.actions)
	}
	if store.Active(userID) {
		t.Error("session should be gone after the winning dispatch")
	}
}

func TestConfirmBeforeConfirmStepReportsSessionExpired(t *testing.T) {
	f, store, gw, _ := newFlow(t, newsChannel())
	ctx := context.Background()

	if _, err := f.Start(ctx, userID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.Begin(ctx, userID, -1009, session.ModePost); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := f.HandleMessage(ctx, userID, textMsg("Hello")); err != nil {
		t.Fatalf("content: %v", err)
	}

	// A stale confirm callback from a previous card must not dispatch.
	reply, err := f.Confirm(ctx, userID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !strings.Contains(reply.Text, "Session expired") {
		t.Errorf("expected session-expired reply, got %q", reply.Text)
	}
	if len(gw.publishes) != 0 {
		t.Errorf("no publish expected, got %d", len(gw.publishes))
	}
	if !store.Active(userID) {
		t.Error("refused confirm must leave the session in place")
	}
}

func TestCallbackAfterExpiryReportsSessionExpired(t *testing.T) {
	f, _, _, _ := newFlow(t, newsChannel())

	reply := f.SkipButtons(userID)
	if !strings.Contains(reply.Text, "Session expired") {
		t.Errorf("expected session-expired reply, got %q", reply.Text)
	}
}

func TestCloseDeletesPromptAndSession(t *testing.T) {
	f, store, _, _ := newFlow(t, newsChannel())
	ctx := context.Background()

	if _, err := f.Start(ctx, userID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	reply := f.Close(userID)
	if !reply.DeleteCurrent {
		t.Error("close should delete the prompt message")
	}
	if store.Active(userID) {
		t.Error("session should be gone after close")
	}
}
