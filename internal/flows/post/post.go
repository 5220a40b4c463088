// Package post drives the /post conversation: pick a channel from a
// paginated list, capture content, attach optional inline buttons, confirm,
// then publish a new post or edit an existing one.
package post

import (
	"context"
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chanpost/core/logger"
	"github.com/m3rciful/chanpost/core/telegram/format"
	"github.com/m3rciful/chanpost/internal/audit"
	"github.com/m3rciful/chanpost/internal/buttons"
	"github.com/m3rciful/chanpost/internal/channels"
	"github.com/m3rciful/chanpost/internal/flows"
	"github.com/m3rciful/chanpost/internal/forward"
	"github.com/m3rciful/chanpost/internal/session"
	"log/slog"
)

// Callback keys owned by this flow.
const (
	CallbackSelectChannel = "post_ch"
	CallbackNewPost       = "post_do"
	CallbackEditPost      = "edit_do"
	CallbackPageNext      = "page_next"
	CallbackPageBack      = "page_back"
	CallbackRefresh       = "page_refresh"
	CallbackClose         = "post_close"
	CallbackAddButtons    = "addbtn_yes"
	CallbackSkipButtons   = "addbtn_no"
	CallbackClearButtons  = "clear_buttons"
	CallbackChangeContent = "change_content"
	CallbackConfirm       = "sendpost_yes"
)

// DefaultPageSize is the channel-list page size when config leaves it unset.
const DefaultPageSize = 12

// ReplyExpired is the reply for callbacks arriving after the session is gone
// (restart, reaper, or completed flow).
func ReplyExpired() flows.Reply {
	return flows.Reply{
		EditCurrent: true,
		Text:        "❌ Session expired. Please start over with /post",
	}
}

// Flow is the post composition / edit state machine.
type Flow struct {
	sessions *session.Store
	channels flows.ChannelDirectory
	audit    flows.AuditTrail
	gateway  flows.Gateway
	pageSize int
}

// New wires the post flow. pageSize <= 0 falls back to DefaultPageSize.
func New(store *session.Store, dir flows.ChannelDirectory, trail flows.AuditTrail, gw flows.Gateway, pageSize int) *Flow {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Flow{sessions: store, channels: dir, audit: trail, gateway: gw, pageSize: pageSize}
}

// Active reports whether the user has a live session owned by this flow.
func (f *Flow) Active(userID int64) bool {
	sess, ok := f.sessions.Get(userID)
	return ok && (sess.Mode == session.ModePost || sess.Mode == session.ModeEdit)
}

// Start opens the channel-selection list, replacing any flow in progress.
func (f *Flow) Start(ctx context.Context, userID int64) (flows.Reply, error) {
	f.sessions.Clear(userID)
	f.sessions.Update(userID, func(s *session.Session) {
		s.Mode = session.ModePost
		s.Step = session.StepSelectChannel
		s.Page = 0
	})
	return f.channelList(ctx, userID, false)
}

// Page moves the pagination cursor by delta (0 re-renders in place) without
// advancing the flow state.
func (f *Flow) Page(ctx context.Context, userID int64, delta int) (flows.Reply, error) {
	_, ok := f.sessions.Mutate(userID, func(s *session.Session) {
		s.Page += delta
		if s.Page < 0 {
			s.Page = 0
		}
	})
	if !ok {
		return ReplyExpired(), nil
	}
	return f.channelList(ctx, userID, true)
}

// Close deletes the prompt and the session.
func (f *Flow) Close(userID int64) flows.Reply {
	f.sessions.Clear(userID)
	return flows.Reply{DeleteCurrent: true}
}

// SelectChannel shows the action card for the chosen channel.
func (f *Flow) SelectChannel(ctx context.Context, userID, channelID int64) (flows.Reply, error) {
	if !f.sessions.Active(userID) {
		return ReplyExpired(), nil
	}
	rec, err := f.channels.GetByOwner(ctx, channelID, userID)
	if err != nil {
		if errors.Is(err, channels.ErrNotFound) {
			f.sessions.Clear(userID)
			return flows.Reply{EditCurrent: true, Text: "❌ Channel not found. Start over with /post"}, nil
		}
		return flows.Reply{}, err
	}

	id := fmt.Sprintf("%d", rec.ChannelID)
	markup := inlineRows(
		[]inlineBtn{
			{"📨 New Post", CallbackNewPost, id},
			{"✏️ Edit Post", CallbackEditPost, id},
		},
		[]inlineBtn{
			{"🔙 Back to List", CallbackRefresh, ""},
			{"❌ Cancel", CallbackClose, ""},
		},
	)
	text := fmt.Sprintf("🎯 *Channel Selected*\n\n*Name:* %s\n*ID:* `%d`\n\nChoose an action:",
		format.MD(rec.Title), rec.ChannelID)
	return flows.Reply{EditCurrent: true, Markdown: true, Text: text, Markup: markup}, nil
}

// Begin branches into post or edit mode for the chosen channel.
func (f *Flow) Begin(ctx context.Context, userID, channelID int64, mode session.Mode) (flows.Reply, error) {
	if !f.sessions.Active(userID) {
		return ReplyExpired(), nil
	}
	rec, err := f.channels.GetByOwner(ctx, channelID, userID)
	if err != nil {
		if errors.Is(err, channels.ErrNotFound) {
			f.sessions.Clear(userID)
			return flows.Reply{EditCurrent: true, Text: "❌ Channel not found. Start over with /post"}, nil
		}
		return flows.Reply{}, err
	}

	step := session.StepAwaitMessage
	if mode == session.ModeEdit {
		step = session.StepAwaitEditForward
	}
	_, ok := f.sessions.Mutate(userID, func(s *session.Session) {
		s.Mode = mode
		s.Step = step
		s.ChannelID = rec.ChannelID
		s.ChannelTitle = rec.Title
		s.EditTargetID = 0
		s.Content = session.Content{}
		s.HasContent = false
		s.Buttons = nil
	})
	if !ok {
		return ReplyExpired(), nil
	}

	logger.SVCPosts.Info("flow.begin",
		slog.Int64("user_id", userID),
		slog.Int64("channel_id", rec.ChannelID),
		slog.String("state", string(step)),
	)

	if mode == session.ModeEdit {
		text := fmt.Sprintf("✏️ *Edit Mode*\n\nChannel: *%s*\n\n"+
			"Please forward the *original message* from the channel that you want to edit.",
			format.MD(rec.Title))
		return flows.Reply{EditCurrent: true, Markdown: true, Text: text}, nil
	}
	text := fmt.Sprintf("📤 *Ready to Post*\n\nChannel: *%s*\n\n"+
		"Please send or forward the message you want to post:\n"+
		"• Text\n• Photo with caption\n• Video with caption\n• Document with caption",
		format.MD(rec.Title))
	return flows.Reply{EditCurrent: true, Markdown: true, Text: text}, nil
}

// HandleMessage consumes a mid-flow message according to the current step.
func (f *Flow) HandleMessage(ctx context.Context, userID int64, msg *tele.Message) (flows.Reply, error) {
	sess, ok := f.sessions.Get(userID)
	if !ok {
		return flows.Reply{}, nil
	}
	switch sess.Step {
	case session.StepAwaitEditForward:
		return f.captureEditTarget(sess, userID, msg), nil
	case session.StepAwaitMessage, session.StepAwaitEditContent:
		return f.captureContent(userID, msg), nil
	case session.StepAwaitButtonFormat:
		return f.captureButtons(userID, msg), nil
	default:
		// Stray message while a question card is pending; ignore.
		return flows.Reply{}, nil
	}
}

func (f *Flow) captureEditTarget(sess session.Session, userID int64, msg *tele.Message) flows.Reply {
	origin, err := forward.Resolve(msg)
	if err != nil {
		return flows.Reply{Text: "❌ Please forward the original message from the channel.\n\n" +
			"Tip: go to the channel, find the message, and forward it here."}
	}
	if origin.ChannelID != sess.ChannelID {
		return flows.Reply{Text: fmt.Sprintf("❌ This message is not from the target channel.\n\n"+
			"Expected: %d\nGot: %d", sess.ChannelID, origin.ChannelID)}
	}
	if _, ok := f.sessions.Mutate(userID, func(s *session.Session) {
		s.EditTargetID = origin.MessageID
		s.Step = session.StepAwaitEditContent
	}); !ok {
		return ReplyExpired()
	}
	return flows.Reply{
		Markdown: true,
		Text: "✅ *Original message captured!*\n\nNow please send the *new content* that will replace it:\n" +
			"• Text\n• Photo with caption\n• Video with caption\n• Document with caption",
	}
}

func (f *Flow) captureContent(userID int64, msg *tele.Message) flows.Reply {
	content, ok := flows.CaptureContent(msg)
	if !ok {
		return flows.Reply{Text: "❌ Unsupported content. Send text, a photo, a video, or a document."}
	}
	if _, ok := f.sessions.Mutate(userID, func(s *session.Session) {
		s.Content = content
		s.HasContent = true
		s.Step = session.StepAskButtons
	}); !ok {
		return ReplyExpired()
	}
	return flows.Reply{
		Markdown: true,
		Text:     "📝 *Content received!*\n\nWould you like to *add interactive buttons* to your message?",
		Markup: inlineRows([]inlineBtn{
			{"✅ Yes, Add Button", CallbackAddButtons, ""},
			{"❌ No Buttons", CallbackSkipButtons, ""},
		}),
	}
}

func (f *Flow) captureButtons(userID int64, msg *tele.Message) flows.Reply {
	if msg == nil || msg.Text == "" {
		return flows.Reply{Text: "❌ Send the button definition as text."}
	}
	var parseErr error
	snapshot, ok := f.sessions.Mutate(userID, func(s *session.Session) {
		rows, err := buttons.Parse(msg.Text, s.Buttons)
		if err != nil {
			parseErr = err
			return
		}
		s.Buttons = rows
		s.Step = session.StepAskButtons
	})
	if !ok {
		return ReplyExpired()
	}
	if parseErr != nil {
		return flows.Reply{
			Markdown: true,
			Text: "❌ " + parseErr.Error() + "\n\nUse one of:\n" +
				"`Text - URL`\n`Text - URL:same`\n`Text - Message:alert:true`",
		}
	}
	return flows.Reply{
		Markdown: true,
		Text: fmt.Sprintf("🔘 *Buttons added*\n\nTotal buttons: %d\nTotal rows: %d\n\nWhat would you like to do next?",
			buttons.Count(snapshot.Buttons), len(snapshot.Buttons)),
		Markup: inlineRows(
			[]inlineBtn{
				{"➕ Add More Buttons", CallbackAddButtons, ""},
				{"✅ Continue", CallbackSkipButtons, ""},
			},
			[]inlineBtn{
				{"🔄 Clear All Buttons", CallbackClearButtons, ""},
				{"❌ Cancel", CallbackClose, ""},
			},
		),
	}
}

// AskButtons moves into the button-definition step.
func (f *Flow) AskButtons(userID int64) flows.Reply {
	if _, ok := f.sessions.Mutate(userID, func(s *session.Session) {
		s.Step = session.StepAwaitButtonFormat
	}); !ok {
		return ReplyExpired()
	}
	return flows.Reply{
		EditCurrent: true,
		Markdown:    true,
		Text: "🔘 *Add Button*\n\nSend a button in one of these formats:\n\n" +
			"• URL button:\n`Button Text - https://example.com`\n\n" +
			"• URL button (same row):\n`Button Text - https://example.com:same`\n\n" +
			"• Alert button:\n`Button Text - Alert Message:alert:true`",
	}
}

// SkipButtons moves to the confirmation card.
func (f *Flow) SkipButtons(userID int64) flows.Reply {
	sess, ok := f.sessions.Mutate(userID, func(s *session.Session) {
		s.Step = session.StepConfirmSend
	})
	if !ok {
		return ReplyExpired()
	}

	verb := "Post"
	action := "posting"
	if sess.Mode == session.ModeEdit {
		verb = "Edit"
		action = "editing"
	}
	text := fmt.Sprintf("📋 *Ready to %s*\n\n*Content type:* %s\n*Channel:* %s\n*Buttons:* %d added\n\nProceed with %s?",
		verb, sess.Content.Kind, format.MD(sess.ChannelTitle), buttons.Count(sess.Buttons), action)
	return flows.Reply{
		EditCurrent: true,
		Markdown:    true,
		Text:        text,
		Markup: inlineRows(
			[]inlineBtn{
				{"🚀 Send Now", CallbackConfirm, ""},
				{"📝 Add Buttons", CallbackAddButtons, ""},
			},
			[]inlineBtn{
				{"🔙 Change Content", CallbackChangeContent, ""},
				{"❌ Cancel", CallbackClose, ""},
			},
		),
	}
}

// ClearButtons empties the accumulated rows without changing state.
func (f *Flow) ClearButtons(userID int64) flows.Reply {
	if _, ok := f.sessions.Mutate(userID, func(s *session.Session) {
		s.Buttons = nil
	}); !ok {
		return ReplyExpired()
	}
	return flows.Reply{
		EditCurrent: true,
		Markdown:    true,
		Text:        "🗑 *All buttons cleared!*\n\nYou can add new buttons or continue without them.",
		Markup: inlineRows([]inlineBtn{
			{"➕ Add Buttons", CallbackAddButtons, ""},
			{"✅ Continue Without", CallbackSkipButtons, ""},
		}),
	}
}

// ChangeContent resets to the content-capture step and drops the buttons.
func (f *Flow) ChangeContent(userID int64) flows.Reply {
	sess, ok := f.sessions.Mutate(userID, func(s *session.Session) {
		s.Step = session.StepAwaitMessage
		if s.Mode == session.ModeEdit {
			s.Step = session.StepAwaitEditContent
		}
		s.Content = session.Content{}
		s.HasContent = false
		s.Buttons = nil
	})
	if !ok {
		return ReplyExpired()
	}
	action := "post"
	if sess.Mode == session.ModeEdit {
		action = "edit"
	}
	return flows.Reply{
		EditCurrent: true,
		Markdown:    true,
		Text:        fmt.Sprintf("🔄 *Change Content*\n\nPlease send the new content you want to %s.", action),
	}
}

// Confirm dispatches exactly one send or edit operation. The session is
// consumed atomically, so a doubled confirmation callback dispatches once
// and the loser sees "session expired". The session is gone whether dispatch
// succeeds or fails; a failed dispatch is reported with the raw failure text
// and the user restarts /post.
func (f *Flow) Confirm(ctx context.Context, userID int64) (flows.Reply, error) {
	sess, ok := f.sessions.Take(userID, func(s session.Session) bool {
		return s.Step == session.StepConfirmSend && s.HasContent
	})
	if !ok {
		return ReplyExpired(), nil
	}

	markup := buttons.Markup(sess.Buttons)

	var dispatchErr error
	action := audit.ActionPostSent
	if sess.Mode == session.ModeEdit {
		action = audit.ActionPostEdited
		dispatchErr = f.gateway.Replace(ctx, sess.ChannelID, sess.EditTargetID, sess.Content, markup)
	} else {
		_, dispatchErr = f.gateway.Publish(ctx, sess.ChannelID, sess.Content, markup)
	}

	if dispatchErr != nil {
		logger.SVCPosts.Error("flow.dispatch",
			slog.Int64("user_id", userID),
			slog.Int64("channel_id", sess.ChannelID),
			slog.String("state", string(sess.Step)),
			slog.String("err", dispatchErr.Error()),
		)
		return flows.Reply{
			EditCurrent: true,
			Text: "❌ Error occurred:\n" + dispatchErr.Error() + "\n\nPlease check:\n" +
				"• Bot admin rights in channel\n• Message formatting\n• Button URLs validity",
		}, nil
	}

	if err := f.audit.Record(ctx, userID, action); err != nil {
		logger.SVCAudit.Warn("flow.audit", slog.String("err", err.Error()))
	}
	logger.SVCPosts.Info("flow.dispatch",
		slog.Int64("user_id", userID),
		slog.Int64("channel_id", sess.ChannelID),
		slog.String("event", action),
		slog.Int("buttons", buttons.Count(sess.Buttons)),
	)

	if sess.Mode == session.ModeEdit {
		return flows.Reply{
			EditCurrent: true,
			Markdown:    true,
			Text:        fmt.Sprintf("✅ *Message edited successfully!*\n\nChannel: %s", format.MD(sess.ChannelTitle)),
		}, nil
	}
	return flows.Reply{
		EditCurrent: true,
		Markdown:    true,
		Text:        fmt.Sprintf("✅ *Post sent successfully!*\n\nChannel: %s", format.MD(sess.ChannelTitle)),
	}, nil
}
