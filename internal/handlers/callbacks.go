package handlers

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chanpost/core/logger"
	tg "github.com/m3rciful/chanpost/core/telegram"
	"github.com/m3rciful/chanpost/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/chanpost/core/telegram/helpers"
	"github.com/m3rciful/chanpost/internal/audit"
	"github.com/m3rciful/chanpost/internal/buttons"
	"github.com/m3rciful/chanpost/internal/flows"
	"github.com/m3rciful/chanpost/internal/flows/post"
	"github.com/m3rciful/chanpost/internal/session"
	"log/slog"
)

const (
	callbackStart        = "start"
	callbackDelete       = "delch"
	callbackDeleteCancel = "delch_cancel"
)

func (h *Handlers) registerCallbacks(reg *tg.Registry) {
	_ = reg.RegisterCallback(post.CallbackSelectChannel, h.guarded(func(ctx context.Context, c tele.Context, userID int64) (flows.Reply, error) {
		channelID, err := callbacks.PayloadInt64(c)
		if err != nil {
			return post.ReplyExpired(), nil
		}
		return h.post.SelectChannel(ctx, userID, channelID)
	}))
	_ = reg.RegisterCallback(post.CallbackNewPost, h.guarded(func(ctx context.Context, c tele.Context, userID int64) (flows.Reply, error) {
		channelID, err := callbacks.PayloadInt64(c)
		if err != nil {
			return post.ReplyExpired(), nil
		}
		return h.post.Begin(ctx, userID, channelID, session.ModePost)
	}))
	_ = reg.RegisterCallback(post.CallbackEditPost, h.guarded(func(ctx context.Context, c tele.Context, userID int64) (flows.Reply, error) {
		channelID, err := callbacks.PayloadInt64(c)
		if err != nil {
			return post.ReplyExpired(), nil
		}
		return h.post.Begin(ctx, userID, channelID, session.ModeEdit)
	}))
	_ = reg.RegisterCallback(post.CallbackPageNext, h.guarded(func(ctx context.Context, _ tele.Context, userID int64) (flows.Reply, error) {
		return h.post.Page(ctx, userID, 1)
	}))
	_ = reg.RegisterCallback(post.CallbackPageBack, h.guarded(func(ctx context.Context, _ tele.Context, userID int64) (flows.Reply, error) {
		return h.post.Page(ctx, userID, -1)
	}))
	_ = reg.RegisterCallback(post.CallbackRefresh, h.guarded(func(ctx context.Context, _ tele.Context, userID int64) (flows.Reply, error) {
		return h.post.Page(ctx, userID, 0)
	}))
	_ = reg.RegisterCallback(post.CallbackClose, h.guarded(func(_ context.Context, _ tele.Context, userID int64) (flows.Reply, error) {
		return h.post.Close(userID), nil
	}))
	_ = reg.RegisterCallback(post.CallbackAddButtons, h.guarded(func(_ context.Context, _ tele.Context, userID int64) (flows.Reply, error) {
		return h.post.AskButtons(userID), nil
	}))
	_ = reg.RegisterCallback(post.CallbackSkipButtons, h.guarded(func(_ context.Context, _ tele.Context, userID int64) (flows.Reply, error) {
		return h.post.SkipButtons(userID), nil
	}))
	_ = reg.RegisterCallback(post.CallbackClearButtons, h.guarded(func(_ context.Context, _ tele.Context, userID int64) (flows.Reply, error) {
		return h.post.ClearButtons(userID), nil
	}))
	_ = reg.RegisterCallback(post.CallbackChangeContent, h.guarded(func(_ context.Context, _ tele.Context, userID int64) (flows.Reply, error) {
		return h.post.ChangeContent(userID), nil
	}))
	_ = reg.RegisterCallback(post.CallbackConfirm, h.guarded(func(ctx context.Context, _ tele.Context, userID int64) (flows.Reply, error) {
		return h.post.Confirm(ctx, userID)
	}))

	_ = reg.RegisterCallback(callbackStart, h.cbStart)
	_ = reg.RegisterCallback(callbackDelete, h.cbDeleteChannel)
	_ = reg.RegisterCallback(callbackDeleteCancel, func(c tele.Context) error {
		return c.Delete()
	})
	_ = reg.RegisterCallback(buttons.AlertCallbackKey, h.cbAlert)
}

// guarded gates a posting-flow callback on the owner/admin check and renders
// the resulting reply. Denials answer with a toast and touch no state.
func (h *Handlers) guarded(fn func(ctx context.Context, c tele.Context, userID int64) (flows.Reply, error)) tele.HandlerFunc {
	return func(c tele.Context) error {
		if !h.privileged(c) {
			return c.Respond(&tele.CallbackResponse{Text: deniedText})
		}
		ctx := tghelpers.BuildContext(c)
		reply, err := fn(ctx, c, c.Sender().ID)
		if err != nil {
			return err
		}
		return flows.Render(c, reply)
	}
}

func (h *Handlers) cbStart(c tele.Context) error {
	switch callbacks.CallbackPayload(c) {
	case "addch":
		return c.Edit("Use /addch to add a channel.")
	case "post":
		return c.Edit("Use /post to start posting.")
	default:
		return c.Edit("Use /help to see all commands.")
	}
}

func (h *Handlers) cbDeleteChannel(c tele.Context) error {
	channelID, err := callbacks.PayloadInt64(c)
	if err != nil {
		return c.Edit("❌ Channel not found.")
	}
	ctx := tghelpers.BuildContext(c)
	deleted, err := h.channels.Delete(ctx, channelID, c.Sender().ID)
	if err != nil {
		return err
	}
	if !deleted {
		return c.Edit("❌ Channel not found.")
	}
	if err := h.audit.Record(ctx, c.Sender().ID, audit.ActionChannelDeleted); err != nil {
		logger.SVCAudit.Warn("delch.audit", slog.String("err", err.Error()))
	}
	return c.Edit("🗑 Channel deleted successfully!")
}

// cbAlert serves presses on alert buttons attached to published posts. The
// payload carries the popup flag and the stored text.
func (h *Handlers) cbAlert(c tele.Context) error {
	text, showAlert := buttons.DecodeAlert(callbacks.CallbackPayload(c))
	return c.Respond(&tele.CallbackResponse{Text: text, ShowAlert: showAlert})
}
