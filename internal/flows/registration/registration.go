// Package registration drives the /addch conversation: prompt for a channel
// forward, validate its origin, check the bot's rights, persist the channel.
package registration

import (
	"context"
	"errors"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chanpost/core/logger"
	"github.com/m3rciful/chanpost/core/telegram/format"
	"github.com/m3rciful/chanpost/internal/audit"
	"github.com/m3rciful/chanpost/internal/channels"
	"github.com/m3rciful/chanpost/internal/flows"
	"github.com/m3rciful/chanpost/internal/forward"
	"github.com/m3rciful/chanpost/internal/session"
	"log/slog"

	"fmt"
)

// Flow is the channel registration state machine. The only non-terminal
// state is "awaiting forward"; every rejection keeps the session so the user
// can retry with another forward.
type Flow struct {
	sessions *session.Store
	channels flows.ChannelDirectory
	audit    flows.AuditTrail
	gateway  flows.Gateway
}

// New wires the registration flow.
func New(store *session.Store, dir flows.ChannelDirectory, trail flows.AuditTrail, gw flows.Gateway) *Flow {
	return &Flow{sessions: store, channels: dir, audit: trail, gateway: gw}
}

// Start opens a registration session, replacing any other flow in progress.
func (f *Flow) Start(userID int64) flows.Reply {
	f.sessions.Clear(userID)
	f.sessions.Update(userID, func(s *session.Session) {
		s.Mode = session.ModeRegister
		s.Step = session.StepAwaitForward
	})
	return flows.Reply{
		Markdown: true,
		Text: "🌸 Forward me *any message* from the channel you want to add.\n" +
			"Make sure I am an *admin* in that channel.",
	}
}

// HandleMessage consumes the next message while awaiting a forward.
func (f *Flow) HandleMessage(ctx context.Context, userID int64, msg *tele.Message) (flows.Reply, error) {
	origin, err := forward.Resolve(msg)
	if err != nil {
		return rejectionReply(err), nil
	}

	status, err := f.gateway.MemberStatus(ctx, origin.ChannelID)
	if err != nil {
		logger.SVCChannels.Warn("register.membership_check",
			slog.Int64("channel_id", origin.ChannelID),
			slog.String("err", err.Error()),
		)
		return flows.Reply{Text: "❌ I cannot access that channel. Add me as admin and forward again."}, nil
	}
	if !status.Admin {
		return flows.Reply{Text: "❌ I am not an admin in that channel. Promote me and forward again."}, nil
	}
	if !status.CanPost {
		return flows.Reply{Text: "❌ I cannot post in that channel. Grant me the \"Post messages\" right and forward again."}, nil
	}

	rec := channels.Record{
		ChannelID: origin.ChannelID,
		Title:     origin.Title,
		OwnerID:   userID,
	}
	if err := f.channels.Upsert(ctx, rec); err != nil {
		logger.SVCChannels.Error("register.persist",
			slog.Int64("channel_id", origin.ChannelID),
			slog.String("err", err.Error()),
		)
		return flows.Reply{Text: "❌ Could not save the channel. Please forward again."}, nil
	}

	f.sessions.Clear(userID)
	if err := f.audit.Record(ctx, userID, audit.ActionChannelAdded); err != nil {
		logger.SVCAudit.Warn("register.audit", slog.String("err", err.Error()))
	}

	return flows.Reply{
		Markdown: true,
		Text: fmt.Sprintf("🌸 *Channel added successfully!*\n\n*%s*\n`%d`",
			format.MD(origin.Title), origin.ChannelID),
	}, nil
}

func rejectionReply(err error) flows.Reply {
	switch {
	case errors.Is(err, forward.ErrHiddenOrigin):
		return flows.Reply{Text: "❌ The forward hides its origin. Forward without \"Hide sender name\" enabled."}
	case errors.Is(err, forward.ErrWrongSourceType):
		return flows.Reply{Text: "❌ Please forward from a channel only."}
	default:
		return flows.Reply{Text: "❌ This does not look like a channel forward.\n\nTip: open the channel, pick a message, and forward it here."}
	}
}
