// Package telegram implements the channel-side gateway on top of telebot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chanpost/internal/flows"
	"github.com/m3rciful/chanpost/internal/session"
)

// ErrNotConnected reports gateway use before the bot connection is bound.
var ErrNotConnected = errors.New("telegram: gateway not connected")

// Gateway performs channel operations through the live bot connection.
// Flows are wired before the bot exists, so the connection is bound later
// from the runtime start hook. Dispatch stays synchronous: the flows report
// the outcome to the user.
type Gateway struct {
	bot atomic.Pointer[tele.Bot]
}

// NewGateway creates an unbound gateway.
func NewGateway() *Gateway {
	return &Gateway{}
}

// Bind attaches the connected bot.
func (g *Gateway) Bind(bot *tele.Bot) {
	g.bot.Store(bot)
}

func (g *Gateway) conn() (*tele.Bot, error) {
	if b := g.bot.Load(); b != nil {
		return b, nil
	}
	return nil, ErrNotConnected
}

// MemberStatus reports the bot's own standing in the channel.
func (g *Gateway) MemberStatus(_ context.Context, channelID int64) (flows.Membership, error) {
	bot, err := g.conn()
	if err != nil {
		return flows.Membership{}, err
	}
	member, err := bot.ChatMemberOf(tele.ChatID(channelID), bot.Me)
	if err != nil {
		return flows.Membership{}, fmt.Errorf("telegram: member status of %d: %w", channelID, err)
	}
	admin := member.Role == tele.Creator || member.Role == tele.Administrator
	// Creators carry no explicit rights set; they can always post.
	canPost := member.Role == tele.Creator || member.Rights.CanPostMessages
	return flows.Membership{Admin: admin, CanPost: canPost}, nil
}

// Publish sends a new post to the channel and returns its message id.
func (g *Gateway) Publish(_ context.Context, channelID int64, content session.Content, markup *tele.ReplyMarkup) (int, error) {
	bot, err := g.conn()
	if err != nil {
		return 0, err
	}
	msg, err := bot.Send(tele.ChatID(channelID), outbound(content), &tele.SendOptions{ReplyMarkup: markup})
	if err != nil {
		return 0, fmt.Errorf("telegram: send to %d: %w", channelID, err)
	}
	return msg.ID, nil
}

// Replace edits the channel message in place, swapping text or media.
func (g *Gateway) Replace(_ context.Context, channelID int64, messageID int, content session.Content, markup *tele.ReplyMarkup) error {
	bot, err := g.conn()
	if err != nil {
		return err
	}
	target := tele.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    channelID,
	}
	opts := &tele.SendOptions{ReplyMarkup: markup}

	if content.Kind == session.ContentText {
		if _, err := bot.Edit(target, content.Text, opts); err != nil {
			return fmt.Errorf("telegram: edit %d in %d: %w", messageID, channelID, err)
		}
		return nil
	}

	media, ok := outbound(content).(tele.Inputtable)
	if !ok {
		return fmt.Errorf("telegram: content kind %q is not editable media", content.Kind)
	}
	if _, err := bot.EditMedia(target, media, opts); err != nil {
		return fmt.Errorf("telegram: edit media %d in %d: %w", messageID, channelID, err)
	}
	return nil
}

// outbound converts captured draft content into a telebot sendable.
func outbound(content session.Content) interface{} {
	file := tele.File{FileID: content.FileID}
	switch content.Kind {
	case session.ContentPhoto:
		return &tele.Photo{File: file, Caption: content.Text}
	case session.ContentVideo:
		return &tele.Video{File: file, Caption: content.Text}
	case session.ContentDocument:
		return &tele.Document{File: file, Caption: content.Text}
	default:
		return content.Text
	}
}
