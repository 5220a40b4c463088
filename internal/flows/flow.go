// Package flows holds the contracts shared by the conversational state
// machines: the reply shape they produce, the collaborator interfaces they
// call, and the dispatcher that feeds mid-flow messages to the owning flow.
package flows

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chanpost/internal/channels"
	"github.com/m3rciful/chanpost/internal/session"
)

// Reply describes the outgoing reaction to one flow event. Flows stay pure:
// they return a Reply and the transport layer renders it.
type Reply struct {
	Text     string
	Markup   *tele.ReplyMarkup
	Markdown bool
	// EditCurrent edits the message carrying the pressed button instead of
	// sending a new one. Ignored for plain message events.
	EditCurrent bool
	// DeleteCurrent removes the prompt message entirely (close actions).
	DeleteCurrent bool
}

// Membership is the bot's standing in a channel.
type Membership struct {
	// Admin is true for administrator and creator roles.
	Admin bool
	// CanPost reflects the post-messages right where Telegram reports one.
	CanPost bool
}

// Gateway abstracts the channel-side Telegram operations flows dispatch.
type Gateway interface {
	// MemberStatus reports the bot's own membership in the channel.
	MemberStatus(ctx context.Context, channelID int64) (Membership, error)
	// Publish sends a new post to the channel and returns its message id.
	Publish(ctx context.Context, channelID int64, content session.Content, markup *tele.ReplyMarkup) (int, error)
	// Replace edits an existing channel message in place.
	Replace(ctx context.Context, channelID int64, messageID int, content session.Content, markup *tele.ReplyMarkup) error
}

// ChannelDirectory is the persistence surface flows need for channels.
type ChannelDirectory interface {
	Upsert(ctx context.Context, rec channels.Record) error
	ListByOwner(ctx context.Context, ownerID int64) ([]channels.Record, error)
	GetByOwner(ctx context.Context, channelID, ownerID int64) (channels.Record, error)
}

// AuditTrail records completed user actions.
type AuditTrail interface {
	Record(ctx context.Context, userID int64, action string) error
}

// CaptureContent extracts the draft payload from an arbitrary message.
// Media captions are kept verbatim. Returns false for unsupported updates.
func CaptureContent(msg *tele.Message) (session.Content, bool) {
	switch {
	case msg == nil:
		return session.Content{}, false
	case msg.Photo != nil:
		return session.Content{Kind: session.ContentPhoto, Text: msg.Caption, FileID: msg.Photo.FileID}, true
	case msg.Video != nil:
		return session.Content{Kind: session.ContentVideo, Text: msg.Caption, FileID: msg.Video.FileID}, true
	case msg.Document != nil:
		return session.Content{Kind: session.ContentDocument, Text: msg.Caption, FileID: msg.Document.FileID}, true
	case msg.Text != "":
		return session.Content{Kind: session.ContentText, Text: msg.Text}, true
	default:
		return session.Content{}, false
	}
}
