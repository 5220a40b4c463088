// Package forward resolves the originating channel of a forwarded message.
//
// Telegram has shipped several representations of "forwarded from" metadata
// over the years; the resolver probes them in a fixed priority order so that
// flows see a single answer regardless of which shape the client produced.
package forward

import (
	"errors"

	tele "gopkg.in/telebot.v4"
)

// Origin identifies the channel a message was forwarded from.
type Origin struct {
	ChannelID int64
	Title     string
	// MessageID is the id of the original message inside the channel.
	// Needed by the edit flow; zero when the representation omits it.
	MessageID int
}

var (
	// ErrNotForwarded reports a message with no forward metadata at all.
	ErrNotForwarded = errors.New("forward: message is not a forward")
	// ErrHiddenOrigin reports a forward whose sender hid their identity,
	// leaving no chat reference to resolve.
	ErrHiddenOrigin = errors.New("forward: origin hidden by privacy settings")
	// ErrWrongSourceType reports a forward from a user or group chat.
	ErrWrongSourceType = errors.New("forward: not forwarded from a channel")
)

const fallbackTitle = "Unknown Channel"

// Resolve extracts the originating channel from msg. It is pure and
// deterministic: representations are checked in priority order and the first
// match wins. The legacy flat forward_* fields come first, then the
// structured forward_origin wrapper that replaced them in Bot API 7.0.
func Resolve(msg *tele.Message) (Origin, error) {
	if msg == nil {
		return Origin{}, ErrNotForwarded
	}
	if msg.OriginalChat != nil {
		return fromChat(msg.OriginalChat, msg.OriginalMessageID)
	}
	if msg.Origin != nil {
		return fromOrigin(msg.Origin)
	}
	if msg.OriginalSender != nil {
		return Origin{}, ErrWrongSourceType
	}
	if msg.OriginalSenderName != "" {
		return Origin{}, ErrHiddenOrigin
	}
	return Origin{}, ErrNotForwarded
}

func fromOrigin(o *tele.MessageOrigin) (Origin, error) {
	switch {
	case o.Chat != nil:
		// Channel origins carry the chat and the original message id.
		return fromChat(o.Chat, o.MessageID)
	case o.Sender != nil || o.SenderChat != nil:
		return Origin{}, ErrWrongSourceType
	case o.SenderUsername != "":
		return Origin{}, ErrHiddenOrigin
	default:
		return Origin{}, ErrNotForwarded
	}
}

func fromChat(chat *tele.Chat, messageID int) (Origin, error) {
	if chat.Type != tele.ChatChannel {
		return Origin{}, ErrWrongSourceType
	}
	title := chat.Title
	if title == "" {
		title = fallbackTitle
	}
	return Origin{ChannelID: chat.ID, Title: title, MessageID: messageID}, nil
}
