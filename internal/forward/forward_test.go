package forward

import (
	"encoding/json"
	"errors"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestResolveChannelForward(t *testing.T) {
	msg := &tele.Message{
		OriginalChat:      &tele.Chat{ID: -1009, Type: tele.ChatChannel, Title: "News"},
		OriginalMessageID: 42,
	}
	got, err := Resolve(msg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := Origin{ChannelID: -1009, Title: "News", MessageID: 42}
	if got != want {
		t.Errorf("Resolve = %+v, want %+v", got, want)
	}
}

func TestResolveMissingTitleFallsBack(t *testing.T) {
	msg := &tele.Message{
		OriginalChat: &tele.Chat{ID: -100500, Type: tele.ChatChannel},
	}
	got, err := Resolve(msg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Title != fallbackTitle {
		t.Errorf("title = %q, want %q", got.Title, fallbackTitle)
	}
}

func TestResolveStructuredOrigin(t *testing.T) {
	msg := &tele.Message{
		Origin: &tele.MessageOrigin{
			Chat:      &tele.Chat{ID: -1009, Type: tele.ChatChannel, Title: "News"},
			MessageID: 42,
		},
	}
	got, err := Resolve(msg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := Origin{ChannelID: -1009, Title: "News", MessageID: 42}
	if got != want {
		t.Errorf("Resolve = %+v, want %+v", got, want)
	}
}

func TestResolveStructuredOriginFromWireFormat(t *testing.T) {
	// Bot API 7.0 clients send only forward_origin, none of the flat
	// forward_* fields.
	raw := `{
		"message_id": 10,
		"forward_origin": {
			"type": "channel",
			"date": 1700000000,
			"chat": {"id": -1009, "type": "channel", "title": "News"},
			"message_id": 42
		}
	}`
	var msg tele.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, err := Resolve(&msg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := Origin{ChannelID: -1009, Title: "News", MessageID: 42}
	if got != want {
		t.Errorf("Resolve = %+v, want %+v", got, want)
	}
}

func TestResolveLegacyFieldsTakePriority(t *testing.T) {
	msg := &tele.Message{
		OriginalChat:      &tele.Chat{ID: -1009, Type: tele.ChatChannel, Title: "News"},
		OriginalMessageID: 42,
		Origin: &tele.MessageOrigin{
			Chat:      &tele.Chat{ID: -2000, Type: tele.ChatChannel, Title: "Other"},
			MessageID: 7,
		},
	}
	got, err := Resolve(msg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ChannelID != -1009 || got.MessageID != 42 {
		t.Errorf("Resolve = %+v, want the legacy representation", got)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  *tele.Message
		want error
	}{
		{
			name: "nil message",
			msg:  nil,
			want: ErrNotForwarded,
		},
		{
			name: "plain message",
			msg:  &tele.Message{Text: "hello"},
			want: ErrNotForwarded,
		},
		{
			name: "forward from group",
			msg: &tele.Message{
				OriginalChat: &tele.Chat{ID: -42, Type: tele.ChatGroup, Title: "Chat"},
			},
			want: ErrWrongSourceType,
		},
		{
			name: "forward from user",
			msg: &tele.Message{
				OriginalSender: &tele.User{ID: 7},
			},
			want: ErrWrongSourceType,
		},
		{
			name: "anonymized forward",
			msg: &tele.Message{
				OriginalSenderName: "Someone",
			},
			want: ErrHiddenOrigin,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Resolve(tt.msg); !errors.Is(err, tt.want) {
				t.Errorf("Resolve error = %v, want %v", err, tt.want)
			}
		})
	}
}
