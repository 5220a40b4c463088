package post

import (
	"context"
	"fmt"
	"strconv"

	"github.com/samber/lo"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/chanpost/core/telegram/keyboard"
	"github.com/m3rciful/chanpost/internal/channels"
	"github.com/m3rciful/chanpost/internal/flows"
	"github.com/m3rciful/chanpost/internal/session"
)

const (
	titleRuneLimit     = 20
	channelsPerKeybRow = 2
)

type inlineBtn struct {
	text   string
	unique string
	data   string
}

func inlineRows(rows ...[]inlineBtn) *tele.ReplyMarkup {
	out := make([][]keyboard.InlineBtn, len(rows))
	for i, row := range rows {
		out[i] = lo.Map(row, func(b inlineBtn, _ int) keyboard.InlineBtn {
			return keyboard.InlineBtn{Text: b.text, Unique: b.unique, Data: b.data}
		})
	}
	return keyboard.InlineButtonsRows(out...)
}

// channelList renders the current page of the caller's channels. Navigation
// only moves the page cursor; the flow state stays in channel selection.
func (f *Flow) channelList(ctx context.Context, userID int64, edit bool) (flows.Reply, error) {
	recs, err := f.channels.ListByOwner(ctx, userID)
	if err != nil {
		return flows.Reply{}, err
	}
	if len(recs) == 0 {
		f.sessions.Clear(userID)
		return flows.Reply{
			EditCurrent: edit,
			Text:        "📭 No channels saved yet.\n\nUse /addch to add a channel first.",
		}, nil
	}

	pages := lo.Chunk(recs, f.pageSize)
	sess, ok := f.sessions.Mutate(userID, func(s *session.Session) {
		if s.Page >= len(pages) {
			s.Page = len(pages) - 1
		}
		if s.Page < 0 {
			s.Page = 0
		}
	})
	if !ok {
		return ReplyExpired(), nil
	}
	page := sess.Page

	btns := lo.Map(pages[page], func(rec channels.Record, _ int) inlineBtn {
		return inlineBtn{
			text:   "📢 " + truncateTitle(rec.Title),
			unique: CallbackSelectChannel,
			data:   strconv.FormatInt(rec.ChannelID, 10),
		}
	})
	rows := lo.Chunk(btns, channelsPerKeybRow)

	var nav []inlineBtn
	if page > 0 {
		nav = append(nav, inlineBtn{"◀️ Previous", CallbackPageBack, ""})
	}
	if page < len(pages)-1 {
		nav = append(nav, inlineBtn{"Next ▶️", CallbackPageNext, ""})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, []inlineBtn{
		{"🔄 Refresh", CallbackRefresh, ""},
		{"❌ Cancel", CallbackClose, ""},
	})

	text := fmt.Sprintf("📢 *Select a Channel*\n\nPage %d/%d • %d channels total\nChoose a channel to post or edit content:",
		page+1, len(pages), len(recs))
	return flows.Reply{
		EditCurrent: edit,
		Markdown:    true,
		Text:        text,
		Markup:      inlineRows(rows...),
	}, nil
}

func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= titleRuneLimit {
		return title
	}
	return string(runes[:titleRuneLimit]) + "..."
}
