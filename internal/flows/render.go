package flows

import (
	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/m3rciful/chanpost/core/telegram/helpers"
)

// Render delivers a flow reply through the current update's context.
// Conversational sends go through the async sender helpers; edits stay
// synchronous because they target the message that triggered the callback.
func Render(c tele.Context, r Reply) error {
	if r.DeleteCurrent {
		return c.Delete()
	}
	if r.Text == "" && r.Markup == nil {
		return nil
	}
	if r.EditCurrent && c.Callback() != nil {
		if r.Markdown {
			return tghelpers.EditMD(c, r.Text, r.Markup)
		}
		if r.Markup != nil {
			return c.Edit(r.Text, r.Markup)
		}
		return c.Edit(r.Text)
	}
	if r.Markdown {
		return tghelpers.SendMD(c, r.Text, r.Markup)
	}
	if r.Markup != nil {
		return tghelpers.SendText(c, r.Text, &tele.SendOptions{ReplyMarkup: r.Markup})
	}
	return tghelpers.SendText(c, r.Text)
}
