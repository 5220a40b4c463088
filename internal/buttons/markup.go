package buttons

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// AlertCallbackKey is the callback unique registered for alert buttons on
// published posts. The payload carries the show-alert flag and the text.
const AlertCallbackKey = "alert"

// Markup renders parsed rows as an inline keyboard. Returns nil when no
// buttons have been accumulated so callers can pass the result straight to
// send options.
func Markup(rows [][]Spec) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	keyboard := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		line := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			switch b.Kind {
			case KindURL:
				line = append(line, tele.InlineButton{Text: b.Label, URL: b.URL})
			case KindAlert:
				line = append(line, tele.InlineButton{
					Text:   b.Label,
					Unique: AlertCallbackKey,
					Data:   encodeAlert(b),
				})
			}
		}
		keyboard = append(keyboard, line)
	}
	return &tele.ReplyMarkup{InlineKeyboard: keyboard}
}

func encodeAlert(b Spec) string {
	flag := "0"
	if b.ShowAlert {
		flag = "1"
	}
	return flag + "|" + b.AlertText
}

// DecodeAlert parses the payload of an alert button press back into its text
// and show-alert flag. Payloads without a flag segment default to a popup.
func DecodeAlert(payload string) (text string, showAlert bool) {
	flag, text, found := strings.Cut(payload, "|")
	if !found {
		return payload, true
	}
	return text, flag == "1"
}
