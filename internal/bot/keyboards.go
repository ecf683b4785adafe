package bot

import (
	"strconv"

	"github.com/m3rciful/eventbot/core/telegram/keyboard"
	"github.com/m3rciful/eventbot/internal/events"

	tele "gopkg.in/telebot.v4"
)

// Callback keys carried by inline buttons.
const (
	CallbackUsedURL = "used_url"
	CallbackConfirm = "confirm"
	CallbackCancel  = "cancel"
)

// EventsKeyboard puts one button per event, each on its own row.
func EventsKeyboard(list []events.EventRef) *tele.ReplyMarkup {
	buttons := make([]keyboard.Button, len(list))
	for i, e := range list {
		buttons[i] = keyboard.Button{
			Text:    "Event: " + e.Summary,
			Key:     CallbackUsedURL,
			Payload: strconv.FormatInt(e.ID, 10),
		}
	}
	return keyboard.Column(buttons...)
}

// ConfirmKeyboard offers confirm and cancel for the collected event.
func ConfirmKeyboard() *tele.ReplyMarkup {
	return keyboard.Column(
		keyboard.Button{Text: "Confirm", Key: CallbackConfirm},
		keyboard.Button{Text: "Cancel", Key: CallbackCancel},
	)
}
