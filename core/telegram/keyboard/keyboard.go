// Package keyboard builds inline keyboards whose buttons carry raw
// "key" or "key=payload" data, the form decoded by package callbacks.
package keyboard

import tele "gopkg.in/telebot.v4"

// Button is one inline button. An empty Payload sends the bare key.
type Button struct {
	Text    string
	Key     string
	Payload string
}

// Data is the callback data sent when b is pressed.
func (b Button) Data() string {
	if b.Payload == "" {
		return b.Key
	}
	return b.Key + "=" + b.Payload
}

func (b Button) inline() tele.InlineButton {
	return tele.InlineButton{Text: b.Text, Data: b.Data()}
}

// Column places every button on a row of its own.
func Column(buttons ...Button) *tele.ReplyMarkup {
	rows := make([][]Button, len(buttons))
	for i, b := range buttons {
		rows[i] = []Button{b}
	}
	return Grid(rows...)
}

// Grid lays the buttons out row by row. Empty rows are skipped.
func Grid(rows ...[]Button) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		line := make([]tele.InlineButton, len(row))
		for i, b := range row {
			line[i] = b.inline()
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, line)
	}
	return markup
}
