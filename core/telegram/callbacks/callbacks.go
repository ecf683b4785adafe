// Package callbacks decodes inline button data into a routing key and a
// payload.
package callbacks

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ParseData splits raw button data into key and payload. It accepts
// Telebot's "\f<unique>|<payload>" encoding, "key=value" tokens such as
// "used_url=42" and bare tokens such as "confirm".
func ParseData(data string) (string, string) {
	raw := strings.TrimPrefix(data, "\f")
	raw = strings.TrimPrefix(raw, "\\f")
	sep := "="
	if strings.Contains(raw, "|") {
		sep = "|"
	}
	key, payload, _ := strings.Cut(raw, sep)
	return strings.TrimSpace(key), strings.TrimSpace(payload)
}

// Parse returns the key and payload of cb, preferring cb.Unique when set.
func Parse(cb *tele.Callback) (string, string) {
	switch {
	case cb == nil:
		return "", ""
	case cb.Unique != "":
		return cb.Unique, cb.Data
	}
	return ParseData(cb.Data)
}

// Payload returns the payload of the pressed button.
func Payload(c tele.Context) string {
	_, payload := Parse(c.Callback())
	return payload
}

// PayloadInt64 parses the payload as a decimal id.
func PayloadInt64(c tele.Context) (int64, error) {
	return strconv.ParseInt(Payload(c), 10, 64)
}
