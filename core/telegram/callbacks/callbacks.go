package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ParseCallbackData splits telebot's "\f<unique>|<payload>" encoding.
func ParseCallbackData(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	unique, payload, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(unique), payload
}

// Key returns the callback unique key. cb.Unique is used when telebot already decoded it.
func Key(cb *tele.Callback) string {
	if cb == nil {
		return ""
	}
	if cb.Unique != "" {
		return cb.Unique
	}
	k, _ := ParseCallbackData(cb)
	return k
}

// Payload returns the data following the unique key. On a generic OnCallback
// route cb.Unique is empty and Data still carries the raw encoding.
func Payload(cb *tele.Callback) string {
	if cb == nil {
		return ""
	}
	if cb.Unique != "" {
		return cb.Data
	}
	_, p := ParseCallbackData(cb)
	return p
}

// KeyAndPayload is a convenience wrapper over Key and Payload.
func KeyAndPayload(cb *tele.Callback) (string, string) {
	return Key(cb), Payload(cb)
}
