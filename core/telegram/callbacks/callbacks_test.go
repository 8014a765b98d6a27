package callbacks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	key, payload := ParseCallbackData(&tele.Callback{Data: "\fpkg|pkg2"})
	assert.Equal(t, "pkg", key)
	assert.Equal(t, "pkg2", payload)

	key, payload = ParseCallbackData(&tele.Callback{Data: "\fmenu_back"})
	assert.Equal(t, "menu_back", key)
	assert.Empty(t, payload)

	key, payload = ParseCallbackData(nil)
	assert.Empty(t, key)
	assert.Empty(t, payload)
}

func TestKeyAndPayloadPreferDecodedUnique(t *testing.T) {
	key, payload := KeyAndPayload(&tele.Callback{Unique: "confirm", Data: "confirm_42_abcdefgh"})
	assert.Equal(t, "confirm", key)
	assert.Equal(t, "confirm_42_abcdefgh", payload)

	key, payload = KeyAndPayload(&tele.Callback{Data: "\fconfirm|confirm_42_abcdefgh"})
	assert.Equal(t, "confirm", key)
	assert.Equal(t, "confirm_42_abcdefgh", payload)
}
