package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineButtonsRows(t *testing.T) {
	m := InlineButtonsRows(
		[]InlineBtn{{Text: "Buy", Unique: "confirm", Data: "confirm_1_abc"}, {Text: "Back", Unique: "menu_packages"}},
		nil,
		[]InlineBtn{{Text: "Cancel", Unique: "cancel"}},
	)
	require.NotNil(t, m)
	require.Len(t, m.InlineKeyboard, 2)
	assert.Len(t, m.InlineKeyboard[0], 2)
	assert.Equal(t, "Buy", m.InlineKeyboard[0][0].Text)
	assert.Equal(t, "confirm", m.InlineKeyboard[0][0].Unique)
	assert.Equal(t, "confirm_1_abc", m.InlineKeyboard[0][0].Data)
	assert.Equal(t, "cancel", m.InlineKeyboard[1][0].Unique)
	assert.Empty(t, m.InlineKeyboard[1][0].Data)
}

func TestInlineButtonsRowsEmpty(t *testing.T) {
	assert.Nil(t, InlineButtonsRows())
	assert.Nil(t, InlineButtonsRows(nil, []InlineBtn{}))
}

func TestInlineButtonsNPerRow(t *testing.T) {
	btns := []InlineBtn{{Text: "1", Unique: "a"}, {Text: "2", Unique: "b"}, {Text: "3", Unique: "c"}}
	m := InlineButtonsNPerRow(btns, 2)
	require.NotNil(t, m)
	require.Len(t, m.InlineKeyboard, 2)
	assert.Len(t, m.InlineKeyboard[1], 1)
}
