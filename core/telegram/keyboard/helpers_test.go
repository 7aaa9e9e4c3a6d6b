package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyButtonsSkipsEmptyRows(t *testing.T) {
	m := ReplyButtons([]string{"a", "b"}, nil, []string{"back"})
	require.Len(t, m.ReplyKeyboard, 2)
	assert.Equal(t, "a", m.ReplyKeyboard[0][0].Text)
	assert.Equal(t, "b", m.ReplyKeyboard[0][1].Text)
	assert.Equal(t, "back", m.ReplyKeyboard[1][0].Text)
	assert.True(t, m.ResizeKeyboard)
}

func TestColumns(t *testing.T) {
	assert.Equal(t, [][]string{{"1", "2"}, {"3"}}, Columns([]string{"1", "2", "3"}, 2))
	assert.Equal(t, [][]string{{"1"}, {"2"}}, Columns([]string{"1", "2"}, 0))
	assert.Empty(t, Columns(nil, 2))
}

func TestSingleCancelMarkup(t *testing.T) {
	m := SingleCancelMarkup("Stop")
	require.Len(t, m.InlineKeyboard, 1)
	require.Len(t, m.InlineKeyboard[0], 1)
	assert.Equal(t, "Stop", m.InlineKeyboard[0][0].Text)
	assert.Equal(t, CancelKey, m.InlineKeyboard[0][0].Unique)
}
