package callbacks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCallbackData(t *testing.T) {
	key, payload := ParseCallbackData("\fcancel")
	assert.Equal(t, "cancel", key)
	assert.Empty(t, payload)

	key, payload = ParseCallbackData("\ftask|42")
	assert.Equal(t, "task", key)
	assert.Equal(t, "42", payload)

	key, _ = ParseCallbackData("lang")
	assert.Equal(t, "lang", key)
}

func TestEncode(t *testing.T) {
	assert.Equal(t, "\fcancel", Encode("cancel", ""))
	key, payload := ParseCallbackData(Encode("task", "a|b"))
	assert.Equal(t, "task", key)
	assert.Equal(t, "a|b", payload)
}
