package chats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	id, err := parseID("")
	require.NoError(t, err)
	assert.Zero(t, id)

	id, err = parseID(" 12 ")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	for _, bad := range []string{"abc", "-3", "0", "1.5"} {
		_, err := parseID(bad)
		assert.ErrorIs(t, err, errInvalidID, bad)
	}
}

func TestIsDigits(t *testing.T) {
	assert.True(t, isDigits("42"))
	assert.False(t, isDigits(""))
	assert.False(t, isDigits("4a"))
	assert.False(t, isDigits("-1"))
}
