package vfscore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseModeCombinations(t *testing.T) {
	flags, err := ParseMode("wct")
	require.NoError(t, err)
	require.True(t, flags.Write())
	require.True(t, flags.Create())
	require.True(t, flags.Truncate())
	require.False(t, flags.Read())
}

func TestParseModeRejectsUnknownCharacter(t *testing.T) {
	_, err := ParseMode("rx")
	require.ErrorIs(t, err, ErrBadMode)
}

func TestParseModeRequiresReadOrWrite(t *testing.T) {
	_, err := ParseMode("ct")
	require.ErrorIs(t, err, ErrBadMode)
}
