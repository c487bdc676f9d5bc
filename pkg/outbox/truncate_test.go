package outbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruncateError(t *testing.T) {
	t.Parallel()

	require.Empty(t, truncateError(nil, 10))
	require.Equal(t, "hello", truncateError(errors.New("hello world"), 5))
	require.Empty(t, truncateString("abc", 0))
}

func TestTruncateString_KeepsValidUTF8(t *testing.T) {
	t.Parallel()

	// "é" is two bytes; cutting after the first byte must drop it.
	require.Equal(t, "caf", truncateString("café", 4))
	require.Equal(t, "café", truncateString("café", 5))
}
