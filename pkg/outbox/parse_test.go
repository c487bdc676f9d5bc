package outbox

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

func TestParseIdentifier(t *testing.T) {
	t.Parallel()

	ident, err := ParseIdentifier(" public.changeorders_outbox ")
	require.NoError(t, err)
	require.Equal(t, pgx.Identifier{"public", "changeorders_outbox"}, ident)
	require.Equal(t, "public.changeorders_outbox", TableLabel(ident))

	for _, bad := range []string{"", "a.b.c", "public.", "drop table;"} {
		_, err := ParseIdentifier(bad)
		require.ErrorIs(t, err, ErrInvalidConfig, bad)
	}
}

func TestValidateMessage(t *testing.T) {
	t.Parallel()

	table := pgx.Identifier{"changeorders_outbox"}
	require.ErrorIs(t, validateMessage(nil, Message{}), ErrInvalidMessage)
	require.ErrorIs(t, validateMessage(table, Message{Topic: "x"}), ErrInvalidMessage)
}
