package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

func TestNewRelay_RequiresDependencies(t *testing.T) {
	t.Parallel()

	noop := DispatcherFunc(func(context.Context, DispatchedMessage) error { return nil })

	_, err := NewRelay(nil, pgx.Identifier{"t"}, noop, RelayOptions{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewCleaner(nil, pgx.Identifier{"t"}, CleanerOptions{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRelay_Classify(t *testing.T) {
	t.Parallel()

	r := &Relay{opts: RelayOptions{MaxAttempts: 3}}
	boom := errors.New("boom")

	require.Equal(t, outcomeAck, r.classify(claimed{Attempts: 3}, nil))
	require.Equal(t, outcomeNack, r.classify(claimed{Attempts: 2}, boom))
	require.Equal(t, outcomeDead, r.classify(claimed{Attempts: 3}, boom))
}

func TestRelayOptions_Defaults(t *testing.T) {
	t.Parallel()

	var o RelayOptions
	o.setDefaults()
	require.Equal(t, 100, o.BatchSize)
	require.Equal(t, 25, o.MaxAttempts)
	require.NotNil(t, o.Logger)
	require.NotNil(t, o.Rand)
}
