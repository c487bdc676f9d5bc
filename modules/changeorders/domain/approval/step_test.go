package approval

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestBuildChain(t *testing.T) {
	requestID := uuid.New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	steps := BuildChain(requestID, []uuid.UUID{a, b, c}, time.Now())
	require.Len(t, steps, 3)

	pending := 0
	for i, s := range steps {
		require.Equal(t, i+1, s.Level)
		require.Equal(t, requestID, s.ChangeRequestID)
		if s.Status == StepPending {
			pending++
		}
	}
	require.Equal(t, 1, pending)
	require.Equal(t, StepPending, steps[0].Status)
	require.Equal(t, a, steps[0].ApproverID)
	require.Equal(t, StepQueued, steps[2].Status)
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("reject")
	require.NoError(t, err)
	require.Equal(t, StepRejected, d.Outcome())

	_, err = ParseDecision("maybe")
	require.Error(t, err)
}
