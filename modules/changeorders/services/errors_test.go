package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/approval"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/costline"
)

func TestMapStoreError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		kind   Kind
		code   string
		status int
	}{
		{"request missing", fmt.Errorf("id x: %w", changerequest.ErrNotFound), KindNotFound, "CO_NOT_FOUND", http.StatusNotFound},
		{"no rows", pgx.ErrNoRows, KindNotFound, "CO_NOT_FOUND", http.StatusNotFound},
		{"step missing", approval.ErrNotFound, KindNotFound, "CO_STEP_NOT_FOUND", http.StatusNotFound},
		{"line missing", costline.ErrNotFound, KindNotFound, "CO_LINE_ITEM_NOT_FOUND", http.StatusNotFound},
		{"version", changerequest.ErrVersionConflict, KindConflict, "CO_VERSION_CONFLICT", http.StatusConflict},
		{"decision race", approval.ErrStepTaken, KindConflict, "CO_DECISION_CONFLICT", http.StatusConflict},
		{"number", changerequest.ErrNumberTaken, KindConflict, "CO_NUMBER_CONFLICT", http.StatusConflict},
		{"unique", &pgconn.PgError{Code: "23505"}, KindConflict, "CO_CONFLICT", http.StatusConflict},
		{"serialization", &pgconn.PgError{Code: "40001"}, KindConflict, "CO_TX_CONFLICT", http.StatusConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, KindConflict, "CO_TX_CONFLICT", http.StatusConflict},
		{"other pg", &pgconn.PgError{Code: "22001"}, KindUnexpected, "CO_INTERNAL", http.StatusInternalServerError},
		{"cancelled", context.Canceled, KindUnexpected, "CO_CANCELLED", http.StatusInternalServerError},
		{"anything", errors.New("boom"), KindUnexpected, "CO_INTERNAL", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := mapStoreError(tc.err)
			var se *ServiceError
			require.ErrorAs(t, mapped, &se)
			require.Equal(t, tc.kind, se.Kind)
			require.Equal(t, tc.code, se.Code)
			require.Equal(t, tc.status, se.Status())
			require.ErrorIs(t, mapped, tc.err)
			require.Equal(t, tc.kind == KindConflict, IsRetryable(mapped))
		})
	}
}

func TestMapStoreError_KeepsServiceErrors(t *testing.T) {
	require.NoError(t, mapStoreError(nil))

	original := invalidStateError("CO_OUT_OF_TURN", "not yet")
	wrapped := fmt.Errorf("decide: %w", original)
	require.Same(t, wrapped, mapStoreError(wrapped))
	require.Equal(t, KindInvalidState, KindOf(wrapped))
	require.Equal(t, http.StatusUnprocessableEntity, original.Status())

	v := validationError(requiredFields("scope_id", "title"))
	require.Equal(t, http.StatusBadRequest, v.Status())
	require.Len(t, v.Fields, 2)
	require.False(t, IsRetryable(v))
	require.False(t, IsRetryable(nil))
	require.Equal(t, KindUnexpected, KindOf(errors.New("plain")))
}
