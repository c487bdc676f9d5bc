package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/approval"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/costline"
	"github.com/iota-uz/changeorders/pkg/serrors"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindConflict     Kind = "conflict"
	KindUnexpected   Kind = "unexpected"
)

type ServiceError struct {
	Kind    Kind
	Code    string
	Message string
	Fields  serrors.ValidationErrors
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// Status is the HTTP status a transport should answer with.
func (e *ServiceError) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindUnexpected:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func newServiceError(kind Kind, code, message string, cause error) *ServiceError {
	return &ServiceError{Kind: kind, Code: code, Message: message, Cause: cause}
}

func validationError(fields serrors.ValidationErrors) *ServiceError {
	return &ServiceError{Kind: KindValidation, Code: "CO_VALIDATION", Message: fields.Error(), Fields: fields}
}

func invalidStateError(code, message string) *ServiceError {
	return newServiceError(KindInvalidState, code, message, nil)
}

// KindOf classifies err, treating anything unknown as unexpected.
func KindOf(err error) Kind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnexpected
}

// IsRetryable reports whether the caller may retry the operation as is.
// Only conflicts qualify; every other kind needs reconciliation first.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindConflict
}

func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}

	switch {
	case errors.Is(err, changerequest.ErrNotFound), errors.Is(err, pgx.ErrNoRows):
		return newServiceError(KindNotFound, "CO_NOT_FOUND", "change request not found", err)
	case errors.Is(err, approval.ErrNotFound):
		return newServiceError(KindNotFound, "CO_STEP_NOT_FOUND", "approval step not found", err)
	case errors.Is(err, costline.ErrNotFound):
		return newServiceError(KindNotFound, "CO_LINE_ITEM_NOT_FOUND", "cost line item not found", err)
	case errors.Is(err, changerequest.ErrVersionConflict):
		recordWriteConflict("version")
		return newServiceError(KindConflict, "CO_VERSION_CONFLICT", "change request was modified concurrently", err)
	case errors.Is(err, approval.ErrStepTaken):
		recordWriteConflict("decision")
		return newServiceError(KindConflict, "CO_DECISION_CONFLICT", "approval step was decided concurrently", err)
	case errors.Is(err, changerequest.ErrNumberTaken):
		recordWriteConflict("number")
		return newServiceError(KindConflict, "CO_NUMBER_CONFLICT", "change request number already taken", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newServiceError(KindUnexpected, "CO_CANCELLED", "operation cancelled", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			recordWriteConflict("unique")
			return newServiceError(KindConflict, "CO_CONFLICT", "unique constraint violated", err)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			recordWriteConflict("serialization")
			return newServiceError(KindConflict, "CO_TX_CONFLICT", "transaction conflict", err)
		default:
			return newServiceError(KindUnexpected, "CO_INTERNAL", fmt.Sprintf("database error (%s)", pgErr.Code), err)
		}
	}
	return newServiceError(KindUnexpected, "CO_INTERNAL", "unexpected error", err)
}
