package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
)

type NumberingOptions struct {
	Prefix      string
	Pad         int
	MaxAttempts int
}

func (o *NumberingOptions) setDefaults() {
	if o.Prefix == "" {
		o.Prefix = "CO"
	}
	if o.Pad <= 0 {
		o.Pad = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
}

// NumberingService hands out request numbers that are unique within a scope.
type NumberingService struct {
	uow     UnitOfWork
	counter changerequest.Counter
	opts    NumberingOptions
}

func NewNumberingService(uow UnitOfWork, counter changerequest.Counter, opts NumberingOptions) *NumberingService {
	opts.setDefaults()
	return &NumberingService{uow: uow, counter: counter, opts: opts}
}

// ScopeCode is the upper-cased first six hex digits of the scope id.
func ScopeCode(scopeID uuid.UUID) string {
	return strings.ToUpper(strings.ReplaceAll(scopeID.String(), "-", "")[:6])
}

func (s *NumberingService) Format(scopeID uuid.UUID, ordinal int64) string {
	return fmt.Sprintf("%s-%s-%0*d", s.opts.Prefix, ScopeCode(scopeID), s.opts.Pad, ordinal)
}

// Next advances the scope counter and formats the resulting number. The
// increment belongs to the transaction in ctx.
func (s *NumberingService) Next(ctx context.Context, scopeID uuid.UUID) (string, error) {
	if scopeID == uuid.Nil {
		return "", validationError(requiredFields("scope_id"))
	}
	return inTxResult(ctx, s.uow, func(txCtx context.Context) (string, error) {
		ordinal, err := s.counter.Next(txCtx, scopeID)
		if err != nil {
			return "", err
		}
		return s.Format(scopeID, ordinal), nil
	})
}

// Assign draws numbers until insert accepts one. Each insert runs in its own
// savepoint so a collision leaves the transaction usable; the counter moves
// on before the next attempt.
func (s *NumberingService) Assign(ctx context.Context, scopeID uuid.UUID, insert func(ctx context.Context, number string) error) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		number, err := s.Next(ctx, scopeID)
		if err != nil {
			return "", err
		}
		err = s.uow.InSavepoint(ctx, func(spCtx context.Context) error {
			return insert(spCtx, number)
		})
		if err == nil {
			return number, nil
		}
		if !errors.Is(err, changerequest.ErrNumberTaken) {
			return "", err
		}
		lastErr = err
		numberingRetries.Inc()
		logWithFields(ctx, logrus.WarnLevel, "changeorders: number collision, retrying", logrus.Fields{
			"scope_id": scopeID.String(),
			"number":   number,
			"attempt":  attempt,
		})
	}
	recordWriteConflict("number")
	return "", newServiceError(KindConflict, "CO_NUMBER_CONFLICT",
		fmt.Sprintf("could not assign a number after %d attempts", s.opts.MaxAttempts), lastErr)
}
