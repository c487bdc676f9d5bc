package composables

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/changeorders/pkg/constants"
)

var ErrNoActor = errors.New("no actor found in context")

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the request logger, or an entry on the standard logger
// when none was attached.
func UseLogger(ctx context.Context) *logrus.Entry {
	switch typed := ctx.Value(constants.LoggerKey).(type) {
	case *logrus.Entry:
		return typed
	case *logrus.Logger:
		return logrus.NewEntry(typed)
	default:
		return logrus.NewEntry(logrus.StandardLogger())
	}
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, constants.RequestIDKey, requestID)
}

func UseRequestID(ctx context.Context) string {
	v, _ := ctx.Value(constants.RequestIDKey).(string)
	return v
}

func WithActor(ctx context.Context, actorID uuid.UUID) context.Context {
	return context.WithValue(ctx, constants.ActorKey, actorID)
}

func UseActor(ctx context.Context) (uuid.UUID, error) {
	v, ok := ctx.Value(constants.ActorKey).(uuid.UUID)
	if !ok || v == uuid.Nil {
		return uuid.Nil, ErrNoActor
	}
	return v, nil
}
