package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/audit"
	"github.com/iota-uz/changeorders/pkg/composables"
)

type AuditRepository struct{}

func NewAuditRepository() audit.Repository {
	return &AuditRepository{}
}

func (r *AuditRepository) Append(ctx context.Context, entry *audit.Entry) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	if err := tx.QueryRow(ctx, `
		INSERT INTO change_request_audit (id, change_request_id, actor_id, action, field, old_value, new_value, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING sequence`,
		pgUUID(entry.ID), pgUUID(entry.ChangeRequestID), pgUUID(entry.ActorID), string(entry.Action),
		entry.Field, jsonParam(entry.OldValue), jsonParam(entry.NewValue), entry.Comment, entry.CreatedAt,
	).Scan(&entry.Sequence); err != nil {
		return errors.Wrap(err, "failed to append audit entry")
	}
	return nil
}

func (r *AuditRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*audit.Entry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, sequence, change_request_id, actor_id, action, field, old_value, new_value, comment, created_at
		FROM change_request_audit
		WHERE change_request_id = $1
		ORDER BY sequence ASC`,
		pgUUID(requestID),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list audit entries")
	}
	defer rows.Close()

	var out []*audit.Entry
	for rows.Next() {
		var (
			e                  audit.Entry
			action             string
			oldValue, newValue []byte
		)
		if err := rows.Scan(&e.ID, &e.Sequence, &e.ChangeRequestID, &e.ActorID, &action, &e.Field, &oldValue, &newValue, &e.Comment, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan audit entry")
		}
		e.Action = audit.Action(action)
		e.OldValue = oldValue
		e.NewValue = newValue
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list audit entries")
	}
	return out, nil
}
