package persistence

import (
	"context"
	"errors"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/approval"
	"github.com/iota-uz/changeorders/pkg/composables"
)

const stepColumns = `id, change_request_id, approver_id, level, status, decided_at, comment, created_at, updated_at`

type ApprovalStepRepository struct{}

func NewApprovalStepRepository() approval.Repository {
	return &ApprovalStepRepository{}
}

func scanStep(row rowScanner) (*approval.Step, error) {
	var (
		s      approval.Step
		status string
	)
	if err := row.Scan(&s.ID, &s.ChangeRequestID, &s.ApproverID, &s.Level, &status, &s.DecidedAt, &s.Comment, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Status = approval.StepStatus(status)
	return &s, nil
}

func (r *ApprovalStepRepository) CreateMany(ctx context.Context, steps []*approval.Step) error {
	if len(steps) == 0 {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, s := range steps {
		batch.Queue(`
			INSERT INTO change_request_approval_steps (`+stepColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			pgUUID(s.ID), pgUUID(s.ChangeRequestID), pgUUID(s.ApproverID), s.Level, string(s.Status),
			s.DecidedAt, s.Comment, s.CreatedAt, s.UpdatedAt,
		)
	}
	br := tx.SendBatch(ctx, batch)
	for range steps {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if isUniqueViolation(err, "") {
				return gerrors.Wrap(approval.ErrStepTaken, err.Error())
			}
			return gerrors.Wrap(err, "failed to create approval steps")
		}
	}
	return br.Close()
}

func (r *ApprovalStepRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*approval.Step, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+stepColumns+`
		FROM change_request_approval_steps
		WHERE change_request_id = $1
		ORDER BY level`,
		pgUUID(requestID),
	)
	if err != nil {
		return nil, gerrors.Wrap(err, "failed to list approval steps")
	}
	defer rows.Close()

	var out []*approval.Step
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, gerrors.Wrap(err, "failed to scan approval step")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ApprovalStepRepository) GetAtLevelForUpdate(ctx context.Context, requestID uuid.UUID, level int) (*approval.Step, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	s, err := scanStep(tx.QueryRow(ctx, `
		SELECT `+stepColumns+`
		FROM change_request_approval_steps
		WHERE change_request_id = $1 AND level = $2
		FOR UPDATE`,
		pgUUID(requestID), level,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, gerrors.Wrapf(approval.ErrNotFound, "level %d", level)
		}
		return nil, gerrors.Wrap(err, "failed to load approval step")
	}
	return s, nil
}

func (r *ApprovalStepRepository) FindByApprover(ctx context.Context, requestID, approverID uuid.UUID) (*approval.Step, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	s, err := scanStep(tx.QueryRow(ctx, `
		SELECT `+stepColumns+`
		FROM change_request_approval_steps
		WHERE change_request_id = $1 AND approver_id = $2`,
		pgUUID(requestID), pgUUID(approverID),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, gerrors.Wrapf(approval.ErrNotFound, "approver %s", approverID)
		}
		return nil, gerrors.Wrap(err, "failed to load approval step")
	}
	return s, nil
}

func (r *ApprovalStepRepository) UpdateStatus(ctx context.Context, step *approval.Step, expected approval.StepStatus) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE change_request_approval_steps
		SET status = $3, decided_at = $4, comment = $5, updated_at = $6
		WHERE id = $1 AND status = $2`,
		pgUUID(step.ID), string(expected), string(step.Status), step.DecidedAt, step.Comment, step.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return gerrors.Wrap(approval.ErrStepTaken, err.Error())
		}
		return gerrors.Wrap(err, "failed to update approval step")
	}
	if tag.RowsAffected() == 0 {
		return gerrors.Wrapf(approval.ErrStepTaken, "step %s is no longer %s", step.ID, expected)
	}
	return nil
}

func (r *ApprovalStepRepository) CancelQueued(ctx context.Context, requestID uuid.UUID, at time.Time) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE change_request_approval_steps
		SET status = $2, updated_at = $3
		WHERE change_request_id = $1 AND status = $4`,
		pgUUID(requestID), string(approval.StepCancelled), at, string(approval.StepQueued),
	)
	if err != nil {
		return 0, gerrors.Wrap(err, "failed to cancel queued approval steps")
	}
	return tag.RowsAffected(), nil
}

func (r *ApprovalStepRepository) DeleteByRequest(ctx context.Context, requestID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM change_request_approval_steps WHERE change_request_id = $1`, pgUUID(requestID)); err != nil {
		return gerrors.Wrap(err, "failed to delete approval steps")
	}
	return nil
}
