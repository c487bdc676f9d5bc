package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
	"github.com/iota-uz/changeorders/pkg/composables"
)

const changeRequestColumns = `id, scope_id, number, title, description, category, priority, status, currency,
	baseline_value, delta_value, delta_source, revised_value, baseline_date, day_impact, revised_date,
	approver_ids, current_level, current_approver_id, created_by,
	submitted_at, approved_at, rejected_at, completed_at, cancelled_at, rejection_reason,
	version, created_at, updated_at`

type ChangeRequestRepository struct{}

func NewChangeRequestRepository() changerequest.Repository {
	return &ChangeRequestRepository{}
}

func scanChangeRequest(row rowScanner) (*changerequest.ChangeRequest, error) {
	var (
		cr                                 changerequest.ChangeRequest
		category, priority, status, source string
		baseline, delta, revised           pgtype.Numeric
		baselineDate, revisedDate          pgtype.Date
		dayImpact                          pgtype.Int4
		approvers                          []pgtype.UUID
		currentApprover                    pgtype.UUID
	)
	if err := row.Scan(
		&cr.ID, &cr.ScopeID, &cr.Number, &cr.Title, &cr.Description, &category, &priority, &status, &cr.Currency,
		&baseline, &delta, &source, &revised, &baselineDate, &dayImpact, &revisedDate,
		&approvers, &cr.CurrentLevel, &currentApprover, &cr.CreatedBy,
		&cr.SubmittedAt, &cr.ApprovedAt, &cr.RejectedAt, &cr.CompletedAt, &cr.CancelledAt, &cr.RejectionReason,
		&cr.Version, &cr.CreatedAt, &cr.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if cr.Category, err = changerequest.ParseCategory(category); err != nil {
		return nil, err
	}
	if cr.Priority, err = changerequest.ParsePriority(priority); err != nil {
		return nil, err
	}
	if cr.Status, err = changerequest.ParseStatus(status); err != nil {
		return nil, err
	}
	if cr.DeltaSource, err = changerequest.ParseDeltaSource(source); err != nil {
		return nil, err
	}
	if cr.BaselineValue, err = asNullDecimal(baseline); err != nil {
		return nil, gerrors.Wrap(err, "baseline_value")
	}
	if cr.DeltaValue, err = asNullDecimal(delta); err != nil {
		return nil, gerrors.Wrap(err, "delta_value")
	}
	if cr.RevisedValue, err = asNullDecimal(revised); err != nil {
		return nil, gerrors.Wrap(err, "revised_value")
	}
	cr.BaselineDate = asDatePtr(baselineDate)
	cr.RevisedDate = asDatePtr(revisedDate)
	cr.DayImpact = asIntPtr(dayImpact)
	cr.ApproverIDs = asUUIDs(approvers)
	cr.CurrentApproverID = asUUIDPtr(currentApprover)
	return &cr, nil
}

func (r *ChangeRequestRepository) Create(ctx context.Context, cr *changerequest.ChangeRequest) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO change_requests (`+changeRequestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
		        $21, $22, $23, $24, $25, $26, $27, $28, $29)`,
		pgUUID(cr.ID), pgUUID(cr.ScopeID), cr.Number, cr.Title, cr.Description,
		string(cr.Category), string(cr.Priority), string(cr.Status), cr.Currency,
		pgNumeric(cr.BaselineValue), pgNumeric(cr.DeltaValue), string(cr.DeltaSource), pgNumeric(cr.RevisedValue),
		pgDate(cr.BaselineDate), pgInt4(cr.DayImpact), pgDate(cr.RevisedDate),
		pgUUIDArray(cr.ApproverIDs), cr.CurrentLevel, pgNullUUID(cr.CurrentApproverID), pgUUID(cr.CreatedBy),
		cr.SubmittedAt, cr.ApprovedAt, cr.RejectedAt, cr.CompletedAt, cr.CancelledAt, cr.RejectionReason,
		cr.Version, cr.CreatedAt, cr.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "change_requests_scope_number_key") {
			return gerrors.Wrapf(changerequest.ErrNumberTaken, "number %s", cr.Number)
		}
		return gerrors.Wrap(err, "failed to create change request")
	}
	return nil
}

func (r *ChangeRequestRepository) get(ctx context.Context, id uuid.UUID, lock bool) (*changerequest.ChangeRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	q := `SELECT ` + changeRequestColumns + ` FROM change_requests WHERE id = $1`
	if lock {
		q += ` FOR UPDATE`
	}
	cr, err := scanChangeRequest(tx.QueryRow(ctx, q, pgUUID(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, gerrors.Wrapf(changerequest.ErrNotFound, "id %s", id)
		}
		return nil, gerrors.Wrap(err, "failed to load change request")
	}
	return cr, nil
}

func (r *ChangeRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	return r.get(ctx, id, false)
}

func (r *ChangeRequestRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	return r.get(ctx, id, true)
}

func (r *ChangeRequestRepository) Update(ctx context.Context, cr *changerequest.ChangeRequest) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	var version int64
	err = tx.QueryRow(ctx, `
		UPDATE change_requests
		SET title = $2,
		    description = $3,
		    category = $4,
		    priority = $5,
		    status = $6,
		    baseline_value = $7,
		    delta_value = $8,
		    delta_source = $9,
		    revised_value = $10,
		    baseline_date = $11,
		    day_impact = $12,
		    revised_date = $13,
		    approver_ids = $14,
		    current_level = $15,
		    current_approver_id = $16,
		    submitted_at = $17,
		    approved_at = $18,
		    rejected_at = $19,
		    completed_at = $20,
		    cancelled_at = $21,
		    rejection_reason = $22,
		    updated_at = $23,
		    version = version + 1
		WHERE id = $1 AND version = $24
		RETURNING version`,
		pgUUID(cr.ID), cr.Title, cr.Description, string(cr.Category), string(cr.Priority), string(cr.Status),
		pgNumeric(cr.BaselineValue), pgNumeric(cr.DeltaValue), string(cr.DeltaSource), pgNumeric(cr.RevisedValue),
		pgDate(cr.BaselineDate), pgInt4(cr.DayImpact), pgDate(cr.RevisedDate),
		pgUUIDArray(cr.ApproverIDs), cr.CurrentLevel, pgNullUUID(cr.CurrentApproverID),
		cr.SubmittedAt, cr.ApprovedAt, cr.RejectedAt, cr.CompletedAt, cr.CancelledAt, cr.RejectionReason,
		cr.UpdatedAt, cr.Version,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return gerrors.Wrapf(changerequest.ErrVersionConflict, "id %s version %d", cr.ID, cr.Version)
		}
		return gerrors.Wrap(err, "failed to update change request")
	}
	cr.Version = version
	return nil
}

func statusFilter(statuses []changerequest.Status) []string {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func (r *ChangeRequestRepository) ListByScope(ctx context.Context, scopeID uuid.UUID, params changerequest.FindParams) ([]*changerequest.ChangeRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+changeRequestColumns+`
		FROM change_requests
		WHERE scope_id = $1
		  AND ($2::text[] IS NULL OR status = ANY($2::text[]))
		ORDER BY created_at DESC, number DESC
		LIMIT NULLIF($3, 0) OFFSET $4`,
		pgUUID(scopeID), statusFilter(params.Statuses), params.Limit, params.Offset,
	)
	if err != nil {
		return nil, gerrors.Wrap(err, "failed to list change requests")
	}
	defer rows.Close()

	var out []*changerequest.ChangeRequest
	for rows.Next() {
		cr, err := scanChangeRequest(rows)
		if err != nil {
			return nil, gerrors.Wrap(err, "failed to scan change request")
		}
		out = append(out, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.Wrap(err, "failed to list change requests")
	}
	return out, nil
}

func (r *ChangeRequestRepository) CountByScope(ctx context.Context, scopeID uuid.UUID, params changerequest.FindParams) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	if err := tx.QueryRow(ctx, `
		SELECT count(*)
		FROM change_requests
		WHERE scope_id = $1
		  AND ($2::text[] IS NULL OR status = ANY($2::text[]))`,
		pgUUID(scopeID), statusFilter(params.Statuses),
	).Scan(&total); err != nil {
		return 0, gerrors.Wrap(err, "failed to count change requests")
	}
	return total, nil
}

type CounterRepository struct{}

func NewCounterRepository() changerequest.Counter {
	return &CounterRepository{}
}

// Next increments the scope counter atomically; the row lock is held until
// the surrounding transaction ends.
func (r *CounterRepository) Next(ctx context.Context, scopeID uuid.UUID) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	var next int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO change_request_counters (scope_id, last_value)
		VALUES ($1, 1)
		ON CONFLICT (scope_id) DO UPDATE
		SET last_value = change_request_counters.last_value + 1
		RETURNING last_value`,
		pgUUID(scopeID),
	).Scan(&next); err != nil {
		return 0, gerrors.Wrap(err, "failed to advance change request counter")
	}
	return next, nil
}
