package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/google/uuid"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
)

type ChangeRequestRepository struct {
	store *Store
}

func NewChangeRequestRepository(store *Store) changerequest.Repository {
	return &ChangeRequestRepository{store: store}
}

func (r *ChangeRequestRepository) Create(ctx context.Context, cr *changerequest.ChangeRequest) error {
	st, err := r.store.current(ctx)
	if err != nil {
		return err
	}
	if cr == nil {
		return errNilEntity
	}
	if _, ok := st.requests[cr.ID]; ok {
		return fmt.Errorf("memstore: duplicate change request id %s", cr.ID)
	}
	for _, existing := range st.requests {
		if existing.ScopeID == cr.ScopeID && existing.Number == cr.Number {
			return fmt.Errorf("number %s: %w", cr.Number, changerequest.ErrNumberTaken)
		}
	}
	st.requests[cr.ID] = cr.Clone()
	return nil
}

func (r *ChangeRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	st, err := r.store.current(ctx)
	if err != nil {
		return nil, err
	}
	cr, ok := st.requests[id]
	if !ok {
		return nil, fmt.Errorf("id %s: %w", id, changerequest.ErrNotFound)
	}
	return cr.Clone(), nil
}

// GetForUpdate is GetByID: transactions are already serialized.
func (r *ChangeRequestRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	return r.GetByID(ctx, id)
}

func (r *ChangeRequestRepository) Update(ctx context.Context, cr *changerequest.ChangeRequest) error {
	st, err := r.store.current(ctx)
	if err != nil {
		return err
	}
	existing, ok := st.requests[cr.ID]
	if !ok {
		return fmt.Errorf("id %s: %w", cr.ID, changerequest.ErrNotFound)
	}
	if existing.Version != cr.Version {
		return fmt.Errorf("id %s version %d: %w", cr.ID, cr.Version, changerequest.ErrVersionConflict)
	}
	cr.Version++
	stored := cr.Clone()
	// Creation facts are immutable.
	stored.ScopeID = existing.ScopeID
	stored.Number = existing.Number
	stored.CreatedBy = existing.CreatedBy
	stored.CreatedAt = existing.CreatedAt
	st.requests[cr.ID] = stored
	return nil
}

func (r *ChangeRequestRepository) filter(st *state, scopeID uuid.UUID, params changerequest.FindParams) []*changerequest.ChangeRequest {
	var out []*changerequest.ChangeRequest
	for _, cr := range st.requests {
		if cr.ScopeID != scopeID {
			continue
		}
		if len(params.Statuses) > 0 && !slices.Contains(params.Statuses, cr.Status) {
			continue
		}
		out = append(out, cr)
	}
	return out
}

func (r *ChangeRequestRepository) ListByScope(ctx context.Context, scopeID uuid.UUID, params changerequest.FindParams) ([]*changerequest.ChangeRequest, error) {
	st, err := r.store.current(ctx)
	if err != nil {
		return nil, err
	}
	matched := r.filter(st, scopeID, params)
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Number > matched[j].Number
	})

	if params.Offset > 0 {
		if params.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[params.Offset:]
	}
	if params.Limit > 0 && params.Limit < len(matched) {
		matched = matched[:params.Limit]
	}
	out := make([]*changerequest.ChangeRequest, 0, len(matched))
	for _, cr := range matched {
		out = append(out, cr.Clone())
	}
	return out, nil
}

func (r *ChangeRequestRepository) CountByScope(ctx context.Context, scopeID uuid.UUID, params changerequest.FindParams) (int64, error) {
	st, err := r.store.current(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(r.filter(st, scopeID, params))), nil
}

type CounterRepository struct {
	store *Store
}

func NewCounterRepository(store *Store) changerequest.Counter {
	return &CounterRepository{store: store}
}

func (r *CounterRepository) Next(ctx context.Context, scopeID uuid.UUID) (int64, error) {
	st, err := r.store.current(ctx)
	if err != nil {
		return 0, err
	}
	st.counters[scopeID]++
	return st.counters[scopeID], nil
}
