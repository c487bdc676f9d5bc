package memstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/costline"
)

type CostLineRepository struct {
	store *Store
}

func NewCostLineRepository(store *Store) costline.Repository {
	return &CostLineRepository{store: store}
}

func (r *CostLineRepository) Create(ctx context.Context, item *costline.LineItem) error {
	st, err := r.store.current(ctx)
	if err != nil {
		return err
	}
	if _, ok := st.requests[item.ChangeRequestID]; !ok {
		return fmt.Errorf("memstore: change request %s does not exist", item.ChangeRequestID)
	}
	cp := *item
	st.lines[item.ChangeRequestID] = append(st.lines[item.ChangeRequestID], &cp)
	return nil
}

func (r *CostLineRepository) find(st *state, requestID, id uuid.UUID) (int, error) {
	for i, it := range st.lines[requestID] {
		if it.ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("id %s: %w", id, costline.ErrNotFound)
}

func (r *CostLineRepository) Get(ctx context.Context, requestID, id uuid.UUID) (*costline.LineItem, error) {
	st, err := r.store.current(ctx)
	if err != nil {
		return nil, err
	}
	i, err := r.find(st, requestID, id)
	if err != nil {
		return nil, err
	}
	cp := *st.lines[requestID][i]
	return &cp, nil
}

func (r *CostLineRepository) Update(ctx context.Context, item *costline.LineItem) error {
	st, err := r.store.current(ctx)
	if err != nil {
		return err
	}
	i, err := r.find(st, item.ChangeRequestID, item.ID)
	if err != nil {
		return err
	}
	cp := *item
	cp.CreatedAt = st.lines[item.ChangeRequestID][i].CreatedAt
	st.lines[item.ChangeRequestID][i] = &cp
	return nil
}

func (r *CostLineRepository) Delete(ctx context.Context, requestID, id uuid.UUID) error {
	st, err := r.store.current(ctx)
	if err != nil {
		return err
	}
	i, err := r.find(st, requestID, id)
	if err != nil {
		return err
	}
	items := st.lines[requestID]
	st.lines[requestID] = append(items[:i:i], items[i+1:]...)
	return nil
}

func (r *CostLineRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*costline.LineItem, error) {
	st, err := r.store.current(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*costline.LineItem, 0, len(st.lines[requestID]))
	for _, it := range st.lines[requestID] {
		cp := *it
		out = append(out, &cp)
	}
	return out, nil
}
