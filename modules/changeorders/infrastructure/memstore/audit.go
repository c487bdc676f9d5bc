package memstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/audit"
)

type AuditRepository struct {
	store *Store
}

func NewAuditRepository(store *Store) audit.Repository {
	return &AuditRepository{store: store}
}

func (r *AuditRepository) Append(ctx context.Context, entry *audit.Entry) error {
	st, err := r.store.current(ctx)
	if err != nil {
		return err
	}
	if _, ok := st.requests[entry.ChangeRequestID]; !ok {
		return fmt.Errorf("memstore: change request %s does not exist", entry.ChangeRequestID)
	}
	st.auditSeq++
	entry.Sequence = st.auditSeq
	cp := *entry
	cp.OldValue = append([]byte(nil), entry.OldValue...)
	cp.NewValue = append([]byte(nil), entry.NewValue...)
	st.audit = append(st.audit, &cp)
	return nil
}

func (r *AuditRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*audit.Entry, error) {
	st, err := r.store.current(ctx)
	if err != nil {
		return nil, err
	}
	var out []*audit.Entry
	for _, e := range st.audit {
		if e.ChangeRequestID == requestID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
