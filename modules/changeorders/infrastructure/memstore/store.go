// Package memstore keeps change orders in process memory. Transactions are
// serialized by a single mutex and roll back by restoring a snapshot, which
// gives the same all-or-nothing behaviour as the Postgres backend.
package memstore

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/approval"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/audit"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/costline"
	"github.com/iota-uz/changeorders/pkg/composables"
)

type state struct {
	requests map[uuid.UUID]*changerequest.ChangeRequest
	counters map[uuid.UUID]int64
	steps    map[uuid.UUID][]*approval.Step
	audit    []*audit.Entry
	auditSeq int64
	lines    map[uuid.UUID][]*costline.LineItem
}

func newState() *state {
	return &state{
		requests: make(map[uuid.UUID]*changerequest.ChangeRequest),
		counters: make(map[uuid.UUID]int64),
		steps:    make(map[uuid.UUID][]*approval.Step),
		lines:    make(map[uuid.UUID][]*costline.LineItem),
	}
}

func (s *state) clone() *state {
	out := newState()
	for id, cr := range s.requests {
		out.requests[id] = cr.Clone()
	}
	for id, v := range s.counters {
		out.counters[id] = v
	}
	for id, steps := range s.steps {
		cp := make([]*approval.Step, 0, len(steps))
		for _, st := range steps {
			cp = append(cp, st.Clone())
		}
		out.steps[id] = cp
	}
	// Audit entries are never mutated, sharing them is safe.
	out.audit = append([]*audit.Entry(nil), s.audit...)
	out.auditSeq = s.auditSeq
	for id, items := range s.lines {
		cp := make([]*costline.LineItem, 0, len(items))
		for _, it := range items {
			c := *it
			cp = append(cp, &c)
		}
		out.lines[id] = cp
	}
	return out
}

type txKey struct{}

// Store is the shared state behind the memstore repositories.
type Store struct {
	mu   sync.Mutex
	data *state
}

func New() *Store {
	return &Store{data: newState()}
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// current returns the live state; callers must be inside a transaction.
func (s *Store) current(ctx context.Context) (*state, error) {
	if !s.inTx(ctx) {
		return nil, composables.ErrNoTx
	}
	return s.data, nil
}

// UnitOfWork implements transactions and savepoints over a Store.
type UnitOfWork struct {
	store *Store
}

func NewUnitOfWork(store *Store) *UnitOfWork {
	return &UnitOfWork{store: store}
}

func (u *UnitOfWork) InTx(ctx context.Context, fn func(context.Context) error) error {
	s := u.store
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (u *UnitOfWork) InSavepoint(ctx context.Context, fn func(context.Context) error) error {
	s := u.store
	if !s.inTx(ctx) {
		return composables.ErrNoTx
	}
	snapshot := s.data.clone()
	if err := fn(ctx); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

var errNilEntity = errors.New("memstore: nil entity")
