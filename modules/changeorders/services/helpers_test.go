package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/audit"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
	"github.com/iota-uz/changeorders/modules/changeorders/infrastructure/memstore"
	"github.com/iota-uz/changeorders/modules/changeorders/services"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []services.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n services.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) Sent() []services.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]services.Notification(nil), r.sent...)
}

type fixture struct {
	store    *memstore.Store
	uow      *memstore.UnitOfWork
	svc      *services.ChangeOrderService
	clock    *clock
	notifier *recordingNotifier
	deps     services.Dependencies
	scopeID  uuid.UUID
	actorID  uuid.UUID
}

type fixtureOption func(*services.Dependencies)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	store := memstore.New()
	uow := memstore.NewUnitOfWork(store)
	c := newClock()
	n := &recordingNotifier{}
	deps := services.Dependencies{
		UnitOfWork:      uow,
		Requests:        memstore.NewChangeRequestRepository(store),
		Counter:         memstore.NewCounterRepository(store),
		Steps:           memstore.NewApprovalStepRepository(store),
		Audit:           memstore.NewAuditRepository(store),
		Lines:           memstore.NewCostLineRepository(store),
		Notifier:        n,
		Numbering:       services.NumberingOptions{Prefix: "CO", Pad: 4, MaxAttempts: 3},
		DefaultCurrency: "USD",
		PageSize:        10,
		MaxPageSize:     50,
		Now:             c.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return &fixture{
		store:    store,
		uow:      uow,
		svc:      services.NewChangeOrderService(deps),
		clock:    c,
		notifier: n,
		deps:     deps,
		scopeID:  uuid.MustParse("3f2a9c41-7d55-4a0e-9d1b-6f0c2b7e8a10"),
		actorID:  uuid.New(),
	}
}

func (f *fixture) create(t *testing.T, p services.CreateParams) *changerequest.ChangeRequest {
	t.Helper()
	if p.ScopeID == uuid.Nil {
		p.ScopeID = f.scopeID
	}
	if p.Title == "" {
		p.Title = "Relocate loading dock"
	}
	if p.Category == "" {
		p.Category = changerequest.CategoryScopeChange
	}
	cr, err := f.svc.Create(context.Background(), p, f.actorID)
	require.NoError(t, err)
	return cr
}

func (f *fixture) history(t *testing.T, id uuid.UUID) []*audit.Entry {
	t.Helper()
	entries, err := f.svc.History(context.Background(), id)
	require.NoError(t, err)
	return entries
}

func entriesWith(entries []*audit.Entry, action audit.Action) []*audit.Entry {
	var out []*audit.Entry
	for _, e := range entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func requireAmount(t *testing.T, want string, got decimal.NullDecimal) {
	t.Helper()
	require.True(t, got.Valid, "expected %s, got null", want)
	require.True(t, decimal.RequireFromString(want).Equal(got.Decimal), "expected %s, got %s", want, got.Decimal)
}

func requireKind(t *testing.T, err error, kind services.Kind, code string) {
	t.Helper()
	require.Error(t, err)
	var se *services.ServiceError
	require.ErrorAs(t, err, &se)
	require.Equal(t, kind, se.Kind, "unexpected kind for %v", err)
	if code != "" {
		require.Equal(t, code, se.Code)
	}
}

func ptr[T any](v T) *T {
	return &v
}
