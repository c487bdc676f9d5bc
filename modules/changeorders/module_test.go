package changeorders_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/changeorders/modules/changeorders"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
	"github.com/iota-uz/changeorders/modules/changeorders/services"
	"github.com/iota-uz/changeorders/pkg/application"
	"github.com/iota-uz/changeorders/pkg/configuration"
)

func memoryOptions() changeorders.ModuleOptions {
	return changeorders.ModuleOptions{
		ChangeOrders: configuration.ChangeOrdersOptions{
			Storage:              configuration.StorageMemory,
			NumberPrefix:         "CO",
			NumberPad:            4,
			NumberingMaxAttempts: 3,
			DefaultCurrency:      "USD",
			NotificationsEnabled: true,
		},
		PageSize:    20,
		MaxPageSize: 50,
	}
}

func TestModule_MemoryBackendDeliversNotifications(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)
	app := application.New(&application.ApplicationOptions{Logger: logger})

	require.NoError(t, application.LoadModules(app, changeorders.NewModule(memoryOptions())))
	require.Len(t, app.Controllers(), 1)
	require.Empty(t, app.Runners())

	svc := app.Service(services.ChangeOrderService{}).(*services.ChangeOrderService)
	ctx := context.Background()
	author, approver := uuid.New(), uuid.New()

	cr, err := svc.Create(ctx, services.CreateParams{
		ScopeID:     uuid.New(),
		Title:       "Roof access hatch",
		Category:    changerequest.CategoryRegulatory,
		ApproverIDs: []uuid.UUID{approver},
	}, author)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, cr.ID, author)
	require.NoError(t, err)

	var delivered []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Data["component"] == "notifications" {
			delivered = append(delivered, e)
		}
	}
	require.Len(t, delivered, 1)
	require.Equal(t, "Approval requested", delivered[0].Message)
	require.Equal(t, approver.String(), delivered[0].Data["user_id"])
}

func TestModule_PostgresRequiresPool(t *testing.T) {
	opts := memoryOptions()
	opts.ChangeOrders.Storage = configuration.StoragePostgres
	opts.Outbox.Table = "public.changeorders_outbox"

	app := application.New(&application.ApplicationOptions{})
	err := application.LoadModules(app, changeorders.NewModule(opts))
	require.ErrorContains(t, err, "no database pool")
}

func TestModule_NotificationsCanBeDisabled(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	opts := memoryOptions()
	opts.ChangeOrders.NotificationsEnabled = false
	app := application.New(&application.ApplicationOptions{Logger: logger})
	require.NoError(t, application.LoadModules(app, changeorders.NewModule(opts)))

	svc := app.Service(services.ChangeOrderService{}).(*services.ChangeOrderService)
	ctx := context.Background()
	author := uuid.New()
	cr, err := svc.Create(ctx, services.CreateParams{
		ScopeID:     uuid.New(),
		Title:       "Signage",
		Category:    changerequest.CategoryOther,
		ApproverIDs: []uuid.UUID{uuid.New()},
	}, author)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, cr.ID, author)
	require.NoError(t, err)

	for _, e := range hook.AllEntries() {
		require.NotEqual(t, "notifications", e.Data["component"])
	}
}
