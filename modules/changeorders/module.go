package changeorders

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/changeorders/modules/changeorders/infrastructure/memstore"
	"github.com/iota-uz/changeorders/modules/changeorders/infrastructure/notifications"
	cooutbox "github.com/iota-uz/changeorders/modules/changeorders/infrastructure/outbox"
	"github.com/iota-uz/changeorders/modules/changeorders/infrastructure/persistence"
	"github.com/iota-uz/changeorders/modules/changeorders/presentation/controllers"
	"github.com/iota-uz/changeorders/modules/changeorders/services"
	"github.com/iota-uz/changeorders/pkg/application"
	"github.com/iota-uz/changeorders/pkg/configuration"
	"github.com/iota-uz/changeorders/pkg/eventbus"
	"github.com/iota-uz/changeorders/pkg/outbox"
)

const notificationDeliveryTimeout = 10 * time.Second

type ModuleOptions struct {
	ChangeOrders configuration.ChangeOrdersOptions
	Outbox       configuration.OutboxOptions
	PageSize     int
	MaxPageSize  int
}

// OptionsFrom picks the module settings out of the process configuration.
func OptionsFrom(conf *configuration.Configuration) ModuleOptions {
	return ModuleOptions{
		ChangeOrders: conf.ChangeOrders,
		Outbox:       conf.Outbox,
		PageSize:     conf.PageSize,
		MaxPageSize:  conf.MaxPageSize,
	}
}

func NewModule(opts ModuleOptions) application.Module {
	return &Module{opts: opts}
}

type Module struct {
	opts ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	deps := services.Dependencies{
		Numbering: services.NumberingOptions{
			Prefix:      m.opts.ChangeOrders.NumberPrefix,
			Pad:         m.opts.ChangeOrders.NumberPad,
			MaxAttempts: m.opts.ChangeOrders.NumberingMaxAttempts,
		},
		DefaultCurrency: m.opts.ChangeOrders.DefaultCurrency,
		PageSize:        m.opts.PageSize,
		MaxPageSize:     m.opts.MaxPageSize,
	}

	switch m.opts.ChangeOrders.Storage {
	case configuration.StorageMemory:
		m.wireMemory(app, &deps)
	case configuration.StoragePostgres:
		if err := m.wirePostgres(app, &deps); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown change orders storage %q", m.opts.ChangeOrders.Storage)
	}
	if !m.opts.ChangeOrders.NotificationsEnabled {
		deps.Notifier = services.NopNotifier{}
	}

	app.RegisterServices(services.NewChangeOrderService(deps))
	app.RegisterControllers(controllers.NewChangeOrdersAPIController(app))
	return nil
}

// wireMemory keeps everything in process. Notifications go straight onto the
// event bus and end up in the log.
func (m *Module) wireMemory(app application.Application, deps *services.Dependencies) {
	store := memstore.New()
	deps.UnitOfWork = memstore.NewUnitOfWork(store)
	deps.Requests = memstore.NewChangeRequestRepository(store)
	deps.Counter = memstore.NewCounterRepository(store)
	deps.Steps = memstore.NewApprovalStepRepository(store)
	deps.Audit = memstore.NewAuditRepository(store)
	deps.Lines = memstore.NewCostLineRepository(store)
	deps.Notifier = services.NewDirectNotifier(app.EventPublisher())

	notifications.Subscribe(app.EventPublisher(), notifications.NewLogSink(app.Logger()), notificationDeliveryTimeout)
}

// wirePostgres stores notifications in the outbox table within the business
// transaction; the relay hands them to the event bus, which fills the inbox.
func (m *Module) wirePostgres(app application.Application, deps *services.Dependencies) error {
	pool := app.DB()
	if pool == nil {
		return fmt.Errorf("postgres storage selected but no database pool configured")
	}
	table, err := outbox.ParseIdentifier(m.opts.Outbox.Table)
	if err != nil {
		return fmt.Errorf("invalid OUTBOX_TABLE: %w", err)
	}

	uow := persistence.NewUnitOfWork(pool)
	deps.UnitOfWork = uow
	deps.Requests = persistence.NewChangeRequestRepository()
	deps.Counter = persistence.NewCounterRepository()
	deps.Steps = persistence.NewApprovalStepRepository()
	deps.Audit = persistence.NewAuditRepository()
	deps.Lines = persistence.NewCostLineRepository()
	deps.Notifier = services.NewOutboxNotifier(uow, outbox.NewPublisher(), table)

	notifications.Subscribe(app.EventPublisher(), notifications.Fanout{
		notifications.NewInboxSink(pool),
		notifications.NewLogSink(app.Logger()),
	}, notificationDeliveryTimeout)

	if m.opts.Outbox.RelayEnabled {
		relay, err := NewOutboxRelay(pool, table, app.EventPublisher(), m.opts.Outbox, app.Logger())
		if err != nil {
			return err
		}
		app.RegisterRunners(application.Runner{Name: "changeorders-outbox-relay", Run: relay.Run})
	}
	if m.opts.Outbox.CleanerEnabled {
		cleaner, err := NewOutboxCleaner(pool, table, m.opts.Outbox, app.Logger())
		if err != nil {
			return err
		}
		app.RegisterRunners(application.Runner{Name: "changeorders-outbox-cleaner", Run: cleaner.Run})
	}
	return nil
}

func NewOutboxRelay(pool *pgxpool.Pool, table pgx.Identifier, bus eventbus.EventBus, opts configuration.OutboxOptions, logger *logrus.Logger) (*outbox.Relay, error) {
	return outbox.NewRelay(pool, table, cooutbox.NewDispatcher(bus), outbox.RelayOptions{
		PollInterval:    opts.RelayPollInterval,
		BatchSize:       opts.RelayBatchSize,
		LockTTL:         opts.RelayLockTTL,
		MaxAttempts:     opts.RelayMaxAttempts,
		SingleActive:    opts.RelaySingleActive,
		LastErrorMaxLen: opts.LastErrorMaxBytes,
		DispatchTimeout: opts.RelayDispatchTimeout,
		Logger:          logger.WithField("component", "outbox-relay"),
	})
}

func NewOutboxCleaner(pool *pgxpool.Pool, table pgx.Identifier, opts configuration.OutboxOptions, logger *logrus.Logger) (*outbox.Cleaner, error) {
	threshold := 0
	if opts.CleanerDeadRetention > 0 {
		threshold = opts.RelayMaxAttempts
	}
	return outbox.NewCleaner(pool, table, outbox.CleanerOptions{
		Enabled:               opts.CleanerEnabled,
		Interval:              opts.CleanerInterval,
		Retention:             opts.CleanerRetention,
		DeadRetention:         opts.CleanerDeadRetention,
		DeadAttemptsThreshold: threshold,
		Logger:                logger.WithField("component", "outbox-cleaner"),
	})
}

func (m *Module) Name() string {
	return "changeorders"
}
