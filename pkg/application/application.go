package application

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/changeorders/pkg/eventbus"
)

type Controller interface {
	Register(r *mux.Router)
	Key() string
}

type Module interface {
	Register(app Application) error
	Name() string
}

// Runner is a long-lived background task started next to the HTTP server.
// It must return when ctx is cancelled.
type Runner struct {
	Name string
	Run  func(ctx context.Context) error
}

type Application interface {
	DB() *pgxpool.Pool
	EventPublisher() eventbus.EventBus
	Logger() *logrus.Logger

	RegisterServices(services ...any)
	Service(service any) any
	Services() map[reflect.Type]any

	RegisterControllers(controllers ...Controller)
	Controllers() []Controller

	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
	Middleware() []mux.MiddlewareFunc

	RegisterRunners(runners ...Runner)
	Runners() []Runner
}

type ApplicationOptions struct {
	// Pool may be nil when the in-memory storage backend is selected.
	Pool     *pgxpool.Pool
	EventBus eventbus.EventBus
	Logger   *logrus.Logger
}

func New(opts *ApplicationOptions) Application {
	bus := opts.EventBus
	if bus == nil {
		bus = eventbus.New(opts.Logger)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &application{
		pool:           opts.Pool,
		eventPublisher: bus,
		logger:         logger,
		services:       make(map[reflect.Type]any),
		controllers:    make(map[string]Controller),
	}
}

type application struct {
	pool           *pgxpool.Pool
	eventPublisher eventbus.EventBus
	logger         *logrus.Logger

	mu          sync.RWMutex
	services    map[reflect.Type]any
	controllers map[string]Controller
	middleware  []mux.MiddlewareFunc
	runners     []Runner
}

func (app *application) DB() *pgxpool.Pool {
	return app.pool
}

func (app *application) EventPublisher() eventbus.EventBus {
	return app.eventPublisher
}

func (app *application) Logger() *logrus.Logger {
	return app.logger
}

func serviceKey(service any) reflect.Type {
	t := reflect.TypeOf(service)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func (app *application) RegisterServices(services ...any) {
	app.mu.Lock()
	defer app.mu.Unlock()
	for _, s := range services {
		app.services[serviceKey(s)] = s
	}
}

// Service looks a registered service up by the type of the zero value passed,
// e.g. app.Service(services.ChangeOrderService{}).
func (app *application) Service(service any) any {
	app.mu.RLock()
	defer app.mu.RUnlock()
	svc, ok := app.services[serviceKey(service)]
	if !ok {
		panic(fmt.Sprintf("service %s not found", serviceKey(service).Name()))
	}
	return svc
}

func (app *application) Services() map[reflect.Type]any {
	app.mu.RLock()
	defer app.mu.RUnlock()
	out := make(map[reflect.Type]any, len(app.services))
	for k, v := range app.services {
		out[k] = v
	}
	return out
}

func (app *application) RegisterControllers(controllers ...Controller) {
	app.mu.Lock()
	defer app.mu.Unlock()
	for _, c := range controllers {
		app.controllers[c.Key()] = c
	}
}

// Controllers returns controllers ordered by key so route registration is
// deterministic.
func (app *application) Controllers() []Controller {
	app.mu.RLock()
	defer app.mu.RUnlock()
	keys := make([]string, 0, len(app.controllers))
	for k := range app.controllers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Controller, 0, len(keys))
	for _, k := range keys {
		out = append(out, app.controllers[k])
	}
	return out
}

func (app *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.middleware = append(app.middleware, middleware...)
}

func (app *application) Middleware() []mux.MiddlewareFunc {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return append([]mux.MiddlewareFunc(nil), app.middleware...)
}

func (app *application) RegisterRunners(runners ...Runner) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.runners = append(app.runners, runners...)
}

func (app *application) Runners() []Runner {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return append([]Runner(nil), app.runners...)
}

// LoadModules registers modules in order and stops at the first failure.
func LoadModules(app Application, modules ...Module) error {
	for _, m := range modules {
		if err := m.Register(app); err != nil {
			return fmt.Errorf("register module %s: %w", m.Name(), err)
		}
	}
	return nil
}
