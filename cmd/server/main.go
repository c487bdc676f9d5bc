package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/changeorders/modules"
	"github.com/iota-uz/changeorders/pkg/application"
	"github.com/iota-uz/changeorders/pkg/composables"
	"github.com/iota-uz/changeorders/pkg/configuration"
	"github.com/iota-uz/changeorders/pkg/eventbus"
	"github.com/iota-uz/changeorders/pkg/httpapi"
	"github.com/iota-uz/changeorders/pkg/logging"
	"github.com/iota-uz/changeorders/pkg/metrics"
	"github.com/iota-uz/changeorders/pkg/middleware"
	"github.com/iota-uz/changeorders/pkg/server"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	defer conf.Unload()
	logger := conf.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.OpenTelemetry.Enabled {
		tracingCleanup := logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
		defer tracingCleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	var pool *pgxpool.Pool
	if conf.ChangeOrders.Storage == configuration.StoragePostgres {
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		p, err := pgxpool.New(connectCtx, conf.Database.Opts)
		cancel()
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer p.Close()
		pool = p
	}

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.New(logger),
		Logger:   logger,
	})
	app.RegisterMiddleware(
		middleware.TracedMiddleware("changeorders"),
		middleware.WithLogger(logger, middleware.LoggerOptions{RequestIDHeader: conf.RequestIDHeader}),
		middleware.WithActor(conf.ActorIDHeader),
	)
	if err := modules.Load(app, modules.BuiltInModules(conf)...); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	srv := server.NewHTTPServer(app, http.HandlerFunc(notFound), nil, server.Options{
		AllowedOrigins: conf.AllowedOrigins(),
	})

	g, gctx := errgroup.WithContext(ctx)
	for _, runner := range app.Runners() {
		g.Go(func() error {
			logger.WithField("runner", runner.Name).Info("starting background runner")
			if err := runner.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).WithField("runner", runner.Name).Error("background runner stopped")
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		logger.Infof("Listening on: %s", conf.SocketAddress)
		return srv.Start(gctx, conf.SocketAddress)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	_ = httpapi.WriteError(w, http.StatusNotFound, httpapi.ErrorEnvelope{
		Code:    "NOT_FOUND",
		Message: "route not found",
		Meta:    httpapi.RequestMeta(composables.UseRequestID(r.Context())),
	})
}
