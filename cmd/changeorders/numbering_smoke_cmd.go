package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/changeorders/modules/changeorders"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
	"github.com/iota-uz/changeorders/modules/changeorders/services"
	"github.com/iota-uz/changeorders/pkg/application"
	"github.com/iota-uz/changeorders/pkg/configuration"
)

type numberingSmokeOptions struct {
	Count   int
	Workers int
	ScopeID string
}

func newNumberingSmokeCmd() *cobra.Command {
	var opts numberingSmokeOptions

	cmd := &cobra.Command{
		Use:   "numbering-smoke --count 50 --workers 8",
		Short: "Create draft requests concurrently and verify their numbers are unique",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Count < 1 || opts.Workers < 1 {
				return errors.New("--count and --workers must be positive")
			}
			scopeID := uuid.New()
			if opts.ScopeID != "" {
				parsed, err := uuid.Parse(opts.ScopeID)
				if err != nil {
					return fmt.Errorf("--scope: %w", err)
				}
				scopeID = parsed
			}

			conf, err := configuration.Load([]string{".env", ".env.local"})
			if err != nil {
				return err
			}
			defer conf.Unload()

			appOpts := &application.ApplicationOptions{Logger: conf.Logger()}
			if conf.ChangeOrders.Storage == configuration.StoragePostgres {
				pool, err := connect(cmd.Context(), conf)
				if err != nil {
					return err
				}
				defer pool.Close()
				appOpts.Pool = pool
			}
			app := application.New(appOpts)

			moduleOpts := changeorders.OptionsFrom(conf)
			moduleOpts.Outbox.RelayEnabled = false
			moduleOpts.Outbox.CleanerEnabled = false
			moduleOpts.ChangeOrders.NotificationsEnabled = false
			if err := application.LoadModules(app, changeorders.NewModule(moduleOpts)); err != nil {
				return err
			}
			svc := app.Service(services.ChangeOrderService{}).(*services.ChangeOrderService)

			actorID := uuid.New()
			numbers := make([]string, opts.Count)
			g, gctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(opts.Workers)
			for i := range opts.Count {
				g.Go(func() error {
					cr, err := svc.Create(gctx, services.CreateParams{
						ScopeID:  scopeID,
						Title:    fmt.Sprintf("numbering smoke %d", i+1),
						Category: changerequest.CategoryOther,
					}, actorID)
					if err != nil {
						return err
					}
					numbers[i] = cr.Number
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			seen := make(map[string]struct{}, len(numbers))
			for _, n := range numbers {
				if _, dup := seen[n]; dup {
					return fmt.Errorf("duplicate number %s", n)
				}
				seen[n] = struct{}{}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d requests in scope %s with unique numbers\n", len(numbers), scopeID)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Count, "count", 50, "number of requests to create")
	cmd.Flags().IntVar(&opts.Workers, "workers", 8, "concurrent creators")
	cmd.Flags().StringVar(&opts.ScopeID, "scope", "", "scope uuid (random when empty)")
	return cmd
}
