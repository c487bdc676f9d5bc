package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/changeorders/modules/changeorders"
	"github.com/iota-uz/changeorders/modules/changeorders/infrastructure/notifications"
	"github.com/iota-uz/changeorders/pkg/configuration"
	"github.com/iota-uz/changeorders/pkg/eventbus"
	"github.com/iota-uz/changeorders/pkg/outbox"
)

func newRelayCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "relay [--once]",
		Short: "Deliver queued notifications from the outbox to the inbox",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := configuration.Load([]string{".env", ".env.local"})
			if err != nil {
				return err
			}
			defer conf.Unload()

			pool, err := connect(cmd.Context(), conf)
			if err != nil {
				return err
			}
			defer pool.Close()

			table, err := outbox.ParseIdentifier(conf.Outbox.Table)
			if err != nil {
				return err
			}
			bus := eventbus.New(conf.Logger())
			notifications.Subscribe(bus, notifications.NewInboxSink(pool), 0)

			relay, err := changeorders.NewOutboxRelay(pool, table, bus, conf.Outbox, conf.Logger())
			if err != nil {
				return err
			}
			if once {
				n, err := relay.ProcessOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "processed %d outbox rows from %s\n", n, outbox.TableLabel(table))
				return nil
			}
			if err := relay.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "process a single batch and exit")
	return cmd
}
