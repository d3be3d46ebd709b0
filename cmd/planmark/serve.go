package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"planmark/internal/docstore"
	appLog "planmark/internal/log"
	"planmark/internal/web"
)

// watchDebounce coalesces bursts of editor writes into one rescan.
const watchDebounce = 500 * time.Millisecond

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the reminder scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "override listen address, e.g. 0.0.0.0:8080")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if serveListen != "" {
		a.cfg.Listen = serveListen
	}

	appLog.Info("planmark starting",
		"version", version,
		"listen", a.cfg.Listen,
		"timezone", a.cfg.Timezone,
		"store_driver", a.cfg.Store.Driver,
		"reminder_cron", a.cfg.ReminderCron,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := web.NewServer(a.cfg, web.Deps{
		Store:    a.store,
		Agenda:   a.agenda,
		Registry: a.registry,
		Scanner:  a.scanner,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return a.scanner.Start(gctx, a.cfg.ReminderCron) })
	if dir, ok := a.store.(*docstore.Dir); ok {
		g.Go(func() error {
			return dir.Watch(gctx, watchDebounce, func(keys []string) {
				appLog.Debug("documents changed", "keys", keys)
				a.scanner.Trigger(gctx)
			})
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	appLog.Info("planmark exiting")
	return nil
}
