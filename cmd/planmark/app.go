package main

import (
	"fmt"
	"io"
	"time"

	"planmark/internal/agenda"
	"planmark/internal/config"
	"planmark/internal/docstore"
	appLog "planmark/internal/log"
	"planmark/internal/markup"
	"planmark/internal/remind"
)

// app holds the components every subcommand needs.
type app struct {
	cfg      *config.Config
	store    docstore.Store
	registry *markup.Registry
	agenda   *agenda.Aggregator
	scanner  *remind.Scanner
	closers  []io.Closer
}

// newApp loads the config and wires the store, tokenizer, aggregator and
// reminder scanner.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	appLog.SetFormat(cfg.LogFormat)
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

	a := &app{cfg: cfg}
	if a.store, err = openStore(cfg); err != nil {
		return nil, err
	}
	if c, ok := a.store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	cache, err := agenda.NewCache(cfg.CacheSize)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("parse cache: %w", err)
	}
	a.registry = markup.Default(cfg.Widgets)
	a.agenda = agenda.New(a.store, agenda.Options{
		Pattern:  cfg.Store.Pattern,
		Registry: a.registry,
		Cache:    cache,
	})
	a.scanner = remind.NewScanner(a.agenda, remind.Options{
		Location:    cfg.Location(),
		HorizonDays: cfg.HorizonDays,
	})

	appLog.Debug("effective config",
		"config_path", configPath,
		"timezone", cfg.Timezone,
		"store_driver", cfg.Store.Driver,
		"horizon_days", cfg.HorizonDays,
		"widgets", len(cfg.Widgets),
	)
	return a, nil
}

func openStore(cfg *config.Config) (docstore.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		return docstore.OpenSQLite(config.ExpandHome(cfg.Store.Path))
	case config.DriverMemory:
		return docstore.NewMemory(nil), nil
	case config.DriverDir:
		return docstore.NewDir(config.ExpandHome(cfg.Store.Dir))
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// timeNow is replaced in tests.
var timeNow = time.Now

func (a *app) now() time.Time { return timeNow().In(a.cfg.Location()) }

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			appLog.Warn("close failed", "err", err)
		}
	}
}
