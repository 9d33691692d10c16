package cli

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/icewiki/nomulus/internal/flow"
	"github.com/icewiki/nomulus/internal/store"
	"github.com/icewiki/nomulus/internal/tld"
)

// app is the wired registry a command runs against.
type app struct {
	store   *store.Store
	tlds    *tld.Registry
	engine  *flow.Engine
	metrics *prometheus.Registry
	log     *logrus.Entry
}

func openApp(opts *RootOptions) (*app, error) {
	log := logrus.NewEntry(opts.Log)
	cfg := opts.Config

	tlds, err := tld.LoadDir(cfg.TLDDir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load TLDs", err)
	}
	backend, err := store.OpenSQL(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	log.WithFields(logrus.Fields{"driver": cfg.DBDriver, "tlds": tlds.Names()}).Debug("registry opened")

	st := store.New(backend, log)
	reg := prometheus.NewRegistry()
	eng := flow.New(st, tlds,
		flow.WithLogger(log),
		flow.WithMetrics(flow.NewMetrics(reg)),
		flow.WithContactTransferPeriod(cfg.ContactTransferPeriod),
	)
	return &app{store: st, tlds: tlds, engine: eng, metrics: reg, log: log}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Error("error closing database")
	}
}
