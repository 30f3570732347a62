package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"

	"github.com/zjrosen/regcascade/internal/downsample"
	"github.com/zjrosen/regcascade/internal/gate"
	"github.com/zjrosen/regcascade/internal/infrastructure/sqlite"
	"github.com/zjrosen/regcascade/internal/invoker"
	"github.com/zjrosen/regcascade/internal/ledger"
	"github.com/zjrosen/regcascade/internal/log"
	"github.com/zjrosen/regcascade/internal/metrics"
	"github.com/zjrosen/regcascade/internal/paths"
	"github.com/zjrosen/regcascade/internal/pubsub"
	"github.com/zjrosen/regcascade/internal/registration"
	"github.com/zjrosen/regcascade/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

// env is everything a command needs to plan, run and record jobs.
type env struct {
	fs      afero.Fs
	db      *sqlite.DB
	ledger  ledger.Repository
	tracing *tracing.Provider
	metrics *metrics.Recorder
	events  *pubsub.Broker[invoker.Event]
	service *registration.Service
}

type envOptions struct {
	verbose io.Writer
}

// engineRunner replaces the subprocess runner when set.
var engineRunner invoker.Runner

// openEnv validates the loaded config and wires the ledger, tracing,
// metrics and registration service.
func openEnv(o envOptions) (*env, error) {
	if loadErr != nil {
		return nil, loadErr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	stateDir := paths.ResolveStateDir(cfg.StateDir)
	e := &env{
		fs:      afero.NewOsFs(),
		metrics: metrics.New(),
		events:  pubsub.NewBroker[invoker.Event](),
	}

	invOpts := []invoker.Option{
		invoker.WithGate(gate.New(e.fs)),
		invoker.WithMetrics(e.metrics),
		invoker.WithEvents(e.events),
	}
	if o.verbose != nil {
		invOpts = append(invOpts, invoker.WithOutput(o.verbose, o.verbose))
	}

	if cfg.Ledger.Enabled {
		path := cfg.Ledger.Path
		if path == "" {
			path = paths.LedgerPath(stateDir)
		}
		db, err := sqlite.NewDB(path)
		if err != nil {
			e.close()
			return nil, fmt.Errorf("opening ledger: %w", err)
		}
		e.db = db
		e.ledger = db.Invocations()
		invOpts = append(invOpts, invoker.WithLedger(e.ledger))
	}

	tcfg := cfg.Tracing
	if tcfg.FilePath == "" {
		tcfg.FilePath = paths.TracePath(stateDir)
	}
	provider, err := tracing.NewProvider(tcfg)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	e.tracing = provider
	invOpts = append(invOpts, invoker.WithTracer(provider.Tracer()))

	runner := engineRunner
	if runner == nil {
		runner = invoker.NewProcessRunner()
	}
	e.service = registration.New(invoker.New(runner, invOpts...),
		registration.WithEngine(registration.Engine{
			Executable:     cfg.Engine.Executable,
			Dimensionality: cfg.Engine.Dimensionality,
		}),
		registration.WithProfiles(cfg.Profiles),
		registration.WithResample(registration.Resample{
			BaseDir: cfg.Workdir.BaseDir,
			Keep:    cfg.Workdir.Keep,
			Templates: downsample.Templates{
				Image: cfg.Resample.Image,
				Label: cfg.Resample.Label,
			},
		}),
		registration.WithTracer(provider.Tracer()),
	)

	log.Debug(log.CatConfig, "Environment ready",
		"stateDir", stateDir, "ledger", cfg.Ledger.Enabled, "tracing", provider.Enabled())
	return e, nil
}

// requireLedger returns the ledger or an error when it is disabled.
func (e *env) requireLedger() (ledger.Repository, error) {
	if e.ledger == nil {
		return nil, errors.New("the ledger is disabled (ledger.enabled: false)")
	}
	return e.ledger, nil
}

// close flushes traces and metrics and releases the ledger.
func (e *env) close() {
	if e.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := e.tracing.Shutdown(ctx); err != nil {
			log.ErrorErr(log.CatTrace, "Failed to flush traces", err)
		}
		cancel()
	}
	if path := cfg.Metrics.TextfilePath; path != "" && e.metrics != nil {
		if err := e.metrics.WriteTextfile(path); err != nil {
			log.ErrorErr(log.CatInvoke, "Failed to write metrics", err, "path", path)
		}
	}
	if e.events != nil {
		e.events.Close()
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			log.ErrorErr(log.CatLedger, "Failed to close ledger", err)
		}
	}
}
