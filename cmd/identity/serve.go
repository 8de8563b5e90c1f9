// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/identity/internal/account"
	"github.com/holomush/identity/internal/account/memstore"
	"github.com/holomush/identity/internal/account/postgres"
	"github.com/holomush/identity/internal/config"
	"github.com/holomush/identity/internal/logging"
	"github.com/holomush/identity/internal/observability"
	"github.com/holomush/identity/internal/store"
	"github.com/holomush/identity/internal/web"
)

const (
	serviceName     = "identity"
	shutdownTimeout = 5 * time.Second
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreOpener opens the account store and returns a close function.
	// Default: openStore
	StoreOpener func(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (account.Store, func(), error)

	// LogWriter receives log output.
	// Default: os.Stderr
	LogWriter io.Writer

	// OnReady is called with the bound addresses once all servers listen.
	OnReady func(apiAddr, metricsAddr string)
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the account and session HTTP API, plus the metrics and
health endpoints when metrics.addr is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cmd, nil)
		},
	}

	config.BindFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps runs the service until ctx is cancelled or a server
// fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.StoreOpener == nil {
		deps.StoreOpener = openStore
	}
	if deps.LogWriter == nil {
		deps.LogWriter = os.Stderr
	}

	cfg, err := config.Load(config.LoadOptions{
		File:    configFile,
		EnvFile: envFile,
		Flags:   cmd.Flags(),
	})
	if err != nil {
		return oops.With("operation", "load config").Wrap(err)
	}

	logger, err := logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  deps.LogWriter,
	})
	if err != nil {
		return oops.With("operation", "set up logging").Wrap(err)
	}

	logger.Info("starting identity service",
		"http_addr", cfg.HTTP.Addr,
		"store_driver", cfg.Store.Driver,
		"log_format", cfg.Log.Format,
	)

	accounts, closeStore, err := deps.StoreOpener(ctx, cfg.Store, logger)
	if err != nil {
		return oops.With("operation", "open account store").Wrap(err)
	}
	defer closeStore()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		obsServer *observability.Server
		recorder  account.Recorder
		observer  web.HTTPObserver
	)
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, accounts.Ping)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		recorder = obsServer.Metrics()
		observer = obsServer.Metrics()
	}

	gate, err := account.NewGate(accounts, recorder)
	if err != nil {
		return err
	}
	mgr, err := account.NewManager(accounts, account.NewArgon2idHasher(cfg.Hasher.Argon2Params()), gate,
		account.WithLogger(logger),
		account.WithRecorder(recorder),
		account.WithReservedUsernames(cfg.Accounts.ReservedUsernames...),
	)
	if err != nil {
		return oops.With("operation", "create account manager").Wrap(err)
	}

	router, err := web.NewRouter(mgr, gate, web.RouterOptions{
		Logger:      logger,
		Observer:    observer,
		CORSOrigins: cfg.HTTP.CORSOrigins,
	})
	if err != nil {
		return err
	}

	apiServer := web.NewServer(cfg.HTTP.Addr, router, web.ServerOptions{
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	})
	apiErrCh, err := apiServer.Start()
	if err != nil {
		if obsServer != nil {
			stopServer(obsServer, "observability")
		}
		return oops.With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	metricsAddr := ""
	if obsServer != nil {
		metricsAddr = obsServer.Addr()
	}
	cmd.Println("Identity service started")
	logger.Info("identity service ready", "http_addr", apiServer.Addr(), "metrics_addr", metricsAddr)
	if deps.OnReady != nil {
		deps.OnReady(apiServer.Addr(), metricsAddr)
	}

	<-ctx.Done()
	logger.Info("shutting down...")

	stopServer(apiServer, "api")
	if obsServer != nil {
		stopServer(obsServer, "observability")
	}

	logger.Info("shutdown complete")
	return nil
}

type stoppable interface {
	Stop(ctx context.Context) error
}

func stopServer(s stoppable, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("error stopping server", "server", name, "error", err)
	}
}

// openStore opens the configured account store. PostgreSQL connections
// are retried for cfg.ConnectTimeout and optionally migrated.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (account.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory account store; accounts are lost on restart")
		return memstore.New(), func() {}, nil
	case config.DriverPostgres:
	default:
		return nil, nil, oops.Code("CONFIG_INVALID").With("driver", cfg.Driver).Errorf("unknown store driver %q", cfg.Driver)
	}

	pool, err := store.Connect(ctx, cfg.DatabaseURL, store.ConnectOptions{
		Timeout: cfg.ConnectTimeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, err
	}

	if cfg.AutoMigrate {
		if err := migrateUp(cfg.DatabaseURL, logger); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}

	return postgres.NewAccountStore(pool), pool.Close, nil
}

func migrateUp(databaseURL string, logger *slog.Logger) (err error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := m.Up(); err != nil {
		return err
	}
	v, _, err := m.Version()
	if err != nil {
		return err
	}
	logger.Info("database schema up to date", "version", v)
	return nil
}

// monitorServerErrors cancels ctx when a server reports an error.
// It exits when an error is received, the channel closes, or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
