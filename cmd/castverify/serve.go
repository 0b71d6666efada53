package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/castverify/internal/api"
	"github.com/ahrav/castverify/internal/app/tasks"
	"github.com/ahrav/castverify/internal/config"
	"github.com/ahrav/castverify/internal/config/fileloader"
	"github.com/ahrav/castverify/internal/domain/task"
	"github.com/ahrav/castverify/internal/infra/eventbus/kafka"
	"github.com/ahrav/castverify/internal/infra/eventbus/memory"
	"github.com/ahrav/castverify/internal/infra/storage"
	memstore "github.com/ahrav/castverify/internal/infra/storage/memory"
	"github.com/ahrav/castverify/internal/infra/storage/postgres"
	"github.com/ahrav/castverify/pkg/common"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the task verification HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

// stores are the persistence collaborators of the task trackers.
type stores struct {
	recorder task.CompletionRecorder
	stage    task.StageMarker
	catalog  interface {
		task.Catalog
		task.CatalogWriter
	}
	close func()
}

func serve(ctx context.Context, opts *rootOptions) error {
	env, err := setup(ctx, opts, true)
	if err != nil {
		return err
	}
	defer env.teardown(context.WithoutCancel(ctx))
	log := env.log

	// -------------------------------------------------------------------------
	// GOMAXPROCS
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "build", build)

	// -------------------------------------------------------------------------
	// Storage
	log.Info(ctx, "startup", "status", "initializing storage", "driver", string(env.cfg.Storage.Driver))
	st, err := openStores(ctx, env)
	if err != nil {
		return err
	}
	defer st.close()

	if err := seedCatalog(ctx, env, st.catalog); err != nil {
		return err
	}

	// -------------------------------------------------------------------------
	// Verification engine
	eng, err := buildEngine(env)
	if err != nil {
		return err
	}
	defer eng.Close()

	// -------------------------------------------------------------------------
	// Events
	deps := tasks.Dependencies{
		Verifier: eng.verifier,
		Recorder: st.recorder,
		Stage:    st.stage,
		Catalog:  st.catalog,
	}
	if env.cfg.Kafka.Enabled() {
		log.Info(ctx, "startup", "status", "connecting event publisher", "brokers", env.cfg.Kafka.Brokers)
		pub, err := kafka.ConnectPublisher(&kafka.ClientConfig{
			Brokers:  env.cfg.Kafka.Brokers,
			ClientID: env.cfg.Kafka.ClientID,
		}, env.cfg.Kafka.Topic, log, env.tracer)
		if err != nil {
			return fmt.Errorf("connecting event publisher: %w", err)
		}
		defer pub.Close()
		deps.Publisher = pub
	} else {
		broker, err := logBroker(ctx, env)
		if err != nil {
			return err
		}
		deps.Publisher = broker
	}

	// -------------------------------------------------------------------------
	// Task sessions
	taskMetrics, err := tasks.NewTaskMetrics(env.mp)
	if err != nil {
		return fmt.Errorf("creating task metrics: %w", err)
	}
	sessions := tasks.NewSessions(deps, tasks.Config{
		PreCheckDelay: env.cfg.Verify.PreCheckDelay.Delays(),
		Polling: tasks.PollPolicy{
			InitialDelay: env.cfg.Polling.InitialDelay,
			Interval:     env.cfg.Polling.Interval,
			MaxAttempts:  env.cfg.Polling.MaxAttempts,
		},
	}, taskMetrics, log, env.tracer)
	defer sessions.Close()

	// -------------------------------------------------------------------------
	// HTTP
	apiMetrics, err := api.NewAPIMetrics(env.mp)
	if err != nil {
		return fmt.Errorf("creating api metrics: %w", err)
	}
	srv := api.NewServer(api.Config{
		Addr:        env.cfg.HTTP.Addr,
		Build:       build,
		ServiceName: serviceType,
	}, sessions, apiMetrics, log, env.tracer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error {
		sessions.Run(gctx, env.cfg.Session.SweepInterval, env.cfg.Session.IdleTTL)
		return nil
	})
	if addr := env.cfg.Metrics.Addr; addr != "" {
		g.Go(func() error {
			log.Info(gctx, "startup", "status", "metrics server started", "addr", addr)
			return common.RunMetricsServer(gctx, addr)
		})
	}

	err = g.Wait()
	log.Info(context.WithoutCancel(ctx), "shutdown", "status", "shutdown complete")
	return err
}

func openStores(ctx context.Context, env *cmdEnv) (*stores, error) {
	cfg := env.cfg.Storage
	if cfg.Driver != config.StoragePostgres {
		catalog, err := memstore.NewCatalog()
		if err != nil {
			return nil, fmt.Errorf("creating catalog: %w", err)
		}
		return &stores{
			recorder: memstore.NewCompletionStore(),
			stage:    memstore.NewStageStore(),
			catalog:  catalog,
			close:    func() {},
		}, nil
	}

	pool, err := storage.Connect(ctx, storage.PoolConfig{
		DSN:      cfg.DSN,
		MinConns: cfg.MinConns,
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		return nil, err
	}

	migrations := cfg.Migrations
	if migrations == "" {
		migrations = "file://db/migrations"
		if _, err := os.Stat("db/migrations"); err != nil {
			migrations = storage.MigrationsURL()
		}
	}
	if err := storage.RunMigrations(ctx, pool, migrations); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &stores{
		recorder: postgres.NewCompletionStore(pool, env.tracer),
		stage:    postgres.NewStageStore(pool, env.tracer),
		catalog:  postgres.NewCatalogStore(pool, env.tracer),
		close:    pool.Close,
	}, nil
}

func seedCatalog(ctx context.Context, env *cmdEnv, w task.CatalogWriter) error {
	path := env.cfg.Tasks.CatalogFile
	if path == "" {
		env.log.Warn(ctx, "startup", "status", "no catalog file configured, serving existing tasks only")
		return nil
	}

	seed, err := fileloader.NewFileLoader(path).Load(ctx)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	defs, err := seed.Definitions()
	if err != nil {
		return fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	if err := w.Upsert(ctx, defs); err != nil {
		return fmt.Errorf("seeding catalog: %w", err)
	}
	env.log.Info(ctx, "startup", "status", "catalog seeded", "tasks", len(defs))
	return nil
}

// logBroker returns an in-process publisher that only logs events, used when
// no Kafka brokers are configured.
func logBroker(ctx context.Context, env *cmdEnv) (*memory.Broker, error) {
	log := env.log.With("component", "task_events")
	broker := memory.NewBroker()

	if err := broker.SubscribeCompleted(ctx, func(ctx context.Context, evt task.CompletedEvent) error {
		log.Info(ctx, "Task completed",
			"actor", int64(evt.Actor),
			"task_id", evt.TaskID,
			"content_id", evt.ContentID.String(),
			"action", evt.Action.String(),
		)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("subscribing completion log: %w", err)
	}

	if err := broker.SubscribeAllSatisfied(ctx, func(ctx context.Context, evt task.AllSatisfiedEvent) error {
		log.Info(ctx, "All tasks satisfied",
			"actor", int64(evt.Actor),
			"action", evt.Action.String(),
			"tasks", evt.TaskCount,
		)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("subscribing all-satisfied log: %w", err)
	}

	return broker, nil
}
