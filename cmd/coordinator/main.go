// Command coordinator runs the AI4ALL day-coordinator HTTP server: it wires
// configuration, storage backend, the Day Coordinator, the HTTP boundary and
// the optional cron scheduler, then serves until signaled to stop. Grounded on
// the teacher's cmd/appserver main.go (flag parsing, config loading, storage
// selection by DSN presence, graceful shutdown on SIGINT/SIGTERM).
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/r3e-network/ai4all-coordinator/internal/assignment"
	"github.com/r3e-network/ai4all-coordinator/internal/auth"
	"github.com/r3e-network/ai4all-coordinator/internal/boundary"
	"github.com/r3e-network/ai4all-coordinator/internal/config"
	"github.com/r3e-network/ai4all-coordinator/internal/coordinator"
	"github.com/r3e-network/ai4all-coordinator/internal/logging"
	"github.com/r3e-network/ai4all-coordinator/internal/rewards"
	"github.com/r3e-network/ai4all-coordinator/internal/scheduler"
	"github.com/r3e-network/ai4all-coordinator/internal/storage"
	"github.com/r3e-network/ai4all-coordinator/internal/storage/memstore"
	"github.com/r3e-network/ai4all-coordinator/internal/storage/pgstore"
	"github.com/r3e-network/ai4all-coordinator/internal/submission"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a YAML config file (overrides CONFIG_FILE env)")
	addr := flag.String("addr", "", "HTTP listen address, e.g. :3000 (overrides PORT env/config)")
	flag.Parse()

	if *configPath != "" {
		os.Setenv("CONFIG_FILE", *configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		logging.NewDefault("coordinator").Errorf("load config: %v", err)
		return 1
	}

	log := logging.New(cfg.Logging)

	stores, closeStores, err := buildStores(cfg, log)
	if err != nil {
		log.Errorf("build storage: %v", err)
		return 1
	}
	defer closeStores()

	coord, err := coordinator.New(stores, coordinator.Config{
		Assignment: toAssignmentConfig(cfg),
		Submission: toSubmissionConfig(cfg),
		Reward:     toRewardConfig(cfg),
	}, time.Now)
	if err != nil {
		log.Errorf("construct coordinator: %v", err)
		return 1
	}

	sched, err := scheduler.New(scheduler.Config{
		Enabled:      cfg.Scheduler.Enabled,
		StartCron:    cfg.Scheduler.StartCron,
		FinalizeCron: cfg.Scheduler.FinalizeCron,
		Timezone:     cfg.Scheduler.Timezone,
	}, coord, log)
	if err != nil {
		log.Errorf("construct scheduler: %v", err)
		return 1
	}
	sched.Start()
	defer sched.Stop()

	handler := &boundary.Handler{
		Coordinator: coord,
		Stores:      stores,
		Verifier:    auth.Ed25519Verifier{},
		AdminKey:    cfg.Server.AdminKey,
		Log:         log,
	}

	addrVal := resolveAddr(*addr, cfg)
	srv := &http.Server{
		Addr:              addrVal,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addrVal).Info("coordinator listening")
		errCh <- srv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("listen: %v", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("graceful shutdown: %v", err)
		return 1
	}
	return 0
}

// buildStores selects the in-memory or durable backend per cfg.Storage.Backend,
// matching the documented STORE_BACKEND knob ("memory" | "durable", default
// durable). The durable backend opens cfg.Storage.DBPath as a Postgres DSN and
// runs the idempotent schema migration when MigrateOnStart is set.
func buildStores(cfg *config.Config, log *logging.Logger) (storage.Stores, func(), error) {
	noop := func() {}

	if cfg.Storage.Backend != "durable" || cfg.Storage.DBPath == "" {
		log.Info("using in-memory storage backend")
		mem := memstore.New()
		return storage.Stores{
			Events:      mem,
			States:      mem,
			Assignments: mem,
			Submissions: mem,
			Operational: mem,
			Ledger:      mem,
		}, noop, nil
	}

	db, err := sql.Open("postgres", cfg.Storage.DBPath)
	if err != nil {
		return storage.Stores{}, noop, err
	}
	db.SetMaxOpenConns(cfg.Storage.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Storage.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Storage.ConnMaxLifetime) * time.Second)

	if err := db.Ping(); err != nil {
		db.Close()
		return storage.Stores{}, noop, err
	}

	store := pgstore.New(db)
	if cfg.Storage.MigrateOnStart {
		if err := store.Migrate(context.Background()); err != nil {
			db.Close()
			return storage.Stores{}, noop, err
		}
	}

	log.WithField("backend", "durable").Info("using postgres storage backend")
	return storage.Stores{
		Events:      store,
		States:      store,
		Assignments: store,
		Submissions: store,
		Operational: store,
		Ledger:      store,
	}, func() { db.Close() }, nil
}

func resolveAddr(flagVal string, cfg *config.Config) string {
	if flagVal != "" {
		return flagVal
	}
	if cfg.Server.Port != 0 {
		return ":" + strconv.Itoa(cfg.Server.Port)
	}
	return ":3000"
}

func toAssignmentConfig(cfg *config.Config) assignment.Config {
	return assignment.Config{
		BlocksPerBatch:   cfg.Assignment.BlocksPerBatch,
		MaxBatches:       cfg.Assignment.MaxBatches,
		LookbackDays:     cfg.Assignment.LookbackDays,
		CanaryPercentage: cfg.Assignment.CanaryPercentage,
	}
}

func toSubmissionConfig(cfg *config.Config) submission.Config {
	return submission.Config{
		CanaryPenalty: cfg.Reward.CanaryPenalty,
		CooldownHours: cfg.Reward.CanaryFailureCooldownHours,
	}
}

func toRewardConfig(cfg *config.Config) rewards.Config {
	return rewards.Config{
		DailyEmissions:             cfg.Reward.DailyEmissions,
		BasePoolPercentage:         cfg.Reward.BasePoolPercentage,
		PerformancePoolPercentage:  cfg.Reward.PerformancePoolPercentage,
		PerformanceLookbackDays:    cfg.Reward.PerformanceLookbackDays,
		MinBlocksForActive:         cfg.Reward.MinBlocksForActive,
		ReputationFloor:            cfg.Reward.ReputationFloor,
		CanaryFailureCooldownHours: cfg.Reward.CanaryFailureCooldownHours,
	}
}
