package scheduler

import (
	"testing"
	"time"

	"github.com/r3e-network/ai4all-coordinator/internal/assignment"
	"github.com/r3e-network/ai4all-coordinator/internal/coordinator"
	"github.com/r3e-network/ai4all-coordinator/internal/logging"
	"github.com/r3e-network/ai4all-coordinator/internal/rewards"
	"github.com/r3e-network/ai4all-coordinator/internal/storage"
	"github.com/r3e-network/ai4all-coordinator/internal/storage/memstore"
	"github.com/r3e-network/ai4all-coordinator/internal/submission"
)

func newTestCoordinator(t *testing.T) *coordinator.Coordinator {
	t.Helper()
	store := memstore.New()
	stores := storage.Stores{Events: store, States: store, Assignments: store, Submissions: store, Operational: store, Ledger: store}
	cfg := coordinator.Config{
		Assignment: assignment.Config{BlocksPerBatch: 2, MaxBatches: 2, LookbackDays: 7},
		Submission: submission.Config{CanaryPenalty: 0.1, CooldownHours: 24},
		Reward:     rewards.Config{DailyEmissions: 1000, BasePoolPercentage: 0.4, PerformancePoolPercentage: 0.6, MinBlocksForActive: 1, ReputationFloor: 0.2},
	}
	c, err := coordinator.New(stores, cfg, func() time.Time { return time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC) })
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}
	return c
}

func TestDisabledSchedulerIsNoOp(t *testing.T) {
	c := newTestCoordinator(t)
	s, err := New(Config{Enabled: false}, c, logging.NewDefault("test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	s.Stop()
}

func TestEnabledSchedulerStartsAndStops(t *testing.T) {
	c := newTestCoordinator(t)
	s, err := New(Config{
		Enabled:      true,
		StartCron:    "0 0 * * *",
		FinalizeCron: "0 12 * * *",
		Timezone:     "UTC",
	}, c, logging.NewDefault("test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	s.Stop()
}

func TestBadTimezoneIsRejected(t *testing.T) {
	c := newTestCoordinator(t)
	if _, err := New(Config{Enabled: true, Timezone: "Not/AZone"}, c, logging.NewDefault("test")); err == nil {
		t.Fatalf("expected error for invalid timezone")
	}
}
