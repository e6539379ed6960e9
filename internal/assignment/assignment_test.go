package assignment

import (
	"testing"

	"github.com/r3e-network/ai4all-coordinator/internal/detrand"
)

func cfg() Config {
	return Config{BlocksPerBatch: 2, MaxBatches: 6, LookbackDays: 7, CanaryPercentage: 0.2}
}

func TestRunIsDeterministicForSameInputs(t *testing.T) {
	roster := []ContributorPoints{{AccountID: "alice", Points: 4}, {AccountID: "bob", Points: 1}}
	seed := detrand.DeriveSeed("2026-01-28", detrand.RosterHash([]string{"alice", "bob"}))

	r1, err := Run("2026-01-28", roster, seed, cfg())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r2, err := Run("2026-01-28", roster, seed, cfg())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(r1.Assignments) != len(r2.Assignments) {
		t.Fatalf("assignment counts diverged")
	}
	for acc, a1 := range r1.Assignments {
		a2, ok := r2.Assignments[acc]
		if !ok {
			t.Fatalf("account %s missing from second run", acc)
		}
		if len(a1.BlockIDs) != len(a2.BlockIDs) {
			t.Fatalf("block id count diverged for %s", acc)
		}
		for i := range a1.BlockIDs {
			if a1.BlockIDs[i] != a2.BlockIDs[i] {
				t.Fatalf("block id %d diverged for %s: %s vs %s", i, acc, a1.BlockIDs[i], a2.BlockIDs[i])
			}
		}
	}
	if len(r1.CanaryBlockIDs) != len(r2.CanaryBlockIDs) {
		t.Fatalf("canary set size diverged")
	}
}

func TestBlockIDsAreDisjointAcrossContributors(t *testing.T) {
	roster := []ContributorPoints{{AccountID: "alice", Points: 10}, {AccountID: "bob", Points: 2}, {AccountID: "carol", Points: 0}}
	seed := detrand.DeriveSeed("2026-01-28", detrand.RosterHash([]string{"alice", "bob", "carol"}))
	r, err := Run("2026-01-28", roster, seed, cfg())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	seen := map[string]bool{}
	for _, a := range r.Assignments {
		for _, id := range a.BlockIDs {
			if seen[id] {
				t.Fatalf("duplicate block id %s across contributors", id)
			}
			seen[id] = true
		}
	}
}

func TestCanaryBlockIDsAreSubsetOfAssigned(t *testing.T) {
	roster := []ContributorPoints{{AccountID: "alice", Points: 10}, {AccountID: "bob", Points: 2}}
	seed := detrand.DeriveSeed("2026-01-28", detrand.RosterHash([]string{"alice", "bob"}))
	r, err := Run("2026-01-28", roster, seed, cfg())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	all := map[string]bool{}
	for _, a := range r.Assignments {
		for _, id := range a.BlockIDs {
			all[id] = true
		}
	}
	for id := range r.CanaryBlockIDs {
		if !all[id] {
			t.Fatalf("canary id %s not in any assignment", id)
		}
	}
}

func TestRunRejectsNonPositiveBatchConfig(t *testing.T) {
	roster := []ContributorPoints{{AccountID: "alice", Points: 1}}
	if _, err := Run("2026-01-28", roster, 42, Config{BlocksPerBatch: 0, MaxBatches: 1}); err == nil {
		t.Fatalf("expected error for zero blocksPerBatch")
	}
}

func TestEmptyRosterYieldsEmptyResult(t *testing.T) {
	r, err := Run("2026-01-28", nil, 42, cfg())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(r.Assignments) != 0 || len(r.CanaryBlockIDs) != 0 {
		t.Fatalf("expected empty result for empty roster")
	}
}
