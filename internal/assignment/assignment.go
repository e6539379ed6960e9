// Package assignment implements the weighted lottery that turns a locked roster
// into block assignments and a canary subset, deterministically from a seed.
package assignment

import (
	"fmt"
	"math"
	"sort"

	"github.com/r3e-network/ai4all-coordinator/internal/detrand"
	"github.com/r3e-network/ai4all-coordinator/internal/domain"
)

// Config parameterizes the engine.
type Config struct {
	BlocksPerBatch   int
	MaxBatches       int
	LookbackDays     int
	CanaryPercentage float64
}

// ContributorPoints is the reward-points-in-lookback input for one roster member,
// computed by the caller from CompletedBlocks over the last LookbackDays days
// (excluding canary blocks).
type ContributorPoints struct {
	AccountID string
	Points    float64
}

// Result is the outcome of one day's assignment run.
type Result struct {
	Assignments    map[string]domain.BlockAssignment // keyed by contributorId
	CanaryBlockIDs map[string]bool
	TotalBlocks    int
}

// Run performs the deterministic lottery for dayId given the locked roster (sorted
// account ids), their lookback points, and a seed derived by detrand.DeriveSeed.
// Same (roster, dayId, cfg, seed) always yields byte-identical output.
func Run(dayID string, rosterPoints []ContributorPoints, seed uint32, cfg Config) (Result, error) {
	if len(rosterPoints) == 0 {
		return Result{Assignments: map[string]domain.BlockAssignment{}, CanaryBlockIDs: map[string]bool{}}, nil
	}
	sorted := make([]ContributorPoints, len(rosterPoints))
	copy(sorted, rosterPoints)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].AccountID < sorted[j].AccountID })

	weights := make([]float64, len(sorted))
	for i, p := range sorted {
		weights[i] = 1 + math.Sqrt(math.Max(p.Points, 0))
	}

	totalBlocks := cfg.MaxBatches * cfg.BlocksPerBatch
	if cfg.BlocksPerBatch <= 0 || cfg.MaxBatches <= 0 {
		return Result{}, fmt.Errorf("assignment: blocksPerBatch and maxBatches must be positive")
	}

	rng := detrand.NewSource(seed)
	assignments := make(map[string]domain.BlockAssignment, len(sorted))
	var allBlockIDs []string

	for batch := 0; batch < cfg.MaxBatches; batch++ {
		idx := rng.WeightedPick(weights)
		account := sorted[idx].AccountID
		batchBlocks := make([]string, 0, cfg.BlocksPerBatch)
		for i := 0; i < cfg.BlocksPerBatch; i++ {
			id := fmt.Sprintf("%s-b%d-%d", dayID, batch, i)
			batchBlocks = append(batchBlocks, id)
			allBlockIDs = append(allBlockIDs, id)
		}
		existing, ok := assignments[account]
		if !ok {
			assignments[account] = domain.BlockAssignment{
				ContributorID: account,
				BlockIDs:      batchBlocks,
				BatchNumber:   batch,
			}
		} else {
			existing.BlockIDs = append(existing.BlockIDs, batchBlocks...)
			assignments[account] = existing
		}
	}

	canaryCount := int(math.Ceil(float64(len(allBlockIDs)) * cfg.CanaryPercentage))
	canaryIDs := map[string]bool{}
	if canaryCount > 0 && len(allBlockIDs) > 0 {
		picks := rng.SampleWithoutReplacement(len(allBlockIDs), canaryCount)
		for _, p := range picks {
			canaryIDs[allBlockIDs[p]] = true
		}
	}

	return Result{
		Assignments:    assignments,
		CanaryBlockIDs: canaryIDs,
		TotalBlocks:    totalBlocks,
	}, nil
}
