// Package replay reproduces any finalized day from its event log and checks the
// result against the stored snapshot: hash-chain integrity, projected state hash,
// and reward hash. It is the auditability counterpart to the live coordinator --
// it never mutates storage, only reads and recomputes.
package replay

import (
	"encoding/json"
	"fmt"

	"github.com/r3e-network/ai4all-coordinator/internal/canonical"
	"github.com/r3e-network/ai4all-coordinator/internal/domain"
	"github.com/r3e-network/ai4all-coordinator/internal/eventlog"
	"github.com/r3e-network/ai4all-coordinator/internal/projector"
	"github.com/r3e-network/ai4all-coordinator/internal/storage"
)

// Result reports one day's replay outcome.
type Result struct {
	DayID             string
	ReplayedStateHash string
	ReplayedRewardHash string
	StoredSnapshot    domain.StateSnapshot
	SnapshotFound     bool
	StateMatch        bool
	RewardsMatch      bool
	HashChainValid    bool
}

// Day reproduces dayID's NetworkState from its events (applied on top of
// initialState, or an empty state if initialState is nil), verifies the hash
// chain against expectedPrevHash (the caller-supplied prior day's last event
// hash, or domain.GenesisHash for the very first day), and compares the
// recomputed stateHash/rewardHash against the stored snapshot.
func Day(dayID string, stores storage.Stores, initialState *domain.NetworkState, expectedPrevHash string) (Result, error) {
	events, err := stores.Events.QueryByDay(dayID)
	if err != nil {
		return Result{}, fmt.Errorf("replay: load events for %s: %w", dayID, err)
	}

	chainValid, err := eventlog.VerifyChain(events, expectedPrevHash)
	if err != nil {
		return Result{}, fmt.Errorf("replay: verify chain: %w", err)
	}

	start := projector.Empty()
	if initialState != nil {
		start = initialState.Clone()
	}
	finalState, err := projector.ApplyAll(start, events)
	if err != nil {
		return Result{}, fmt.Errorf("replay: project events: %w", err)
	}

	// DAY_FINALIZED carries the rewards/rewardRoot/stateHash the live coordinator
	// committed; REWARDS_COMMITTED is what bumped DayNumber. Pull the finalized
	// payload back out to recompute the same rewardHash the coordinator produced.
	rewardHash := ""
	for _, ev := range events {
		if ev.EventType == domain.EventDayFinalized {
			dist, derr := distributionFromPayload(dayID, ev.Payload)
			if derr != nil {
				return Result{}, fmt.Errorf("replay: decode DAY_FINALIZED payload: %w", derr)
			}
			rewardHash, err = canonical.Hash(dist)
			if err != nil {
				return Result{}, fmt.Errorf("replay: hash reward distribution: %w", err)
			}
		}
	}

	stateHash, err := canonical.Hash(finalState)
	if err != nil {
		return Result{}, fmt.Errorf("replay: hash final state: %w", err)
	}

	snapshot, found, err := stores.States.LoadSnapshot(dayID)
	if err != nil {
		return Result{}, fmt.Errorf("replay: load snapshot for %s: %w", dayID, err)
	}

	res := Result{
		DayID:               dayID,
		ReplayedStateHash:   stateHash,
		ReplayedRewardHash:  rewardHash,
		StoredSnapshot:      snapshot,
		SnapshotFound:       found,
		HashChainValid:      chainValid,
		StateMatch:          found && snapshot.StateHash == stateHash,
		RewardsMatch:        found && snapshot.RewardHash == rewardHash,
	}
	return res, nil
}

// Range chains Day calls over days in the order given, carrying each day's
// state into the next as continuity: the stored state for that day when one
// exists, otherwise the state projected from its events. The first day's
// prior-day hash is expectedFirstPrevHash, or domain.GenesisHash when that is
// empty; callers supply it only when the range doesn't start at the very first
// day in the system.
func Range(days []string, stores storage.Stores, initial *domain.NetworkState, expectedFirstPrevHash string) ([]Result, error) {
	results := make([]Result, 0, len(days))
	state := initial
	prevHash := expectedFirstPrevHash
	if prevHash == "" {
		prevHash = domain.GenesisHash
	}

	for _, dayID := range days {
		res, err := Day(dayID, stores, state, prevHash)
		if err != nil {
			return results, err
		}
		results = append(results, res)

		if stored, ok, err := stores.States.LoadState(dayID); err == nil && ok {
			s := stored
			state = &s
		} else {
			events, err := stores.Events.QueryByDay(dayID)
			if err != nil {
				return results, fmt.Errorf("replay: reload events for continuity: %w", err)
			}
			start := projector.Empty()
			if state != nil {
				start = state.Clone()
			}
			projected, err := projector.ApplyAll(start, events)
			if err != nil {
				return results, fmt.Errorf("replay: project for continuity: %w", err)
			}
			state = &projected
		}

		if last, ok, err := stores.Events.GetLastEventForDay(dayID); err == nil && ok {
			prevHash = last.EventHash
		}
	}
	return results, nil
}

// number coerces the numeric types a payload field may hold: float64 and int
// when the event came straight from an in-memory store, json.Number/float64 when
// it round-tripped through a durable store's JSON column.
func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// distributionFromPayload reconstructs the exact RewardDistribution the live
// coordinator hashed, from a DAY_FINALIZED event's payload. Reward entries may
// arrive either as domain.RewardEntry values (in-memory store, no serialization)
// or as map[string]interface{} (durable store, JSON round-trip).
func distributionFromPayload(dayID string, payload map[string]interface{}) (domain.RewardDistribution, error) {
	dist := domain.RewardDistribution{Date: dayID}

	if v, ok := payload["date"].(string); ok {
		dist.Date = v
	}
	if v, ok := number(payload["totalEmissions"]); ok {
		dist.TotalEmissions = v
	}
	if v, ok := number(payload["basePoolTotal"]); ok {
		dist.BasePoolTotal = v
	}
	if v, ok := number(payload["performancePoolTotal"]); ok {
		dist.PerformancePoolTotal = v
	}
	if v, ok := number(payload["activeCount"]); ok {
		dist.ActiveContributorCount = int(v)
	}

	rewardsRaw, ok := payload["rewards"]
	if !ok {
		return dist, nil
	}

	if entries, ok := rewardsRaw.([]domain.RewardEntry); ok {
		dist.Rewards = entries
		return dist, nil
	}

	list, ok := rewardsRaw.([]interface{})
	if !ok {
		return dist, fmt.Errorf("rewards field has unexpected type %T", rewardsRaw)
	}
	for _, raw := range list {
		entry := domain.RewardEntry{}
		switch v := raw.(type) {
		case domain.RewardEntry:
			entry = v
		case map[string]interface{}:
			if s, ok := v["accountId"].(string); ok {
				entry.AccountID = s
			}
			if f, ok := number(v["totalReward"]); ok {
				entry.TotalReward = f
			}
			if f, ok := number(v["basePoolReward"]); ok {
				entry.BasePoolReward = f
			}
			if f, ok := number(v["performancePoolReward"]); ok {
				entry.PerformancePoolReward = f
			}
		default:
			return dist, fmt.Errorf("reward entry has unexpected type %T", raw)
		}
		dist.Rewards = append(dist.Rewards, entry)
	}
	return dist, nil
}
