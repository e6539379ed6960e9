// Package projector implements the pure reducer apply(state, event) -> state. It
// never re-derives decisions from raw inputs: SUBMISSION_RECEIVED is informational
// only, SUBMISSION_PROCESSED carries the accepted/rejected decision and is what
// actually mutates a contributor's completed blocks. This keeps replay from ever
// drifting from the original live decision.
package projector

import (
	"encoding/json"
	"fmt"

	"github.com/r3e-network/ai4all-coordinator/internal/domain"
)

// Empty returns a zero-valued NetworkState to seed replay from scratch.
func Empty() domain.NetworkState {
	return domain.NetworkState{Contributors: map[string]domain.Contributor{}}
}

// Apply projects one event onto state, returning the resulting state. state is not
// mutated in place; callers receive a new value (copy-on-write).
func Apply(state domain.NetworkState, event domain.DomainEvent) (domain.NetworkState, error) {
	next := state.Clone()

	switch event.EventType {
	case domain.EventNodeRegistered:
		accountID, _ := event.Payload["accountId"].(string)
		if accountID == "" {
			return next, fmt.Errorf("projector: NODE_REGISTERED missing accountId")
		}
		if _, exists := next.Contributors[accountID]; exists {
			return next, nil
		}
		pubKey, _ := event.Payload["publicKeyHex"].(string)
		next.Contributors[accountID] = domain.Contributor{
			AccountID:            accountID,
			PublicKeyHex:         pubKey,
			ReputationMultiplier: 1,
			RegisteredAt:         event.Timestamp,
		}

	case domain.EventSubmissionProcessed:
		if err := applySubmissionProcessed(&next, event); err != nil {
			return next, err
		}

	case domain.EventCanaryFailed:
		accountID, _ := event.Payload["accountId"].(string)
		c, ok := next.Contributors[accountID]
		if !ok {
			return next, fmt.Errorf("projector: CANARY_FAILED for unknown account %s", accountID)
		}
		c.CanaryFailures++
		if penalty, ok := numberField(event.Payload, "reputationMultiplierAfter"); ok {
			c.ReputationMultiplier = penalty
		}
		ts := event.Timestamp
		c.LastCanaryFailureTime = &ts
		next.Contributors[accountID] = c

	case domain.EventCanaryPassed:
		accountID, _ := event.Payload["accountId"].(string)
		c, ok := next.Contributors[accountID]
		if !ok {
			return next, fmt.Errorf("projector: CANARY_PASSED for unknown account %s", accountID)
		}
		c.CanaryPasses++
		next.Contributors[accountID] = c

	case domain.EventRewardsCommitted:
		next.DayNumber++

	// ROSTER_LOCKED, WORK_ASSIGNED, CANARIES_SELECTED, SUBMISSION_RECEIVED and
	// DAY_FINALIZED carry no NetworkState-affecting fields: roster/assignment
	// bookkeeping lives in DayContext, and DAY_FINALIZED is a summary event whose
	// payload (rewards, rewardRoot, stateHash) documents what REWARDS_COMMITTED
	// then applies.
	case domain.EventRosterLocked, domain.EventWorkAssigned, domain.EventCanariesSelected,
		domain.EventSubmissionReceived, domain.EventDayFinalized:

	default:
		return next, fmt.Errorf("projector: unknown event type %q", event.EventType)
	}

	return next, nil
}

func applySubmissionProcessed(state *domain.NetworkState, event domain.DomainEvent) error {
	accountID, _ := event.Payload["accountId"].(string)
	c, ok := state.Contributors[accountID]
	if !ok {
		return fmt.Errorf("projector: SUBMISSION_PROCESSED for unknown account %s", accountID)
	}

	accepted, _ := event.Payload["accepted"].(bool)
	if !accepted {
		return nil
	}

	blockRaw, ok := event.Payload["block"]
	if !ok {
		return fmt.Errorf("projector: SUBMISSION_PROCESSED missing block payload")
	}
	block, err := decodeCompletedBlock(blockRaw)
	if err != nil {
		return fmt.Errorf("projector: decode block: %w", err)
	}
	c.CompletedBlocks = append(c.CompletedBlocks, block)
	state.Contributors[accountID] = c
	return nil
}

func decodeCompletedBlock(raw interface{}) (domain.CompletedBlock, error) {
	var block domain.CompletedBlock
	b, err := json.Marshal(raw)
	if err != nil {
		return block, err
	}
	if err := json.Unmarshal(b, &block); err != nil {
		return block, err
	}
	return block, nil
}

func numberField(payload map[string]interface{}, key string) (float64, bool) {
	v, ok := payload[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ApplyAll folds Apply over a sequence of events in order, failing fast on the
// first malformed event.
func ApplyAll(initial domain.NetworkState, events []domain.DomainEvent) (domain.NetworkState, error) {
	state := initial
	for _, ev := range events {
		var err error
		state, err = Apply(state, ev)
		if err != nil {
			return state, fmt.Errorf("projector: event %s (seq %d): %w", ev.EventID, ev.SequenceNumber, err)
		}
	}
	return state, nil
}
