package projector

import (
	"testing"
	"time"

	"github.com/r3e-network/ai4all-coordinator/internal/domain"
)

func TestApplyNodeRegisteredAddsContributor(t *testing.T) {
	state := Empty()
	state, err := Apply(state, domain.DomainEvent{
		EventType: domain.EventNodeRegistered,
		Payload:   map[string]interface{}{"accountId": "alice", "publicKeyHex": "abcd"},
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	c, ok := state.Contributors["alice"]
	if !ok {
		t.Fatalf("expected alice to be registered")
	}
	if c.ReputationMultiplier != 1 {
		t.Fatalf("expected default reputation 1, got %v", c.ReputationMultiplier)
	}
}

func TestApplyNodeRegisteredIsIdempotent(t *testing.T) {
	state := Empty()
	ev := domain.DomainEvent{EventType: domain.EventNodeRegistered, Payload: map[string]interface{}{"accountId": "alice"}}
	state, err := Apply(state, ev)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	state.Contributors["alice"] = domain.Contributor{AccountID: "alice", ReputationMultiplier: 0.5}
	state2, err := Apply(state, ev)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if state2.Contributors["alice"].ReputationMultiplier != 0.5 {
		t.Fatalf("re-registration should not overwrite existing contributor")
	}
}

func TestApplySubmissionProcessedAppendsBlockOnlyWhenAccepted(t *testing.T) {
	state := Empty()
	state, _ = Apply(state, domain.DomainEvent{EventType: domain.EventNodeRegistered, Payload: map[string]interface{}{"accountId": "alice"}})

	rejected := domain.DomainEvent{
		EventType: domain.EventSubmissionProcessed,
		Payload: map[string]interface{}{
			"accountId": "alice",
			"accepted":  false,
		},
	}
	state, err := Apply(state, rejected)
	if err != nil {
		t.Fatalf("Apply rejected: %v", err)
	}
	if len(state.Contributors["alice"].CompletedBlocks) != 0 {
		t.Fatalf("rejected submission must not append a block")
	}

	accepted := domain.DomainEvent{
		EventType: domain.EventSubmissionProcessed,
		Payload: map[string]interface{}{
			"accountId": "alice",
			"accepted":  true,
			"block": map[string]interface{}{
				"blockId":              "2026-01-28-b0-0",
				"blockType":            "INFERENCE",
				"resourceUsage":        0.9,
				"difficultyMultiplier": 1.0,
				"validationPassed":     true,
			},
		},
	}
	state, err = Apply(state, accepted)
	if err != nil {
		t.Fatalf("Apply accepted: %v", err)
	}
	blocks := state.Contributors["alice"].CompletedBlocks
	if len(blocks) != 1 || blocks[0].BlockID != "2026-01-28-b0-0" {
		t.Fatalf("expected one completed block, got %+v", blocks)
	}
}

func TestApplyCanaryFailedUpdatesReputationAndTimestamp(t *testing.T) {
	state := Empty()
	state, _ = Apply(state, domain.DomainEvent{EventType: domain.EventNodeRegistered, Payload: map[string]interface{}{"accountId": "alice"}})
	now := time.Date(2026, 1, 28, 12, 0, 0, 0, time.UTC)
	state, err := Apply(state, domain.DomainEvent{
		EventType: domain.EventCanaryFailed,
		Timestamp: now,
		Payload: map[string]interface{}{
			"accountId":                 "alice",
			"reputationMultiplierAfter": 0.9,
		},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	c := state.Contributors["alice"]
	if c.CanaryFailures != 1 {
		t.Fatalf("expected 1 canary failure, got %d", c.CanaryFailures)
	}
	if c.ReputationMultiplier != 0.9 {
		t.Fatalf("expected reputation 0.9, got %v", c.ReputationMultiplier)
	}
	if c.LastCanaryFailureTime == nil || !c.LastCanaryFailureTime.Equal(now) {
		t.Fatalf("expected last canary failure time stamped")
	}
}

func TestApplyRewardsCommittedIncrementsDayNumber(t *testing.T) {
	state := Empty()
	state.DayNumber = 5
	state, err := Apply(state, domain.DomainEvent{EventType: domain.EventRewardsCommitted, Payload: map[string]interface{}{}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if state.DayNumber != 6 {
		t.Fatalf("expected dayNumber 6, got %d", state.DayNumber)
	}
}

func TestApplyAllIsOrderPreserving(t *testing.T) {
	events := []domain.DomainEvent{
		{EventType: domain.EventNodeRegistered, Payload: map[string]interface{}{"accountId": "alice"}},
		{EventType: domain.EventRosterLocked, Payload: map[string]interface{}{}},
		{EventType: domain.EventRewardsCommitted, Payload: map[string]interface{}{}},
	}
	state, err := ApplyAll(Empty(), events)
	if err != nil {
		t.Fatalf("ApplyAll: %v", err)
	}
	if state.DayNumber != 1 {
		t.Fatalf("expected dayNumber 1, got %d", state.DayNumber)
	}
	if _, ok := state.Contributors["alice"]; !ok {
		t.Fatalf("expected alice present after replay")
	}
}
