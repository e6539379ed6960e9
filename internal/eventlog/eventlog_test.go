package eventlog

import (
	"testing"
	"time"

	"github.com/r3e-network/ai4all-coordinator/internal/domain"
)

func TestBuildFirstEventEverChainsToGenesis(t *testing.T) {
	now := time.Date(2026, 1, 28, 12, 0, 0, 0, time.UTC)
	events, err := Build("2026-01-28", 0, domain.GenesisHash, now, []Draft{
		{EventType: domain.EventNodeRegistered, Payload: map[string]interface{}{"accountId": "alice"}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if events[0].PrevEventHash != domain.GenesisHash {
		t.Fatalf("expected genesis prev hash, got %s", events[0].PrevEventHash)
	}
	if events[0].SequenceNumber != 0 {
		t.Fatalf("expected sequence 0, got %d", events[0].SequenceNumber)
	}
}

func TestBuildChainsSequentialEvents(t *testing.T) {
	now := time.Date(2026, 1, 28, 12, 0, 0, 0, time.UTC)
	events, err := Build("2026-01-28", 0, domain.GenesisHash, now, []Draft{
		{EventType: domain.EventRosterLocked, Payload: map[string]interface{}{"rosterHash": "abc"}},
		{EventType: domain.EventWorkAssigned, Payload: map[string]interface{}{"count": 3}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if events[1].PrevEventHash != events[0].EventHash {
		t.Fatalf("second event did not chain to first's hash")
	}
	if events[1].SequenceNumber != 1 {
		t.Fatalf("expected sequence 1, got %d", events[1].SequenceNumber)
	}

	ok, err := VerifyChain(events, domain.GenesisHash)
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !ok {
		t.Fatalf("expected valid chain")
	}
}

func TestVerifyChainDetectsTamperedHash(t *testing.T) {
	now := time.Date(2026, 1, 28, 12, 0, 0, 0, time.UTC)
	events, err := Build("2026-01-28", 0, domain.GenesisHash, now, []Draft{
		{EventType: domain.EventNodeRegistered, Payload: map[string]interface{}{"accountId": "alice"}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	events[0].Payload["accountId"] = "mallory"
	ok, err := VerifyChain(events, domain.GenesisHash)
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if ok {
		t.Fatalf("expected tampered event to fail chain verification")
	}
}

func TestCrossDayContinuesChain(t *testing.T) {
	now := time.Date(2026, 1, 28, 12, 0, 0, 0, time.UTC)
	day1, err := Build("2026-01-28", 0, domain.GenesisHash, now, []Draft{
		{EventType: domain.EventDayFinalized, Payload: map[string]interface{}{}},
	})
	if err != nil {
		t.Fatalf("Build day1: %v", err)
	}
	day2, err := Build("2026-01-29", 0, day1[len(day1)-1].EventHash, now.Add(24*time.Hour), []Draft{
		{EventType: domain.EventRosterLocked, Payload: map[string]interface{}{}},
	})
	if err != nil {
		t.Fatalf("Build day2: %v", err)
	}
	if day2[0].PrevEventHash != day1[0].EventHash {
		t.Fatalf("cross-day chain broken")
	}
	if day2[0].SequenceNumber != 0 {
		t.Fatalf("expected day2 sequence to restart at 0, got %d", day2[0].SequenceNumber)
	}
}
