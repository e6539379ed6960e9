package memstore

import (
	"testing"
	"time"

	"github.com/r3e-network/ai4all-coordinator/internal/domain"
	"github.com/r3e-network/ai4all-coordinator/internal/storage"
)

func TestAppendAndQueryByDayPreservesSequenceOrder(t *testing.T) {
	s := New()
	events := []domain.DomainEvent{
		{DayID: "d1", SequenceNumber: 1, EventType: domain.EventWorkAssigned},
		{DayID: "d1", SequenceNumber: 0, EventType: domain.EventRosterLocked},
	}
	if err := s.Append(events); err != nil {
		t.Fatalf("Append: %v", err)
	}
	out, err := s.QueryByDay("d1")
	if err != nil {
		t.Fatalf("QueryByDay: %v", err)
	}
	if len(out) != 2 || out[0].SequenceNumber != 0 || out[1].SequenceNumber != 1 {
		t.Fatalf("expected sequence-ordered events, got %+v", out)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := New()
	snap := domain.StateSnapshot{DayID: "d1", DayNumber: 1, StateHash: "h1"}
	if err := s.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	got, ok, err := s.LoadSnapshot("d1")
	if err != nil || !ok {
		t.Fatalf("LoadSnapshot: %v, ok=%v", err, ok)
	}
	if got.StateHash != "h1" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	latest, ok, err := s.LoadLatestSnapshot()
	if err != nil || !ok || latest.DayID != "d1" {
		t.Fatalf("LoadLatestSnapshot mismatch: %+v ok=%v err=%v", latest, ok, err)
	}
}

func TestStateRoundTripIsIndependentCopy(t *testing.T) {
	s := New()
	state := domain.NetworkState{Contributors: map[string]domain.Contributor{"alice": {AccountID: "alice"}}}
	if err := s.SaveState("d1", state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	state.Contributors["alice"] = domain.Contributor{AccountID: "alice", ReputationMultiplier: 0.5}

	loaded, ok, err := s.LoadState("d1")
	if err != nil || !ok {
		t.Fatalf("LoadState: %v ok=%v", err, ok)
	}
	if loaded.Contributors["alice"].ReputationMultiplier == 0.5 {
		t.Fatalf("SaveState must snapshot, not alias, caller state")
	}
}

func TestDayLifecycleRoundTrip(t *testing.T) {
	s := New()
	if _, ok, _ := s.LoadDayLifecycle(); ok {
		t.Fatalf("expected no lifecycle before first save")
	}
	l := newLifecycle()
	if err := s.SaveDayLifecycle(l); err != nil {
		t.Fatalf("SaveDayLifecycle: %v", err)
	}
	got, ok, err := s.LoadDayLifecycle()
	if err != nil || !ok {
		t.Fatalf("LoadDayLifecycle: %v ok=%v", err, ok)
	}
	if got.DayID != l.DayID || got.Phase != l.Phase {
		t.Fatalf("unexpected lifecycle: %+v", got)
	}
}

func newLifecycle() (l storage.DayLifecycle) {
	l.Phase = domain.PhaseActive
	l.DayID = "2026-01-28"
	l.Seed = 42
	l.RosterHash = "abc"
	return l
}

func TestBalanceAndHistory(t *testing.T) {
	s := New()
	if err := s.PutBalance(domain.BalanceRow{AccountID: "alice", BalanceMicro: 100, TotalEarnedMicro: 100}); err != nil {
		t.Fatalf("PutBalance: %v", err)
	}
	row, ok, err := s.GetBalance("alice")
	if err != nil || !ok || row.BalanceMicro != 100 {
		t.Fatalf("GetBalance mismatch: %+v ok=%v err=%v", row, ok, err)
	}

	credited, err := s.HasCreditedDay("d1")
	if err != nil || credited {
		t.Fatalf("expected day not credited yet")
	}
	if err := s.AppendHistory(domain.LedgerHistoryRow{AccountID: "alice", DayID: "d1", AmountMicro: 100, Timestamp: time.Now()}); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	credited, err = s.HasCreditedDay("d1")
	if err != nil || !credited {
		t.Fatalf("expected day credited after history append")
	}
}
