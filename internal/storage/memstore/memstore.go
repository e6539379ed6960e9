// Package memstore is the in-memory backend for every storage interface, selected
// when STORE_BACKEND=memory. Grounded on the example pack's pkg/storage/memory
// single-struct-plus-RWMutex pattern.
package memstore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/r3e-network/ai4all-coordinator/internal/domain"
	"github.com/r3e-network/ai4all-coordinator/internal/storage"
)

// Store implements every storage interface over in-process maps guarded by a
// single RWMutex, matching the teacher's memory store layout.
type Store struct {
	mu sync.RWMutex

	events      []domain.DomainEvent
	snapshots   map[string]domain.StateSnapshot
	states      map[string]domain.NetworkState
	assignments map[string][]domain.BlockAssignment // by dayId
	submissions map[string][]domain.BlockSubmission // by dayId

	nodeKeys     map[string]string
	devices      map[string][]string
	dayLifecycle *storage.DayLifecycle

	balances map[string]domain.BalanceRow
	history  map[string][]domain.LedgerHistoryRow // keyed by dayId, used for idempotency check
	allHistory []domain.LedgerHistoryRow
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		snapshots:   map[string]domain.StateSnapshot{},
		states:      map[string]domain.NetworkState{},
		assignments: map[string][]domain.BlockAssignment{},
		submissions: map[string][]domain.BlockSubmission{},
		nodeKeys:    map[string]string{},
		devices:     map[string][]string{},
		balances:    map[string]domain.BalanceRow{},
		history:     map[string][]domain.LedgerHistoryRow{},
	}
}

var (
	_ storage.EventStore        = (*Store)(nil)
	_ storage.StateStore        = (*Store)(nil)
	_ storage.AssignmentStore   = (*Store)(nil)
	_ storage.SubmissionStore   = (*Store)(nil)
	_ storage.OperationalStore  = (*Store)(nil)
	_ storage.BalanceLedgerStore = (*Store)(nil)
)

// --- EventStore ---

func (s *Store) Append(events []domain.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *Store) QueryByDay(dayID string) ([]domain.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DomainEvent
	for _, e := range s.events {
		if e.DayID == dayID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

func (s *Store) QueryByType(eventType string, r *storage.EventRange) ([]domain.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DomainEvent
	for _, e := range s.events {
		if e.EventType != eventType {
			continue
		}
		if r != nil && (!r.From.IsZero() && e.Timestamp.Before(r.From)) {
			continue
		}
		if r != nil && (!r.To.IsZero() && e.Timestamp.After(r.To)) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) QueryByActor(actorID string, r *storage.EventRange) ([]domain.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DomainEvent
	for _, e := range s.events {
		if e.ActorID != actorID {
			continue
		}
		if r != nil && (!r.From.IsZero() && e.Timestamp.Before(r.From)) {
			continue
		}
		if r != nil && (!r.To.IsZero() && e.Timestamp.After(r.To)) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) GetLastEvent() (domain.DomainEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.events) == 0 {
		return domain.DomainEvent{}, false, nil
	}
	return s.events[len(s.events)-1], true, nil
}

func (s *Store) GetLastEventForDay(dayID string) (domain.DomainEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last domain.DomainEvent
	found := false
	for _, e := range s.events {
		if e.DayID == dayID {
			last = e
			found = true
		}
	}
	return last, found, nil
}

// --- StateStore ---

func (s *Store) SaveSnapshot(snap domain.StateSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.DayID] = snap
	return nil
}

func (s *Store) LoadSnapshot(dayID string) (domain.StateSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[dayID]
	return snap, ok, nil
}

func (s *Store) LoadLatestSnapshot() (domain.StateSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest domain.StateSnapshot
	found := false
	for _, snap := range s.snapshots {
		if !found || snap.DayNumber > latest.DayNumber {
			latest = snap
			found = true
		}
	}
	return latest, found, nil
}

func (s *Store) SaveState(dayID string, state domain.NetworkState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[dayID] = state.Clone()
	return nil
}

func (s *Store) LoadState(dayID string) (domain.NetworkState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[dayID]
	if !ok {
		return domain.NetworkState{}, false, nil
	}
	return st.Clone(), true, nil
}

// --- AssignmentStore ---

func (s *Store) PutAssignments(dayID string, assignments []domain.BlockAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[dayID] = append([]domain.BlockAssignment(nil), assignments...)
	return nil
}

func (s *Store) GetByDay(dayID string) ([]domain.BlockAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.BlockAssignment(nil), s.assignments[dayID]...), nil
}

func (s *Store) GetByNode(accountID string) ([]domain.BlockAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.BlockAssignment
	for _, list := range s.assignments {
		for _, a := range list {
			if a.ContributorID == accountID {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

// --- SubmissionStore ---

func (s *Store) PutSubmissions(dayID string, submissions []domain.BlockSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[dayID] = append([]domain.BlockSubmission(nil), submissions...)
	return nil
}

func (s *Store) AppendSubmission(dayID string, submission domain.BlockSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[dayID] = append(s.submissions[dayID], submission)
	return nil
}

func (s *Store) ListByDay(dayID string) ([]domain.BlockSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.BlockSubmission(nil), s.submissions[dayID]...), nil
}

func (s *Store) ListByNode(accountID string) ([]domain.BlockSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.BlockSubmission
	for _, list := range s.submissions {
		for _, sub := range list {
			if sub.ContributorID == accountID {
				out = append(out, sub)
			}
		}
	}
	return out, nil
}

// --- OperationalStore ---

func (s *Store) PutNodeKey(accountID, publicKeyHex string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeKeys[accountID] = publicKeyHex
	return nil
}

func (s *Store) GetNodeKey(accountID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.nodeKeys[accountID]
	return key, ok, nil
}

func (s *Store) PutDeviceLink(accountID, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[accountID] = append(s.devices[accountID], deviceID)
	return nil
}

func (s *Store) ListDevices(accountID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.devices[accountID]...), nil
}

func (s *Store) SaveDayLifecycle(l storage.DayLifecycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := l
	s.dayLifecycle = &cp
	return nil
}

func (s *Store) LoadDayLifecycle() (storage.DayLifecycle, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dayLifecycle == nil {
		return storage.DayLifecycle{}, false, nil
	}
	return *s.dayLifecycle, true, nil
}

// --- BalanceLedgerStore ---

func (s *Store) HasCreditedDay(dayID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history[dayID]) > 0, nil
}

func (s *Store) GetBalance(accountID string) (domain.BalanceRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.balances[accountID]
	return row, ok, nil
}

func (s *Store) PutBalance(row domain.BalanceRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row.BalanceMicro < 0 {
		return fmt.Errorf("memstore: negative balance for %s", row.AccountID)
	}
	s.balances[row.AccountID] = row
	return nil
}

func (s *Store) AppendHistory(row domain.LedgerHistoryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[row.DayID] = append(s.history[row.DayID], row)
	s.allHistory = append(s.allHistory, row)
	return nil
}

func (s *Store) ListBalances() ([]domain.BalanceRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.BalanceRow, 0, len(s.balances))
	for _, r := range s.balances {
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) ListHistory(accountID string) ([]domain.LedgerHistoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.LedgerHistoryRow
	for _, h := range s.allHistory {
		if h.AccountID == accountID {
			out = append(out, h)
		}
	}
	return out, nil
}
