// Package storage defines the six persistence interfaces the coordinator depends
// on. Each has an in-memory implementation (memstore) and a durable Postgres
// implementation (pgstore), grounded on the example pack's generic CRUDStore /
// BaseStore pattern adapted to the coordinator's concrete domain types.
package storage

import (
	"time"

	"github.com/r3e-network/ai4all-coordinator/internal/domain"
)

// EventRange optionally bounds a query by time.
type EventRange struct {
	From, To time.Time
}

// EventStore is the append-only, hash-chained event log.
type EventStore interface {
	// Append writes events atomically: either all land or none do.
	Append(events []domain.DomainEvent) error
	QueryByDay(dayID string) ([]domain.DomainEvent, error)
	QueryByType(eventType string, r *EventRange) ([]domain.DomainEvent, error)
	QueryByActor(actorID string, r *EventRange) ([]domain.DomainEvent, error)
	GetLastEvent() (domain.DomainEvent, bool, error)
	GetLastEventForDay(dayID string) (domain.DomainEvent, bool, error)
}

// StateStore persists per-day snapshots and the canonical NetworkState blob.
type StateStore interface {
	SaveSnapshot(s domain.StateSnapshot) error
	LoadSnapshot(dayID string) (domain.StateSnapshot, bool, error)
	LoadLatestSnapshot() (domain.StateSnapshot, bool, error)
	SaveState(dayID string, state domain.NetworkState) error
	LoadState(dayID string) (domain.NetworkState, bool, error)
}

// AssignmentStore persists per-day block assignments.
type AssignmentStore interface {
	PutAssignments(dayID string, assignments []domain.BlockAssignment) error
	GetByDay(dayID string) ([]domain.BlockAssignment, error)
	GetByNode(accountID string) ([]domain.BlockAssignment, error)
}

// SubmissionStore persists per-day submissions.
type SubmissionStore interface {
	PutSubmissions(dayID string, submissions []domain.BlockSubmission) error
	AppendSubmission(dayID string, submission domain.BlockSubmission) error
	ListByDay(dayID string) ([]domain.BlockSubmission, error)
	ListByNode(accountID string) ([]domain.BlockSubmission, error)
}

// DayLifecycle is the persisted snapshot of the live DayContext, written when a
// day starts and when it is finalized so a restart mid-day can restore ACTIVE
// cleanly. The transient FINALIZING phase is not written.
type DayLifecycle struct {
	Phase            domain.Phase
	DayID            string
	Seed             uint32
	RosterHash       string
	RosterAccountIDs []string
	CanaryBlockIDs   []string
	DayNumber        int
}

// OperationalStore persists authentication material, device links, and the
// current day-lifecycle snapshot.
type OperationalStore interface {
	PutNodeKey(accountID, publicKeyHex string) error
	GetNodeKey(accountID string) (string, bool, error)
	PutDeviceLink(accountID, deviceID string) error
	ListDevices(accountID string) ([]string, error)
	SaveDayLifecycle(l DayLifecycle) error
	LoadDayLifecycle() (DayLifecycle, bool, error)
}

// BalanceLedgerStore is the persistence contract behind internal/ledger.
type BalanceLedgerStore interface {
	HasCreditedDay(dayID string) (bool, error)
	GetBalance(accountID string) (domain.BalanceRow, bool, error)
	PutBalance(row domain.BalanceRow) error
	AppendHistory(row domain.LedgerHistoryRow) error
	ListBalances() ([]domain.BalanceRow, error)
	ListHistory(accountID string) ([]domain.LedgerHistoryRow, error)
}

// Stores bundles every backend the coordinator needs, mirroring the teacher's
// applications.Stores composition.
type Stores struct {
	Events      EventStore
	States      StateStore
	Assignments AssignmentStore
	Submissions SubmissionStore
	Operational OperationalStore
	Ledger      BalanceLedgerStore
}
