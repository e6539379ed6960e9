// Package eventlog builds the hash-chained DomainEvent sequence the coordinator
// appends at every lifecycle step. Idiom grounded on the example pack's append-only
// hash-chain log (other_examples storelog): no wall-clock re-derivation, strictly
// sequential, hash-only continuity across days.
package eventlog

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/ai4all-coordinator/internal/canonical"
	"github.com/r3e-network/ai4all-coordinator/internal/domain"
)

// Draft is one event to be emitted, before Build assigns its id, sequence number
// and hashes.
type Draft struct {
	EventType string
	ActorID   string
	Payload   map[string]interface{}
}

// Build turns drafts into a sequence of fully hash-chained DomainEvents for one
// day. prevHash is the eventHash of the last event emitted anywhere (any day);
// domain.GenesisHash if none has ever been emitted. startSeq is the next sequence
// number to use within dayId (0 if this is the day's first event).
func Build(dayID string, startSeq int, prevHash string, now time.Time, drafts []Draft) ([]domain.DomainEvent, error) {
	events := make([]domain.DomainEvent, 0, len(drafts))
	chain := prevHash
	for i, d := range drafts {
		ev := domain.DomainEvent{
			EventID:        uuid.NewString(),
			DayID:          dayID,
			SequenceNumber: startSeq + i,
			Timestamp:      now,
			EventType:      d.EventType,
			ActorID:        d.ActorID,
			Payload:        d.Payload,
			PrevEventHash:  chain,
		}
		hash, err := hashEvent(ev)
		if err != nil {
			return nil, fmt.Errorf("eventlog: hash event %s: %w", d.EventType, err)
		}
		ev.EventHash = hash
		events = append(events, ev)
		chain = hash
	}
	return events, nil
}

// hashEvent computes eventHash = H(canonical(event without eventHash)).
func hashEvent(ev domain.DomainEvent) (string, error) {
	withoutHash := ev
	withoutHash.EventHash = ""
	return canonical.Hash(withoutHash)
}

// VerifyChain checks that events (in the order given) form a valid hash chain
// starting from expectedPrevHash, and that every stored eventHash matches its
// recomputed value.
func VerifyChain(events []domain.DomainEvent, expectedPrevHash string) (bool, error) {
	prev := expectedPrevHash
	for _, ev := range events {
		if ev.PrevEventHash != prev {
			return false, nil
		}
		recomputed, err := hashEvent(ev)
		if err != nil {
			return false, fmt.Errorf("eventlog: recompute hash for event %s: %w", ev.EventID, err)
		}
		if recomputed != ev.EventHash {
			return false, nil
		}
		prev = ev.EventHash
	}
	return true, nil
}
