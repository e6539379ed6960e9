// Package coordinator implements the Day Coordinator: the lifecycle state
// machine (IDLE -> ACTIVE -> FINALIZING -> IDLE) that owns the live DayContext and
// NetworkState and orchestrates register/day-start/work-request/work-submit/
// day-finalize by composing the assignment engine, submission processor, reward
// calculator, Merkle commitment, event log and persistence adapters. Grounded on
// the example pack's single-mutex service-state pattern (infrastructure/state),
// generalized to the coordinator's exact phase machine.
package coordinator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/r3e-network/ai4all-coordinator/internal/apierr"
	"github.com/r3e-network/ai4all-coordinator/internal/assignment"
	"github.com/r3e-network/ai4all-coordinator/internal/canonical"
	"github.com/r3e-network/ai4all-coordinator/internal/detrand"
	"github.com/r3e-network/ai4all-coordinator/internal/domain"
	"github.com/r3e-network/ai4all-coordinator/internal/eventlog"
	"github.com/r3e-network/ai4all-coordinator/internal/ledger"
	"github.com/r3e-network/ai4all-coordinator/internal/merkle"
	"github.com/r3e-network/ai4all-coordinator/internal/projector"
	"github.com/r3e-network/ai4all-coordinator/internal/rewards"
	"github.com/r3e-network/ai4all-coordinator/internal/storage"
	"github.com/r3e-network/ai4all-coordinator/internal/submission"
)

// Config bundles every tunable the coordinator needs from the application's
// top-level configuration.
type Config struct {
	Assignment assignment.Config
	Submission submission.Config
	Reward     rewards.Config
}

// Clock lets tests pin wall-clock time; production wiring passes time.Now.
type Clock func() time.Time

// Coordinator owns the single mutex protecting DayContext and NetworkState, per
// the specification's concurrency model: one coordinator mutex, briefly held,
// serializing every mutation.
type Coordinator struct {
	mu sync.Mutex

	stores storage.Stores
	cfg    Config
	clock  Clock

	day           domain.DayContext
	state         domain.NetworkState
	lastEventHash string
	nextSeq       int
}

// New constructs a Coordinator and restores any in-progress day from storage, so a
// restart in the middle of ACTIVE resumes cleanly instead of losing the roster
// lock and assignments.
func New(stores storage.Stores, cfg Config, clock Clock) (*Coordinator, error) {
	if clock == nil {
		clock = time.Now
	}
	c := &Coordinator{
		stores:        stores,
		cfg:           cfg,
		clock:         clock,
		day:           domain.DayContext{Phase: domain.PhaseIdle, ProcessedIndex: map[string]domain.SubmissionResult{}},
		state:         projector.Empty(),
		lastEventHash: domain.GenesisHash,
	}
	if err := c.restore(); err != nil {
		return nil, fmt.Errorf("coordinator: restore: %w", err)
	}
	return c, nil
}

func (c *Coordinator) restore() error {
	if last, ok, err := c.stores.Events.GetLastEvent(); err != nil {
		return err
	} else if ok {
		c.lastEventHash = last.EventHash
	}

	if snap, ok, err := c.stores.States.LoadLatestSnapshot(); err != nil {
		return err
	} else if ok {
		if st, ok, err := c.stores.States.LoadState(snap.DayID); err != nil {
			return err
		} else if ok {
			c.state = st
		}
	}

	lifecycle, ok, err := c.stores.Operational.LoadDayLifecycle()
	if err != nil {
		return err
	}
	if !ok || lifecycle.Phase == domain.PhaseIdle {
		return nil
	}

	assignments, err := c.stores.Assignments.GetByDay(lifecycle.DayID)
	if err != nil {
		return err
	}
	assignMap := make(map[string]domain.BlockAssignment, len(assignments))
	for _, a := range assignments {
		assignMap[a.ContributorID] = a
	}
	canarySet := make(map[string]bool, len(lifecycle.CanaryBlockIDs))
	for _, id := range lifecycle.CanaryBlockIDs {
		canarySet[id] = true
	}

	submissions, err := c.stores.Submissions.ListByDay(lifecycle.DayID)
	if err != nil {
		return err
	}
	processed := map[string]domain.SubmissionResult{}
	for _, sub := range submissions {
		key := processedKey(sub.ContributorID, sub.BlockID, lifecycle.DayID)
		processed[key] = domain.SubmissionResult{Accepted: true}
	}

	dayEvents, err := c.stores.Events.QueryByDay(lifecycle.DayID)
	if err != nil {
		return err
	}

	c.day = domain.DayContext{
		DayID:              lifecycle.DayID,
		Phase:              lifecycle.Phase,
		Seed:               lifecycle.Seed,
		RosterHash:         lifecycle.RosterHash,
		RosterAccountIDs:   lifecycle.RosterAccountIDs,
		CanaryBlockIDs:     canarySet,
		Assignments:        assignMap,
		PendingSubmissions: submissions,
		ProcessedIndex:     processed,
		DayNumber:          lifecycle.DayNumber,
	}
	c.nextSeq = len(dayEvents)
	return nil
}

func processedKey(accountID, blockID, dayID string) string {
	return accountID + ":" + blockID + ":" + dayID
}

// Status is a read-only snapshot of the live day used by /admin/day/status and /health.
type Status struct {
	Phase             domain.Phase
	DayID             string
	DayNumber         int
	RosterSize        int
	ContributorCount  int
	PendingSubmissions int
}

// Status returns the coordinator's current phase and counters.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Phase:              c.day.Phase,
		DayID:              c.day.DayID,
		DayNumber:          c.state.DayNumber,
		RosterSize:         len(c.day.RosterAccountIDs),
		ContributorCount:   len(c.state.Contributors),
		PendingSubmissions: len(c.day.PendingSubmissions),
	}
}

// appendEvents builds drafts into hash-chained events for the current day, appends
// them atomically, and advances the chain/sequence cursors on success.
func (c *Coordinator) appendEvents(now time.Time, drafts []eventlog.Draft) ([]domain.DomainEvent, error) {
	events, err := eventlog.Build(c.day.DayID, c.nextSeq, c.lastEventHash, now, drafts)
	if err != nil {
		return nil, err
	}
	if err := c.stores.Events.Append(events); err != nil {
		return nil, fmt.Errorf("append events: %w", err)
	}
	c.nextSeq += len(events)
	c.lastEventHash = events[len(events)-1].EventHash
	return events, nil
}

// Register adds accountId to the network, idempotently. Allowed in any phase.
func (c *Coordinator) Register(accountID, publicKeyHex string) (registered bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.state.Contributors[accountID]; exists {
		return false, nil
	}

	now := c.clock()
	events, err := c.appendEvents(now, []eventlog.Draft{{
		EventType: domain.EventNodeRegistered,
		ActorID:   accountID,
		Payload:   map[string]interface{}{"accountId": accountID, "publicKeyHex": publicKeyHex},
	}})
	if err != nil {
		return false, apierr.Newf(apierr.KindInternal, "REGISTER_FAILED", err.Error())
	}

	var perr error
	c.state, perr = projector.Apply(c.state, events[0])
	if perr != nil {
		return false, apierr.Newf(apierr.KindInternal, "REGISTER_PROJECT_FAILED", perr.Error())
	}

	if err := c.stores.Operational.PutNodeKey(accountID, publicKeyHex); err != nil {
		return false, apierr.Newf(apierr.KindInternal, "REGISTER_PERSIST_FAILED", err.Error())
	}
	return true, nil
}

// DayStart locks the current roster, derives the seed, computes assignments and
// transitions IDLE -> ACTIVE. dayID defaults to today's UTC date if empty.
func (c *Coordinator) DayStart(dayID string) (domain.DayContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.day.Phase != domain.PhaseIdle {
		return domain.DayContext{}, apierr.New(apierr.KindStateConflict, "DAY_ALREADY_ACTIVE")
	}
	now := c.clock()
	if dayID == "" {
		dayID = now.UTC().Format("2006-01-02")
	}

	roster := make([]string, 0, len(c.state.Contributors))
	for id := range c.state.Contributors {
		roster = append(roster, id)
	}
	sort.Strings(roster)

	rosterHash := detrand.RosterHash(roster)
	seed := detrand.DeriveSeed(dayID, rosterHash)

	lookbackCutoff := now.AddDate(0, 0, -c.cfg.Assignment.LookbackDays)
	points := make([]assignment.ContributorPoints, 0, len(roster))
	for _, id := range roster {
		points = append(points, assignment.ContributorPoints{
			AccountID: id,
			Points:    lookbackPoints(c.state.Contributors[id], lookbackCutoff),
		})
	}

	result, err := assignment.Run(dayID, points, seed, c.cfg.Assignment)
	if err != nil {
		return domain.DayContext{}, apierr.Newf(apierr.KindInternal, "ASSIGNMENT_FAILED", err.Error())
	}

	assignmentsList := make([]domain.BlockAssignment, 0, len(result.Assignments))
	for id, a := range result.Assignments {
		a.AssignedAt = now
		a.ContributorID = id
		result.Assignments[id] = a
		assignmentsList = append(assignmentsList, a)
	}
	sort.Slice(assignmentsList, func(i, j int) bool { return assignmentsList[i].ContributorID < assignmentsList[j].ContributorID })

	if err := c.stores.Assignments.PutAssignments(dayID, assignmentsList); err != nil {
		return domain.DayContext{}, apierr.Newf(apierr.KindInternal, "PERSIST_ASSIGNMENTS_FAILED", err.Error())
	}

	canaryIDs := make([]string, 0, len(result.CanaryBlockIDs))
	for id := range result.CanaryBlockIDs {
		canaryIDs = append(canaryIDs, id)
	}
	sort.Strings(canaryIDs)

	drafts := []eventlog.Draft{
		{EventType: domain.EventRosterLocked, Payload: map[string]interface{}{"rosterHash": rosterHash, "seed": seed, "rosterSize": len(roster)}},
		{EventType: domain.EventWorkAssigned, Payload: map[string]interface{}{"totalBlocks": result.TotalBlocks, "contributorCount": len(assignmentsList)}},
		{EventType: domain.EventCanariesSelected, Payload: map[string]interface{}{"canaryBlockIds": canaryIDs}},
	}
	if _, err := c.appendEvents(now, drafts); err != nil {
		return domain.DayContext{}, apierr.Newf(apierr.KindInternal, "APPEND_EVENTS_FAILED", err.Error())
	}

	c.day = domain.DayContext{
		DayID:              dayID,
		Phase:              domain.PhaseActive,
		Seed:               seed,
		RosterHash:         rosterHash,
		RosterAccountIDs:   roster,
		CanaryBlockIDs:     result.CanaryBlockIDs,
		Assignments:        result.Assignments,
		PendingSubmissions: nil,
		ProcessedIndex:     map[string]domain.SubmissionResult{},
		DayNumber:          c.state.DayNumber,
	}

	if err := c.saveLifecycle(); err != nil {
		return domain.DayContext{}, apierr.Newf(apierr.KindInternal, "PERSIST_LIFECYCLE_FAILED", err.Error())
	}
	return c.day, nil
}

func lookbackPoints(c domain.Contributor, cutoff time.Time) float64 {
	total := 0.0
	for _, b := range c.CompletedBlocks {
		if b.IsCanary || b.Timestamp.Before(cutoff) {
			continue
		}
		total += b.ResourceUsage * b.DifficultyMultiplier * c.ReputationMultiplier
	}
	return total
}

func (c *Coordinator) saveLifecycle() error {
	canaryIDs := make([]string, 0, len(c.day.CanaryBlockIDs))
	for id := range c.day.CanaryBlockIDs {
		canaryIDs = append(canaryIDs, id)
	}
	sort.Strings(canaryIDs)
	return c.stores.Operational.SaveDayLifecycle(storage.DayLifecycle{
		Phase:            c.day.Phase,
		DayID:            c.day.DayID,
		Seed:             c.day.Seed,
		RosterHash:       c.day.RosterHash,
		RosterAccountIDs: append([]string(nil), c.day.RosterAccountIDs...),
		CanaryBlockIDs:   canaryIDs,
		DayNumber:        c.day.DayNumber,
	})
}

// WorkResult is the response to work/request.
type WorkResult struct {
	Assignment domain.BlockAssignment
	Reason     string
}

// WorkRequest returns accountId's assignment for the active day, or an empty
// result with reason ROSTER_LOCKED if accountId was not part of the locked roster.
func (c *Coordinator) WorkRequest(accountID string) (WorkResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.day.Phase != domain.PhaseActive {
		return WorkResult{}, apierr.New(apierr.KindStateConflict, "DAY_NOT_STARTED")
	}
	if !contains(c.day.RosterAccountIDs, accountID) {
		return WorkResult{Reason: "ROSTER_LOCKED"}, nil
	}
	return WorkResult{Assignment: c.day.Assignments[accountID]}, nil
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// WorkSubmit processes a batch of submissions for accountId. requestedDayID, if
// non-empty, must equal the active day. Each submission is handled independently:
// idempotency cache hit, not-assigned rejection, or full processing.
func (c *Coordinator) WorkSubmit(accountID, requestedDayID string, submissions []domain.BlockSubmission) ([]domain.SubmissionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.day.Phase == domain.PhaseFinalizing {
		return nil, apierr.New(apierr.KindStateConflict, "DAY_FINALIZING")
	}
	if c.day.Phase != domain.PhaseActive {
		return nil, apierr.New(apierr.KindStateConflict, "DAY_NOT_STARTED")
	}
	if requestedDayID != "" && requestedDayID != c.day.DayID {
		return nil, apierr.New(apierr.KindStateConflict, "DAY_MISMATCH")
	}

	results := make([]domain.SubmissionResult, 0, len(submissions))
	now := c.clock()

	for _, sub := range submissions {
		key := processedKey(accountID, sub.BlockID, c.day.DayID)
		if cached, ok := c.day.ProcessedIndex[key]; ok {
			results = append(results, cached)
			continue
		}

		assigned, ok := c.day.Assignments[accountID]
		if !ok || !contains(assigned.BlockIDs, sub.BlockID) {
			result := domain.SubmissionResult{Accepted: false, Reason: "NOT_ASSIGNED"}
			c.day.ProcessedIndex[key] = result
			results = append(results, result)
			continue
		}

		isCanary := c.day.CanaryBlockIDs[sub.BlockID]
		sub.ContributorID = accountID
		sub.Timestamp = now

		if _, err := c.appendEvents(now, []eventlog.Draft{{
			EventType: domain.EventSubmissionReceived,
			ActorID:   accountID,
			Payload:   map[string]interface{}{"accountId": accountID, "blockId": sub.BlockID, "isCanary": isCanary},
		}}); err != nil {
			return nil, apierr.Newf(apierr.KindInternal, "APPEND_EVENTS_FAILED", err.Error())
		}

		contributor := c.state.Contributors[accountID]
		nextContributor, result := submission.Process(contributor, sub, isCanary, c.cfg.Submission, now, nil)

		processedPayload := map[string]interface{}{
			"accountId":      accountID,
			"blockId":        sub.BlockID,
			"accepted":       result.Accepted,
			"canaryDetected": result.CanaryDetected,
			"canaryPassed":   result.CanaryPassed,
			"penaltyApplied": result.PenaltyApplied,
		}
		if result.Accepted && len(nextContributor.CompletedBlocks) > 0 {
			processedPayload["block"] = nextContributor.CompletedBlocks[len(nextContributor.CompletedBlocks)-1]
		}
		drafts := []eventlog.Draft{{EventType: domain.EventSubmissionProcessed, ActorID: accountID, Payload: processedPayload}}

		if result.CanaryDetected {
			canaryPayload := map[string]interface{}{
				"accountId":                 accountID,
				"blockId":                   sub.BlockID,
				"reputationMultiplierAfter": nextContributor.ReputationMultiplier,
			}
			if result.CanaryPassed {
				drafts = append(drafts, eventlog.Draft{EventType: domain.EventCanaryPassed, ActorID: accountID, Payload: canaryPayload})
			} else {
				drafts = append(drafts, eventlog.Draft{EventType: domain.EventCanaryFailed, ActorID: accountID, Payload: canaryPayload})
			}
		}

		events, err := c.appendEvents(now, drafts)
		if err != nil {
			return nil, apierr.Newf(apierr.KindInternal, "APPEND_EVENTS_FAILED", err.Error())
		}
		if result.Accepted {
			for _, ev := range events {
				var perr error
				c.state, perr = projector.Apply(c.state, ev)
				if perr != nil {
					return nil, apierr.Newf(apierr.KindInternal, "PROJECT_FAILED", perr.Error())
				}
			}
		}

		if err := c.stores.Submissions.AppendSubmission(c.day.DayID, sub); err != nil {
			return nil, apierr.Newf(apierr.KindInternal, "PERSIST_SUBMISSION_FAILED", err.Error())
		}
		c.day.PendingSubmissions = append(c.day.PendingSubmissions, sub)
		c.day.ProcessedIndex[key] = result
		results = append(results, result)
	}

	if err := c.stores.States.SaveState(c.day.DayID, c.state); err != nil {
		return nil, apierr.Newf(apierr.KindInternal, "PERSIST_STATE_FAILED", err.Error())
	}
	return results, nil
}

// FinalizeResult bundles everything day/finalize produces.
type FinalizeResult struct {
	Distribution domain.RewardDistribution
	Snapshot     domain.StateSnapshot
	RewardRoot   string
}

// DayFinalize transitions ACTIVE -> FINALIZING, computes rewards, commits the
// Merkle root, emits the closing events, snapshots state, credits the ledger, and
// resets to IDLE. Any failure after the FINALIZING transition reverts phase to
// ACTIVE so the operator can retry; the only committed-or-not boundary is the
// event batch append.
func (c *Coordinator) DayFinalize() (FinalizeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.day.Phase != domain.PhaseActive {
		return FinalizeResult{}, apierr.New(apierr.KindStateConflict, "DAY_NOT_STARTED")
	}
	dayID := c.day.DayID
	c.day.Phase = domain.PhaseFinalizing

	result, err := c.finalizeLocked(dayID)
	if err != nil {
		c.day.Phase = domain.PhaseActive
		return FinalizeResult{}, err
	}
	return result, nil
}

func (c *Coordinator) finalizeLocked(dayID string) (FinalizeResult, error) {
	currentTime, err := time.Parse("2006-01-02T15:04:05Z", dayID+"T12:00:00Z")
	if err != nil {
		return FinalizeResult{}, apierr.Newf(apierr.KindInternal, "BAD_DAY_ID", err.Error())
	}

	dist := rewards.Calculate(dayID, c.state.Contributors, c.cfg.Reward, currentTime)

	leaves := make([]merkle.Leaf, 0, len(dist.Rewards))
	for _, r := range dist.Rewards {
		leaves = append(leaves, merkle.Leaf{
			AccountID:             r.AccountID,
			TotalReward:           r.TotalReward,
			BasePoolReward:        r.BasePoolReward,
			PerformancePoolReward: r.PerformancePoolReward,
		})
	}
	tree, err := merkle.Build(leaves)
	if err != nil {
		return FinalizeResult{}, apierr.Newf(apierr.KindInternal, "MERKLE_BUILD_FAILED", err.Error())
	}
	root := tree.Root()

	newState := c.state.Clone()
	newState.DayNumber++
	stateHash, err := canonical.Hash(newState)
	if err != nil {
		return FinalizeResult{}, apierr.Newf(apierr.KindInternal, "STATE_HASH_FAILED", err.Error())
	}
	rewardHash, err := canonical.Hash(dist)
	if err != nil {
		return FinalizeResult{}, apierr.Newf(apierr.KindInternal, "REWARD_HASH_FAILED", err.Error())
	}

	drafts := []eventlog.Draft{
		{EventType: domain.EventDayFinalized, Payload: map[string]interface{}{
			"date":                 dist.Date,
			"totalEmissions":       dist.TotalEmissions,
			"basePoolTotal":        dist.BasePoolTotal,
			"performancePoolTotal": dist.PerformancePoolTotal,
			"activeCount":          dist.ActiveContributorCount,
			"rewards":              dist.Rewards,
			"rewardRoot":           root,
			"stateHash":            stateHash,
		}},
		{EventType: domain.EventRewardsCommitted, Payload: map[string]interface{}{"dayNumber": newState.DayNumber}},
	}
	// newState already carries the DayNumber++ that REWARDS_COMMITTED's projector
	// effect would apply; stateHash above was computed against that same value, so
	// DAY_FINALIZED/REWARDS_COMMITTED are appended but not re-projected here.
	if _, err := c.appendEvents(currentTime, drafts); err != nil {
		return FinalizeResult{}, apierr.Newf(apierr.KindInternal, "APPEND_EVENTS_FAILED", err.Error())
	}

	snapshot := domain.StateSnapshot{
		DayID:            dayID,
		DayNumber:        newState.DayNumber,
		StateHash:        stateHash,
		LastEventHash:    c.lastEventHash,
		RewardHash:       rewardHash,
		ContributorCount: len(newState.Contributors),
		CreatedAt:        currentTime,
	}
	if err := c.stores.States.SaveState(dayID, newState); err != nil {
		return FinalizeResult{}, apierr.Newf(apierr.KindInternal, "PERSIST_STATE_FAILED", err.Error())
	}
	if err := c.stores.States.SaveSnapshot(snapshot); err != nil {
		return FinalizeResult{}, apierr.Newf(apierr.KindInternal, "PERSIST_SNAPSHOT_FAILED", err.Error())
	}
	if _, err := ledger.CreditRewards(c.stores.Ledger, dayID, dist.Rewards, currentTime); err != nil {
		return FinalizeResult{}, apierr.Newf(apierr.KindInternal, "CREDIT_LEDGER_FAILED", err.Error())
	}

	c.state = newState
	c.day = domain.DayContext{Phase: domain.PhaseIdle, DayNumber: newState.DayNumber, ProcessedIndex: map[string]domain.SubmissionResult{}}
	if err := c.saveLifecycle(); err != nil {
		return FinalizeResult{}, apierr.Newf(apierr.KindInternal, "PERSIST_LIFECYCLE_FAILED", err.Error())
	}

	return FinalizeResult{Distribution: dist, Snapshot: snapshot, RewardRoot: root}, nil
}

// RewardProof returns the Merkle proof for accountId in dayId's committed
// distribution, recomputed from the stored RewardDistribution rather than cached,
// so /rewards/proof stays correct even for days the live coordinator never held
// in memory.
func RewardProof(dist domain.RewardDistribution, accountID string) ([]merkle.ProofStep, string, bool, error) {
	leaves := make([]merkle.Leaf, 0, len(dist.Rewards))
	for _, r := range dist.Rewards {
		leaves = append(leaves, merkle.Leaf{
			AccountID:             r.AccountID,
			TotalReward:           r.TotalReward,
			BasePoolReward:        r.BasePoolReward,
			PerformancePoolReward: r.PerformancePoolReward,
		})
	}
	tree, err := merkle.Build(leaves)
	if err != nil {
		return nil, "", false, err
	}
	proof, ok := tree.Proof(accountID)
	return proof, tree.Root(), ok, nil
}
