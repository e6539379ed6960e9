package submission

import (
	"testing"
	"time"

	"github.com/r3e-network/ai4all-coordinator/internal/domain"
)

func baseContributor() domain.Contributor {
	return domain.Contributor{AccountID: "alice", ReputationMultiplier: 1}
}

func cfg() Config {
	return Config{CanaryPenalty: 0.1, CooldownHours: 24}
}

func TestProcessNormalBlockAppendsCompletedBlock(t *testing.T) {
	c := baseContributor()
	sub := domain.BlockSubmission{ContributorID: "alice", BlockID: "b1", BlockType: domain.BlockTypeInference, ResourceUsage: 0.9, DifficultyMultiplier: 1, ValidationPassed: true}
	next, result := Process(c, sub, false, cfg(), time.Now(), nil)
	if !result.Accepted {
		t.Fatalf("expected accepted")
	}
	if len(next.CompletedBlocks) != 1 {
		t.Fatalf("expected one completed block")
	}
	if len(c.CompletedBlocks) != 0 {
		t.Fatalf("original contributor must not be mutated")
	}
}

func TestProcessCanaryPassedIncrementsPasses(t *testing.T) {
	c := baseContributor()
	correct := true
	sub := domain.BlockSubmission{ContributorID: "alice", BlockID: "canary1", CanaryAnswerCorrect: &correct}
	next, result := Process(c, sub, true, cfg(), time.Now(), nil)
	if !result.CanaryDetected || !result.CanaryPassed {
		t.Fatalf("expected canary pass classification, got %+v", result)
	}
	if next.CanaryPasses != 1 {
		t.Fatalf("expected 1 canary pass, got %d", next.CanaryPasses)
	}
	if next.ReputationMultiplier != 1 {
		t.Fatalf("passing a canary must not touch reputation")
	}
}

func TestProcessCanaryFailedAppliesPenaltyOnFirstFailure(t *testing.T) {
	c := baseContributor()
	incorrect := false
	sub := domain.BlockSubmission{ContributorID: "alice", BlockID: "canary1", CanaryAnswerCorrect: &incorrect}
	now := time.Date(2026, 1, 28, 12, 0, 0, 0, time.UTC)
	next, result := Process(c, sub, true, cfg(), now, nil)
	if !result.CanaryDetected || result.CanaryPassed {
		t.Fatalf("expected canary fail classification, got %+v", result)
	}
	if !result.PenaltyApplied {
		t.Fatalf("expected penalty applied on first failure")
	}
	if next.CanaryFailures != 1 {
		t.Fatalf("expected 1 canary failure, got %d", next.CanaryFailures)
	}
	if next.ReputationMultiplier >= 1 {
		t.Fatalf("expected reputation reduced, got %v", next.ReputationMultiplier)
	}
	if next.ReputationMultiplier < 0 {
		t.Fatalf("reputation must stay >= 0")
	}
}

func TestProcessCanaryFailedWithinCooldownDoesNotDoublePenalize(t *testing.T) {
	c := baseContributor()
	firstFailure := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	c.LastCanaryFailureTime = &firstFailure
	c.ReputationMultiplier = 0.9
	c.CanaryFailures = 1

	incorrect := false
	sub := domain.BlockSubmission{ContributorID: "alice", BlockID: "canary2", CanaryAnswerCorrect: &incorrect}
	secondFailure := firstFailure.Add(2 * time.Hour)
	next, result := Process(c, sub, true, cfg(), secondFailure, nil)

	if result.PenaltyApplied {
		t.Fatalf("expected no additional penalty within cooldown window")
	}
	if next.CanaryFailures != 2 {
		t.Fatalf("expected failure count to still increment, got %d", next.CanaryFailures)
	}
	if next.ReputationMultiplier != 0.9 {
		t.Fatalf("expected reputation unchanged within cooldown, got %v", next.ReputationMultiplier)
	}
}

func TestProcessCanaryFailedAfterCooldownPenalizesAgain(t *testing.T) {
	c := baseContributor()
	firstFailure := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	c.LastCanaryFailureTime = &firstFailure
	c.ReputationMultiplier = 0.9

	incorrect := false
	sub := domain.BlockSubmission{ContributorID: "alice", BlockID: "canary2", CanaryAnswerCorrect: &incorrect}
	later := firstFailure.Add(25 * time.Hour)
	_, result := Process(c, sub, true, cfg(), later, nil)

	if !result.PenaltyApplied {
		t.Fatalf("expected penalty applied after cooldown elapses")
	}
}

func TestProcessUsesGraderWhenProvided(t *testing.T) {
	c := baseContributor()
	sub := domain.BlockSubmission{ContributorID: "alice", BlockID: "canary1"}
	grader := graderFunc(func(domain.BlockSubmission) (bool, error) { return true, nil })
	_, result := Process(c, sub, true, cfg(), time.Now(), grader)
	if !result.CanaryPassed {
		t.Fatalf("expected grader-reported pass to win")
	}
}

type graderFunc func(domain.BlockSubmission) (bool, error)

func (f graderFunc) Grade(sub domain.BlockSubmission) (bool, error) { return f(sub) }
