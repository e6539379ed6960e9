// Package submission validates and classifies one worker-reported block result:
// canary pass/fail, reputation penalty with cooldown, or a plain accepted block.
package submission

import (
	"time"

	"github.com/r3e-network/ai4all-coordinator/internal/domain"
)

// Config parameterizes canary penalty and cooldown behavior. CanaryPenalty and
// CooldownHours mirror config.RewardConfig's fields of the same purpose; the exact
// reduction constant is not pinned upstream, so it is exposed here with a
// documented default and the invariant reputation ∈ [0, 1] preserved.
type Config struct {
	CanaryPenalty float64
	CooldownHours float64
}

// CanaryGrader optionally re-grades a submission's canary correctness, e.g. via an
// embedded scripted rule, instead of trusting the client-reported
// canaryAnswerCorrect flag outright. A nil grader means the client-reported flag is
// authoritative.
type CanaryGrader interface {
	Grade(sub domain.BlockSubmission) (correct bool, err error)
}

// Process applies one submission to contributor (already confirmed to be assigned
// the block and not previously processed), returning the updated contributor and
// a result. No error is fatal: rejection is reported via result.Accepted=false and
// result.Reason, with no mutation to contributor.
func Process(contributor domain.Contributor, sub domain.BlockSubmission, isCanary bool, cfg Config, now time.Time, grader CanaryGrader) (domain.Contributor, domain.SubmissionResult) {
	next := contributor.Clone()

	if !isCanary {
		block := domain.CompletedBlock{
			BlockID:              sub.BlockID,
			BlockType:            sub.BlockType,
			ResourceUsage:        sub.ResourceUsage,
			DifficultyMultiplier: sub.DifficultyMultiplier,
			ValidationPassed:     sub.ValidationPassed,
			Timestamp:            sub.Timestamp,
			IsCanary:             false,
		}
		next.CompletedBlocks = append(next.CompletedBlocks, block)
		return next, domain.SubmissionResult{Accepted: true}
	}

	correct := false
	if grader != nil {
		c, err := grader.Grade(sub)
		if err != nil {
			return contributor, domain.SubmissionResult{Accepted: false, Reason: "canary grading failed: " + err.Error()}
		}
		correct = c
	} else if sub.CanaryAnswerCorrect != nil {
		correct = *sub.CanaryAnswerCorrect
	}

	block := domain.CompletedBlock{
		BlockID:              sub.BlockID,
		BlockType:            sub.BlockType,
		ResourceUsage:        sub.ResourceUsage,
		DifficultyMultiplier: sub.DifficultyMultiplier,
		ValidationPassed:     sub.ValidationPassed,
		Timestamp:            sub.Timestamp,
		IsCanary:             true,
		CanaryAnswerCorrect:  &correct,
	}
	next.CompletedBlocks = append(next.CompletedBlocks, block)

	if correct {
		next.CanaryPasses++
		return next, domain.SubmissionResult{Accepted: true, CanaryDetected: true, CanaryPassed: true}
	}

	next.CanaryFailures++
	withinCooldown := contributor.LastCanaryFailureTime != nil &&
		now.Sub(*contributor.LastCanaryFailureTime) < time.Duration(cfg.CooldownHours*float64(time.Hour))

	penaltyApplied := false
	if !withinCooldown {
		next.ReputationMultiplier = clamp01(next.ReputationMultiplier * (1 - cfg.CanaryPenalty))
		penaltyApplied = true
	}
	ts := now
	next.LastCanaryFailureTime = &ts

	return next, domain.SubmissionResult{
		Accepted:       true,
		CanaryDetected: true,
		CanaryPassed:   false,
		PenaltyApplied: penaltyApplied,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
