package submission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/ai4all-coordinator/internal/domain"
)

func TestScriptGraderEvaluatesExpression(t *testing.T) {
	grader := ScriptGrader{Expression: "submission.resourceUsage > 0.5"}

	correct, err := grader.Grade(domain.BlockSubmission{ResourceUsage: 0.9})
	require.NoError(t, err)
	assert.True(t, correct)

	correct, err = grader.Grade(domain.BlockSubmission{ResourceUsage: 0.1})
	require.NoError(t, err)
	assert.False(t, correct)
}

func TestScriptGraderPropagatesScriptError(t *testing.T) {
	grader := ScriptGrader{Expression: "this is not valid javascript("}
	_, err := grader.Grade(domain.BlockSubmission{})
	require.Error(t, err)
}

func TestProcessUsesGraderWhenSupplied(t *testing.T) {
	contributor := domain.Contributor{AccountID: "alice", ReputationMultiplier: 1}
	sub := domain.BlockSubmission{BlockID: "b1", ResourceUsage: 0.9}
	grader := ScriptGrader{Expression: "submission.resourceUsage > 0.5"}

	next, result := Process(contributor, sub, true, Config{CanaryPenalty: 0.1, CooldownHours: 24}, time.Now(), grader)
	assert.True(t, result.Accepted)
	assert.True(t, result.CanaryPassed)
	assert.Equal(t, 1, next.CanaryPasses)
}
