package submission

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/r3e-network/ai4all-coordinator/internal/domain"
)

// ScriptGrader is an optional CanaryGrader that evaluates a short JS expression
// against a submission's reported fields instead of trusting the client-supplied
// canaryAnswerCorrect flag outright. Grounded on the teacher's goja-based function
// executor (internal/services/functions), generalized from arbitrary user function
// bodies to one fixed boolean expression evaluated in a fresh interpreter per call.
//
// Off by default: a nil grader (the Process default) falls back to the plain
// canaryAnswerCorrect field per spec §4.7.
type ScriptGrader struct {
	// Expression is a JS expression evaluated with `submission` bound to the
	// submission's fields; it must evaluate to a boolean.
	Expression string
}

// Grade runs g.Expression in a fresh goja runtime with the submission's fields
// exposed as the `submission` object, returning the boolean result.
func (g ScriptGrader) Grade(sub domain.BlockSubmission) (bool, error) {
	rt := goja.New()
	if err := rt.Set("submission", map[string]interface{}{
		"blockId":              sub.BlockID,
		"blockType":            string(sub.BlockType),
		"resourceUsage":        sub.ResourceUsage,
		"difficultyMultiplier": sub.DifficultyMultiplier,
		"validationPassed":     sub.ValidationPassed,
	}); err != nil {
		return false, fmt.Errorf("canary grader: set submission: %w", err)
	}

	val, err := rt.RunString(g.Expression)
	if err != nil {
		return false, fmt.Errorf("canary grader: evaluate expression: %w", err)
	}
	return val.ToBoolean(), nil
}
