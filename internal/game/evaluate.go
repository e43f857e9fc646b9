// Package game is the pure rules engine: answer evaluation, star scoring,
// the challenge completion state machine, exam generation, statistics and
// cheat-sheet synthesis. Nothing here touches storage or the network.
package game

import (
	"strings"

	"github.com/example/matlab-dojo/internal/content"
)

// Feedback messages, keyed by which rejection path fired.
const (
	feedbackWrongOutput   = "Not quite. Try again."
	feedbackPredicateFail = "Your code doesn't produce the expected result."
	feedbackCodeMismatch  = "Code does not match the expected solution."
)

// Evaluation is the result of judging one submission.
type Evaluation struct {
	Correct  bool   `json:"correct"`
	Feedback string `json:"feedback"`
}

// Evaluate judges a submission against a challenge. Pure function of its
// two inputs.
func Evaluate(submission string, ch *content.Challenge) Evaluation {
	trimmed := strings.TrimSpace(submission)

	if ch.Kind == content.KindPredictOutput {
		if NormalizeOutput(trimmed) == NormalizeOutput(ch.ExpectedOutput) {
			return Evaluation{Correct: true}
		}
		return Evaluation{Feedback: feedbackWrongOutput}
	}

	switch ch.Check.Mode {
	case content.RulePredicate:
		// The predicate owns its own leniency; it sees the trimmed
		// submission only.
		pred, ok := content.Predicate(ch.Check.Predicate)
		if ok && pred(trimmed) {
			return Evaluation{Correct: true}
		}
		return Evaluation{Feedback: feedbackPredicateFail}

	case content.RuleExact:
		if trimmed == strings.TrimSpace(ch.CorrectCode) {
			return Evaluation{Correct: true}
		}
		return Evaluation{Feedback: feedbackCodeMismatch}

	default:
		// Normalized comparison, case preserved.
		if normalizeCode(trimmed) == normalizeCode(ch.CorrectCode) {
			return Evaluation{Correct: true}
		}
		return Evaluation{Feedback: feedbackCodeMismatch}
	}
}

// EvaluateOutput judges a submission against an expected output string
// with the predict_output rule, regardless of the challenge's native
// kind. Exam mode always asks "what is the output".
func EvaluateOutput(submission, expected string) bool {
	return NormalizeOutput(submission) == NormalizeOutput(expected)
}

// NormalizeOutput collapses whitespace runs to single spaces, trims, and
// lowercases. Only the amount of whitespace is normalized, never its
// presence.
func NormalizeOutput(s string) string {
	return strings.ToLower(normalizeCode(s))
}

func normalizeCode(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}
