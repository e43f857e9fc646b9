package game

import (
	"errors"

	"github.com/example/matlab-dojo/internal/content"
	"github.com/example/matlab-dojo/internal/progress"
)

// MaxAttempts is the submission budget per challenge.
const MaxAttempts = 3

// RunState is the completion state of one challenge attempt.
type RunState string

const (
	StateInProgress         RunState = "in_progress"
	StateCompletedSuccess   RunState = "completed_success"
	StateCompletedExhausted RunState = "completed_exhausted"
)

// Terminal reports whether no further submissions are accepted.
func (s RunState) Terminal() bool {
	return s != StateInProgress
}

var (
	ErrRunFinished = errors.New("challenge run already completed")
	ErrNoMoreHints = errors.New("no hints left")
)

// Run is one player's pass at one challenge. Counters reset with each new
// Run; terminal states are final for the run instance.
type Run struct {
	Challenge *content.Challenge
	State     RunState
	Attempts  int
	Hints     int
}

// NewRun starts a fresh attempt at a challenge.
func NewRun(ch *content.Challenge) *Run {
	return &Run{Challenge: ch, State: StateInProgress}
}

// SubmitResult describes the outcome of one submission.
type SubmitResult struct {
	Correct  bool
	Feedback string
	State    RunState

	// Set only when the run reached a terminal state.
	Stars       int
	Solution    string
	Explanation string
}

// Submit evaluates a submission and advances the state machine. On a
// terminal transition the result carries the persisted star value and the
// revealed solution material.
func (r *Run) Submit(submission string) (SubmitResult, error) {
	if r.State.Terminal() {
		return SubmitResult{}, ErrRunFinished
	}

	r.Attempts++
	eval := Evaluate(submission, r.Challenge)

	if eval.Correct {
		r.State = StateCompletedSuccess
		return SubmitResult{
			Correct:     true,
			State:       r.State,
			Stars:       Stars(r.Attempts, r.Hints),
			Explanation: r.Challenge.Explanation,
		}, nil
	}

	if r.Attempts >= MaxAttempts {
		r.State = StateCompletedExhausted
		return SubmitResult{
			Feedback:    eval.Feedback,
			State:       r.State,
			Stars:       0,
			Solution:    r.Challenge.CorrectCode,
			Explanation: r.Challenge.Explanation,
		}, nil
	}

	return SubmitResult{Feedback: eval.Feedback, State: r.State}, nil
}

// Hint reveals the next hint and returns it along with the updated
// maximum-achievable-star display value. The displayed ceiling does not
// affect the score persisted at completion.
func (r *Run) Hint() (string, int, error) {
	if r.State.Terminal() {
		return "", 0, ErrRunFinished
	}
	if r.Hints >= len(r.Challenge.Hints) {
		return "", MaxStarsAfterHints(r.Hints), ErrNoMoreHints
	}

	hint := r.Challenge.Hints[r.Hints]
	r.Hints++
	return hint, MaxStarsAfterHints(r.Hints), nil
}

// Progress converts a terminal run into the record persisted for the
// challenge.
func (r *Run) Progress() (progress.ChallengeProgress, error) {
	switch r.State {
	case StateCompletedSuccess:
		return progress.ChallengeProgress{
			Stars:     Stars(r.Attempts, r.Hints),
			Attempts:  r.Attempts,
			HintsUsed: r.Hints,
			Completed: true,
		}, nil
	case StateCompletedExhausted:
		return progress.ChallengeProgress{
			Stars:     0,
			Attempts:  r.Attempts,
			HintsUsed: r.Hints,
			Completed: true,
		}, nil
	default:
		return progress.ChallengeProgress{}, errors.New("run is not in a terminal state")
	}
}
