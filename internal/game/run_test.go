package game

import (
	"errors"
	"testing"

	"github.com/example/matlab-dojo/internal/content"
)

func predictChallenge() *content.Challenge {
	return &content.Challenge{
		ID:             "m1-c1",
		Module:         1,
		Kind:           content.KindPredictOutput,
		Title:          "Scalar addition",
		ExpectedOutput: "ans = 8",
		Hints:          []string{"Add the two numbers.", "5 + 3.", "The answer is 8."},
		Explanation:    "MATLAB prints scalar results as ans = value.",
		CorrectCode:    "5 + 3",
	}
}

func TestRunFirstTrySuccess(t *testing.T) {
	r := NewRun(predictChallenge())

	res, err := r.Submit("ans = 8")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Correct {
		t.Fatalf("correct submission rejected: %+v", res)
	}
	if res.State != StateCompletedSuccess {
		t.Errorf("State = %q; want %q", res.State, StateCompletedSuccess)
	}
	if res.Stars != 3 {
		t.Errorf("Stars = %d; want 3", res.Stars)
	}
	if res.Explanation == "" {
		t.Error("explanation not revealed on success")
	}
}

func TestRunExhaustsAfterThreeMisses(t *testing.T) {
	r := NewRun(predictChallenge())

	for i := 0; i < 2; i++ {
		res, err := r.Submit("wrong")
		if err != nil {
			t.Fatalf("Submit %d: %v", i+1, err)
		}
		if res.State != StateInProgress {
			t.Fatalf("State after miss %d = %q; want %q", i+1, res.State, StateInProgress)
		}
		if res.Solution != "" {
			t.Errorf("solution revealed before exhaustion on miss %d", i+1)
		}
	}

	res, err := r.Submit("still wrong")
	if err != nil {
		t.Fatalf("Submit 3: %v", err)
	}
	if res.State != StateCompletedExhausted {
		t.Errorf("State = %q; want %q", res.State, StateCompletedExhausted)
	}
	if res.Stars != 0 {
		t.Errorf("Stars = %d; want 0", res.Stars)
	}
	if res.Solution != "5 + 3" {
		t.Errorf("Solution = %q; canonical code not revealed", res.Solution)
	}
	if res.Explanation == "" {
		t.Error("explanation not revealed on exhaustion")
	}

	if _, err := r.Submit("one more"); !errors.Is(err, ErrRunFinished) {
		t.Errorf("Submit after terminal state: err = %v; want ErrRunFinished", err)
	}
}

func TestRunSecondAttemptCostsAStar(t *testing.T) {
	r := NewRun(predictChallenge())
	if _, err := r.Submit("wrong"); err != nil {
		t.Fatal(err)
	}
	res, err := r.Submit("ans = 8")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Correct || res.Stars != 2 {
		t.Errorf("second-attempt solve: Correct=%v Stars=%d; want true, 2", res.Correct, res.Stars)
	}
}

func TestRunHints(t *testing.T) {
	r := NewRun(predictChallenge())

	hint, ceiling, err := r.Hint()
	if err != nil {
		t.Fatalf("Hint 1: %v", err)
	}
	if hint != "Add the two numbers." {
		t.Errorf("hint 1 = %q", hint)
	}
	if ceiling != 3 {
		t.Errorf("ceiling after one hint = %d; want 3 (first hint is free)", ceiling)
	}

	if _, ceiling, err = r.Hint(); err != nil {
		t.Fatalf("Hint 2: %v", err)
	} else if ceiling != 2 {
		t.Errorf("ceiling after two hints = %d; want 2", ceiling)
	}
	if _, ceiling, err = r.Hint(); err != nil {
		t.Fatalf("Hint 3: %v", err)
	} else if ceiling != 1 {
		t.Errorf("ceiling after three hints = %d; want 1", ceiling)
	}

	if _, _, err = r.Hint(); !errors.Is(err, ErrNoMoreHints) {
		t.Errorf("Hint past the end: err = %v; want ErrNoMoreHints", err)
	}

	// Two consumed hints beyond the free one cost a star each.
	res, err := r.Submit("ans = 8")
	if err != nil {
		t.Fatal(err)
	}
	if res.Stars != 1 {
		t.Errorf("Stars after three hints, first-try solve = %d; want 1", res.Stars)
	}
}

func TestRunHintAfterTerminal(t *testing.T) {
	r := NewRun(predictChallenge())
	if _, err := r.Submit("ans = 8"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Hint(); !errors.Is(err, ErrRunFinished) {
		t.Errorf("Hint after completion: err = %v; want ErrRunFinished", err)
	}
}

func TestRunProgress(t *testing.T) {
	r := NewRun(predictChallenge())
	if _, err := r.Progress(); err == nil {
		t.Error("Progress before terminal state should error")
	}

	if _, err := r.Submit("wrong"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Hint(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Hint(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Submit("ans = 8"); err != nil {
		t.Fatal(err)
	}

	cp, err := r.Progress()
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if !cp.Completed {
		t.Error("Completed = false")
	}
	if cp.Attempts != 2 || cp.HintsUsed != 2 {
		t.Errorf("Attempts=%d HintsUsed=%d; want 2, 2", cp.Attempts, cp.HintsUsed)
	}
	// 3 minus one attempt penalty minus one hint penalty.
	if cp.Stars != 1 {
		t.Errorf("Stars = %d; want 1", cp.Stars)
	}
}

func TestRunExhaustedProgressKeepsZeroStars(t *testing.T) {
	r := NewRun(predictChallenge())
	for i := 0; i < 3; i++ {
		if _, err := r.Submit("wrong"); err != nil {
			t.Fatal(err)
		}
	}
	cp, err := r.Progress()
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if cp.Stars != 0 || !cp.Completed || cp.Attempts != 3 {
		t.Errorf("exhausted progress = %+v; want 0 stars, completed, 3 attempts", cp)
	}
}
