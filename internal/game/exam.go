package game

import (
	"errors"
	"math/rand"
	"time"

	"github.com/example/matlab-dojo/internal/content"
	"github.com/example/matlab-dojo/internal/progress"
)

// ExamQuestion is one drawn challenge, tagged with its owning module so the
// final score can be broken down per module.
type ExamQuestion struct {
	Challenge *content.Challenge
	ModuleID  int
}

// GenerateExam draws up to count questions from the modules named in scope,
// shuffled without replacement. A pool smaller than count yields the whole
// pool. The caller owns the rand source so sessions can be reproduced in
// tests.
func GenerateExam(catalog *content.Catalog, scope map[int]bool, count int, rng *rand.Rand) []ExamQuestion {
	var pool []ExamQuestion
	for _, mod := range catalog.Modules {
		if !scope[mod.ID] {
			continue
		}
		for i := range mod.Challenges {
			pool = append(pool, ExamQuestion{Challenge: &mod.Challenges[i], ModuleID: mod.ID})
		}
	}

	for i := len(pool) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
	}

	if count < len(pool) {
		pool = pool[:count]
	}
	return pool
}

var (
	ErrExamFinished    = errors.New("exam session already finished")
	ErrNoMoreQuestions = errors.New("all questions answered")
)

// ExamAnswer is the verdict for one answered question. Expected carries the
// normalized reference output when the answer missed, so it can be shown to
// the player.
type ExamAnswer struct {
	Correct  bool
	Expected string
}

// ExamSession walks a generated question sequence in order. Every question
// is judged as an output prediction, whatever its native kind.
type ExamSession struct {
	Questions []ExamQuestion
	Label     string

	next     int
	finished bool
	correct  map[int]int
	total    map[int]int
}

// NewExamSession starts a session over a generated question sequence.
// label is the human-readable scope name recorded on the final score.
func NewExamSession(questions []ExamQuestion, label string) *ExamSession {
	return &ExamSession{
		Questions: questions,
		Label:     label,
		correct:   make(map[int]int),
		total:     make(map[int]int),
	}
}

// Current returns the question awaiting an answer, or nil when the session
// is over.
func (s *ExamSession) Current() *ExamQuestion {
	if s.finished || s.next >= len(s.Questions) {
		return nil
	}
	return &s.Questions[s.next]
}

// Answered reports how many questions have been judged so far.
func (s *ExamSession) Answered() int { return s.next }

// Answer judges the given output against the current question and advances
// to the next one.
func (s *ExamSession) Answer(answer string) (ExamAnswer, error) {
	if s.finished {
		return ExamAnswer{}, ErrExamFinished
	}
	if s.next >= len(s.Questions) {
		return ExamAnswer{}, ErrNoMoreQuestions
	}

	q := s.Questions[s.next]
	s.next++
	s.total[q.ModuleID]++

	// Every kind is judged as an output prediction here.
	expected := q.Challenge.ExpectedOutput
	if EvaluateOutput(answer, expected) {
		s.correct[q.ModuleID]++
		return ExamAnswer{Correct: true}, nil
	}
	return ExamAnswer{Correct: false, Expected: expected}, nil
}

// Finish seals the session and aggregates the score over the questions
// actually answered. Safe to call on timer expiry with questions still
// pending; the resulting score is partial. Calling Finish twice returns
// the error without recomputing.
func (s *ExamSession) Finish(now time.Time) (progress.ExamScore, error) {
	if s.finished {
		return progress.ExamScore{}, ErrExamFinished
	}
	s.finished = true

	score := progress.ExamScore{
		Scope:           s.Label,
		Timestamp:       now.UnixMilli(),
		ModuleBreakdown: make(map[int]progress.ModuleTally, len(s.total)),
	}
	for id, total := range s.total {
		c := s.correct[id]
		score.Score += c
		score.Total += total
		score.ModuleBreakdown[id] = progress.ModuleTally{Correct: c, Total: total}
	}
	return score, nil
}

// Finished reports whether the session has been sealed.
func (s *ExamSession) Finished() bool { return s.finished }

// ExamScope is a named preset selecting which modules an exam draws from.
type ExamScope struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Modules []int  `json:"modules"`
}

// ModuleSet expands the preset into the lookup form GenerateExam expects.
func (s ExamScope) ModuleSet() map[int]bool {
	set := make(map[int]bool, len(s.Modules))
	for _, id := range s.Modules {
		set[id] = true
	}
	return set
}

// DefaultScopes builds the standard presets for a catalog: the first half
// of the modules, the second half, and everything.
func DefaultScopes(catalog *content.Catalog) []ExamScope {
	var all []int
	for _, mod := range catalog.Modules {
		all = append(all, mod.ID)
	}
	half := (len(all) + 1) / 2
	return []ExamScope{
		{ID: "midterm1", Name: "Midterm 1", Modules: all[:half]},
		{ID: "midterm2", Name: "Midterm 2", Modules: all[half:]},
		{ID: "final", Name: "Final Exam", Modules: all},
	}
}
