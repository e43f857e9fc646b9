// Package progress holds the persisted game-progress document and the
// store that owns it. The document is the single source of truth for all
// derived statistics; every mutation replaces it wholesale.
package progress

// ChallengeProgress records the outcome of one completed challenge. It is
// overwritten, never merged, on every subsequent completion.
type ChallengeProgress struct {
	Stars     int  `json:"stars"`
	Attempts  int  `json:"attempts"`
	HintsUsed int  `json:"hintsUsed"`
	Completed bool `json:"completed"`
}

// ModuleTally is a per-module correct/total count inside an exam score.
type ModuleTally struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// ExamScore records one finished exam session. Appended, never mutated.
type ExamScore struct {
	Score           int                 `json:"score"`
	Total           int                 `json:"total"`
	Scope           string              `json:"scope"`
	Timestamp       int64               `json:"timestamp"` // unix milliseconds
	ModuleBreakdown map[int]ModuleTally `json:"moduleBreakdown"`
}

// Document is the root persisted aggregate: per-module, per-challenge
// progress plus the append-only exam history.
type Document struct {
	Modules    map[int]map[string]ChallengeProgress `json:"modules"`
	ExamScores []ExamScore                          `json:"examScores"`
}

// NewDocument returns an empty progress document.
func NewDocument() *Document {
	return &Document{
		Modules:    make(map[int]map[string]ChallengeProgress),
		ExamScores: []ExamScore{},
	}
}

// Challenge returns the recorded progress for one challenge.
func (d *Document) Challenge(moduleID int, challengeID string) (ChallengeProgress, bool) {
	mod, ok := d.Modules[moduleID]
	if !ok {
		return ChallengeProgress{}, false
	}
	cp, ok := mod[challengeID]
	return cp, ok
}

// SetChallenge overwrites the record for one challenge.
func (d *Document) SetChallenge(moduleID int, challengeID string, cp ChallengeProgress) {
	if d.Modules == nil {
		d.Modules = make(map[int]map[string]ChallengeProgress)
	}
	if d.Modules[moduleID] == nil {
		d.Modules[moduleID] = make(map[string]ChallengeProgress)
	}
	d.Modules[moduleID][challengeID] = cp
}

// AppendExamScore appends one exam score to the history.
func (d *Document) AppendExamScore(score ExamScore) {
	d.ExamScores = append(d.ExamScores, score)
}
