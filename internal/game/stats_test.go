package game

import (
	"testing"

	"github.com/example/matlab-dojo/internal/progress"
)

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(progress.NewDocument(), testCatalog())

	if stats.StarsEarned != 0 || stats.Completed != 0 {
		t.Errorf("empty document: earned=%d completed=%d", stats.StarsEarned, stats.Completed)
	}
	if stats.Challenges != 4 || stats.StarsPossible != 12 {
		t.Errorf("Challenges=%d StarsPossible=%d; want 4 and 12", stats.Challenges, stats.StarsPossible)
	}
	if len(stats.Modules) != 3 {
		t.Errorf("len(Modules) = %d; want 3", len(stats.Modules))
	}
	if stats.ExamHistory == nil || len(stats.ExamHistory) != 0 {
		t.Errorf("ExamHistory = %#v; want empty non-nil slice", stats.ExamHistory)
	}
	if len(stats.WeakAreas) != 3 {
		t.Errorf("all modules should be weak areas when nothing is earned; got %d", len(stats.WeakAreas))
	}
}

func TestComputeStatsAggregates(t *testing.T) {
	doc := progress.NewDocument()
	doc.SetChallenge(1, "m1-c1", progress.ChallengeProgress{Stars: 3, Attempts: 1, Completed: true})
	doc.SetChallenge(1, "m1-c2", progress.ChallengeProgress{Stars: 3, Attempts: 1, Completed: true})
	doc.SetChallenge(2, "m2-c1", progress.ChallengeProgress{Stars: 1, Attempts: 3, Completed: true})
	doc.AppendExamScore(progress.ExamScore{Score: 2, Total: 3, Scope: "Midterm 1", Timestamp: 1700000000000})

	stats := ComputeStats(doc, testCatalog())

	if stats.StarsEarned != 7 || stats.Completed != 3 {
		t.Errorf("earned=%d completed=%d; want 7 and 3", stats.StarsEarned, stats.Completed)
	}
	if len(stats.ExamHistory) != 1 || stats.ExamHistory[0].Scope != "Midterm 1" {
		t.Errorf("ExamHistory = %+v", stats.ExamHistory)
	}

	var m1 ModuleStats
	for _, ms := range stats.Modules {
		if ms.ModuleID == 1 {
			m1 = ms
		}
	}
	if m1.StarsEarned != 6 || m1.StarsPossible != 6 || m1.Completed != 2 {
		t.Errorf("module 1 stats = %+v", m1)
	}
}

func TestComputeStatsWeakAreas(t *testing.T) {
	doc := progress.NewDocument()
	// Module 1 fully starred, module 2 at 1/3, module 3 untouched.
	doc.SetChallenge(1, "m1-c1", progress.ChallengeProgress{Stars: 3, Attempts: 1, Completed: true})
	doc.SetChallenge(1, "m1-c2", progress.ChallengeProgress{Stars: 3, Attempts: 1, Completed: true})
	doc.SetChallenge(2, "m2-c1", progress.ChallengeProgress{Stars: 1, Attempts: 3, Completed: true})

	stats := ComputeStats(doc, testCatalog())

	for _, ms := range stats.WeakAreas {
		if ms.ModuleID == 1 {
			t.Errorf("fully-starred module listed as weak: %+v", ms)
		}
	}
	if len(stats.WeakAreas) != 2 {
		t.Fatalf("len(WeakAreas) = %d; want 2", len(stats.WeakAreas))
	}
	// Untouched module 3 (0%) ranks weaker than module 2 (1/3).
	if stats.WeakAreas[0].ModuleID != 3 || stats.WeakAreas[1].ModuleID != 2 {
		t.Errorf("weak areas out of order: %+v", stats.WeakAreas)
	}
}
