package game

import (
	"sort"

	"github.com/example/matlab-dojo/internal/content"
	"github.com/example/matlab-dojo/internal/progress"
)

// ModuleStats summarizes one module's progress on the dashboard.
type ModuleStats struct {
	ModuleID      int    `json:"moduleId"`
	Name          string `json:"name"`
	StarsEarned   int    `json:"starsEarned"`
	StarsPossible int    `json:"starsPossible"`
	Completed     int    `json:"completed"`
	Challenges    int    `json:"challenges"`
}

// Stats is the dashboard aggregate over the whole catalog.
type Stats struct {
	StarsEarned   int                  `json:"starsEarned"`
	StarsPossible int                  `json:"starsPossible"`
	Completed     int                  `json:"completed"`
	Challenges    int                  `json:"challenges"`
	Modules       []ModuleStats        `json:"modules"`
	WeakAreas     []ModuleStats        `json:"weakAreas"`
	ExamHistory   []progress.ExamScore `json:"examHistory"`
}

// ComputeStats folds a progress document over the catalog. Weak areas are
// the up-to-three modules with the lowest star percentage, among modules
// that still have stars left to earn.
func ComputeStats(doc *progress.Document, catalog *content.Catalog) Stats {
	stats := Stats{ExamHistory: doc.ExamScores}
	if stats.ExamHistory == nil {
		stats.ExamHistory = []progress.ExamScore{}
	}

	for _, mod := range catalog.Modules {
		ms := ModuleStats{
			ModuleID:      mod.ID,
			Name:          mod.Name,
			Challenges:    len(mod.Challenges),
			StarsPossible: 3 * len(mod.Challenges),
		}
		for i := range mod.Challenges {
			if p, ok := doc.Challenge(mod.ID, mod.Challenges[i].ID); ok {
				ms.StarsEarned += p.Stars
				if p.Completed {
					ms.Completed++
				}
			}
		}
		stats.Modules = append(stats.Modules, ms)

		stats.StarsEarned += ms.StarsEarned
		stats.StarsPossible += ms.StarsPossible
		stats.Completed += ms.Completed
		stats.Challenges += ms.Challenges
	}

	var weak []ModuleStats
	for _, ms := range stats.Modules {
		if ms.StarsEarned < ms.StarsPossible {
			weak = append(weak, ms)
		}
	}
	sort.SliceStable(weak, func(i, j int) bool {
		return starRatio(weak[i]) < starRatio(weak[j])
	})
	if len(weak) > 3 {
		weak = weak[:3]
	}
	stats.WeakAreas = weak

	return stats
}

func starRatio(ms ModuleStats) float64 {
	if ms.StarsPossible == 0 {
		return 1
	}
	return float64(ms.StarsEarned) / float64(ms.StarsPossible)
}
