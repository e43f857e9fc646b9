// Package content holds the static challenge catalog: modules, challenges
// and their answer rules. Content is authored as YAML packs and never
// mutated at runtime.
package content

import "sort"

// Kind classifies a challenge.
type Kind string

const (
	KindFixBug        Kind = "fix_bug"
	KindPredictOutput Kind = "predict_output"
	KindFillBlank     Kind = "fill_blank"
)

// Valid reports whether k is one of the three known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindFixBug, KindPredictOutput, KindFillBlank:
		return true
	}
	return false
}

// Challenge is one coding exercise. Immutable after loading.
type Challenge struct {
	ID             string     `yaml:"id" json:"id"`
	Module         int        `yaml:"-" json:"module"`
	Kind           Kind       `yaml:"kind" json:"kind"`
	Title          string     `yaml:"title" json:"title"`
	Description    string     `yaml:"description" json:"description"`
	StarterCode    string     `yaml:"starter_code" json:"starterCode"`
	CorrectCode    string     `yaml:"correct_code" json:"-"`
	ExpectedOutput string     `yaml:"expected_output" json:"-"`
	Hints          []string   `yaml:"hints" json:"-"`
	Explanation    string     `yaml:"explanation" json:"-"`
	Check          AnswerRule `yaml:"check" json:"-"`
}

// Module is an ordered grouping of challenges under one curriculum topic.
type Module struct {
	ID         int         `yaml:"id" json:"id"`
	Name       string      `yaml:"name" json:"name"`
	ShortName  string      `yaml:"short_name" json:"shortName"`
	Challenges []Challenge `yaml:"challenges" json:"challenges"`
}

// Catalog is the full static curriculum, modules sorted by id.
type Catalog struct {
	Modules []Module
}

// Module returns the module with the given id.
func (c *Catalog) Module(id int) (*Module, bool) {
	for i := range c.Modules {
		if c.Modules[i].ID == id {
			return &c.Modules[i], true
		}
	}
	return nil, false
}

// Challenge returns the challenge with the given id within a module.
func (c *Catalog) Challenge(moduleID int, challengeID string) (*Challenge, bool) {
	mod, ok := c.Module(moduleID)
	if !ok {
		return nil, false
	}
	for i := range mod.Challenges {
		if mod.Challenges[i].ID == challengeID {
			return &mod.Challenges[i], true
		}
	}
	return nil, false
}

// TotalChallenges returns the number of challenges across all modules.
func (c *Catalog) TotalChallenges() int {
	n := 0
	for i := range c.Modules {
		n += len(c.Modules[i].Challenges)
	}
	return n
}

func (c *Catalog) sort() {
	sort.Slice(c.Modules, func(i, j int) bool {
		return c.Modules[i].ID < c.Modules[j].ID
	})
}
