package content

import (
	"fmt"
	"regexp"
	"strings"
)

// RuleMode selects how a fix_bug or fill_blank submission is judged.
type RuleMode string

const (
	// RuleExact compares the trimmed submission to the canonical corrected
	// code verbatim.
	RuleExact RuleMode = "exact"

	// RuleNormalized compares with whitespace runs collapsed, case
	// preserved. This is the default when no rule is authored.
	RuleNormalized RuleMode = "normalized"

	// RulePredicate delegates to a named pure function from the predicate
	// registry. The predicate owns its own leniency.
	RulePredicate RuleMode = "predicate"
)

// AnswerRule is the authored correctness rule for a challenge. A zero
// value means RuleNormalized.
type AnswerRule struct {
	Mode      RuleMode `yaml:"mode" json:"mode"`
	Predicate string   `yaml:"predicate,omitempty" json:"predicate,omitempty"`
}

// Validate checks the rule against the predicate registry.
func (r AnswerRule) Validate() error {
	switch r.Mode {
	case "", RuleExact, RuleNormalized:
		if r.Predicate != "" {
			return fmt.Errorf("predicate %q set but mode is %q", r.Predicate, r.Mode)
		}
		return nil
	case RulePredicate:
		if _, ok := Predicate(r.Predicate); !ok {
			return fmt.Errorf("unknown predicate %q", r.Predicate)
		}
		return nil
	default:
		return fmt.Errorf("unknown rule mode %q", r.Mode)
	}
}

// PredicateFunc judges a trimmed submission.
type PredicateFunc func(submission string) bool

// The registry is fixed at compile time: challenge content selects checks
// by name, it never injects executable logic.
var predicates = map[string]PredicateFunc{
	"uses-elementwise-multiply": func(s string) bool {
		return strings.Contains(s, ".*")
	},
	"uses-elementwise-power": func(s string) bool {
		return strings.Contains(s, ".^")
	},
	"preallocates-with-zeros": func(s string) bool {
		return strings.Contains(s, "zeros(")
	},
	"uses-logical-indexing": func(s string) bool {
		return logicalIndexRe.MatchString(s)
	},
	"suppresses-output": func(s string) bool {
		// Every statement line must end with a semicolon.
		for _, line := range strings.Split(s, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "%") {
				continue
			}
			if !strings.HasSuffix(line, ";") {
				return false
			}
		}
		return true
	},
	"uses-fprintf": func(s string) bool {
		return strings.Contains(s, "fprintf(")
	},
}

// Matches an index expression whose subscript is a comparison, e.g. v(v > 3).
var logicalIndexRe = regexp.MustCompile(`\w+\s*\(\s*\w+\s*(?:[<>]=?|==|~=)`)

// Predicate returns the named predicate from the registry.
func Predicate(name string) (PredicateFunc, bool) {
	p, ok := predicates[name]
	return p, ok
}

// PredicateNames returns the registered predicate names, for diagnostics.
func PredicateNames() []string {
	names := make([]string, 0, len(predicates))
	for name := range predicates {
		names = append(names, name)
	}
	return names
}
