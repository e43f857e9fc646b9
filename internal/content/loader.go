package content

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader reads module files from a content directory. Each module is a
// single YAML file; the catalog is everything in the directory.
type Loader struct {
	basePath string
}

// NewLoader creates a loader rooted at basePath.
func NewLoader(basePath string) *Loader {
	return &Loader{basePath: basePath}
}

// LoadModule loads and validates a single module file.
func (l *Loader) LoadModule(name string) (*Module, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, name))
	if err != nil {
		return nil, fmt.Errorf("read module file: %w", err)
	}

	var mod Module
	if err := yaml.Unmarshal(data, &mod); err != nil {
		return nil, fmt.Errorf("parse module file %s: %w", name, err)
	}

	if err := validateModule(&mod); err != nil {
		return nil, fmt.Errorf("module file %s: %w", name, err)
	}

	// Stamp the owning module id onto each challenge.
	for i := range mod.Challenges {
		mod.Challenges[i].Module = mod.ID
	}

	return &mod, nil
}

// LoadCatalog loads every module file in the content directory and
// returns the catalog sorted by module id.
func (l *Loader) LoadCatalog() (*Catalog, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("read content directory: %w", err)
	}

	catalog := &Catalog{}
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		mod, err := l.LoadModule(name)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[mod.ID]; dup {
			return nil, fmt.Errorf("module id %d defined in both %s and %s", mod.ID, prev, name)
		}
		seen[mod.ID] = name
		catalog.Modules = append(catalog.Modules, *mod)
	}

	if len(catalog.Modules) == 0 {
		return nil, fmt.Errorf("no module files found in %s", l.basePath)
	}

	catalog.sort()
	return catalog, nil
}

func validateModule(mod *Module) error {
	if mod.ID <= 0 {
		return fmt.Errorf("module id must be positive, got %d", mod.ID)
	}
	if mod.Name == "" {
		return fmt.Errorf("module %d has no name", mod.ID)
	}

	seen := make(map[string]bool)
	for i := range mod.Challenges {
		ch := &mod.Challenges[i]
		if ch.ID == "" {
			return fmt.Errorf("challenge %d has no id", i)
		}
		if seen[ch.ID] {
			return fmt.Errorf("duplicate challenge id %q", ch.ID)
		}
		seen[ch.ID] = true

		if !ch.Kind.Valid() {
			return fmt.Errorf("challenge %q: unknown kind %q", ch.ID, ch.Kind)
		}
		if ch.Kind == KindPredictOutput && ch.ExpectedOutput == "" {
			return fmt.Errorf("challenge %q: predict_output requires expected_output", ch.ID)
		}
		if ch.Kind != KindPredictOutput && ch.CorrectCode == "" && ch.Check.Mode != RulePredicate {
			return fmt.Errorf("challenge %q: %s requires correct_code or a predicate check", ch.ID, ch.Kind)
		}
		if err := ch.Check.Validate(); err != nil {
			return fmt.Errorf("challenge %q: %w", ch.ID, err)
		}
	}
	return nil
}
