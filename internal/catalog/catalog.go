// Package catalog loads test definitions from a YAML file.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xiaot623/gogo/simulator/internal/domain"
)

// File is the on-disk layout of a catalog.
type File struct {
	Personas []domain.Persona `yaml:"personas"`
	Tests    []domain.Test    `yaml:"tests"`
}

// Catalog is a read-only set of tests keyed by ID.
type Catalog struct {
	tests map[string]*domain.Test
	order []string
}

// Load reads and parses a catalog file. Environment variables in the file
// are expanded before parsing.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("catalog path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	c, err := Parse([]byte(os.ExpandEnv(string(data))))
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(f)
}

// New validates f and indexes its tests.
func New(f File) (*Catalog, error) {
	personas := make(map[string]domain.Persona, len(f.Personas))
	for _, p := range f.Personas {
		if p.PersonaID == "" {
			return nil, fmt.Errorf("persona without id")
		}
		if _, dup := personas[p.PersonaID]; dup {
			return nil, fmt.Errorf("duplicate persona %q", p.PersonaID)
		}
		personas[p.PersonaID] = p
	}

	c := &Catalog{tests: make(map[string]*domain.Test, len(f.Tests))}
	for i := range f.Tests {
		t := f.Tests[i]
		if err := prepare(&t, personas); err != nil {
			return nil, err
		}
		if _, dup := c.tests[t.TestID]; dup {
			return nil, fmt.Errorf("duplicate test %q", t.TestID)
		}
		c.tests[t.TestID] = &t
		c.order = append(c.order, t.TestID)
	}
	return c, nil
}

func prepare(t *domain.Test, personas map[string]domain.Persona) error {
	if t.TestID == "" {
		return fmt.Errorf("test without id")
	}
	if t.Flow.Endpoint == "" {
		return fmt.Errorf("test %q: flow.endpoint is required", t.TestID)
	}
	switch strings.ToLower(string(t.ExecutionMode)) {
	case "":
		t.ExecutionMode = domain.ExecutionModeSequential
	case string(domain.ExecutionModeSequential), string(domain.ExecutionModeParallel):
		t.ExecutionMode = domain.ExecutionMode(strings.ToLower(string(t.ExecutionMode)))
	default:
		return fmt.Errorf("test %q: unknown execution_mode %q", t.TestID, t.ExecutionMode)
	}

	t.Personas = make(map[string]domain.Persona)
	seen := make(map[string]bool, len(t.Scenarios))
	for i := range t.Scenarios {
		s := &t.Scenarios[i]
		if s.ScenarioID == "" {
			return fmt.Errorf("test %q: scenario %d has no id", t.TestID, i)
		}
		if seen[s.ScenarioID] {
			return fmt.Errorf("test %q: duplicate scenario %q", t.TestID, s.ScenarioID)
		}
		seen[s.ScenarioID] = true
		s.TestID = t.TestID
		if s.PersonaID == "" {
			continue
		}
		p, ok := personas[s.PersonaID]
		if !ok {
			return fmt.Errorf("test %q: scenario %q references unknown persona %q", t.TestID, s.ScenarioID, s.PersonaID)
		}
		t.Personas[p.PersonaID] = p
	}
	return nil
}

// Get returns a copy of the test with the given ID.
func (c *Catalog) Get(testID string) (*domain.Test, error) {
	t, ok := c.tests[testID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTestNotFound, testID)
	}
	return cloneTest(t), nil
}

// List returns the tests in file order.
func (c *Catalog) List() []domain.TestListItem {
	items := make([]domain.TestListItem, 0, len(c.order))
	for _, id := range c.order {
		t := c.tests[id]
		items = append(items, domain.TestListItem{
			TestID:        t.TestID,
			Name:          t.Name,
			ExecutionMode: t.ExecutionMode,
			Scenarios:     len(t.Scenarios),
		})
	}
	return items
}

// IDs returns the sorted test IDs.
func (c *Catalog) IDs() []string {
	ids := append([]string(nil), c.order...)
	sort.Strings(ids)
	return ids
}

func cloneTest(t *domain.Test) *domain.Test {
	out := *t
	out.Scenarios = append([]domain.Scenario(nil), t.Scenarios...)
	out.Personas = make(map[string]domain.Persona, len(t.Personas))
	for k, v := range t.Personas {
		out.Personas[k] = v
	}
	if t.Flow.Headers != nil {
		out.Flow.Headers = make(map[string]string, len(t.Flow.Headers))
		for k, v := range t.Flow.Headers {
			out.Flow.Headers[k] = v
		}
	}
	return &out
}
