package laboratory

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// ComponentRules rewrites component synonyms to canonical LOINC component
// names.
type ComponentRules struct {
	bySynonym map[string]string
}

type rulesFile struct {
	Components []struct {
		Canonical string   `yaml:"canonical"`
		Synonyms  []string `yaml:"synonyms"`
	} `yaml:"components"`
}

// DefaultComponentRules returns the built-in synonym rules.
func DefaultComponentRules() *ComponentRules {
	r, err := ParseComponentRules(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded component rules: %v", err))
	}
	return r
}

// LoadComponentRules reads rules from a YAML file. An empty path yields the
// built-in rules.
func LoadComponentRules(path string) (*ComponentRules, error) {
	if path == "" {
		return DefaultComponentRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read component rules: %w", err)
	}
	return ParseComponentRules(data)
}

func ParseComponentRules(data []byte) (*ComponentRules, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse component rules: %w", err)
	}
	r := &ComponentRules{bySynonym: make(map[string]string)}
	for _, c := range f.Components {
		canonical := strings.TrimSpace(c.Canonical)
		if canonical == "" {
			return nil, fmt.Errorf("parse component rules: rule without canonical name")
		}
		for _, syn := range c.Synonyms {
			key := strings.ToLower(strings.TrimSpace(syn))
			if prev, ok := r.bySynonym[key]; ok && prev != canonical {
				return nil, fmt.Errorf("parse component rules: synonym %q maps to both %q and %q", syn, prev, canonical)
			}
			r.bySynonym[key] = canonical
		}
	}
	return r, nil
}

// Normalize returns the canonical component for text, or text unchanged when
// no rule applies.
func (r *ComponentRules) Normalize(text string) string {
	if r == nil {
		return text
	}
	if canonical, ok := r.bySynonym[strings.ToLower(strings.TrimSpace(text))]; ok {
		return canonical
	}
	return text
}

// Len returns the number of synonyms.
func (r *ComponentRules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.bySynonym)
}
