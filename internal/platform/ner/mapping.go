package ner

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ehr/loinc-coder/internal/domain/annotation"
)

// Drop is the mapping target that removes an entity.
const Drop = "NAN"

//go:embed types.yaml
var defaultTypes []byte

// TypeMapping rewrites NER entity types. A source type may fan out to
// several targets, in which case the entity is duplicated once per target.
type TypeMapping struct {
	targets map[string][]string
}

type mappingFile struct {
	Types map[string][]string `yaml:"types"`
}

// DefaultTypeMapping returns the built-in mapping.
func DefaultTypeMapping() *TypeMapping {
	m, err := ParseTypeMapping(defaultTypes)
	if err != nil {
		panic(fmt.Sprintf("embedded type mapping: %v", err))
	}
	return m
}

// LoadTypeMapping reads a mapping file. An empty path yields the built-in
// mapping.
func LoadTypeMapping(path string) (*TypeMapping, error) {
	if path == "" {
		return DefaultTypeMapping(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read type mapping: %w", err)
	}
	return ParseTypeMapping(data)
}

func ParseTypeMapping(data []byte) (*TypeMapping, error) {
	var f mappingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse type mapping: %w", err)
	}
	m := &TypeMapping{targets: make(map[string][]string, len(f.Types))}
	for src, targets := range f.Types {
		key := strings.ToUpper(strings.TrimSpace(src))
		if key == "" {
			return nil, fmt.Errorf("parse type mapping: empty source type")
		}
		var kept []string
		for _, t := range targets {
			t = strings.ToUpper(strings.TrimSpace(t))
			if t == "" {
				return nil, fmt.Errorf("parse type mapping: empty target for %s", src)
			}
			if t != Drop {
				kept = append(kept, t)
			}
		}
		m.targets[key] = kept
	}
	return m, nil
}

// Apply rewrites the payload's entities in place.
func (m *TypeMapping) Apply(p *annotation.Payload) {
	if m == nil || p == nil {
		return
	}
	out := make([]annotation.RawEntity, 0, len(p.Entities))
	for _, ent := range p.Entities {
		targets, ok := m.targets[strings.ToUpper(strings.TrimSpace(ent.Type))]
		if !ok {
			out = append(out, ent)
			continue
		}
		for _, t := range targets {
			cp := ent
			cp.Type = t
			out = append(out, cp)
		}
	}
	p.Entities = out
}

// Len returns the number of source types.
func (m *TypeMapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.targets)
}
