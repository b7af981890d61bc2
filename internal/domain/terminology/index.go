package terminology

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ReferenceIndex holds the lookup tables built once from the reference store.
// It is read-only after LoadReferenceIndex returns.
type ReferenceIndex struct {
	unitProperties map[string][]string
	unitScales     map[string][]string
	systems        map[string]struct{}
	methods        map[string]struct{}
	conceptToComps map[int][]string
}

// LoadReferenceIndex runs the four load queries. A failed query is logged and
// leaves its table empty; loading itself never fails.
func LoadReferenceIndex(ctx context.Context, store ReferenceStore, logger zerolog.Logger) *ReferenceIndex {
	idx := &ReferenceIndex{
		unitProperties: make(map[string][]string),
		unitScales:     make(map[string][]string),
		systems:        make(map[string]struct{}),
		methods:        make(map[string]struct{}),
		conceptToComps: make(map[int][]string),
	}

	if systems, err := store.ActiveSystems(ctx); err != nil {
		logger.Error().Err(err).Str("table", "systems").Msg("reference index load failed")
	} else {
		for _, s := range systems {
			idx.systems[normalizeKey(s)] = struct{}{}
		}
	}

	if methods, err := store.ActiveMethods(ctx); err != nil {
		logger.Error().Err(err).Str("table", "methods").Msg("reference index load failed")
	} else {
		for _, m := range methods {
			idx.methods[normalizeKey(m)] = struct{}{}
		}
	}

	if units, err := store.UnitMappings(ctx); err != nil {
		logger.Error().Err(err).Str("table", "units").Msg("reference index load failed")
	} else {
		props := make(map[string]map[string]struct{})
		scales := make(map[string]map[string]struct{})
		for _, u := range units {
			unit := normalizeKey(u.Unit)
			addToSet(props, unit, strings.TrimSpace(u.Property))
			addToSet(scales, unit, strings.TrimSpace(u.Scale))
		}
		for unit, set := range props {
			idx.unitProperties[unit] = sortedKeys(set)
		}
		for unit, set := range scales {
			idx.unitScales[unit] = sortedKeys(set)
		}
	}

	if concepts, err := store.ComponentConcepts(ctx); err != nil {
		logger.Error().Err(err).Str("table", "concepts").Msg("reference index load failed")
	} else {
		comps := make(map[int]map[string]struct{})
		for _, c := range concepts {
			ids, err := ParseCUIList(c.CUIList)
			if err != nil {
				logger.Warn().Err(err).Str("component", c.Component).Msg("skipping component concept row")
				continue
			}
			for _, id := range ids {
				if comps[id] == nil {
					comps[id] = make(map[string]struct{})
				}
				comps[id][strings.TrimSpace(c.Component)] = struct{}{}
			}
		}
		for id, set := range comps {
			idx.conceptToComps[id] = sortedKeys(set)
		}
	}

	st := idx.Stats()
	logger.Info().
		Int("systems", st.Systems).
		Int("methods", st.Methods).
		Int("units", st.Units).
		Int("concepts", st.Concepts).
		Msg("reference index loaded")
	return idx
}

// PropertyForUnit returns the sorted properties known for unit, or nil.
func (x *ReferenceIndex) PropertyForUnit(unit string) []string {
	return x.unitProperties[normalizeKey(unit)]
}

// ScaleForUnit returns the sorted scale types known for unit, or nil.
func (x *ReferenceIndex) ScaleForUnit(unit string) []string {
	return x.unitScales[normalizeKey(unit)]
}

func (x *ReferenceIndex) IsValidSystem(name string) bool {
	_, ok := x.systems[normalizeKey(name)]
	return ok
}

func (x *ReferenceIndex) IsValidMethod(name string) bool {
	_, ok := x.methods[normalizeKey(name)]
	return ok
}

// ComponentsForConcept returns the component names mapped to a concept id.
func (x *ReferenceIndex) ComponentsForConcept(id int) ([]string, bool) {
	comps, ok := x.conceptToComps[id]
	return comps, ok
}

func (x *ReferenceIndex) Stats() IndexStats {
	return IndexStats{
		Systems:  len(x.systems),
		Methods:  len(x.methods),
		Units:    len(x.unitProperties),
		Concepts: len(x.conceptToComps),
	}
}

// JoinQuoted renders values as 'a','b' for log output.
func JoinQuoted(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + v + "'"
	}
	return strings.Join(quoted, ",")
}

// ParseCUIList parses the stored "[14722, 99]" form. Blank entries are
// skipped.
func ParseCUIList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func addToSet(m map[string]map[string]struct{}, key, value string) {
	if value == "" {
		return
	}
	if m[key] == nil {
		m[key] = make(map[string]struct{})
	}
	m[key][value] = struct{}{}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
