package radiology

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/loinc-coder/internal/domain/annotation"
	"github.com/ehr/loinc-coder/internal/domain/terminology"
)

// TermSource fetches term-mapping rows by map id.
type TermSource interface {
	TermMappings(ctx context.Context, mapIDs []string) ([]*terminology.TermMappingRow, error)
}

// Scorer picks codes among candidate map ids by term overlap with the
// mention's attributes.
type Scorer struct {
	terms  TermSource
	logger zerolog.Logger
}

func NewScorer(terms TermSource, logger zerolog.Logger) *Scorer {
	return &Scorer{terms: terms, logger: logger}
}

// Score fetches the term rows of mapIDs and selects among them:
//
//   - with no attributes, a row without terms wins outright;
//   - a row matching all of its terms and all attributes wins outright;
//   - otherwise the row with the most matches wins, and among rows with as
//     many matches as the current best the first with the fewest misses.
//
// Rows need at least one match. When no row qualifies, every map id without
// term rows becomes a code of its own.
func (s *Scorer) Score(ctx context.Context, mapIDs []string, components Components, method, system *annotation.EntityMention) ([]*CodeBean, error) {
	if len(mapIDs) == 0 {
		return nil, nil
	}
	rows, err := s.terms.TermMappings(ctx, mapIDs)
	if err != nil {
		return nil, fmt.Errorf("term mappings: %w", err)
	}

	selected := selectRows(rows, components)
	if len(selected) == 0 {
		return s.fallback(mapIDs, rows, method, system), nil
	}

	beans := make([]*CodeBean, 0, len(selected))
	for _, row := range selected {
		ev := annotation.NewEvidenceSet()
		for _, term := range row.Terms {
			if a, ok := components.Lookup(term); ok {
				ev.Add(a.TextSpan())
			}
		}
		addMention(ev, method)
		addMention(ev, system)
		beans = append(beans, &CodeBean{
			Code:       row.Code,
			Method:     method.Text(),
			System:     mentionText(system),
			Components: components.Names(),
			Evidence:   ev,
		})
	}
	return beans, nil
}

func selectRows(rows []*terminology.TermMappingRow, components Components) []*terminology.TermMappingRow {
	var (
		best      []*terminology.TermMappingRow
		threshold = 1
		bestMiss  = math.MaxInt
		total     = len(components)
	)
	for _, row := range rows {
		terms := row.TotalTerms()
		if total == 0 && terms == 0 {
			return []*terminology.TermMappingRow{row}
		}
		match := matchCount(row, components)
		miss := terms - match
		if match == terms && terms == total {
			return []*terminology.TermMappingRow{row}
		}
		switch {
		case match == threshold:
			if miss < bestMiss {
				best = []*terminology.TermMappingRow{row}
				bestMiss = miss
			}
		case match > threshold:
			best = []*terminology.TermMappingRow{row}
			threshold = match
			bestMiss = miss
		}
	}
	return best
}

func matchCount(row *terminology.TermMappingRow, components Components) int {
	n := 0
	for _, term := range row.Terms {
		if _, ok := components.Lookup(term); ok {
			n++
		}
	}
	return n
}

func (s *Scorer) fallback(mapIDs []string, rows []*terminology.TermMappingRow, method, system *annotation.EntityMention) []*CodeBean {
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		seen[r.MapID] = struct{}{}
	}
	var beans []*CodeBean
	for _, id := range mapIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		ev := annotation.NewEvidenceSet()
		addMention(ev, method)
		addMention(ev, system)
		beans = append(beans, &CodeBean{
			Code:     strings.TrimSuffix(id, "-id"),
			Method:   method.Text(),
			System:   mentionText(system),
			Evidence: ev,
		})
	}
	s.logger.Debug().Strs("map_ids", mapIDs).Int("codes", len(beans)).Msg("no term row qualified, using map ids")
	return beans
}

func addMention(ev *annotation.EvidenceSet, m *annotation.EntityMention) {
	if m == nil {
		return
	}
	for _, ts := range m.Evidence() {
		ev.Add(ts)
	}
}

func mentionText(m *annotation.EntityMention) string {
	if m == nil {
		return ""
	}
	return m.Text()
}
