package radiology

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ehr/loinc-coder/internal/domain/annotation"
	"github.com/ehr/loinc-coder/internal/platform/metrics"
)

// CUIMapper looks up CUI-combination map ids.
type CUIMapper interface {
	CUIMapIDs(ctx context.Context, combo []int) ([]string, error)
}

// Candidates are the map ids found for a method mention and the system
// mention that produced them.
type Candidates struct {
	MapIDs []string
	System *annotation.EntityMention
}

func (c Candidates) Empty() bool { return len(c.MapIDs) == 0 }

// CandidateGenerator pairs a method mention's concepts with those of nearby
// anatomical structures.
type CandidateGenerator struct {
	mapper  CUIMapper
	filter  *BilateralFilter
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewCandidateGenerator(mapper CUIMapper, filter *BilateralFilter, logger zerolog.Logger, m *metrics.Metrics) *CandidateGenerator {
	return &CandidateGenerator{mapper: mapper, filter: filter, logger: logger, metrics: m}
}

// Generate walks systems in order and, within each, every (method CUI,
// system CUI) pair. The first pair with map ids ends the search. A failed
// lookup is skipped; its error is returned only when nothing was found.
func (g *CandidateGenerator) Generate(ctx context.Context, method *annotation.EntityMention, systems []SystemCandidate) (Candidates, error) {
	var firstErr error
	for _, sys := range systems {
		systemCUIs := g.filter.Filter(ctx, sys.Mention)
		for _, mc := range method.CUIs {
			for _, sc := range systemCUIs {
				if err := ctx.Err(); err != nil {
					return Candidates{}, err
				}
				combo := []int{mc, sc}
				ids, err := g.mapper.CUIMapIDs(ctx, combo)
				if err != nil {
					g.metrics.StoreError("cui_map_ids")
					g.logger.Error().Err(err).Ints("combo", combo).Msg("cui map lookup failed")
					if firstErr == nil {
						firstErr = fmt.Errorf("cui map ids %v: %w", combo, err)
					}
					continue
				}
				if len(ids) > 0 {
					g.logger.Debug().Ints("combo", combo).Strs("map_ids", ids).Int("system", sys.Mention.ID).Msg("radiology candidates found")
					return Candidates{MapIDs: ids, System: sys.Mention}, nil
				}
			}
		}
	}
	return Candidates{}, firstErr
}
