package radiology

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/loinc-coder/internal/domain/annotation"
	"github.com/ehr/loinc-coder/internal/platform/metrics"
)

var bilateralCues = []string{"bilateral", "bilaterally", "both", "b/l"}

// HasBilateralCue reports whether text mentions both sides of the body.
func HasBilateralCue(text string) bool {
	text = strings.ToLower(text)
	for _, cue := range bilateralCues {
		if strings.Contains(text, cue) {
			return true
		}
	}
	return false
}

// ConceptTextSource returns the UMLS strings of a concept.
type ConceptTextSource interface {
	ConceptTexts(ctx context.Context, cui int) ([]string, error)
}

// BilateralFilter narrows a system mention's concepts to bilateral ones when
// the mention itself says so.
type BilateralFilter struct {
	texts   ConceptTextSource
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewBilateralFilter(texts ConceptTextSource, logger zerolog.Logger, m *metrics.Metrics) *BilateralFilter {
	return &BilateralFilter{texts: texts, logger: logger, metrics: m}
}

// Filter returns the mention's CUIs. When a surface text carries a bilateral
// cue, only CUIs whose concept texts also carry one are kept, unless none
// does, in which case every CUI is returned.
func (f *BilateralFilter) Filter(ctx context.Context, m *annotation.EntityMention) []int {
	bilateral := false
	for _, text := range m.Texts {
		if HasBilateralCue(text) {
			bilateral = true
			break
		}
	}
	if !bilateral {
		return m.CUIs
	}

	var kept []int
	for _, cui := range m.CUIs {
		texts, err := f.texts.ConceptTexts(ctx, cui)
		if err != nil {
			f.metrics.StoreError("concept_texts")
			f.logger.Warn().Err(err).Int("cui", cui).Msg("concept text lookup failed")
			continue
		}
		for _, t := range texts {
			if HasBilateralCue(t) {
				kept = append(kept, cui)
				break
			}
		}
	}
	if len(kept) == 0 {
		return m.CUIs
	}
	return kept
}
