package radiology

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/loinc-coder/internal/domain/annotation"
	"github.com/ehr/loinc-coder/internal/platform/metrics"
)

// DefaultMethodCUIs are the concept ids that mark a mention as a radiology
// method.
const DefaultMethodCUIs = "41618,220934,1456803,1875843,2368378,243032,162481,34571,43309,1306645," +
	"1962945,3244296,24485,1552358,16356,40405,1552357,10000553,10001564,34606," +
	"34607,2368359,3665374,40399,24671,260913,729296,1514967,40404,3463807," +
	"1510486,31001,1536105,1441535,24487,32743,376335,10002881,2748260,2367013,11321"

// ParseCUISet parses a comma-separated CUI list. Entries may carry the "C"
// prefix; blanks are skipped.
func ParseCUISet(s string) (map[int]struct{}, error) {
	set := make(map[int]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(strings.TrimLeft(part, "Cc"))
		if err != nil {
			return nil, fmt.Errorf("parse cui %q: %w", part, err)
		}
		set[id] = struct{}{}
	}
	return set, nil
}

// Store is the part of the reference store the radiology pipeline reads.
type Store interface {
	CUIMapper
	TermSource
	ConceptTextSource
}

// Service resolves the radiology method mentions of a sentence.
type Service struct {
	generator  *CandidateGenerator
	scorer     *Scorer
	methodCUIs map[int]struct{}
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

// WithMethodCUIs replaces the method-qualifying concept set.
func WithMethodCUIs(set map[int]struct{}) Option {
	return func(s *Service) {
		if len(set) > 0 {
			s.methodCUIs = set
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, opts ...Option) *Service {
	defaults, err := ParseCUISet(DefaultMethodCUIs)
	if err != nil {
		panic(err)
	}
	s := &Service{methodCUIs: defaults, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.generator = NewCandidateGenerator(store, NewBilateralFilter(store, s.logger, s.metrics), s.logger, s.metrics)
	s.scorer = NewScorer(store, s.logger)
	return s
}

// IsMethod reports whether any of the mention's concepts qualifies it as a
// radiology method.
func (s *Service) IsMethod(m *annotation.EntityMention) bool {
	for _, cui := range m.CUIs {
		if _, ok := s.methodCUIs[cui]; ok {
			return true
		}
	}
	return false
}

// ResolveSentence returns the codes of every method mention in group, in
// mention order. Store failures do not stop the sentence; they are joined
// into the returned error.
func (s *Service) ResolveSentence(ctx context.Context, doc *annotation.Document, group annotation.SentenceMentions) ([]*CodeBean, error) {
	var (
		beans []*CodeBean
		errs  []error
	)
	for _, m := range group.Mentions {
		if !s.IsMethod(m) {
			continue
		}
		found, err := s.resolveMention(ctx, doc, group, m)
		if err != nil {
			errs = append(errs, fmt.Errorf("mention %d: %w", m.ID, err))
		}
		switch {
		case len(found) > 0:
			s.metrics.CodeResolved(metrics.PipelineRadiology, metrics.OutcomeFound)
		case err != nil:
			s.metrics.CodeResolved(metrics.PipelineRadiology, metrics.OutcomeStoreError)
		default:
			s.metrics.CodeResolved(metrics.PipelineRadiology, metrics.OutcomeNotFound)
		}
		beans = append(beans, found...)
	}
	return beans, errors.Join(errs...)
}

func (s *Service) resolveMention(ctx context.Context, doc *annotation.Document, group annotation.SentenceMentions, m *annotation.EntityMention) ([]*CodeBean, error) {
	components := Components{}
	if sm := structuredFor(doc, m); sm != nil {
		components = NewComponents(
			doc.Tokens.Resolve(sm.ModalityIDs),
			doc.Tokens.Resolve(sm.ViewIDs),
			doc.Tokens.Resolve(sm.PharmaceuticalIDs),
			doc.Tokens.Resolve(sm.RadiologyRouteIDs),
		)
	}

	systems := AnatomicalCandidates(group, m)
	s.logger.Debug().
		Int("mention", m.ID).
		Int("systems", len(systems)).
		Strs("components", components.Names()).
		Msg("resolving radiology method")

	cands, err := s.generator.Generate(ctx, m, systems)
	if cands.Empty() {
		return nil, err
	}
	return s.scorer.Score(ctx, cands.MapIDs, components, m, cands.System)
}

// structuredFor finds the structured mention of m by trying each of its
// pieces in turn.
func structuredFor(doc *annotation.Document, m *annotation.EntityMention) *annotation.StructuredMention {
	for _, span := range m.Spans() {
		if sm, ok := doc.Mentions.FindCovering(span); ok {
			return sm
		}
	}
	return nil
}

// AnatomicalCandidates returns the other anatomical-structure mentions of the
// sentence with their distance to m, nearest first.
func AnatomicalCandidates(group annotation.SentenceMentions, m *annotation.EntityMention) []SystemCandidate {
	var out []SystemCandidate
	for _, other := range group.Mentions {
		if other == m || !other.HasType(annotation.TypeAnatomicalStructure) {
			continue
		}
		lo, hi := annotation.Distance(m, other, group.Sentence)
		out = append(out, SystemCandidate{Mention: other, Min: lo, Max: hi})
	}
	SortCandidates(out)
	return out
}
