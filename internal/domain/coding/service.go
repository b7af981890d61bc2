package coding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/loinc-coder/internal/domain/annotation"
	"github.com/ehr/loinc-coder/internal/domain/laboratory"
	"github.com/ehr/loinc-coder/internal/domain/terminology"
	"github.com/ehr/loinc-coder/internal/platform/metrics"
)

// CodeResult is one code of a DocumentResult.
type CodeResult struct {
	ID              int                   `json:"id"`
	Code            string                `json:"code"`
	CodeDescription string                `json:"codeDescription"`
	CodingSystem    string                `json:"codingSystem"`
	Text            string                `json:"text"`
	TextSpans       []annotation.TextSpan `json:"textSpans"`
}

// DocumentResult is the resolution output for one document.
type DocumentResult struct {
	Result    []CodeResult `json:"result"`
	TimeTaken string       `json:"timeTaken"`
}

// Service resolves NER documents to LOINC codes.
type Service struct {
	rc      *ResolutionContext
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewService(rc *ResolutionContext, logger zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{rc: rc, logger: logger, metrics: m}
}

// ResolveJSON decodes a NER payload and resolves it.
func (s *Service) ResolveJSON(ctx context.Context, data []byte) (*DocumentResult, error) {
	p, err := annotation.DecodePayload(data)
	if err != nil {
		return nil, err
	}
	p.ApplyRelations()
	return s.Resolve(ctx, p)
}

// Resolve validates the payload and runs both pipelines. Laboratory codes
// come first in entity order, then radiology codes in sentence order. A code
// found more than once keeps its first position and gathers all evidence.
func (s *Service) Resolve(ctx context.Context, p *annotation.Payload) (*DocumentResult, error) {
	start := time.Now()

	doc, err := annotation.Parse(p)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With().Str("document_id", uuid.New().String()).Logger()
	out := newCollector()

	if len(doc.Entities) > 0 {
		s.resolveLaboratory(ctx, logger, doc, out)
		s.resolveRadiology(ctx, logger, doc, out)
	}

	elapsed := time.Since(start)
	s.metrics.ObserveDocument(elapsed)
	res := &DocumentResult{
		Result:    out.results(),
		TimeTaken: fmt.Sprintf("%.6f secs", elapsed.Seconds()),
	}
	logger.Info().
		Int("entities", len(doc.Entities)).
		Int("codes", len(res.Result)).
		Dur("elapsed", elapsed).
		Msg("document resolved")
	return res, nil
}

func (s *Service) resolveLaboratory(ctx context.Context, logger zerolog.Logger, doc *annotation.Document, out *collector) {
	for i, em := range doc.Entities {
		if !em.HasType(annotation.TypeLaboratoryData) {
			continue
		}
		req := labRequest(doc, em, doc.Structured[i])
		res := s.rc.Laboratory.Resolve(ctx, req)

		ev := logger.Debug()
		if res.Outcome == laboratory.StoreError {
			ev = logger.Warn().Err(res.Err)
		}
		ev.Int("entity", em.ID).
			Str("component", req.Component.Text).
			Str("outcome", res.Outcome.String()).
			Str("code", res.Code.Code).
			Msg("laboratory entity resolved")

		if res.Outcome == laboratory.Found {
			out.add(res.Code.Code, res.Code.Display, res.Code.Evidence)
		}
	}
}

func labRequest(doc *annotation.Document, em *annotation.EntityMention, sm *annotation.StructuredMention) laboratory.Request {
	req := laboratory.Request{
		Component: laboratory.Component{
			Attribute: laboratory.Attribute{
				Text:  em.Text(),
				Begin: em.Begins[0],
				End:   em.Ends[0],
			},
			ConceptIDs: uniqueInts(em.CUIs),
		},
	}
	if units := doc.Tokens.Resolve(sm.UnitIDs); len(units) > 0 {
		u := tokenAttribute(units[0])
		req.Unit = &u
	}
	for _, tok := range doc.Tokens.Resolve(sm.SystemIDs) {
		req.Systems = append(req.Systems, tokenAttribute(tok))
	}
	for _, tok := range doc.Tokens.Resolve(sm.MethodIDs) {
		req.Methods = append(req.Methods, tokenAttribute(tok))
	}
	return req
}

func tokenAttribute(t annotation.Token) laboratory.Attribute {
	return laboratory.Attribute{Text: t.Text, Begin: t.Span.Begin, End: t.Span.End}
}

func (s *Service) resolveRadiology(ctx context.Context, logger zerolog.Logger, doc *annotation.Document, out *collector) {
	for _, group := range doc.Sentences {
		beans, err := s.rc.Radiology.ResolveSentence(ctx, doc, group)
		if err != nil {
			logger.Warn().Err(err).Int("sentence", group.Sentence.Ordinal).Msg("radiology lookup failed")
		}
		for _, b := range beans {
			row, err := s.rc.Store.GetByCode(ctx, b.Code)
			if errors.Is(err, terminology.ErrNotFound) {
				logger.Debug().Str("code", b.Code).Msg("radiology code not in loinc table, dropped")
				continue
			}
			if err != nil {
				s.metrics.StoreError("get_by_code")
				logger.Warn().Err(err).Str("code", b.Code).Msg("radiology code lookup failed")
				continue
			}
			out.add(row.Code, row.Display, b.Evidence)
		}
	}
}

// collector merges codes by identity, keeping first-seen order.
type collector struct {
	order []*entry
	byKey map[string]*entry
}

type entry struct {
	code        string
	description string
	evidence    *annotation.EvidenceSet
}

func newCollector() *collector {
	return &collector{byKey: make(map[string]*entry)}
}

func (c *collector) add(code, description string, ev *annotation.EvidenceSet) {
	if e, ok := c.byKey[code]; ok {
		e.evidence.Merge(ev)
		return
	}
	merged := annotation.NewEvidenceSet()
	merged.Merge(ev)
	e := &entry{code: code, description: description, evidence: merged}
	c.byKey[code] = e
	c.order = append(c.order, e)
}

func (c *collector) results() []CodeResult {
	out := make([]CodeResult, 0, len(c.order))
	for i, e := range c.order {
		out = append(out, CodeResult{
			ID:              i,
			Code:            e.code,
			CodeDescription: e.description,
			CodingSystem:    terminology.CodingSystemLOINC,
			Text:            e.evidence.Text(),
			TextSpans:       e.evidence.Spans(),
		})
	}
	return out
}

func uniqueInts(in []int) []int {
	seen := make(map[int]struct{}, len(in))
	var out []int
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
