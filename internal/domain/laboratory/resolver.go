package laboratory

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/loinc-coder/internal/domain/annotation"
	"github.com/ehr/loinc-coder/internal/domain/terminology"
	"github.com/ehr/loinc-coder/internal/platform/metrics"
)

// DefaultTime is the time aspect assumed when a request carries none.
const DefaultTime = "Pt"

// Attribute is a surface attribute of a laboratory mention (unit, system or
// method). Normalized is the value compared against the reference tables; it
// falls back to Text when empty.
type Attribute struct {
	Text       string
	Begin      int
	End        int
	Normalized string
}

func (a Attribute) value() string {
	if a.Normalized != "" {
		return a.Normalized
	}
	return strings.TrimSpace(a.Text)
}

// TextSpan returns the attribute's evidence span.
func (a Attribute) TextSpan() annotation.TextSpan {
	return annotation.TextSpan{Text: a.Text, BeginOffset: a.Begin}
}

// Component is the analyte of a laboratory mention.
type Component struct {
	Attribute
	ConceptIDs []int
}

// Request carries the attributes of one laboratory mention.
type Request struct {
	Component Component
	Unit      *Attribute
	Systems   []Attribute
	Methods   []Attribute
	Time      string
	Scale     string
}

// Outcome classifies a resolution.
type Outcome int

const (
	NotFound Outcome = iota
	Found
	StoreError
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return metrics.OutcomeFound
	case StoreError:
		return metrics.OutcomeStoreError
	default:
		return metrics.OutcomeNotFound
	}
}

// CodeBean is a resolved laboratory code with the text that supports it.
type CodeBean struct {
	terminology.LOINCCode
	Evidence *annotation.EvidenceSet
}

// Resolution is the result of resolving one request. Code is never nil; it
// is the zero bean unless Outcome is Found.
type Resolution struct {
	Outcome Outcome
	Code    *CodeBean
	Err     error
}

// Resolver maps laboratory mentions to LOINC codes.
type Resolver struct {
	index   *terminology.ReferenceIndex
	store   terminology.ReferenceStore
	cache   *ResultCache
	rules   *ComponentRules
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewResolver(index *terminology.ReferenceIndex, store terminology.ReferenceStore, cache *ResultCache, rules *ComponentRules, logger zerolog.Logger, m *metrics.Metrics) *Resolver {
	if cache == nil {
		cache = NewResultCache(DefaultCacheLimit)
	}
	if rules == nil {
		rules = DefaultComponentRules()
	}
	return &Resolver{
		index:   index,
		store:   store,
		cache:   cache,
		rules:   rules,
		logger:  logger,
		metrics: m,
	}
}

// filters is the normalized, component-independent part of a query.
type filters struct {
	properties []string
	scales     []string
	systems    []Attribute
	methods    []Attribute
	time       string
}

func (r *Resolver) normalize(req Request) filters {
	f := filters{time: strings.TrimSpace(req.Time)}
	if f.time == "" {
		f.time = DefaultTime
	}
	if req.Unit != nil {
		unit := req.Unit.value()
		f.properties = r.index.PropertyForUnit(unit)
		f.scales = r.index.ScaleForUnit(unit)
	}
	if s := strings.TrimSpace(req.Scale); s != "" {
		f.scales = []string{s}
	}
	for _, s := range req.Systems {
		if r.index.IsValidSystem(s.value()) {
			f.systems = append(f.systems, s)
		}
	}
	for _, m := range req.Methods {
		if r.index.IsValidMethod(m.value()) {
			f.methods = append(f.methods, m)
		}
	}
	return f
}

// Resolve runs the literal component first and then, while nothing is found,
// each concept id's component set in order.
func (r *Resolver) Resolve(ctx context.Context, req Request) Resolution {
	f := r.normalize(req)
	component := r.rules.Normalize(strings.TrimSpace(req.Component.Text))

	var storeErr error
	record := func(err error) {
		if err != nil && storeErr == nil {
			storeErr = err
		}
	}

	var codes []*terminology.LOINCCode
	if component != "" {
		var err error
		codes, err = r.lookup(ctx, []string{component}, f)
		record(err)
	}

	for _, id := range req.Component.ConceptIDs {
		if len(codes) > 0 {
			break
		}
		components, ok := r.index.ComponentsForConcept(id)
		if !ok {
			continue
		}
		r.logger.Debug().Int("concept_id", id).Strs("components", components).Msg("retrying with concept components")
		var err error
		codes, err = r.lookup(ctx, components, f)
		record(err)
	}

	res := Resolution{Code: &CodeBean{Evidence: annotation.NewEvidenceSet()}}
	switch {
	case len(codes) > 0:
		res.Outcome = Found
		res.Code = r.bean(codes[0], req, f)
	case storeErr != nil:
		res.Outcome = StoreError
		res.Err = storeErr
	default:
		res.Outcome = NotFound
	}
	r.metrics.CodeResolved(metrics.PipelineLaboratory, res.Outcome.String())
	return res
}

func (r *Resolver) lookup(ctx context.Context, components []string, f filters) ([]*terminology.LOINCCode, error) {
	q := terminology.LabQuery{
		Components: components,
		Properties: f.properties,
		Systems:    values(f.systems),
		Time:       f.time,
		Scales:     f.scales,
		Methods:    values(f.methods),
	}
	key := NewCacheKey(q.Components, q.Properties, q.Systems, q.Methods, q.Time, q.Scales)
	if codes, ok := r.cache.Lookup(ctx, key); ok {
		return codes, nil
	}

	codes, err := r.store.FindLabCodes(ctx, q)
	if err != nil {
		r.metrics.StoreError("find_lab_codes")
		r.logger.Error().Err(err).Str("components", terminology.JoinQuoted(components)).Msg("laboratory query failed")
		return nil, fmt.Errorf("find lab codes: %w", err)
	}
	r.logger.Debug().
		Str("components", terminology.JoinQuoted(q.Components)).
		Str("properties", terminology.JoinQuoted(q.Properties)).
		Str("scales", terminology.JoinQuoted(q.Scales)).
		Int("rows", len(codes)).
		Msg("laboratory query")
	r.cache.Insert(ctx, key, codes)
	return codes, nil
}

func (r *Resolver) bean(row *terminology.LOINCCode, req Request, f filters) *CodeBean {
	ev := annotation.NewEvidenceSet(req.Component.TextSpan())
	if req.Unit != nil && len(f.properties) > 0 {
		ev.Add(req.Unit.TextSpan())
	}
	for _, s := range f.systems {
		if strings.EqualFold(s.value(), row.System) {
			ev.Add(s.TextSpan())
		}
	}
	for _, m := range f.methods {
		if strings.EqualFold(m.value(), row.MethodType) {
			ev.Add(m.TextSpan())
		}
	}
	return &CodeBean{LOINCCode: *row, Evidence: ev}
}

func values(attrs []Attribute) []string {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]string, len(attrs))
	for i, a := range attrs {
		out[i] = a.value()
	}
	return out
}
