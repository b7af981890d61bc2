package laboratory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ehr/loinc-coder/internal/domain/terminology"
)

// =========== Mock Store ===========

type mockStore struct {
	mu       sync.Mutex
	systems  []string
	methods  []string
	units    []terminology.UnitMapping
	concepts []terminology.ComponentConcepts
	rows     []*terminology.LOINCCode
	labErr   error
	queries  []terminology.LabQuery
}

func newMockStore() *mockStore {
	return &mockStore{
		systems: []string{"Ser/Plas", "Bld", "Urine"},
		methods: []string{"Test strip"},
		units: []terminology.UnitMapping{
			{Unit: "mg/dL", Property: "MCnc", Scale: "Qn"},
		},
		concepts: []terminology.ComponentConcepts{
			{Component: "Glucose", CUIList: "[14722, 99]"},
			{Component: "Ethanol", CUIList: "[99]"},
		},
		rows: []*terminology.LOINCCode{
			{Code: "2345-7", Display: "Glucose [Mass/volume] in Serum or Plasma", Component: "Glucose", Property: "MCnc", TimeAspect: "Pt", System: "Ser/Plas", ScaleType: "Qn"},
			{Code: "2339-0", Display: "Glucose [Mass/volume] in Blood", Component: "Glucose", Property: "MCnc", TimeAspect: "Pt", System: "Bld", ScaleType: "Qn"},
			{Code: "5792-7", Display: "Glucose [Mass/volume] in Urine by Test strip", Component: "Glucose", Property: "MCnc", TimeAspect: "Pt", System: "Urine", ScaleType: "Qn", MethodType: "Test strip"},
			{Code: "5643-2", Display: "Ethanol [Mass/volume] in Serum or Plasma", Component: "Ethanol", Property: "MCnc", TimeAspect: "Pt", System: "Ser/Plas", ScaleType: "Qn"},
		},
	}
}

func (m *mockStore) ActiveSystems(context.Context) ([]string, error) { return m.systems, nil }
func (m *mockStore) ActiveMethods(context.Context) ([]string, error) { return m.methods, nil }
func (m *mockStore) UnitMappings(context.Context) ([]terminology.UnitMapping, error) {
	return m.units, nil
}
func (m *mockStore) ComponentConcepts(context.Context) ([]terminology.ComponentConcepts, error) {
	return m.concepts, nil
}

// FindLabCodes filters rows the way the SQL predicate does.
func (m *mockStore) FindLabCodes(_ context.Context, q terminology.LabQuery) ([]*terminology.LOINCCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)
	if m.labErr != nil {
		return nil, m.labErr
	}
	var out []*terminology.LOINCCode
	for _, r := range m.rows {
		if matchFold(q.Components, r.Component) && match(q.Properties, r.Property) &&
			matchFold(q.Systems, r.System) && (q.Time == "" || q.Time == r.TimeAspect) &&
			match(q.Scales, r.ScaleType) && matchFold(q.Methods, r.MethodType) {
			out = append(out, r)
		}
	}
	return out, nil
}

func match(filter []string, v string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == v {
			return true
		}
	}
	return false
}

func matchFold(filter []string, v string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if strings.EqualFold(f, v) {
			return true
		}
	}
	return false
}

func (m *mockStore) CUIMapIDs(context.Context, []int) ([]string, error) { return nil, nil }
func (m *mockStore) TermMappings(context.Context, []string) ([]*terminology.TermMappingRow, error) {
	return nil, nil
}
func (m *mockStore) ConceptTexts(context.Context, int) ([]string, error) { return nil, nil }
func (m *mockStore) GetByCode(context.Context, string) (*terminology.LOINCCode, error) {
	return nil, terminology.ErrNotFound
}
func (m *mockStore) Search(context.Context, string, int) ([]*terminology.LOINCCode, error) {
	return nil, nil
}

func (m *mockStore) queryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

var errStoreDown = errors.New("connection refused")

func newTestResolver(store *mockStore) *Resolver {
	idx := terminology.LoadReferenceIndex(context.Background(), store, nopLogger())
	return NewResolver(idx, store, NewResultCache(10), DefaultComponentRules(), nopLogger(), nil)
}

func nopLogger() zerolog.Logger { return zerolog.Nop() }
