package radiology

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/ehr/loinc-coder/internal/domain/annotation"
	"github.com/ehr/loinc-coder/internal/domain/terminology"
)

// =========== Mock Store ===========

type mockStore struct {
	// cuiMap keys are sorted, comma-joined combos.
	cuiMap   map[string][]string
	terms    map[string][]*terminology.TermMappingRow
	texts    map[int][]string
	cuiErr   error
	termErr  error
	textErr  error
	combos   [][]int
	termReqs [][]string
}

func newMockStore() *mockStore {
	return &mockStore{
		cuiMap: map[string][]string{},
		terms:  map[string][]*terminology.TermMappingRow{},
		texts:  map[int][]string{},
	}
}

func comboKey(combo []int) string {
	c := append([]int(nil), combo...)
	sort.Ints(c)
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func (m *mockStore) CUIMapIDs(_ context.Context, combo []int) ([]string, error) {
	m.combos = append(m.combos, append([]int(nil), combo...))
	if m.cuiErr != nil {
		return nil, m.cuiErr
	}
	return m.cuiMap[comboKey(combo)], nil
}

func (m *mockStore) TermMappings(_ context.Context, mapIDs []string) ([]*terminology.TermMappingRow, error) {
	m.termReqs = append(m.termReqs, mapIDs)
	if m.termErr != nil {
		return nil, m.termErr
	}
	var out []*terminology.TermMappingRow
	for _, id := range mapIDs {
		out = append(out, m.terms[id]...)
	}
	return out, nil
}

func (m *mockStore) ConceptTexts(_ context.Context, cui int) ([]string, error) {
	if m.textErr != nil {
		return nil, m.textErr
	}
	return m.texts[cui], nil
}

var errStoreDown = errors.New("connection refused")

func mention(id int, begin int, text string, cuis ...int) *annotation.EntityMention {
	return &annotation.EntityMention{
		ID:     id,
		Begins: []int{begin},
		Ends:   []int{begin + len(text)},
		Texts:  []string{text},
		CUIs:   cuis,
	}
}

func row(mapID, code string, terms ...string) *terminology.TermMappingRow {
	return &terminology.TermMappingRow{MapID: mapID, Code: code, Terms: terms}
}

func components(texts ...string) Components {
	tokens := make([]annotation.Token, len(texts))
	for i, t := range texts {
		tokens[i] = annotation.Token{ID: i, Span: annotation.Span{Begin: 100 + 10*i, End: 100 + 10*i + len(t)}, Text: t, Kind: annotation.ModalityToken}
	}
	return NewComponents(tokens)
}
