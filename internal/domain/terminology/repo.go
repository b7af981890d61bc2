package terminology

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GetByCode when no active row carries the code.
var ErrNotFound = errors.New("loinc code not found")

// ReferenceStore is read-only access to the LOINC and UMLS reference tables.
type ReferenceStore interface {
	ActiveSystems(ctx context.Context) ([]string, error)
	ActiveMethods(ctx context.Context) ([]string, error)
	UnitMappings(ctx context.Context) ([]UnitMapping, error)
	ComponentConcepts(ctx context.Context) ([]ComponentConcepts, error)

	// FindLabCodes returns active rows matching q, best ranked first.
	FindLabCodes(ctx context.Context, q LabQuery) ([]*LOINCCode, error)
	// CUIMapIDs returns the map ids whose first len(combo) cui slots all hold
	// a value from combo and whose next slot is null.
	CUIMapIDs(ctx context.Context, combo []int) ([]string, error)
	TermMappings(ctx context.Context, mapIDs []string) ([]*TermMappingRow, error)
	ConceptTexts(ctx context.Context, cui int) ([]string, error)

	GetByCode(ctx context.Context, code string) (*LOINCCode, error)
	Search(ctx context.Context, query string, limit int) ([]*LOINCCode, error)
}
