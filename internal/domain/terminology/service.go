package terminology

import (
	"context"
	"fmt"
	"strings"
)

// Service provides LOINC master-table lookups.
type Service struct {
	store ReferenceStore
}

// NewService creates a new terminology service.
func NewService(store ReferenceStore) *Service {
	return &Service{store: store}
}

// SearchLOINC searches active LOINC codes by code, name or component.
func (s *Service) SearchLOINC(ctx context.Context, query string, limit int) ([]*LOINCCode, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query parameter is required")
	}
	if limit <= 0 {
		limit = 20
	}
	return s.store.Search(ctx, query, limit)
}

// LookupLOINC looks up a single active LOINC code.
func (s *Service) LookupLOINC(ctx context.Context, code string) (*LOINCCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}
	return s.store.GetByCode(ctx, code)
}
