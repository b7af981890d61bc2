package terminology

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PGStore is the Postgres ReferenceStore.
type PGStore struct {
	pool *pgxpool.Pool
	q    queryable
}

func NewPGStore(pool *pgxpool.Pool) *PGStore { return &PGStore{pool: pool, q: pool} }

// Close releases the pool.
func (s *PGStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PGStore) strings(ctx context.Context, op, sql string, args ...any) ([]string, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	out, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *PGStore) codes(ctx context.Context, op, sql string, args ...any) ([]*LOINCCode, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	out, err := scanCodes(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *PGStore) ActiveSystems(ctx context.Context) ([]string, error) {
	return s.strings(ctx, "active systems", activeSystemsSQL)
}

func (s *PGStore) ActiveMethods(ctx context.Context) ([]string, error) {
	return s.strings(ctx, "active methods", activeMethodsSQL)
}

func (s *PGStore) UnitMappings(ctx context.Context) ([]UnitMapping, error) {
	rows, err := s.q.Query(ctx, unitMappingsSQL)
	if err != nil {
		return nil, fmt.Errorf("unit mappings: %w", err)
	}
	defer rows.Close()
	out, err := scanUnitMappings(rows)
	if err != nil {
		return nil, fmt.Errorf("unit mappings: %w", err)
	}
	return out, nil
}

func (s *PGStore) ComponentConcepts(ctx context.Context) ([]ComponentConcepts, error) {
	rows, err := s.q.Query(ctx, componentConceptsSQL)
	if err != nil {
		return nil, fmt.Errorf("component concepts: %w", err)
	}
	defer rows.Close()
	out, err := scanComponentConcepts(rows)
	if err != nil {
		return nil, fmt.Errorf("component concepts: %w", err)
	}
	return out, nil
}

func (s *PGStore) FindLabCodes(ctx context.Context, lq LabQuery) ([]*LOINCCode, error) {
	sql, args := labCodesQuery(Postgres, lq)
	return s.codes(ctx, "find lab codes", sql, args...)
}

func (s *PGStore) CUIMapIDs(ctx context.Context, combo []int) ([]string, error) {
	if len(combo) == 0 {
		return nil, nil
	}
	sql, args := cuiMapQuery(Postgres, combo)
	return s.strings(ctx, "cui map ids", sql, args...)
}

func (s *PGStore) TermMappings(ctx context.Context, mapIDs []string) ([]*TermMappingRow, error) {
	if len(mapIDs) == 0 {
		return nil, nil
	}
	sql, args := termMappingQuery(Postgres, mapIDs)
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("term mappings: %w", err)
	}
	defer rows.Close()
	out, err := scanTermMappings(rows)
	if err != nil {
		return nil, fmt.Errorf("term mappings: %w", err)
	}
	return out, nil
}

func (s *PGStore) ConceptTexts(ctx context.Context, cui int) ([]string, error) {
	sql, args := conceptTextsQuery(Postgres, cui)
	return s.strings(ctx, "concept texts", sql, args...)
}

func (s *PGStore) GetByCode(ctx context.Context, code string) (*LOINCCode, error) {
	sql, args := getByCodeQuery(Postgres, code)
	var c LOINCCode
	err := s.q.QueryRow(ctx, sql, args...).
		Scan(&c.Code, &c.Display, &c.Component, &c.Property, &c.TimeAspect, &c.System, &c.ScaleType, &c.MethodType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("loinc get %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loinc get: %w", err)
	}
	return &c, nil
}

func (s *PGStore) Search(ctx context.Context, query string, limit int) ([]*LOINCCode, error) {
	if limit <= 0 {
		limit = 20
	}
	sql, args := searchQuery(Postgres, query, limit)
	return s.codes(ctx, "loinc search", sql, args...)
}
