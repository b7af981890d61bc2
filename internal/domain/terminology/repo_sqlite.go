package terminology

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteStore is a ReferenceStore over a SQLite snapshot of the reference
// tables, opened through database/sql with the modernc driver.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore { return &SQLiteStore{db: db} }

// Close closes the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) query(ctx context.Context, op, query string, args []any, scan func(rowScanner) error) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	if err := scan(rows); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLiteStore) strings(ctx context.Context, op, query string, args ...any) ([]string, error) {
	var out []string
	err := s.query(ctx, op, query, args, func(r rowScanner) (err error) {
		out, err = scanStrings(r)
		return err
	})
	return out, err
}

func (s *SQLiteStore) codes(ctx context.Context, op, query string, args ...any) ([]*LOINCCode, error) {
	var out []*LOINCCode
	err := s.query(ctx, op, query, args, func(r rowScanner) (err error) {
		out, err = scanCodes(r)
		return err
	})
	return out, err
}

func (s *SQLiteStore) ActiveSystems(ctx context.Context) ([]string, error) {
	return s.strings(ctx, "active systems", activeSystemsSQL)
}

func (s *SQLiteStore) ActiveMethods(ctx context.Context) ([]string, error) {
	return s.strings(ctx, "active methods", activeMethodsSQL)
}

func (s *SQLiteStore) UnitMappings(ctx context.Context) ([]UnitMapping, error) {
	var out []UnitMapping
	err := s.query(ctx, "unit mappings", unitMappingsSQL, nil, func(r rowScanner) (err error) {
		out, err = scanUnitMappings(r)
		return err
	})
	return out, err
}

func (s *SQLiteStore) ComponentConcepts(ctx context.Context) ([]ComponentConcepts, error) {
	var out []ComponentConcepts
	err := s.query(ctx, "component concepts", componentConceptsSQL, nil, func(r rowScanner) (err error) {
		out, err = scanComponentConcepts(r)
		return err
	})
	return out, err
}

func (s *SQLiteStore) FindLabCodes(ctx context.Context, lq LabQuery) ([]*LOINCCode, error) {
	query, args := labCodesQuery(SQLite, lq)
	return s.codes(ctx, "find lab codes", query, args...)
}

func (s *SQLiteStore) CUIMapIDs(ctx context.Context, combo []int) ([]string, error) {
	if len(combo) == 0 {
		return nil, nil
	}
	query, args := cuiMapQuery(SQLite, combo)
	return s.strings(ctx, "cui map ids", query, args...)
}

func (s *SQLiteStore) TermMappings(ctx context.Context, mapIDs []string) ([]*TermMappingRow, error) {
	if len(mapIDs) == 0 {
		return nil, nil
	}
	query, args := termMappingQuery(SQLite, mapIDs)
	var out []*TermMappingRow
	err := s.query(ctx, "term mappings", query, args, func(r rowScanner) (err error) {
		out, err = scanTermMappings(r)
		return err
	})
	return out, err
}

func (s *SQLiteStore) ConceptTexts(ctx context.Context, cui int) ([]string, error) {
	query, args := conceptTextsQuery(SQLite, cui)
	return s.strings(ctx, "concept texts", query, args...)
}

func (s *SQLiteStore) GetByCode(ctx context.Context, code string) (*LOINCCode, error) {
	query, args := getByCodeQuery(SQLite, code)
	var c LOINCCode
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&c.Code, &c.Display, &c.Component, &c.Property, &c.TimeAspect, &c.System, &c.ScaleType, &c.MethodType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loinc get %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loinc get: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]*LOINCCode, error) {
	if limit <= 0 {
		limit = 20
	}
	q, args := searchQuery(SQLite, query, limit)
	return s.codes(ctx, "loinc search", q, args...)
}
