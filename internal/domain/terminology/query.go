package terminology

import (
	"fmt"
	"strings"
)

// Dialect selects the placeholder syntax of a SQL backend.
type Dialect int

const (
	// Postgres uses $1, $2, ...
	Postgres Dialect = iota
	// SQLite uses ?.
	SQLite
)

// queryBuilder accumulates SQL text and its bound arguments.
type queryBuilder struct {
	dialect Dialect
	sb      strings.Builder
	args    []any
}

func newQuery(d Dialect, base string) *queryBuilder {
	q := &queryBuilder{dialect: d}
	q.sb.WriteString(base)
	return q
}

func (q *queryBuilder) write(s string) *queryBuilder {
	q.sb.WriteString(s)
	return q
}

// bind appends a placeholder for v.
func (q *queryBuilder) bind(v any) *queryBuilder {
	q.args = append(q.args, v)
	if q.dialect == Postgres {
		fmt.Fprintf(&q.sb, "$%d", len(q.args))
	} else {
		q.sb.WriteByte('?')
	}
	return q
}

// in appends "col IN (p1, p2, ...)".
func (q *queryBuilder) in(col string, values []any) *queryBuilder {
	q.write(col).write(" IN (")
	for i, v := range values {
		if i > 0 {
			q.write(", ")
		}
		q.bind(v)
	}
	return q.write(")")
}

func (q *queryBuilder) String() string { return q.sb.String() }

func strArgs(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func intArgs(values []int) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

const loincColumns = `loinc_num, long_common_name, component, property, time_aspct, "system", scale_typ, method_typ`

func lowerArgs(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

// labCodesQuery ANDs every present filter of lq onto the active rows.
// Component, system and method compare case-insensitively; the other
// filters carry values taken from the reference tables themselves.
func labCodesQuery(d Dialect, lq LabQuery) (string, []any) {
	q := newQuery(d, `SELECT `+loincColumns+` FROM loinc WHERE status = 'ACTIVE'`)
	if len(lq.Components) > 0 {
		q.write(" AND ").in("LOWER(component)", lowerArgs(lq.Components))
	}
	if len(lq.Properties) > 0 {
		q.write(" AND ").in("property", strArgs(lq.Properties))
	}
	if len(lq.Systems) > 0 {
		q.write(" AND ").in(`LOWER("system")`, lowerArgs(lq.Systems))
	}
	if lq.Time != "" {
		q.write(" AND time_aspct = ").bind(lq.Time)
	}
	if len(lq.Scales) > 0 {
		q.write(" AND ").in("scale_typ", strArgs(lq.Scales))
	}
	if len(lq.Methods) > 0 {
		q.write(" AND ").in("LOWER(method_typ)", lowerArgs(lq.Methods))
	}
	q.write(" ORDER BY common_test_rank, common_order_rank, common_si_test_rank, loinc_num")
	return q.String(), q.args
}

// cuiMapQuery matches rows whose first len(combo) slots each hold a value
// from combo and whose following slot is empty. At most five slots exist, so
// a combo of five leaves no slot to test for null.
func cuiMapQuery(d Dialect, combo []int) (string, []any) {
	q := newQuery(d, `SELECT map_id FROM radiology_cui_mapping WHERE is_active = 1`)
	for i := range combo {
		q.write(" AND ").in(fmt.Sprintf("cui%d", i+1), intArgs(combo))
	}
	if len(combo) < 5 {
		q.write(fmt.Sprintf(" AND cui%d IS NULL", len(combo)+1))
	}
	q.write(" ORDER BY map_id")
	return q.String(), q.args
}

func termMappingQuery(d Dialect, mapIDs []string) (string, []any) {
	q := newQuery(d, `SELECT map_id, term1, term2, term3, term4, term5, term6, term7, code
		FROM radiology_term_mapping WHERE is_active = 1 AND `)
	q.in("map_id", strArgs(mapIDs))
	q.write(" ORDER BY map_id, code")
	return q.String(), q.args
}

func getByCodeQuery(d Dialect, code string) (string, []any) {
	q := newQuery(d, `SELECT `+loincColumns+` FROM loinc WHERE status = 'ACTIVE' AND loinc_num = `)
	q.bind(code)
	return q.String(), q.args
}

func searchQuery(d Dialect, text string, limit int) (string, []any) {
	pattern := "%" + strings.ToLower(text) + "%"
	q := newQuery(d, `SELECT `+loincColumns+` FROM loinc WHERE status = 'ACTIVE' AND (LOWER(loinc_num) LIKE `)
	q.bind(pattern)
	q.write(" OR LOWER(long_common_name) LIKE ").bind(pattern)
	q.write(" OR LOWER(component) LIKE ").bind(pattern)
	q.write(") ORDER BY common_test_rank, loinc_num LIMIT ").bind(limit)
	return q.String(), q.args
}

func conceptTextsQuery(d Dialect, cui int) (string, []any) {
	q := newQuery(d, `SELECT DISTINCT text FROM umls_concept_text WHERE cui = `)
	q.bind(cui)
	return q.String(), q.args
}

const (
	activeSystemsSQL     = `SELECT DISTINCT "system" FROM loinc WHERE status = 'ACTIVE' AND "system" <> '' ORDER BY "system"`
	activeMethodsSQL     = `SELECT DISTINCT method_typ FROM loinc WHERE status = 'ACTIVE' AND method_typ <> '' ORDER BY method_typ`
	unitMappingsSQL      = `SELECT example_units, property, scale_typ FROM unit_property_scale_map WHERE is_active = 1`
	componentConceptsSQL = `SELECT component, cui_list FROM component_cui_map WHERE is_active = 1`
)

// rowScanner is the part of pgx.Rows and *sql.Rows the stores rely on.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanStrings(rows rowScanner) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanCodes(rows rowScanner) ([]*LOINCCode, error) {
	var out []*LOINCCode
	for rows.Next() {
		var c LOINCCode
		if err := rows.Scan(&c.Code, &c.Display, &c.Component, &c.Property, &c.TimeAspect, &c.System, &c.ScaleType, &c.MethodType); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func scanUnitMappings(rows rowScanner) ([]UnitMapping, error) {
	var out []UnitMapping
	for rows.Next() {
		var m UnitMapping
		if err := rows.Scan(&m.Unit, &m.Property, &m.Scale); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanComponentConcepts(rows rowScanner) ([]ComponentConcepts, error) {
	var out []ComponentConcepts
	for rows.Next() {
		var c ComponentConcepts
		if err := rows.Scan(&c.Component, &c.CUIList); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanTermMappings(rows rowScanner) ([]*TermMappingRow, error) {
	var out []*TermMappingRow
	for rows.Next() {
		var (
			row   TermMappingRow
			terms [MaxTerms]*string
		)
		if err := rows.Scan(&row.MapID, &terms[0], &terms[1], &terms[2], &terms[3], &terms[4], &terms[5], &terms[6], &row.Code); err != nil {
			return nil, err
		}
		for _, t := range terms {
			if t != nil {
				row.Terms = append(row.Terms, *t)
			}
		}
		out = append(out, &row)
	}
	return out, rows.Err()
}
