package terminology

import "strings"

// CodingSystemLOINC is the coding system name reported with every result.
const CodingSystemLOINC = "LOINC"

// LOINCCode is one active row of the LOINC master table.
type LOINCCode struct {
	Code       string `db:"loinc_num" json:"code"`
	Display    string `db:"long_common_name" json:"display"`
	Component  string `db:"component" json:"component,omitempty"`
	Property   string `db:"property" json:"property,omitempty"`
	TimeAspect string `db:"time_aspct" json:"time_aspect,omitempty"`
	System     string `db:"system" json:"system,omitempty"`
	ScaleType  string `db:"scale_typ" json:"scale_type,omitempty"`
	MethodType string `db:"method_typ" json:"method_type,omitempty"`
}

// UnitMapping is one row of the unit to property/scale table.
type UnitMapping struct {
	Unit     string `db:"example_units"`
	Property string `db:"property"`
	Scale    string `db:"scale_typ"`
}

// ComponentConcepts links a component name to its concept ids. CUIList is
// the raw stored text, e.g. "[14722, 99]".
type ComponentConcepts struct {
	Component string `db:"component"`
	CUIList   string `db:"cui_list"`
}

// MaxTerms is the number of term slots of a radiology term-mapping row.
const MaxTerms = 7

// TermMappingRow is one radiology term-mapping rule. Terms holds only the
// non-null slots, in slot order.
type TermMappingRow struct {
	MapID string
	Terms []string
	Code  string
}

// TotalTerms is the number of non-null term slots.
func (r *TermMappingRow) TotalTerms() int { return len(r.Terms) }

// LabQuery is the conjunctive filter over active LOINC rows. Empty slices and
// an empty Time mean "no filter".
type LabQuery struct {
	Components []string
	Properties []string
	Systems    []string
	Time       string
	Scales     []string
	Methods    []string
}

// IsEmpty reports whether no filter is set.
func (q LabQuery) IsEmpty() bool {
	return len(q.Components) == 0 && len(q.Properties) == 0 && len(q.Systems) == 0 &&
		q.Time == "" && len(q.Scales) == 0 && len(q.Methods) == 0
}

// IndexStats reports the sizes of the ReferenceIndex tables.
type IndexStats struct {
	Systems  int `json:"systems"`
	Methods  int `json:"methods"`
	Units    int `json:"units"`
	Concepts int `json:"concepts"`
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
