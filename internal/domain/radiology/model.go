package radiology

import (
	"sort"
	"strings"

	"github.com/ehr/loinc-coder/internal/domain/annotation"
)

// CodeBean is a radiology code candidate. Code is its identity.
type CodeBean struct {
	Code        string
	Description string
	Method      string
	System      string
	Components  []string
	Evidence    *annotation.EvidenceSet
}

// SystemCandidate is an anatomical-structure mention near a method mention,
// with its token distance to it.
type SystemCandidate struct {
	Mention *annotation.EntityMention
	Min     int
	Max     int
}

// SortCandidates orders candidates nearest first: by Min, then Max, then the
// mention's begin offset.
func SortCandidates(cs []SystemCandidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Min != b.Min {
			return a.Min < b.Min
		}
		if a.Max != b.Max {
			return a.Max < b.Max
		}
		return a.Mention.Extent().Begin < b.Mention.Extent().Begin
	})
}

// Attribute is a modality, view, pharmaceutical or route token attached to a
// method mention.
type Attribute struct {
	Kind  annotation.TokenKind
	Text  string
	Begin int
	End   int
}

func (a Attribute) TextSpan() annotation.TextSpan {
	return annotation.TextSpan{Text: a.Text, BeginOffset: a.Begin}
}

// Components maps lower-cased attribute text to its attribute.
type Components map[string]Attribute

// NewComponents flattens tokens into Components. A later token with the same
// text replaces an earlier one.
func NewComponents(tokens ...[]annotation.Token) Components {
	c := make(Components)
	for _, group := range tokens {
		for _, t := range group {
			c[strings.ToLower(t.Text)] = Attribute{
				Kind:  t.Kind,
				Text:  t.Text,
				Begin: t.Span.Begin,
				End:   t.Span.End,
			}
		}
	}
	return c
}

// Lookup finds the attribute matching term, ignoring case.
func (c Components) Lookup(term string) (Attribute, bool) {
	a, ok := c[strings.ToLower(term)]
	return a, ok
}

// Names returns the sorted attribute texts.
func (c Components) Names() []string {
	out := make([]string, 0, len(c))
	for _, a := range c {
		out = append(out, a.Text)
	}
	sort.Strings(out)
	return out
}
