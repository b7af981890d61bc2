package annotation

import (
	"sort"
	"strings"
)

// Span is a half-open [Begin, End) range of character offsets into the
// document text. Span values compare by Begin and End and can be used as map
// keys.
type Span struct {
	Begin int `json:"begin"`
	End   int `json:"end"`
}

// Covers reports whether o lies entirely inside s.
func (s Span) Covers(o Span) bool {
	return s.Begin <= o.Begin && o.End <= s.End
}

// Overlaps reports whether the two spans share at least one offset or touch.
func (s Span) Overlaps(o Span) bool {
	return s.Begin <= o.End && o.Begin <= s.End
}

// Valid reports whether Begin <= End and both offsets are non-negative.
func (s Span) Valid() bool {
	return s.Begin >= 0 && s.Begin <= s.End
}

// TextSpan is a piece of evidence: the surface text and where it starts.
// Two text spans with the same BeginOffset are the same evidence.
type TextSpan struct {
	Text        string `json:"text"`
	BeginOffset int    `json:"beginOffset"`
}

// EvidenceSet collects TextSpans keyed by begin offset. The first text added
// for an offset is kept.
type EvidenceSet struct {
	byOffset map[int]TextSpan
}

// NewEvidenceSet returns a set holding the given spans.
func NewEvidenceSet(spans ...TextSpan) *EvidenceSet {
	e := &EvidenceSet{byOffset: make(map[int]TextSpan, len(spans))}
	for _, s := range spans {
		e.Add(s)
	}
	return e
}

// Add inserts s unless a span with the same begin offset is already present.
func (e *EvidenceSet) Add(s TextSpan) {
	if e.byOffset == nil {
		e.byOffset = make(map[int]TextSpan)
	}
	if _, ok := e.byOffset[s.BeginOffset]; ok {
		return
	}
	e.byOffset[s.BeginOffset] = s
}

// Merge adds every span of other.
func (e *EvidenceSet) Merge(other *EvidenceSet) {
	if other == nil {
		return
	}
	for _, s := range other.byOffset {
		e.Add(s)
	}
}

// Len returns the number of distinct offsets.
func (e *EvidenceSet) Len() int {
	if e == nil {
		return 0
	}
	return len(e.byOffset)
}

// Contains reports whether a span starting at offset is present.
func (e *EvidenceSet) Contains(offset int) bool {
	if e == nil {
		return false
	}
	_, ok := e.byOffset[offset]
	return ok
}

// Spans returns the evidence ordered by begin offset.
func (e *EvidenceSet) Spans() []TextSpan {
	if e == nil {
		return []TextSpan{}
	}
	out := make([]TextSpan, 0, len(e.byOffset))
	for _, s := range e.byOffset {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BeginOffset < out[j].BeginOffset })
	return out
}

// Text joins the evidence texts in offset order.
func (e *EvidenceSet) Text() string {
	spans := e.Spans()
	parts := make([]string, 0, len(spans))
	for _, s := range spans {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}
