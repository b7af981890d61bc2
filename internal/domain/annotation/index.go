package annotation

import (
	"math"
	"strings"
)

// MentionIndex finds the structured mention belonging to a surface span.
type MentionIndex struct {
	bySpan  map[Span]*StructuredMention
	ordered []*StructuredMention
}

// NewMentionIndex indexes mentions by span. When two mentions share a span
// the first one wins.
func NewMentionIndex(mentions []*StructuredMention) *MentionIndex {
	idx := &MentionIndex{bySpan: make(map[Span]*StructuredMention, len(mentions))}
	for _, m := range mentions {
		if m == nil {
			continue
		}
		if _, ok := idx.bySpan[m.Span]; ok {
			continue
		}
		idx.bySpan[m.Span] = m
		idx.ordered = append(idx.ordered, m)
	}
	return idx
}

// FindCovering returns the mention stored under span, or else the first
// mention, in document order, that covers span or is covered by it.
func (idx *MentionIndex) FindCovering(span Span) (*StructuredMention, bool) {
	if idx == nil {
		return nil, false
	}
	if m, ok := idx.bySpan[span]; ok {
		return m, true
	}
	for _, m := range idx.ordered {
		if m.Span.Covers(span) || span.Covers(m.Span) {
			return m, true
		}
	}
	return nil, false
}

// Len returns the number of indexed spans.
func (idx *MentionIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.ordered)
}

// Distance measures how far apart two mentions are inside a sentence, in
// whitespace-separated tokens. Every pair of pieces is compared. Text strictly
// between separate pieces is counted with a floor of 1, so pieces split only
// by whitespace are 1 apart. Overlapping or touching pieces count as 0. It
// returns the smallest and the largest count.
func Distance(a, b *EntityMention, sent Sentence) (int, int) {
	text := []rune(sent.CoveredText)
	minDist, maxDist := math.MaxInt, 0

	for _, sa := range a.Spans() {
		for _, sb := range b.Spans() {
			var between Span
			switch {
			case sb.End < sa.Begin:
				between = Span{Begin: sb.End, End: sa.Begin}
			case sb.Begin > sa.End:
				between = Span{Begin: sa.End, End: sb.Begin}
			default:
				minDist = 0
				continue
			}
			n := len(strings.Fields(sliceRelative(text, between, sent.Begin)))
			if n == 0 {
				n = 1
			}
			if n < minDist {
				minDist = n
			}
			if n > maxDist {
				maxDist = n
			}
		}
	}
	if minDist == math.MaxInt {
		minDist = 0
	}
	return minDist, maxDist
}

func sliceRelative(text []rune, s Span, origin int) string {
	begin := clamp(s.Begin-origin, 0, len(text))
	end := clamp(s.End-origin, begin, len(text))
	return string(text[begin:end])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
