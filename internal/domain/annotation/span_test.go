package annotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpanCoversIsReflexive(t *testing.T) {
	for _, s := range []Span{{0, 0}, {0, 5}, {3, 3}, {10, 42}} {
		assert.True(t, s.Covers(s), "span %v should cover itself", s)
	}
}

func TestSpanCovers(t *testing.T) {
	outer := Span{Begin: 10, End: 20}
	assert.True(t, outer.Covers(Span{Begin: 12, End: 18}))
	assert.True(t, outer.Covers(Span{Begin: 10, End: 20}))
	assert.False(t, outer.Covers(Span{Begin: 9, End: 15}))
	assert.False(t, outer.Covers(Span{Begin: 15, End: 21}))
}

func TestSpanEqualityAsMapKey(t *testing.T) {
	m := map[Span]string{{Begin: 10, End: 20}: "a", {Begin: 30, End: 40}: "b"}
	v, ok := m[Span{Begin: 10, End: 20}]
	assert.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestSpanValid(t *testing.T) {
	assert.True(t, Span{Begin: 1, End: 1}.Valid())
	assert.False(t, Span{Begin: 5, End: 1}.Valid())
	assert.False(t, Span{Begin: -1, End: 1}.Valid())
}

func TestEvidenceSet_DedupByOffset(t *testing.T) {
	e := NewEvidenceSet(
		TextSpan{Text: "glucose", BeginOffset: 4},
		TextSpan{Text: "mg/dL", BeginOffset: 15},
		TextSpan{Text: "GLUCOSE", BeginOffset: 4},
	)
	assert.Equal(t, 2, e.Len())
	assert.True(t, e.Contains(4))
	assert.Equal(t, []TextSpan{{Text: "glucose", BeginOffset: 4}, {Text: "mg/dL", BeginOffset: 15}}, e.Spans())
	assert.Equal(t, "glucose mg/dL", e.Text())
}

func TestEvidenceSet_Merge(t *testing.T) {
	a := NewEvidenceSet(TextSpan{Text: "CT", BeginOffset: 20})
	b := NewEvidenceSet(TextSpan{Text: "chest", BeginOffset: 3}, TextSpan{Text: "ct", BeginOffset: 20})
	a.Merge(b)
	a.Merge(nil)
	assert.Equal(t, []TextSpan{{Text: "chest", BeginOffset: 3}, {Text: "CT", BeginOffset: 20}}, a.Spans())
}

func TestEvidenceSet_Nil(t *testing.T) {
	var e *EvidenceSet
	assert.Equal(t, 0, e.Len())
	assert.False(t, e.Contains(1))
	assert.Empty(t, e.Spans())
	assert.Equal(t, "", e.Text())
}
