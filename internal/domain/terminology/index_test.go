package terminology

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReferenceIndex(t *testing.T) {
	idx := LoadReferenceIndex(context.Background(), newMockStore(), zerolog.Nop())

	assert.Equal(t, []string{"MCnc", "SCnc"}, idx.PropertyForUnit("mg/dL"))
	assert.Equal(t, []string{"Qn"}, idx.ScaleForUnit(" MG/DL"))
	assert.Nil(t, idx.PropertyForUnit("furlongs"))
	assert.Nil(t, idx.ScaleForUnit(""))

	assert.True(t, idx.IsValidSystem("ser/plas"))
	assert.True(t, idx.IsValidSystem(" URINE "))
	assert.False(t, idx.IsValidSystem("CSF"))
	assert.True(t, idx.IsValidMethod("test strip"))
	assert.False(t, idx.IsValidMethod("Ser/Plas"))

	comps, ok := idx.ComponentsForConcept(17725)
	require.True(t, ok)
	assert.Equal(t, []string{"Glucose", "Glucose.fasting"}, comps)

	_, ok = idx.ComponentsForConcept(42)
	assert.False(t, ok)

	assert.Equal(t, IndexStats{Systems: 3, Methods: 2, Units: 2, Concepts: 2}, idx.Stats())
}

func TestLoadReferenceIndex_DegradesOnStoreFailure(t *testing.T) {
	store := newMockStore()
	store.failOn["units"] = errors.New("connection refused")
	store.failOn["systems"] = errors.New("connection refused")

	idx := LoadReferenceIndex(context.Background(), store, zerolog.Nop())

	assert.Nil(t, idx.PropertyForUnit("mg/dL"))
	assert.False(t, idx.IsValidSystem("Bld"))
	assert.True(t, idx.IsValidMethod("Test strip"))
	_, ok := idx.ComponentsForConcept(11847)
	assert.True(t, ok)
	assert.Equal(t, 1, store.calls["units"])
}

func TestJoinQuoted(t *testing.T) {
	assert.Equal(t, "'MCnc','SCnc'", JoinQuoted([]string{"MCnc", "SCnc"}))
	assert.Equal(t, "", JoinQuoted(nil))
}

func TestParseCUIList(t *testing.T) {
	ids, err := ParseCUIList(" [14722, 99 ,] ")
	require.NoError(t, err)
	assert.Equal(t, []int{14722, 99}, ids)

	ids, err = ParseCUIList("[]")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = ParseCUIList("[1, x]")
	assert.Error(t, err)
}
