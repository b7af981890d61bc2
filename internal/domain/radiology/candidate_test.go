package radiology

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/loinc-coder/internal/platform/metrics"
)

func newTestGenerator(store *mockStore) *CandidateGenerator {
	return NewCandidateGenerator(store, NewBilateralFilter(store, zerolog.Nop(), nil), zerolog.Nop(), nil)
}

func TestHasBilateralCue(t *testing.T) {
	assert.True(t, HasBilateralCue("Bilateral knees"))
	assert.True(t, HasBilateralCue("both lungs"))
	assert.True(t, HasBilateralCue("B/L hips"))
	assert.False(t, HasBilateralCue("left knee"))
}

func TestBilateralFilter(t *testing.T) {
	store := newMockStore()
	store.texts[10] = []string{"Knee"}
	store.texts[11] = []string{"Both knees", "Bilateral knee joints"}
	f := NewBilateralFilter(store, zerolog.Nop(), nil)
	ctx := context.Background()

	assert.Equal(t, []int{10, 11}, f.Filter(ctx, mention(1, 0, "knee", 10, 11)), "no cue keeps all")
	assert.Equal(t, []int{11}, f.Filter(ctx, mention(1, 0, "both knees", 10, 11)))
	assert.Equal(t, []int{10, 12}, f.Filter(ctx, mention(1, 0, "bilateral feet", 10, 12)), "empty restriction falls back")
}

func TestBilateralFilter_LookupErrorCountsStoreError(t *testing.T) {
	store := newMockStore()
	store.textErr = errStoreDown
	m := metrics.New()
	f := NewBilateralFilter(store, zerolog.Nop(), m)

	got := f.Filter(context.Background(), mention(1, 0, "both knees", 10, 11))
	assert.Equal(t, []int{10, 11}, got, "failed lookups keep every concept")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `loinc_store_errors_total{operation="concept_texts"} 2`)
}

func TestGenerate_FirstSystemHitWins(t *testing.T) {
	store := newMockStore()
	store.cuiMap["40405,817096"] = []string{"ct-chest-id"}
	store.cuiMap["40405,24109"] = []string{"ct-lung-id"}

	method := mention(1, 0, "CT", 40405, 1552357)
	near := mention(2, 3, "chest", 817096)
	far := mention(3, 20, "lung", 24109)

	c, err := newTestGenerator(store).Generate(context.Background(), method, []SystemCandidate{
		{Mention: near}, {Mention: far, Min: 4, Max: 4},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"ct-chest-id"}, c.MapIDs)
	assert.Same(t, near, c.System)
	assert.Len(t, store.combos, 1, "far candidate is never queried")
}

func TestGenerate_ExhaustsCandidateBeforeMovingOn(t *testing.T) {
	store := newMockStore()
	store.cuiMap["1552357,24109"] = []string{"ct-lung-id"}

	method := mention(1, 0, "CT", 40405, 1552357)
	first := mention(2, 3, "chest", 817096, 817097)
	second := mention(3, 20, "lung", 24109)

	c, err := newTestGenerator(store).Generate(context.Background(), method, []SystemCandidate{
		{Mention: first}, {Mention: second},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"ct-lung-id"}, c.MapIDs)
	assert.Same(t, second, c.System)
	assert.Equal(t, [][]int{
		{40405, 817096}, {40405, 817097}, {1552357, 817096}, {1552357, 817097},
		{40405, 24109}, {1552357, 24109},
	}, store.combos)
}

func TestGenerate_NoSystems(t *testing.T) {
	store := newMockStore()
	c, err := newTestGenerator(store).Generate(context.Background(), mention(1, 0, "CT", 40405), nil)
	require.NoError(t, err)
	assert.True(t, c.Empty())
	assert.Empty(t, store.combos)
}

func TestGenerate_StoreErrorReportedWhenNothingFound(t *testing.T) {
	store := newMockStore()
	store.cuiErr = errStoreDown
	c, err := newTestGenerator(store).Generate(context.Background(), mention(1, 0, "CT", 40405), []SystemCandidate{
		{Mention: mention(2, 3, "chest", 817096)},
	})
	assert.True(t, c.Empty())
	assert.ErrorIs(t, err, errStoreDown)
}

func TestGenerate_CanceledContext(t *testing.T) {
	store := newMockStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestGenerator(store).Generate(ctx, mention(1, 0, "CT", 40405), []SystemCandidate{
		{Mention: mention(2, 3, "chest", 817096)},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.combos)
}
