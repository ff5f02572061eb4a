package rating

import (
	"context"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utakatalp/league-ratings/internal/league"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func mustMutator(t *testing.T, tiers []MutationTier) *Mutator {
	t.Helper()
	m, err := NewMutator(tiers)
	require.NoError(t, err)
	return m
}

func roundRobinGames() []league.Game {
	// each team wins once and loses once by the same score
	return []league.Game{
		{Home: 0, HomeScore: 21, Away: 1, AwayScore: 14},
		{Home: 1, HomeScore: 21, Away: 2, AwayScore: 14},
		{Home: 2, HomeScore: 21, Away: 0, AwayScore: 14},
	}
}

func TestScoreIsPure(t *testing.T) {
	m := newTestModel(t, nil)
	games := roundRobinGames()
	v := VectorFrom([]float64{0.4, -1.2, 2.5}, 0)

	require.NoError(t, v.Evaluate(m, games))
	first := v.Score()
	require.NoError(t, v.Evaluate(m, games))
	assert.Equal(t, first, v.Score())

	direct, err := NegLogLikelihood(m, VectorFrom(v.Ratings(), 0), games)
	require.NoError(t, err)
	assert.Equal(t, first, direct)
	assert.Greater(t, first, 0.0)
}

func TestScoreNonFinite(t *testing.T) {
	m := newTestModel(t, nil)
	games := []league.Game{{Home: 0, HomeScore: 3, Away: 1, AwayScore: 10}}
	v := VectorFrom([]float64{4000, 0}, 0)

	err := v.Evaluate(m, games)
	assert.ErrorIs(t, err, ErrNonFiniteScore)
}

func TestScoreUnknownTeam(t *testing.T) {
	m := newTestModel(t, nil)
	games := []league.Game{{Home: 0, HomeScore: 3, Away: 7, AwayScore: 10}}
	err := NewVector(2).Evaluate(m, games)
	assert.ErrorIs(t, err, league.ErrUnknownTeam)
}

func TestMutatePreservesTeams(t *testing.T) {
	rng := seeded(3)
	parent := VectorFrom([]float64{1, 2, 3, 4, 5, 6, 7, 8}, 0)
	mut := mustMutator(t, Tiered())

	for i := 0; i < 50; i++ {
		child := parent.Mutate(rng, mut)
		require.Equal(t, parent.Len(), child.Len())
	}
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, parent.Ratings())
}

func TestMutateRates(t *testing.T) {
	rng := seeded(4)
	parent := VectorFrom(make([]float64, 200), 0)

	always := parent.Mutate(rng, mustMutator(t, SingleRate(1, 1))).Ratings()
	for i, r := range always {
		assert.NotEqual(t, 0.0, r, "team %d", i)
	}

	never := parent.Mutate(rng, mustMutator(t, SingleRate(1e-12, 1))).Ratings()
	assert.Equal(t, parent.Ratings(), never)

	// unmutated teams keep the parent value exactly
	half := parent.Mutate(rng, mustMutator(t, SingleRate(0.5, 1))).Ratings()
	changed := 0
	for _, r := range half {
		if r != 0 {
			changed++
		}
	}
	assert.Greater(t, changed, 50)
	assert.Less(t, changed, 150)
}

func TestNewMutatorValidation(t *testing.T) {
	tests := []struct {
		name  string
		tiers []MutationTier
	}{
		{"empty", nil},
		{"zero probability", SingleRate(0, 1)},
		{"zero stddev", SingleRate(0.5, 0)},
		{"over one", []MutationTier{{0.6, 1}, {0.6, 0.1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMutator(tt.tiers)
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}
}

func TestNewPopulationSorted(t *testing.T) {
	params := SearchParams{Parents: 5, Spawn: 3}
	pop, err := NewPopulation(seeded(5), newTestModel(t, nil), mustMutator(t, SingleRate(0.2, 1)), roundRobinGames(), 3, params)
	require.NoError(t, err)

	assert.Equal(t, 20, pop.Len())
	assert.Equal(t, 20, pop.Evaluations()-1)
	assertSorted(t, pop)
}

func TestNextGenerationKeepsSizeAndOrder(t *testing.T) {
	params := SearchParams{Parents: 4, Spawn: 2}
	rng := seeded(6)
	pop, err := NewPopulation(rng, newTestModel(t, nil), mustMutator(t, Tiered()), roundRobinGames(), 3, params)
	require.NoError(t, err)

	for gen := 1; gen <= 25; gen++ {
		elites := pop.Vectors()[:params.Parents]
		bestBefore := pop.Best().Score()

		require.NoError(t, pop.NextGeneration(rng))

		assert.Equal(t, params.Size(), pop.Len())
		assertSorted(t, pop)
		assert.LessOrEqual(t, pop.Best().Score(), bestBefore)
		assert.Equal(t, gen, pop.Generation())

		after := pop.Vectors()
		for i, e := range elites {
			assert.True(t, slices.Contains(after, e), "elite %d was overwritten in generation %d", i, gen)
		}
	}
}

func TestNextGenerationReusesEliteScores(t *testing.T) {
	params := SearchParams{Parents: 3, Spawn: 2}
	rng := seeded(7)
	pop, err := NewPopulation(rng, newTestModel(t, nil), mustMutator(t, SingleRate(0.2, 1)), roundRobinGames(), 3, params)
	require.NoError(t, err)

	before := pop.Evaluations()
	require.NoError(t, pop.NextGeneration(rng))
	assert.Equal(t, before+params.Parents*params.Spawn, pop.Evaluations())
}

func TestNextGenerationFailureLeavesPopulation(t *testing.T) {
	rng := seeded(9)
	pop, err := NewPopulation(rng, newTestModel(t, nil), mustMutator(t, Tiered()), roundRobinGames(), 3, SearchParams{Parents: 2, Spawn: 1})
	require.NoError(t, err)
	before := pop.Vectors()
	scores := make([]float64, len(before))
	for i, v := range before {
		scores[i] = v.Score()
	}

	// a tie cannot be scored under the reject policy
	pop.games = append(pop.games, league.Game{Home: 0, HomeScore: 10, Away: 1, AwayScore: 10})
	err = pop.NextGeneration(rng)
	require.ErrorIs(t, err, ErrTiedGame)

	assert.Equal(t, 0, pop.Generation())
	after := pop.Vectors()
	require.Len(t, after, len(before))
	for i := range before {
		assert.Same(t, before[i], after[i], "slot %d", i)
		assert.Equal(t, scores[i], after[i].Score(), "slot %d", i)
	}
}

func TestPopulationFromVectors(t *testing.T) {
	params := SearchParams{Parents: 2, Spawn: 1}
	m := newTestModel(t, nil)
	mut := mustMutator(t, SingleRate(0.2, 1))
	vectors := []*Vector{
		VectorFrom([]float64{0, 1}, 9),
		VectorFrom([]float64{1, 0}, 3),
		VectorFrom([]float64{2, 0}, 1),
		VectorFrom([]float64{0, 0}, 4),
	}

	pop, err := PopulationFromVectors(m, mut, nil, 2, params, vectors)
	require.NoError(t, err)
	assert.Equal(t, 0, pop.Evaluations())
	assert.Equal(t, 1.0, pop.Best().Score())
	assertSorted(t, pop)

	_, err = PopulationFromVectors(m, mut, nil, 2, params, vectors[:3])
	assert.ErrorIs(t, err, ErrSnapshotMismatch)

	_, err = PopulationFromVectors(m, mut, nil, 3, params, vectors)
	assert.ErrorIs(t, err, ErrSnapshotMismatch)
}

func TestFitTwoTeams(t *testing.T) {
	m := newTestModel(t, nil)
	games := []league.Game{{Home: 0, HomeScore: 20, Away: 1, AwayScore: 10}}
	rng := seeded(8)
	pop, err := NewPopulation(rng, m, mustMutator(t, SingleRate(0.2, 1)), games, 2, SearchParams{Parents: 20, Spawn: 3})
	require.NoError(t, err)

	_, err = NewDriver(pop, rng).Run(context.Background(), 150)
	require.NoError(t, err)

	best := pop.Best()
	a, _ := best.Rating(0)
	b, _ := best.Rating(1)
	assert.Greater(t, a, b)

	p, err := m.HomeWinProbability(games[0], best)
	require.NoError(t, err)
	assert.Greater(t, p, 0.5)
}

func TestFitSymmetricRoundRobin(t *testing.T) {
	m := newTestModel(t, func(p *ModelParams) { p.HomeFieldAdvantage = 0 })
	rng := seeded(9)
	pop, err := NewPopulation(rng, m, mustMutator(t, Tiered()), roundRobinGames(), 3, SearchParams{Parents: 20, Spawn: 3})
	require.NoError(t, err)

	_, err = NewDriver(pop, rng).Run(context.Background(), 300)
	require.NoError(t, err)

	r := pop.Best().Ratings()
	assert.InDelta(t, r[0], r[1], 0.3)
	assert.InDelta(t, r[1], r[2], 0.3)
	assert.InDelta(t, r[0], r[2], 0.3)
}

func TestDeterministicGivenSeed(t *testing.T) {
	run := func() []float64 {
		rng := seeded(10)
		pop, err := NewPopulation(rng, newTestModel(t, nil), mustMutator(t, Tiered()), roundRobinGames(), 3, SearchParams{Parents: 5, Spawn: 2})
		require.NoError(t, err)
		_, err = NewDriver(pop, rng).Run(context.Background(), 20)
		require.NoError(t, err)
		return pop.Best().Ratings()
	}
	assert.Equal(t, run(), run())
}

type countingObserver struct{ stats []GenerationStats }

func (c *countingObserver) ObserveGeneration(s GenerationStats) { c.stats = append(c.stats, s) }

func TestDriverObserverAndCancel(t *testing.T) {
	rng := seeded(11)
	pop, err := NewPopulation(rng, newTestModel(t, nil), mustMutator(t, Tiered()), roundRobinGames(), 3, SearchParams{Parents: 3, Spawn: 1})
	require.NoError(t, err)

	obs := &countingObserver{}
	d := NewDriver(pop, rng, WithObserver(obs), WithLogEvery(2))
	stats, err := d.Run(context.Background(), 6)
	require.NoError(t, err)
	require.Len(t, obs.stats, 6)
	assert.Equal(t, 6, stats.Generation)
	assert.Equal(t, pop.Best().Score(), stats.Best)
	assert.LessOrEqual(t, stats.Best, stats.Mean)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err = d.Run(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 6, stats.Generation)
}

func assertSorted(t *testing.T, pop *Population) {
	t.Helper()
	v := pop.Vectors()
	for i := 1; i < len(v); i++ {
		assert.LessOrEqual(t, v[i-1].Score(), v[i].Score(), "slot %d", i)
	}
}
