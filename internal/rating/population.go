package rating

import (
	"cmp"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/utakatalp/league-ratings/internal/league"
)

var ErrSnapshotMismatch = errors.New("snapshot does not match population")

// SearchParams sizes the population. Parents are the elite kept each
// generation; each parent spawns Spawn children.
type SearchParams struct {
	Parents     int `yaml:"parents"`
	Spawn       int `yaml:"spawn"`
	Generations int `yaml:"generations"`
}

func DefaultSearchParams() SearchParams {
	return SearchParams{Parents: 100, Spawn: 3, Generations: 200}
}

// Size is the fixed population capacity P*(1+S).
func (p SearchParams) Size() int { return p.Parents * (1 + p.Spawn) }

func (p SearchParams) Validate() error {
	if p.Parents < 1 || p.Spawn < 1 {
		return fmt.Errorf("%w: need at least one parent and one child per parent, got parents=%d spawn=%d", ErrInvalidParams, p.Parents, p.Spawn)
	}
	if p.Generations < 0 {
		return fmt.Errorf("%w: negative generation count %d", ErrInvalidParams, p.Generations)
	}
	return nil
}

// Population is a fixed-size set of candidate vectors kept sorted by score,
// best first. It is not safe for concurrent use.
type Population struct {
	model   *Model
	mutator *Mutator
	games   []league.Game
	params  SearchParams
	teams   int

	vectors     []*Vector
	generation  int
	evaluations int
}

// NewPopulation seeds a population from an all-zero baseline: Size() mutated
// children are scored and sorted.
func NewPopulation(rng *rand.Rand, model *Model, mut *Mutator, games []league.Game, teams int, params SearchParams) (*Population, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	p := &Population{model: model, mutator: mut, games: games, params: params, teams: teams}

	base := NewVector(teams)
	if err := p.evaluate(base); err != nil {
		return nil, fmt.Errorf("scoring baseline: %w", err)
	}
	p.vectors = make([]*Vector, params.Size())
	for i := range p.vectors {
		child := base.Mutate(rng, mut)
		if err := p.evaluate(child); err != nil {
			return nil, fmt.Errorf("scoring initial candidate %d: %w", i, err)
		}
		p.vectors[i] = child
	}
	p.sort()
	return p, nil
}

// PopulationFromVectors restores a population from previously scored
// vectors, such as a snapshot. Scores are trusted and not recomputed.
func PopulationFromVectors(model *Model, mut *Mutator, games []league.Game, teams int, params SearchParams, vectors []*Vector) (*Population, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(vectors) != params.Size() {
		return nil, fmt.Errorf("%w: %d candidates, population holds %d", ErrSnapshotMismatch, len(vectors), params.Size())
	}
	for i, v := range vectors {
		if v.Len() != teams {
			return nil, fmt.Errorf("%w: candidate %d rates %d teams, expected %d", ErrSnapshotMismatch, i, v.Len(), teams)
		}
	}
	p := &Population{
		model:   model,
		mutator: mut,
		games:   games,
		params:  params,
		teams:   teams,
		vectors: slices.Clone(vectors),
	}
	p.sort()
	return p, nil
}

func (p *Population) evaluate(v *Vector) error {
	p.evaluations++
	return v.Evaluate(p.model, p.games)
}

func (p *Population) sort() {
	slices.SortStableFunc(p.vectors, func(a, b *Vector) int {
		return cmp.Compare(a.score, b.score)
	})
}

// NextGeneration overwrites every non-elite slot i+j*P with a child of elite
// i, scores the new children, and re-sorts. Elite slots [0,P) are never
// written and keep their scores, which are unchanged because their ratings
// are. If any child fails to score the population is left as it was.
func (p *Population) NextGeneration(rng *rand.Rand) error {
	parents := p.params.Parents
	children := make([]*Vector, len(p.vectors)-parents)
	for i := 0; i < parents; i++ {
		for j := 1; j <= p.params.Spawn; j++ {
			children[i+(j-1)*parents] = p.vectors[i].Mutate(rng, p.mutator)
		}
	}
	for k, c := range children {
		if err := p.evaluate(c); err != nil {
			return fmt.Errorf("generation %d, candidate %d: %w", p.generation+1, k+parents, err)
		}
	}
	copy(p.vectors[parents:], children)
	p.sort()
	p.generation++
	return nil
}

// Best is the lowest-scoring candidate.
func (p *Population) Best() *Vector { return p.vectors[0] }

// Vectors returns the candidates in rank order.
func (p *Population) Vectors() []*Vector { return slices.Clone(p.vectors) }

func (p *Population) Len() int { return len(p.vectors) }

func (p *Population) Generation() int { return p.generation }

func (p *Population) Evaluations() int { return p.evaluations }

func (p *Population) Params() SearchParams { return p.params }

// GenerationStats summarises the population after a generation.
type GenerationStats struct {
	Generation  int
	Best        float64
	Mean        float64
	StdDev      float64
	Evaluations int
}

func (p *Population) Stats() GenerationStats {
	scores := make([]float64, len(p.vectors))
	for i, v := range p.vectors {
		scores[i] = v.score
	}
	mean, std := stat.MeanStdDev(scores, nil)
	return GenerationStats{
		Generation:  p.generation,
		Best:        scores[0],
		Mean:        mean,
		StdDev:      std,
		Evaluations: p.evaluations,
	}
}
