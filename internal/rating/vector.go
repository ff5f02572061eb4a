package rating

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/utakatalp/league-ratings/internal/league"
)

// Ratings looks up a team's rating by id.
type Ratings interface {
	Rating(id league.TeamID) (float64, error)
}

// Vector is one candidate assignment of ratings, indexed by TeamID, together
// with its last computed fitness score. Lower scores fit the data better.
// The score is not kept in sync with the ratings; call Evaluate after any
// change to either the ratings or the game list.
type Vector struct {
	ratings []float64
	score   float64
}

// NewVector returns a vector with every team rated zero.
func NewVector(teams int) *Vector {
	return &Vector{ratings: make([]float64, teams)}
}

// VectorFrom builds a vector from existing ratings and a previously computed
// score. The slice is copied.
func VectorFrom(ratings []float64, score float64) *Vector {
	r := make([]float64, len(ratings))
	copy(r, ratings)
	return &Vector{ratings: r, score: score}
}

func (v *Vector) Rating(id league.TeamID) (float64, error) {
	if id < 0 || int(id) >= len(v.ratings) {
		return 0, fmt.Errorf("%w: id %d not in rating vector of %d teams", league.ErrUnknownTeam, id, len(v.ratings))
	}
	return v.ratings[id], nil
}

func (v *Vector) SetRating(id league.TeamID, r float64) error {
	if id < 0 || int(id) >= len(v.ratings) {
		return fmt.Errorf("%w: id %d not in rating vector of %d teams", league.ErrUnknownTeam, id, len(v.ratings))
	}
	v.ratings[id] = r
	return nil
}

// Ratings returns a copy of the ratings in TeamID order.
func (v *Vector) Ratings() []float64 {
	out := make([]float64, len(v.ratings))
	copy(out, v.ratings)
	return out
}

func (v *Vector) Len() int { return len(v.ratings) }

func (v *Vector) Score() float64 { return v.score }

// Evaluate recomputes the vector's score against games.
func (v *Vector) Evaluate(m *Model, games []league.Game) error {
	s, err := NegLogLikelihood(m, v, games)
	if err != nil {
		return err
	}
	v.score = s
	return nil
}

// Mutate returns a perturbed copy of v. v is not modified.
func (v *Vector) Mutate(rng *rand.Rand, mut *Mutator) *Vector {
	return &Vector{ratings: mut.Perturb(rng, v.ratings)}
}

// NegLogLikelihood is -sum(log2 P(outcome)) over games. It is pure and never
// draws randomness.
func NegLogLikelihood(m *Model, r Ratings, games []league.Game) (float64, error) {
	score := 0.0
	for i, g := range games {
		p, err := m.Probability(g, r)
		if err != nil {
			return 0, fmt.Errorf("scoring game %d: %w", i, err)
		}
		score -= math.Log2(p)
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("%w: %v over %d games", ErrNonFiniteScore, score, len(games))
	}
	return score, nil
}
