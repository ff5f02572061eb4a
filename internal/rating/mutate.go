package rating

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// MutationTier is one band of a mutation scheme: with Probability a team's
// rating receives a N(0, StdDev) perturbation.
type MutationTier struct {
	Probability float64 `yaml:"probability"`
	StdDev      float64 `yaml:"stddev"`
}

// SingleRate is the one-band scheme: every team mutates with rate and
// volatility.
func SingleRate(rate, volatility float64) []MutationTier {
	return []MutationTier{{Probability: rate, StdDev: volatility}}
}

// Tiered mixes rare large jumps with frequent small refinements.
func Tiered() []MutationTier {
	return []MutationTier{
		{Probability: 0.02, StdDev: 1.0},
		{Probability: 0.10, StdDev: 0.25},
		{Probability: 0.30, StdDev: 0.05},
	}
}

// Mutator perturbs rating slices. Tiers are mutually exclusive: for each
// team one uniform draw picks at most one band.
type Mutator struct {
	tiers []MutationTier
	cum   []float64
}

func NewMutator(tiers []MutationTier) (*Mutator, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: mutation needs at least one tier", ErrInvalidParams)
	}
	cum := make([]float64, len(tiers))
	total := 0.0
	for i, t := range tiers {
		if t.Probability <= 0 || t.Probability > 1 {
			return nil, fmt.Errorf("%w: tier %d probability %v outside (0,1]", ErrInvalidParams, i, t.Probability)
		}
		if t.StdDev <= 0 {
			return nil, fmt.Errorf("%w: tier %d stddev %v must be positive", ErrInvalidParams, i, t.StdDev)
		}
		total += t.Probability
		cum[i] = total
	}
	if total > 1+1e-9 {
		return nil, fmt.Errorf("%w: tier probabilities sum to %v", ErrInvalidParams, total)
	}
	return &Mutator{tiers: append([]MutationTier(nil), tiers...), cum: cum}, nil
}

func (m *Mutator) Tiers() []MutationTier {
	return append([]MutationTier(nil), m.tiers...)
}

// Perturb returns a mutated copy of parent. Teams that draw no band keep the
// parent's exact value.
func (m *Mutator) Perturb(rng *rand.Rand, parent []float64) []float64 {
	child := make([]float64, len(parent))
	copy(child, parent)
	for i := range child {
		u := rng.Float64()
		for k, c := range m.cum {
			if u < c {
				n := distuv.Normal{Mu: 0, Sigma: m.tiers[k].StdDev, Src: rng}
				child[i] += n.Rand()
				break
			}
		}
	}
	return child
}
