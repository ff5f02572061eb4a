package rating

import (
	"context"
	"math/rand/v2"

	"go.uber.org/zap"
)

// Observer receives per-generation statistics.
type Observer interface {
	ObserveGeneration(GenerationStats)
}

// Driver runs generations over a population it owns exclusively.
type Driver struct {
	pop      *Population
	rng      *rand.Rand
	logger   *zap.Logger
	observer Observer
	logEvery int
}

type DriverOption func(*Driver)

func WithLogger(l *zap.Logger) DriverOption {
	return func(d *Driver) { d.logger = l }
}

func WithObserver(o Observer) DriverOption {
	return func(d *Driver) { d.observer = o }
}

// WithLogEvery logs progress every n generations. Zero disables it.
func WithLogEvery(n int) DriverOption {
	return func(d *Driver) { d.logEvery = n }
}

func NewDriver(pop *Population, rng *rand.Rand, opts ...DriverOption) *Driver {
	d := &Driver{pop: pop, rng: rng, logger: zap.NewNop()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Run advances the population by generations steps. With generations <= 0 it
// runs until ctx is done. ctx is only consulted between generations; a
// cancelled run returns the statistics of the last completed generation and
// ctx's error.
func (d *Driver) Run(ctx context.Context, generations int) (GenerationStats, error) {
	stats := d.pop.Stats()
	for n := 0; generations <= 0 || n < generations; n++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := d.pop.NextGeneration(d.rng); err != nil {
			return stats, err
		}
		stats = d.pop.Stats()
		if d.observer != nil {
			d.observer.ObserveGeneration(stats)
		}
		if d.logEvery > 0 && stats.Generation%d.logEvery == 0 {
			d.logger.Info("generation complete",
				zap.Int("generation", stats.Generation),
				zap.Float64("best", stats.Best),
				zap.Float64("mean", stats.Mean),
				zap.Float64("stddev", stats.StdDev),
				zap.Int("evaluations", stats.Evaluations),
			)
		}
	}
	d.logger.Debug("run finished",
		zap.Int("generation", stats.Generation),
		zap.Float64("best", stats.Best),
	)
	return stats, nil
}
