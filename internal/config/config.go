package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/utakatalp/league-ratings/internal/rating"
)

const DefaultPath = "ratings.yaml"

// Config is the full configuration of a ratings run.
type Config struct {
	Model    ModelConfig    `yaml:"model" validate:"required"`
	Mutation MutationConfig `yaml:"mutation" validate:"required"`
	Search   SearchConfig   `yaml:"search" validate:"required"`
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`

	// SkipUnknownTeams drops games that name a team missing from the team
	// lists instead of aborting the run.
	SkipUnknownTeams bool   `yaml:"skip_unknown_teams"`
	Seed             uint64 `yaml:"seed"`
}

type ModelConfig struct {
	HomeFieldAdvantage float64 `yaml:"home_field_advantage" validate:"gt=-1"`
	QualityWinFactor   float64 `yaml:"quality_win_factor" validate:"gte=0,lt=1"`
	QualityWinLower    float64 `yaml:"quality_win_lower" validate:"gte=0"`
	QualityWinUpper    float64 `yaml:"quality_win_upper" validate:"gtfield=QualityWinLower"`
	StrengthOfSchedule float64 `yaml:"strength_of_schedule" validate:"gte=0,lt=1"`
	Interpolation      string  `yaml:"interpolation" validate:"oneof=offset raw"`
	Ties               string  `yaml:"ties" validate:"oneof=reject split"`
}

type MutationTier struct {
	Probability float64 `yaml:"probability" validate:"gt=0,lte=1"`
	StdDev      float64 `yaml:"stddev" validate:"gt=0"`
}

type MutationConfig struct {
	Tiers []MutationTier `yaml:"tiers" validate:"required,min=1,dive"`
}

type SearchConfig struct {
	Parents     int `yaml:"parents" validate:"gte=1"`
	Spawn       int `yaml:"spawn" validate:"gte=1"`
	Generations int `yaml:"generations" validate:"gte=0"`
	// LogEvery logs progress every n generations; zero disables it.
	LogEvery int `yaml:"log_every" validate:"gte=0"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

func Default() *Config {
	m := rating.DefaultModelParams()
	s := rating.DefaultSearchParams()
	return &Config{
		Model: ModelConfig{
			HomeFieldAdvantage: m.HomeFieldAdvantage,
			QualityWinFactor:   m.QualityWinFactor,
			QualityWinLower:    m.QualityWinLower,
			QualityWinUpper:    m.QualityWinUpper,
			StrengthOfSchedule: m.StrengthOfSchedule,
			Interpolation:      string(m.Interpolation),
			Ties:               string(m.Ties),
		},
		Mutation: MutationConfig{Tiers: []MutationTier{{Probability: 0.2, StdDev: 1.0}}},
		Search: SearchConfig{
			Parents:     s.Parents,
			Spawn:       s.Spawn,
			Generations: s.Generations,
			LogEvery:    10,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// DATABASE_URL, when set, overrides the configured database URL.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		}
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and then the cross-field rules the model
// and mutator enforce themselves.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", rating.ErrInvalidParams, err)
	}
	if err := c.ModelParams().Validate(); err != nil {
		return err
	}
	if _, err := rating.NewMutator(c.MutationTiers()); err != nil {
		return err
	}
	return c.SearchParams().Validate()
}

func (c *Config) ModelParams() rating.ModelParams {
	return rating.ModelParams{
		HomeFieldAdvantage: c.Model.HomeFieldAdvantage,
		QualityWinFactor:   c.Model.QualityWinFactor,
		QualityWinLower:    c.Model.QualityWinLower,
		QualityWinUpper:    c.Model.QualityWinUpper,
		StrengthOfSchedule: c.Model.StrengthOfSchedule,
		Interpolation:      rating.Interpolation(c.Model.Interpolation),
		Ties:               rating.TiePolicy(c.Model.Ties),
	}
}

func (c *Config) MutationTiers() []rating.MutationTier {
	tiers := make([]rating.MutationTier, len(c.Mutation.Tiers))
	for i, t := range c.Mutation.Tiers {
		tiers[i] = rating.MutationTier{Probability: t.Probability, StdDev: t.StdDev}
	}
	return tiers
}

func (c *Config) SearchParams() rating.SearchParams {
	return rating.SearchParams{
		Parents:     c.Search.Parents,
		Spawn:       c.Search.Spawn,
		Generations: c.Search.Generations,
	}
}

// UseTieredMutation replaces the mutation scheme with the tiered preset.
func (c *Config) UseTieredMutation() {
	preset := rating.Tiered()
	c.Mutation.Tiers = make([]MutationTier, len(preset))
	for i, t := range preset {
		c.Mutation.Tiers[i] = MutationTier{Probability: t.Probability, StdDev: t.StdDev}
	}
}

func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
