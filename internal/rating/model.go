package rating

import (
	"errors"
	"fmt"
	"math"

	"github.com/utakatalp/league-ratings/internal/league"
)

var (
	ErrInvalidParams  = errors.New("invalid model parameters")
	ErrTiedGame       = errors.New("tied game")
	ErrNonFiniteScore = errors.New("non-finite score")
)

// Interpolation selects how the quality-win factor falls between the lower
// and upper margin thresholds.
type Interpolation string

const (
	// InterpolateOffset measures the margin from the lower threshold, so
	// qwf falls continuously from the peak at LB to zero at UB.
	InterpolateOffset Interpolation = "offset"
	// InterpolateRaw measures the raw margin. qwf drops below the peak as
	// soon as mov passes LB and is clamped at zero.
	InterpolateRaw Interpolation = "raw"
)

// TiePolicy defines the likelihood of a drawn game.
type TiePolicy string

const (
	TieReject TiePolicy = "reject"
	// TieSplit credits each side with half a win: pHome^0.5 * pAway^0.5.
	TieSplit TiePolicy = "split"
)

// ModelParams configures the outcome probability model.
type ModelParams struct {
	HomeFieldAdvantage float64       `yaml:"home_field_advantage"`
	QualityWinFactor   float64       `yaml:"quality_win_factor"`
	QualityWinLower    float64       `yaml:"quality_win_lower"`
	QualityWinUpper    float64       `yaml:"quality_win_upper"`
	StrengthOfSchedule float64       `yaml:"strength_of_schedule"`
	Interpolation      Interpolation `yaml:"interpolation"`
	Ties               TiePolicy     `yaml:"ties"`
}

func DefaultModelParams() ModelParams {
	return ModelParams{
		HomeFieldAdvantage: 0.3,
		QualityWinFactor:   0.05,
		QualityWinLower:    7,
		QualityWinUpper:    24,
		StrengthOfSchedule: 0.1,
		Interpolation:      InterpolateOffset,
		Ties:               TieReject,
	}
}

func (p ModelParams) Validate() error {
	switch {
	case p.HomeFieldAdvantage <= -1:
		return fmt.Errorf("%w: home field advantage %v must be > -1", ErrInvalidParams, p.HomeFieldAdvantage)
	case p.QualityWinLower < 0:
		return fmt.Errorf("%w: quality win lower bound %v is negative", ErrInvalidParams, p.QualityWinLower)
	case p.QualityWinLower >= p.QualityWinUpper:
		return fmt.Errorf("%w: quality win lower bound %v must be below upper bound %v", ErrInvalidParams, p.QualityWinLower, p.QualityWinUpper)
	case p.QualityWinFactor < 0 || p.StrengthOfSchedule < 0:
		return fmt.Errorf("%w: quality win and strength of schedule factors must be non-negative", ErrInvalidParams)
	case p.QualityWinFactor+p.StrengthOfSchedule >= 1:
		return fmt.Errorf("%w: quality win + strength of schedule = %v must be below 1", ErrInvalidParams, p.QualityWinFactor+p.StrengthOfSchedule)
	}
	switch p.Interpolation {
	case InterpolateOffset, InterpolateRaw:
	default:
		return fmt.Errorf("%w: unknown interpolation %q", ErrInvalidParams, p.Interpolation)
	}
	switch p.Ties {
	case TieReject, TieSplit:
	default:
		return fmt.Errorf("%w: unknown tie policy %q", ErrInvalidParams, p.Ties)
	}
	return nil
}

// Model assigns probabilities to game outcomes on a log2 rating scale: a
// one point rating gap doubles the odds.
type Model struct {
	params ModelParams
	hfa    float64
}

func NewModel(p ModelParams) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Model{params: p, hfa: math.Log2(1 + p.HomeFieldAdvantage)}, nil
}

func (m *Model) Params() ModelParams { return m.params }

// HFAFactor is the rating bonus given to a non-neutral home side.
func (m *Model) HFAFactor() float64 { return m.hfa }

// WinProbability is 2^a / (2^a + 2^b).
func WinProbability(a, b float64) float64 {
	// 1 / (1 + 2^(b-a)) is the same ratio without overflowing for large ratings
	return 1 / (1 + math.Exp2(b-a))
}

func (m *Model) ratings(g league.Game, r Ratings) (home, away float64, err error) {
	if home, err = r.Rating(g.Home); err != nil {
		return 0, 0, err
	}
	if away, err = r.Rating(g.Away); err != nil {
		return 0, 0, err
	}
	if !g.Neutral {
		home += m.hfa
	}
	return home, away, nil
}

func (m *Model) HomeWinProbability(g league.Game, r Ratings) (float64, error) {
	home, away, err := m.ratings(g, r)
	if err != nil {
		return 0, err
	}
	return WinProbability(home, away), nil
}

func (m *Model) AwayWinProbability(g league.Game, r Ratings) (float64, error) {
	home, away, err := m.ratings(g, r)
	if err != nil {
		return 0, err
	}
	return WinProbability(away, home), nil
}

// TeamWinProbability is the probability that team wins g.
func (m *Model) TeamWinProbability(g league.Game, r Ratings, team league.TeamID) (float64, error) {
	if g.Home == team {
		return m.HomeWinProbability(g, r)
	}
	if g.Away != team {
		return 0, fmt.Errorf("team %d did not play in this game: %w", team, league.ErrUnknownTeam)
	}
	return m.AwayWinProbability(g, r)
}

// QualityWin returns the quality-win factor for a margin of victory.
func (m *Model) QualityWin(mov float64) float64 {
	p := m.params
	switch {
	case mov >= p.QualityWinUpper:
		return 0
	case mov <= p.QualityWinLower:
		return p.QualityWinFactor
	}
	span := p.QualityWinUpper - p.QualityWinLower
	if p.Interpolation == InterpolateRaw {
		return math.Max(0, (1-mov/span)*p.QualityWinFactor)
	}
	return (1 - (mov-p.QualityWinLower)/span) * p.QualityWinFactor
}

// Probability is the likelihood the model assigns to g's observed outcome:
// winP^(1-qwf-sos) * loseP^(qwf+sos).
func (m *Model) Probability(g league.Game, r Ratings) (float64, error) {
	home, away, err := m.ratings(g, r)
	if err != nil {
		return 0, err
	}
	pHome := WinProbability(home, away)
	pAway := WinProbability(away, home)

	if g.IsTie() {
		if m.params.Ties != TieSplit {
			return 0, fmt.Errorf("%w: %d-%d", ErrTiedGame, g.HomeScore, g.AwayScore)
		}
		return math.Sqrt(pHome) * math.Sqrt(pAway), nil
	}

	winP, loseP := pAway, pHome
	if g.HomeWon() {
		winP, loseP = pHome, pAway
	}
	soft := m.QualityWin(float64(g.MOV())) + m.params.StrengthOfSchedule
	return math.Pow(winP, 1-soft) * math.Pow(loseP, soft), nil
}
