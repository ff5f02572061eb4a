package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/utakatalp/league-ratings/internal/league"
	"github.com/utakatalp/league-ratings/internal/rating"
	"github.com/utakatalp/league-ratings/internal/scores"
)

var (
	simTeamFiles []string
	simOut       string
	simTruth     string
	simSeed      uint64
	simSpread    float64
	simNeutral   float64
	simSingle    bool

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Write a synthetic season whose results follow the model",
		Long: `Draw hidden ratings for every team, play a round-robin season where each
winner is drawn from the model's win probability, and write the results as a
fixed-width score file. The hidden ratings can be written with --truth to
check how well rank recovers them.`,
		RunE: runSimulate,
	}
)

func init() {
	f := simulateCmd.Flags()
	f.StringArrayVar(&simTeamFiles, "teams", nil, "team list file (repeatable)")
	f.StringVar(&simOut, "out", "", "score file to write (default stdout)")
	f.StringVar(&simTruth, "truth", "", "write the hidden ratings table to this file")
	f.Uint64Var(&simSeed, "seed", 1, "random seed")
	f.Float64Var(&simSpread, "spread", 1, "standard deviation of the hidden ratings")
	f.Float64Var(&simNeutral, "neutral", 0, "fraction of games played at a neutral site")
	f.BoolVar(&simSingle, "single", false, "single round-robin instead of home and away")
	simulateCmd.MarkFlagRequired("teams")
}

var seasonStart = time.Date(2015, time.September, 5, 0, 0, 0, 0, time.UTC)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if simSpread <= 0 || simNeutral < 0 || simNeutral > 1 {
		return fmt.Errorf("spread must be positive and neutral within [0,1]")
	}

	teams, err := scores.LoadTeams(simTeamFiles...)
	if err != nil {
		return err
	}
	model, err := rating.NewModel(cfg.ModelParams())
	if err != nil {
		return err
	}
	rng := newRNG(simSeed)

	hidden := rating.NewVector(teams.Len())
	dist := distuv.Normal{Mu: 0, Sigma: simSpread, Src: rng}
	for _, t := range teams.All() {
		if err := hidden.SetRating(t.ID, dist.Rand()); err != nil {
			return err
		}
	}

	ids := make([]league.TeamID, teams.Len())
	for i := range ids {
		ids[i] = league.TeamID(i)
	}
	season := league.GenerateFullSeason(ids)
	if simSingle {
		season = league.GenerateSchedule(ids)
	}

	var records []league.GameRecord
	for _, round := range season {
		for _, f := range round {
			neutral := rng.Float64() < simNeutral
			p, err := model.HomeWinProbability(league.Game{Home: f.Home, Away: f.Away, Neutral: neutral}, hidden)
			if err != nil {
				return err
			}
			g := league.SimulateGame(rng, f, p, neutral)
			logger.Debug("game played", zap.Int("week", f.Week), zap.String("result", g.ScoreLine(teams)))
			home, _ := teams.Name(g.Home)
			away, _ := teams.Name(g.Away)
			records = append(records, league.GameRecord{
				Date:      seasonStart.AddDate(0, 0, 7*(f.Week-1)).Format(time.DateOnly),
				HomeTeam:  home,
				HomeScore: g.HomeScore,
				AwayTeam:  away,
				AwayScore: g.AwayScore,
				Neutral:   g.Neutral,
			})
		}
	}

	writeScores := func(w io.Writer) error { return scores.WriteGames(w, records) }
	if simOut == "" {
		err = writeScores(cmd.OutOrStdout())
	} else {
		err = writeFile(simOut, writeScores)
	}
	if err != nil {
		return err
	}

	if simTruth != "" {
		table, err := league.RankTable(teams, hidden.Ratings())
		if err != nil {
			return err
		}
		score, err := rating.NegLogLikelihood(model, hidden, mustResolve(records, teams))
		if err != nil {
			return err
		}
		err = writeFile(simTruth, func(w io.Writer) error {
			league.PrintTable(w, "Hidden ratings", table, score)
			return nil
		})
		if err != nil {
			return err
		}
	}

	logger.Info("season simulated",
		zap.Int("teams", teams.Len()),
		zap.Int("games", len(records)),
		zap.Uint64("seed", simSeed),
	)
	return nil
}

// writeFile creates path and fills it with write, returning the close error.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

// mustResolve resolves records built from teams itself, which cannot
// reference an unknown team.
func mustResolve(records []league.GameRecord, teams *league.Teams) []league.Game {
	games, _, err := league.ResolveGames(records, teams, league.ResolveOptions{})
	if err != nil {
		panic(err)
	}
	return games
}
