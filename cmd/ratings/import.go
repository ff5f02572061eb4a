package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/utakatalp/league-ratings/internal/league"
	"github.com/utakatalp/league-ratings/internal/scores"
)

var (
	importTeamFiles  []string
	importScoreFiles []string
	importReset      bool

	importCmd = &cobra.Command{
		Use:   "import",
		Short: "Load team lists and score files into the database",
		RunE:  runImport,
	}
)

func init() {
	f := importCmd.Flags()
	f.StringArrayVar(&importTeamFiles, "teams", nil, "team list file (repeatable)")
	f.StringArrayVar(&importScoreFiles, "scores", nil, "fixed-width score file (repeatable)")
	f.BoolVar(&importReset, "reset", false, "delete stored games, teams and snapshots first")
}

func runImport(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if len(importTeamFiles) == 0 && len(importScoreFiles) == 0 {
		return fmt.Errorf("nothing to import: pass --teams and/or --scores")
	}

	ctx := cmd.Context()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if importReset {
		if err := st.DeleteAllSnapshots(ctx); err != nil {
			return err
		}
		if err := st.DeleteAllGames(ctx); err != nil {
			return err
		}
		if err := st.DeleteAllTeams(ctx); err != nil {
			return err
		}
		logger.Info("database reset")
	}

	if len(importTeamFiles) > 0 {
		teams, err := scores.LoadTeams(importTeamFiles...)
		if err != nil {
			return err
		}
		if err := st.InsertTeams(ctx, teams); err != nil {
			return err
		}
		logger.Info("teams imported", zap.Int("teams", teams.Len()))
	}

	if len(importScoreFiles) > 0 {
		records, err := scores.LoadGames(importScoreFiles...)
		if err != nil {
			return err
		}
		teams, err := st.GetTeams(ctx)
		if err != nil {
			return err
		}
		records, skipped, err := knownGames(records, teams, cfg.SkipUnknownTeams)
		if err != nil {
			return err
		}
		if err := st.SaveGames(ctx, records); err != nil {
			return err
		}
		logger.Info("games imported", zap.Int("games", len(records)), zap.Int("skipped", skipped))
	}
	return nil
}

// knownGames drops records naming a team outside teams when skip is set and
// fails on them otherwise; the games table only references stored teams.
func knownGames(records []league.GameRecord, teams *league.Teams, skip bool) ([]league.GameRecord, int, error) {
	kept := make([]league.GameRecord, 0, len(records))
	for i, r := range records {
		if teams.Has(r.HomeTeam) && teams.Has(r.AwayTeam) {
			kept = append(kept, r)
			continue
		}
		if !skip {
			return nil, 0, fmt.Errorf("game %d (%s vs %s): %w", i, r.HomeTeam, r.AwayTeam, league.ErrUnknownTeam)
		}
	}
	return kept, len(records) - len(kept), nil
}
