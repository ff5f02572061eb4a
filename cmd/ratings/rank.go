package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/utakatalp/league-ratings/internal/config"
	"github.com/utakatalp/league-ratings/internal/league"
	"github.com/utakatalp/league-ratings/internal/metrics"
	"github.com/utakatalp/league-ratings/internal/rating"
	"github.com/utakatalp/league-ratings/internal/scores"
	"github.com/utakatalp/league-ratings/internal/snapshot"
	"github.com/utakatalp/league-ratings/internal/store"
)

var (
	rankTeamFiles  []string
	rankScoreFiles []string
	rankResume     string
	rankResumeDB   bool
	rankSave       string
	rankUseDB      bool
	rankMetrics    string
	rankTiered     bool
	rankGens       int
	rankSeed       uint64
	rankParents    int
	rankSpawn      int

	rankCmd = &cobra.Command{
		Use:   "rank",
		Short: "Fit ratings to the games and print the ranked table",
		Long: `Fit ratings by evolving a population of candidate rating vectors.

Teams and games come from --teams/--scores files, or from the database when
--db is set and no files are given. --generations 0 runs until interrupted;
the best table so far is printed either way.`,
		RunE: runRank,
	}
)

func init() {
	f := rankCmd.Flags()
	f.StringArrayVar(&rankTeamFiles, "teams", nil, "team list file (repeatable, merged in order)")
	f.StringArrayVar(&rankScoreFiles, "scores", nil, "fixed-width score file (repeatable)")
	f.StringVar(&rankResume, "resume", "", "resume from a CSV population snapshot")
	f.BoolVar(&rankResumeDB, "resume-db", false, "resume from the latest snapshot in the database")
	f.StringVar(&rankSave, "save", "", "write the final population to a CSV snapshot")
	f.BoolVar(&rankUseDB, "db", false, "read inputs from and save the final population to the database")
	f.StringVar(&rankMetrics, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	f.BoolVar(&rankTiered, "tiered", false, "use the tiered mutation preset")
	f.IntVar(&rankGens, "generations", 0, "number of generations (overrides config; 0 runs until interrupted)")
	f.Uint64Var(&rankSeed, "seed", 0, "random seed (overrides config; 0 picks one from the clock)")
	f.IntVar(&rankParents, "parents", 0, "elite count (overrides config)")
	f.IntVar(&rankSpawn, "spawn", 0, "children per elite (overrides config)")
}

func applyRankFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("generations") {
		cfg.Search.Generations = rankGens
	}
	if flags.Changed("parents") {
		cfg.Search.Parents = rankParents
	}
	if flags.Changed("spawn") {
		cfg.Search.Spawn = rankSpawn
	}
	if flags.Changed("seed") {
		cfg.Seed = rankSeed
	}
	if rankTiered {
		cfg.UseTieredMutation()
	}
	return cfg.Validate()
}

func runRank(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if err := applyRankFlags(cmd, cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st *store.Store
	if rankUseDB || rankResumeDB {
		if st, err = openStore(ctx, cfg); err != nil {
			return err
		}
		defer st.Close()
	}

	teams, records, err := loadInputs(ctx, st, rankTeamFiles, rankScoreFiles)
	if err != nil {
		return err
	}
	games, skipped, err := league.ResolveGames(records, teams, league.ResolveOptions{SkipUnknownTeams: cfg.SkipUnknownTeams})
	if err != nil {
		return fmt.Errorf("resolving games: %w", err)
	}
	logger.Info("inputs loaded",
		zap.Int("teams", teams.Len()),
		zap.Int("games", len(games)),
		zap.Int("skipped", skipped),
	)

	model, err := rating.NewModel(cfg.ModelParams())
	if err != nil {
		return err
	}
	mut, err := rating.NewMutator(cfg.MutationTiers())
	if err != nil {
		return err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	logger.Info("random seed", zap.Uint64("seed", seed))
	rng := newRNG(seed)

	pop, err := initialPopulation(ctx, st, rng, model, mut, teams, games, cfg.SearchParams())
	if err != nil {
		return err
	}
	logger.Info("population ready",
		zap.Int("size", pop.Params().Size()),
		zap.Int("generation", pop.Generation()),
		zap.Float64("best", pop.Best().Score()),
		zap.Float64("hfa_factor", model.HFAFactor()),
		zap.String("interpolation", string(model.Params().Interpolation)),
		zap.Int("mutation_tiers", len(mut.Tiers())),
	)

	m := metrics.New()
	if rankMetrics != "" {
		srv := &http.Server{Addr: rankMetrics, Handler: m.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	driver := rating.NewDriver(pop, rng,
		rating.WithLogger(logger),
		rating.WithObserver(m),
		rating.WithLogEvery(cfg.Search.LogEvery),
	)
	stats, err := driver.Run(ctx, cfg.Search.Generations)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Warn("interrupted", zap.Int("generation", stats.Generation))
	case err != nil:
		return err
	}

	best := pop.Best()
	table, err := league.RankTable(teams, best.Ratings())
	if err != nil {
		return err
	}
	league.PrintTable(cmd.OutOrStdout(), "", table, best.Score())

	rows := snapshot.FromPopulation(pop)
	if rankSave != "" {
		if err := snapshot.Save(rankSave, teams.Names(), rows); err != nil {
			return err
		}
		logger.Info("snapshot saved", zap.String("path", rankSave))
	}
	if rankUseDB {
		// the signal context may already be cancelled; saving must still happen
		id, err := st.SaveSnapshot(context.WithoutCancel(ctx), teams.Names(), pop.Generation(), rows)
		if err != nil {
			return err
		}
		logger.Info("snapshot stored", zap.String("id", id.String()))
	}
	return nil
}

// loadInputs reads teams and game records from files, falling back to the
// store when no files are given.
func loadInputs(ctx context.Context, st *store.Store, teamFiles, scoreFiles []string) (*league.Teams, []league.GameRecord, error) {
	var (
		teams   *league.Teams
		records []league.GameRecord
		err     error
	)
	switch {
	case len(teamFiles) > 0:
		teams, err = scores.LoadTeams(teamFiles...)
	case st != nil:
		teams, err = st.GetTeams(ctx)
	default:
		return nil, nil, errors.New("no team list: pass --teams or --db")
	}
	if err != nil {
		return nil, nil, err
	}
	switch {
	case len(scoreFiles) > 0:
		records, err = scores.LoadGames(scoreFiles...)
	case st != nil:
		records, err = st.LoadGames(ctx)
	default:
		return nil, nil, errors.New("no scores: pass --scores or --db")
	}
	if err != nil {
		return nil, nil, err
	}
	if teams.Len() == 0 {
		return nil, nil, errors.New("team list is empty")
	}
	return teams, records, nil
}

func initialPopulation(ctx context.Context, st *store.Store, rng *rand.Rand, model *rating.Model, mut *rating.Mutator, teams *league.Teams, games []league.Game, params rating.SearchParams) (*rating.Population, error) {
	var (
		header []string
		rows   []snapshot.Row
		err    error
	)
	switch {
	case rankResume != "":
		header, rows, err = snapshot.Load(rankResume)
	case rankResumeDB:
		var snap *store.Snapshot
		if snap, err = st.LatestSnapshot(ctx, 0); err == nil {
			header, rows = snap.Teams, snap.Rows
		}
	default:
		return rating.NewPopulation(rng, model, mut, games, teams.Len(), params)
	}
	if err != nil {
		return nil, err
	}
	vectors, err := snapshot.Vectors(teams, header, rows)
	if err != nil {
		return nil, err
	}
	return rating.PopulationFromVectors(model, mut, games, teams.Len(), params, vectors)
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("no database configured: set database.url or DATABASE_URL")
	}
	st, err := store.NewStore(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
