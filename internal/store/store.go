package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/utakatalp/league-ratings/internal/league"
	"github.com/utakatalp/league-ratings/internal/snapshot"
)

var ErrNoSnapshot = errors.New("no snapshot stored")

// Store wraps a Postgres connection and persists teams, games and rating
// population snapshots.
type Store struct {
	DB *sql.DB
}

// Snapshot is a stored population in rank order.
type Snapshot struct {
	ID         uuid.UUID
	CreatedAt  time.Time
	Generation int
	Teams      []string
	Rows       []snapshot.Row
}

// NewStore opens a Postgres connection using the given connection string.
func NewStore(ctx context.Context, connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// verify early
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// Migrate creates the necessary tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS teams (
		    id   SERIAL PRIMARY KEY,
		    name TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS games (
		    id         SERIAL PRIMARY KEY,
		    played_on  TEXT    NOT NULL DEFAULT '',
		    home_team  TEXT    NOT NULL REFERENCES teams(name),
		    home_score INT     NOT NULL CHECK (home_score >= 0),
		    away_team  TEXT    NOT NULL REFERENCES teams(name),
		    away_score INT     NOT NULL CHECK (away_score >= 0),
		    neutral    BOOLEAN NOT NULL DEFAULT FALSE
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
		    id         UUID PRIMARY KEY,
		    seq        BIGSERIAL   NOT NULL,
		    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		    generation INT         NOT NULL,
		    teams      TEXT[]      NOT NULL
		);`,
		`ALTER TABLE snapshots ADD COLUMN IF NOT EXISTS seq BIGSERIAL NOT NULL;`,
		`CREATE TABLE IF NOT EXISTS snapshot_rows (
		    snapshot_id UUID             NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		    rank        INT              NOT NULL,
		    score       DOUBLE PRECISION NOT NULL,
		    ratings     DOUBLE PRECISION[] NOT NULL,
		    PRIMARY KEY (snapshot_id, rank)
		);`,
	}
	for _, q := range queries {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
	}
	return nil
}

// InsertTeams stores team names, ignoring names already present.
func (s *Store) InsertTeams(ctx context.Context, teams *league.Teams) error {
	const q = `INSERT INTO teams (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`
	for _, name := range teams.Names() {
		if _, err := s.DB.ExecContext(ctx, q, name); err != nil {
			return fmt.Errorf("inserting team %s: %w", name, err)
		}
	}
	return nil
}

// GetTeams returns the stored teams in insertion order.
func (s *Store) GetTeams(ctx context.Context) (*league.Teams, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT name FROM teams ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying teams: %w", err)
	}
	defer rows.Close()

	teams, err := league.NewTeams()
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning team row: %w", err)
		}
		if _, err := teams.Add(name); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating teams rows: %w", err)
	}
	return teams, nil
}

// SaveGames appends game records in a single transaction.
func (s *Store) SaveGames(ctx context.Context, records []league.GameRecord) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin SaveGames tx: %w", err)
	}
	defer tx.Rollback()

	const q = `
INSERT INTO games (played_on, home_team, home_score, away_team, away_score, neutral)
VALUES ($1, $2, $3, $4, $5, $6)
`
	for i, r := range records {
		if _, err := tx.ExecContext(ctx, q, r.Date, r.HomeTeam, r.HomeScore, r.AwayTeam, r.AwayScore, r.Neutral); err != nil {
			return fmt.Errorf("saving game %d (%s vs %s): %w", i, r.HomeTeam, r.AwayTeam, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit SaveGames tx: %w", err)
	}
	return nil
}

// LoadGames fetches all stored games in insertion order.
func (s *Store) LoadGames(ctx context.Context) ([]league.GameRecord, error) {
	const q = `
SELECT played_on, home_team, home_score, away_team, away_score, neutral
FROM games
ORDER BY id
`
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying games: %w", err)
	}
	defer rows.Close()

	var games []league.GameRecord
	for rows.Next() {
		var g league.GameRecord
		if err := rows.Scan(&g.Date, &g.HomeTeam, &g.HomeScore, &g.AwayTeam, &g.AwayScore, &g.Neutral); err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// SaveSnapshot stores a ranked population and returns its id.
func (s *Store) SaveSnapshot(ctx context.Context, teams []string, generation int, rows []snapshot.Row) (uuid.UUID, error) {
	id := uuid.New()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin SaveSnapshot tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, generation, teams) VALUES ($1, $2, $3)`,
		id, generation, pq.Array(teams),
	); err != nil {
		return uuid.Nil, fmt.Errorf("saving snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_rows (snapshot_id, rank, score, ratings) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return uuid.Nil, fmt.Errorf("preparing snapshot rows: %w", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		if len(r.Ratings) != len(teams) {
			return uuid.Nil, fmt.Errorf("%w: row %d has %d ratings for %d teams", snapshot.ErrBadSnapshot, i, len(r.Ratings), len(teams))
		}
		if _, err := stmt.ExecContext(ctx, id, i, r.Score, pq.Array(r.Ratings)); err != nil {
			return uuid.Nil, fmt.Errorf("saving snapshot row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit SaveSnapshot tx: %w", err)
	}
	return id, nil
}

// LatestSnapshot loads the most recent snapshot. limit caps the number of
// rows returned, best first; limit <= 0 returns them all.
func (s *Store) LatestSnapshot(ctx context.Context, limit int) (*Snapshot, error) {
	snap := &Snapshot{}
	err := s.DB.QueryRowContext(ctx, `
SELECT id, created_at, generation, teams
FROM snapshots
ORDER BY created_at DESC, seq DESC
LIMIT 1
`).Scan(&snap.ID, &snap.CreatedAt, &snap.Generation, pq.Array(&snap.Teams))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	q := `SELECT score, ratings FROM snapshot_rows WHERE snapshot_id = $1 ORDER BY rank`
	args := []any{snap.ID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r snapshot.Row
		var ratings pq.Float64Array
		if err := rows.Scan(&r.Score, &ratings); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		r.Ratings = []float64(ratings)
		snap.Rows = append(snap.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshot rows: %w", err)
	}
	return snap, nil
}

// GetTable ranks the best candidate of the latest snapshot.
func (s *Store) GetTable(ctx context.Context) ([]league.TableEntry, *Snapshot, error) {
	snap, err := s.LatestSnapshot(ctx, 1)
	if err != nil {
		return nil, nil, err
	}
	if len(snap.Rows) == 0 {
		return nil, nil, fmt.Errorf("snapshot %s has no rows: %w", snap.ID, ErrNoSnapshot)
	}
	teams, err := league.NewTeams(snap.Teams...)
	if err != nil {
		return nil, nil, err
	}
	table, err := league.RankTable(teams, snap.Rows[0].Ratings)
	if err != nil {
		return nil, nil, err
	}
	return table, snap, nil
}

func (s *Store) DeleteAllGames(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM games;`)
	if err != nil {
		return fmt.Errorf("deleting all games: %w", err)
	}
	return nil
}

func (s *Store) DeleteAllTeams(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM teams;`)
	if err != nil {
		return fmt.Errorf("deleting all teams: %w", err)
	}
	return nil
}

func (s *Store) DeleteAllSnapshots(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM snapshots;`)
	if err != nil {
		return fmt.Errorf("deleting all snapshots: %w", err)
	}
	return nil
}
