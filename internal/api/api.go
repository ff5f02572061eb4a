// Package api serves stored rating results over HTTP. It only reads; runs
// are produced by the rank command.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/utakatalp/league-ratings/internal/league"
	"github.com/utakatalp/league-ratings/internal/metrics"
	"github.com/utakatalp/league-ratings/internal/rating"
	"github.com/utakatalp/league-ratings/internal/store"
)

// Source is the read side of the store.
type Source interface {
	GetTable(ctx context.Context) ([]league.TableEntry, *store.Snapshot, error)
	LoadGames(ctx context.Context) ([]league.GameRecord, error)
}

type Server struct {
	src     Source
	model   *rating.Model
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewServer(src Source, model *rating.Model, logger *zap.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{src: src, model: model, logger: logger, metrics: m}
}

// Router wires every route onto a gorilla/mux router.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.HandleFunc("/ratings", s.table).Methods(http.MethodGet)
	r.HandleFunc("/ratings/{team}", s.team).Methods(http.MethodGet)
	return r
}

type TableResponse struct {
	SnapshotID string              `json:"snapshot_id"`
	CreatedAt  time.Time           `json:"created_at"`
	Generation int                 `json:"generation"`
	Score      float64             `json:"score"`
	Table      []league.TableEntry `json:"table"`
}

// GameView is one game of a team's season with the fitted probability that
// the team wins it.
type GameView struct {
	Date           string  `json:"date,omitempty"`
	Opponent       string  `json:"opponent"`
	Site           string  `json:"site"`
	PointsFor      int     `json:"points_for"`
	PointsAgainst  int     `json:"points_against"`
	WinProbability float64 `json:"win_probability"`
}

type TeamResponse struct {
	Team   string     `json:"team"`
	Rank   int        `json:"rank"`
	Rating float64    `json:"rating"`
	Season []GameView `json:"season"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) best(ctx context.Context) (*store.Snapshot, *league.Teams, []league.TableEntry, error) {
	table, snap, err := s.src.GetTable(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	teams, err := league.NewTeams(snap.Teams...)
	if err != nil {
		return nil, nil, nil, err
	}
	return snap, teams, table, nil
}

func (s *Server) table(w http.ResponseWriter, r *http.Request) {
	snap, _, table, err := s.best(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TableResponse{
		SnapshotID: snap.ID.String(),
		CreatedAt:  snap.CreatedAt,
		Generation: snap.Generation,
		Score:      snap.Rows[0].Score,
		Table:      table,
	})
}

func (s *Server) team(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["team"]
	snap, teams, table, err := s.best(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	id, err := teams.ID(name)
	if err != nil {
		s.fail(w, err)
		return
	}
	records, err := s.src.LoadGames(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	// the stored games may include teams outside this run
	games, _, err := league.ResolveGames(records, teams, league.ResolveOptions{SkipUnknownTeams: true})
	if err != nil {
		s.fail(w, err)
		return
	}

	best := rating.VectorFrom(snap.Rows[0].Ratings, snap.Rows[0].Score)
	resp := TeamResponse{Team: name, Season: []GameView{}}
	resp.Rating, _ = best.Rating(id)
	for _, e := range table {
		if e.Team == name {
			resp.Rank = e.Rank
		}
	}
	for _, g := range league.Season(games, id) {
		p, err := s.model.TeamWinProbability(g, best, id)
		if err != nil {
			s.fail(w, err)
			return
		}
		opp, _ := teams.Name(g.Opponent(id))
		view := GameView{Date: g.Date, Opponent: opp, WinProbability: p}
		switch {
		case g.Neutral:
			view.Site = "neutral"
		case g.Home == id:
			view.Site = "home"
		default:
			view.Site = "away"
		}
		view.PointsFor, view.PointsAgainst = g.HomeScore, g.AwayScore
		if g.Away == id {
			view.PointsFor, view.PointsAgainst = g.AwayScore, g.HomeScore
		}
		resp.Season = append(resp.Season, view)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNoSnapshot), errors.Is(err, league.ErrUnknownTeam):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
