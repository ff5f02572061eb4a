package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utakatalp/league-ratings/internal/league"
	"github.com/utakatalp/league-ratings/internal/metrics"
	"github.com/utakatalp/league-ratings/internal/rating"
	"github.com/utakatalp/league-ratings/internal/snapshot"
	"github.com/utakatalp/league-ratings/internal/store"
)

type fakeSource struct {
	snap    *store.Snapshot
	games   []league.GameRecord
	gameErr error
}

func (f *fakeSource) GetTable(context.Context) ([]league.TableEntry, *store.Snapshot, error) {
	if f.snap == nil || len(f.snap.Rows) == 0 {
		return nil, nil, store.ErrNoSnapshot
	}
	teams, err := league.NewTeams(f.snap.Teams...)
	if err != nil {
		return nil, nil, err
	}
	table, err := league.RankTable(teams, f.snap.Rows[0].Ratings)
	if err != nil {
		return nil, nil, err
	}
	return table, f.snap, nil
}

func (f *fakeSource) LoadGames(context.Context) ([]league.GameRecord, error) {
	return f.games, f.gameErr
}

func newTestServer(t *testing.T, src Source) http.Handler {
	t.Helper()
	model, err := rating.NewModel(rating.DefaultModelParams())
	require.NoError(t, err)
	return NewServer(src, model, nil, metrics.New()).Router()
}

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func sampleSource() *fakeSource {
	return &fakeSource{
		snap: &store.Snapshot{
			ID:         uuid.MustParse("1b4e28ba-2fa1-11d2-883f-0016d3cca427"),
			CreatedAt:  time.Date(2015, 12, 13, 0, 0, 0, 0, time.UTC),
			Generation: 200,
			Teams:      []string{"Army", "Navy", "Air Force"},
			Rows: []snapshot.Row{
				{Score: 3.5, Ratings: []float64{-1, 1, 0}},
				{Score: 4.0, Ratings: []float64{0, 0, 0}},
			},
		},
		games: []league.GameRecord{
			{Date: "2015-10-03", HomeTeam: "Air Force", HomeScore: 20, AwayTeam: "Navy", AwayScore: 33},
			{Date: "2015-11-07", HomeTeam: "Army", HomeScore: 3, AwayTeam: "Air Force", AwayScore: 20},
			{Date: "2015-12-12", HomeTeam: "Army", HomeScore: 17, AwayTeam: "Navy", AwayScore: 21, Neutral: true},
			{Date: "2015-09-05", HomeTeam: "Navy", HomeScore: 48, AwayTeam: "Colgate", AwayScore: 10},
		},
	}
}

func TestHealth(t *testing.T) {
	rec := serve(newTestServer(t, &fakeSource{}), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestTable(t *testing.T) {
	rec := serve(newTestServer(t, sampleSource()), "/ratings")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TableResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1b4e28ba-2fa1-11d2-883f-0016d3cca427", resp.SnapshotID)
	assert.Equal(t, 200, resp.Generation)
	assert.Equal(t, 3.5, resp.Score)
	assert.Equal(t, []league.TableEntry{
		{Rank: 1, Team: "Navy", Rating: 1},
		{Rank: 2, Team: "Air Force", Rating: 0},
		{Rank: 3, Team: "Army", Rating: -1},
	}, resp.Table)
}

func TestTableWithoutSnapshot(t *testing.T) {
	rec := serve(newTestServer(t, &fakeSource{}), "/ratings")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTeamSeason(t *testing.T) {
	rec := serve(newTestServer(t, sampleSource()), "/ratings/Navy")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TeamResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Navy", resp.Team)
	assert.Equal(t, 1, resp.Rank)
	assert.Equal(t, 1.0, resp.Rating)
	// the game against Colgate is outside the rated teams
	require.Len(t, resp.Season, 2)

	afa := resp.Season[0]
	assert.Equal(t, "2015-10-03", afa.Date)
	assert.Equal(t, "Air Force", afa.Opponent)
	assert.Equal(t, "away", afa.Site)
	assert.Equal(t, 33, afa.PointsFor)
	assert.Equal(t, 20, afa.PointsAgainst)
	assert.InDelta(t, 2/(2+1.3), afa.WinProbability, 1e-9)

	army := resp.Season[1]
	assert.Equal(t, "neutral", army.Site)
	assert.InDelta(t, 0.8, army.WinProbability, 1e-9)
}

func TestTeamNotFound(t *testing.T) {
	rec := serve(newTestServer(t, sampleSource()), "/ratings/Harvard")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTeamGamesError(t *testing.T) {
	src := sampleSource()
	src.gameErr = errors.New("connection reset")
	rec := serve(newTestServer(t, src), "/ratings/Navy")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestMetricsRoute(t *testing.T) {
	h := newTestServer(t, sampleSource())
	serve(h, "/ratings")
	rec := serve(h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ratings_http_requests_total{code="200",route="/ratings"} 1`)
}
