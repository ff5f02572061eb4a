// Package snapshot persists a rating population as CSV. The header is the
// literal column "score" followed by one column per team; each row holds a
// candidate's score followed by its ratings in header order.
package snapshot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"

	"github.com/utakatalp/league-ratings/internal/league"
	"github.com/utakatalp/league-ratings/internal/rating"
)

const scoreColumn = "score"

var ErrBadSnapshot = errors.New("bad snapshot")

// Row is one candidate in a snapshot.
type Row struct {
	Score   float64
	Ratings []float64
}

func Write(w io.Writer, teams []string, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{scoreColumn}, teams...)); err != nil {
		return fmt.Errorf("writing snapshot header: %w", err)
	}
	rec := make([]string, len(teams)+1)
	for i, r := range rows {
		if len(r.Ratings) != len(teams) {
			return fmt.Errorf("%w: row %d has %d ratings for %d teams", ErrBadSnapshot, i, len(r.Ratings), len(teams))
		}
		rec[0] = formatFloat(r.Score)
		for j, v := range r.Ratings {
			rec[j+1] = formatFloat(v)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing snapshot row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func Read(r io.Reader) ([]string, []Row, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%w: empty", ErrBadSnapshot)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading snapshot header: %w", err)
	}
	if len(header) < 2 || header[0] != scoreColumn {
		return nil, nil, fmt.Errorf("%w: header must start with %q and name at least one team", ErrBadSnapshot, scoreColumn)
	}
	teams := slices.Clone(header[1:])

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading snapshot line %d: %w", line, err)
		}
		row := Row{Ratings: make([]float64, len(teams))}
		if row.Score, err = parseFinite(rec[0]); err != nil {
			return nil, nil, fmt.Errorf("%w: line %d score: %v", ErrBadSnapshot, line, err)
		}
		for j := range teams {
			if row.Ratings[j], err = parseFinite(rec[j+1]); err != nil {
				return nil, nil, fmt.Errorf("%w: line %d team %q: %v", ErrBadSnapshot, line, teams[j], err)
			}
		}
		rows = append(rows, row)
	}
	return teams, rows, nil
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

// shortest representation that parses back to the same value
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// FromPopulation captures a population's candidates in rank order.
func FromPopulation(pop *rating.Population) []Row {
	vectors := pop.Vectors()
	rows := make([]Row, len(vectors))
	for i, v := range vectors {
		rows[i] = Row{Score: v.Score(), Ratings: v.Ratings()}
	}
	return rows
}

// Vectors converts rows for a run over teams. The snapshot's team columns
// must match the run's team order exactly.
func Vectors(teams *league.Teams, header []string, rows []Row) ([]*rating.Vector, error) {
	if !slices.Equal(teams.Names(), header) {
		return nil, fmt.Errorf("%w: snapshot teams differ from the team list", rating.ErrSnapshotMismatch)
	}
	out := make([]*rating.Vector, len(rows))
	for i, r := range rows {
		out[i] = rating.VectorFrom(r.Ratings, r.Score)
	}
	return out, nil
}

func Save(path string, teams []string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	if err := Write(f, teams, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func Load(path string) ([]string, []Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()
	return Read(f)
}
