// internal/league/logic.go
package league

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"sort"
)

const bye TeamID = -1

// Fixture is a scheduled pairing that has not been played yet.
type Fixture struct {
	Home, Away TeamID
	Week       int
}

func (g Game) ScoreLine(teams *Teams) string {
	home, _ := teams.Name(g.Home)
	away, _ := teams.Name(g.Away)
	return fmt.Sprintf("%s %d - %d %s", home, g.HomeScore, g.AwayScore, away)
}

// SimulateGame plays a fixture given the probability that the home side wins.
// The winner is drawn from homeWinProb; the scoreline is Poisson noise
// arranged so the drawn winner scores more.
func SimulateGame(rng *rand.Rand, f Fixture, homeWinProb float64, neutral bool) Game {
	a := samplePoisson(rng, 21)
	b := samplePoisson(rng, 21)
	lo, hi := min(a, b), max(a, b)
	if hi == lo {
		hi++
	}
	// the fixed-width score format holds two digits
	if hi > 99 {
		hi = 99
		if lo >= hi {
			lo = hi - 1
		}
	}

	g := Game{Home: f.Home, Away: f.Away, Neutral: neutral}
	if rng.Float64() < homeWinProb {
		g.HomeScore, g.AwayScore = hi, lo
	} else {
		g.HomeScore, g.AwayScore = lo, hi
	}
	return g
}

// GenerateFullSeason returns a double round-robin: the single round-robin
// followed by the same rounds with home and away swapped.
func GenerateFullSeason(teams []TeamID) [][]Fixture {
	firstHalf := GenerateSchedule(teams)
	secondHalf := make([][]Fixture, len(firstHalf))
	for i, rnd := range firstHalf {
		swapped := make([]Fixture, len(rnd))
		for j, f := range rnd {
			swapped[j] = Fixture{Home: f.Away, Away: f.Home, Week: len(firstHalf) + i + 1}
		}
		secondHalf[i] = swapped
	}
	return append(firstHalf, secondHalf...)
}

// GenerateSchedule returns a round-robin schedule for the provided teams
// using the circle method. Each team meets every other team exactly once.
func GenerateSchedule(teams []TeamID) [][]Fixture {
	rot := make([]TeamID, len(teams), len(teams)+1)
	copy(rot, teams)
	if len(rot)%2 != 0 {
		rot = append(rot, bye)
	}
	n := len(rot)
	if n < 2 {
		return nil
	}

	rounds := make([][]Fixture, n-1)
	for i := 0; i < n-1; i++ {
		round := make([]Fixture, 0, n/2)
		for j := 0; j < n/2; j++ {
			home := rot[j]
			away := rot[n-1-j]
			if home != bye && away != bye {
				round = append(round, Fixture{Home: home, Away: away, Week: i + 1})
			}
		}
		rounds[i] = round

		// rotate everyone but the first slot
		last := rot[n-1]
		copy(rot[2:], rot[1:n-1])
		rot[1] = last
	}
	return rounds
}

// samplePoisson generates a random sample from a Poisson distribution with mean lambda
func samplePoisson(rng *rand.Rand, lambda float64) int {
	L := math.Exp(-lambda)
	p := 1.0
	k := 0
	for p > L {
		k++
		p *= rng.Float64()
	}
	return k - 1
}

// RankTable orders ratings from strongest to weakest. Equal ratings are
// ordered by name so output is stable.
func RankTable(teams *Teams, ratings []float64) ([]TableEntry, error) {
	if len(ratings) != teams.Len() {
		return nil, fmt.Errorf("ranking %d ratings for %d teams: %w", len(ratings), teams.Len(), ErrUnknownTeam)
	}
	entries := make([]TableEntry, len(ratings))
	for i, r := range ratings {
		name, err := teams.Name(TeamID(i))
		if err != nil {
			return nil, err
		}
		entries[i] = TableEntry{Team: name, Rating: r}
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		return a.Team < b.Team
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

func PrintTable(w io.Writer, label string, table []TableEntry, score float64) {
	width := len("Team")
	for _, e := range table {
		width = max(width, len(e.Team))
	}
	if label != "" {
		fmt.Fprintln(w, label)
	}
	fmt.Fprintf(w, "%4s  %-*s  %8s\n", "Rank", width, "Team", "Rating")
	for _, e := range table {
		fmt.Fprintf(w, "%4d  %-*s  %8.3f\n", e.Rank, width, e.Team, e.Rating)
	}
	fmt.Fprintf(w, "Score: %.6f\n", score)
}
