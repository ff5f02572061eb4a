package league

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownTeam   = errors.New("unknown team")
	ErrDuplicateTeam = errors.New("duplicate team")
	ErrInvalidGame   = errors.New("invalid game")
)

// TeamID is a dense per-run index assigned in load order.
type TeamID int

// Team represents a club in the league.
type Team struct {
	ID   TeamID `json:"id"`
	Name string `json:"name"`
}

// Teams is the name<->id table for one run. IDs are stable for the lifetime
// of the registry and index directly into rating slices.
type Teams struct {
	names []string
	ids   map[string]TeamID
}

func NewTeams(names ...string) (*Teams, error) {
	t := &Teams{ids: make(map[string]TeamID, len(names))}
	for _, n := range names {
		if _, err := t.Add(n); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add registers a new team and returns its id.
func (t *Teams) Add(name string) (TeamID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("adding team: empty name")
	}
	if t.ids == nil {
		t.ids = make(map[string]TeamID)
	}
	if _, ok := t.ids[name]; ok {
		return 0, fmt.Errorf("adding team %q: %w", name, ErrDuplicateTeam)
	}
	id := TeamID(len(t.names))
	t.names = append(t.names, name)
	t.ids[name] = id
	return id, nil
}

func (t *Teams) ID(name string) (TeamID, error) {
	id, ok := t.ids[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTeam, name)
	}
	return id, nil
}

func (t *Teams) Has(name string) bool {
	_, ok := t.ids[name]
	return ok
}

func (t *Teams) Name(id TeamID) (string, error) {
	if id < 0 || int(id) >= len(t.names) {
		return "", fmt.Errorf("%w: id %d", ErrUnknownTeam, id)
	}
	return t.names[id], nil
}

func (t *Teams) Len() int { return len(t.names) }

// Names returns the team names in id order.
func (t *Teams) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

func (t *Teams) All() []Team {
	out := make([]Team, len(t.names))
	for i, n := range t.names {
		out[i] = Team{ID: TeamID(i), Name: n}
	}
	return out
}

// Merge returns a new registry holding t's teams followed by other's.
func (t *Teams) Merge(other *Teams) (*Teams, error) {
	return NewTeams(append(t.Names(), other.Names()...)...)
}

// GameRecord is an unresolved result as read from a score source.
type GameRecord struct {
	Date      string
	HomeTeam  string
	HomeScore int
	AwayTeam  string
	AwayScore int
	Neutral   bool
}

// Game is a completed contest between two registered teams.
type Game struct {
	Home      TeamID
	HomeScore int
	Away      TeamID
	AwayScore int
	Neutral   bool
	Date      string
}

// MOV is the margin of victory.
func (g Game) MOV() int {
	if g.HomeScore > g.AwayScore {
		return g.HomeScore - g.AwayScore
	}
	return g.AwayScore - g.HomeScore
}

func (g Game) IsTie() bool { return g.HomeScore == g.AwayScore }

func (g Game) HomeWon() bool { return g.HomeScore > g.AwayScore }

func (g Game) Involves(id TeamID) bool { return g.Home == id || g.Away == id }

// Opponent returns the other side of the game from id's point of view.
func (g Game) Opponent(id TeamID) TeamID {
	if g.Home == id {
		return g.Away
	}
	return g.Home
}

// ResolveOptions controls how records naming unregistered teams are handled.
type ResolveOptions struct {
	// SkipUnknownTeams drops games that reference a team outside the
	// registry instead of failing.
	SkipUnknownTeams bool
}

// ResolveGames maps records onto registry ids. It returns the resolved games
// and the number of records skipped.
func ResolveGames(records []GameRecord, teams *Teams, opts ResolveOptions) ([]Game, int, error) {
	games := make([]Game, 0, len(records))
	skipped := 0
	for i, r := range records {
		if r.HomeScore < 0 || r.AwayScore < 0 {
			return nil, 0, fmt.Errorf("game %d (%s vs %s): negative score: %w", i, r.HomeTeam, r.AwayTeam, ErrInvalidGame)
		}
		if r.HomeTeam == r.AwayTeam {
			return nil, 0, fmt.Errorf("game %d: %s plays itself: %w", i, r.HomeTeam, ErrInvalidGame)
		}
		home, herr := teams.ID(r.HomeTeam)
		away, aerr := teams.ID(r.AwayTeam)
		if err := errors.Join(herr, aerr); err != nil {
			if opts.SkipUnknownTeams {
				skipped++
				continue
			}
			return nil, 0, fmt.Errorf("game %d: %w", i, err)
		}
		games = append(games, Game{
			Home:      home,
			HomeScore: r.HomeScore,
			Away:      away,
			AwayScore: r.AwayScore,
			Neutral:   r.Neutral,
			Date:      r.Date,
		})
	}
	return games, skipped, nil
}

// Season returns the games a team took part in, in source order.
func Season(games []Game, id TeamID) []Game {
	var out []Game
	for _, g := range games {
		if g.Involves(id) {
			out = append(out, g)
		}
	}
	return out
}

// TableEntry holds one row of a ranked ratings table.
type TableEntry struct {
	Rank   int     `json:"rank"`
	Team   string  `json:"team"`
	Rating float64 `json:"rating"`
}
