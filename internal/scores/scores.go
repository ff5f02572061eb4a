// Package scores reads and writes the plain-text inputs of a ratings run: a
// team list with one name per line and a fixed-width score file.
//
// Score file columns (zero-based, half open, counted in characters):
//
//	[0,10)   date
//	[10,38)  first team (home side)
//	[38,40)  first team score
//	[41,69)  second team (away side)
//	[69,71)  second team score
//	[71,...) any non-blank content marks a neutral site
package scores

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/utakatalp/league-ratings/internal/league"
)

var ErrMalformedLine = errors.New("malformed score line")

const (
	dateEnd      = 10
	homeTeamEnd  = 38
	homeScoreEnd = 40
	awayTeamBeg  = 41
	awayTeamEnd  = 69
	awayScoreEnd = 71

	teamWidth = homeTeamEnd - dateEnd
	maxScore  = 99
)

// ReadGames parses a fixed-width score file.
func ReadGames(r io.Reader) ([]league.GameRecord, error) {
	var records []league.GameRecord
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), " \t\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		rec, err := parseLine(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading scores: %w", err)
	}
	return records, nil
}

func parseLine(text string) (league.GameRecord, error) {
	cols := []rune(text)
	if len(cols) < awayScoreEnd-1 {
		return league.GameRecord{}, fmt.Errorf("%w: %d columns, need %d", ErrMalformedLine, len(cols), awayScoreEnd)
	}
	// a one digit away score may leave the final column trimmed
	for len(cols) < awayScoreEnd {
		cols = append(cols, ' ')
	}
	field := func(beg, end int) string {
		return strings.TrimSpace(string(cols[beg:end]))
	}

	homeScore, err := parseScore(field(homeTeamEnd, homeScoreEnd))
	if err != nil {
		return league.GameRecord{}, err
	}
	awayScore, err := parseScore(field(awayTeamEnd, awayScoreEnd))
	if err != nil {
		return league.GameRecord{}, err
	}
	rec := league.GameRecord{
		Date:      field(0, dateEnd),
		HomeTeam:  field(dateEnd, homeTeamEnd),
		HomeScore: homeScore,
		AwayTeam:  field(awayTeamBeg, awayTeamEnd),
		AwayScore: awayScore,
		Neutral:   field(awayScoreEnd, len(cols)) != "",
	}
	if rec.HomeTeam == "" || rec.AwayTeam == "" {
		return league.GameRecord{}, fmt.Errorf("%w: missing team name", ErrMalformedLine)
	}
	return rec, nil
}

func parseScore(field string) (int, error) {
	s, err := strconv.Atoi(field)
	if err != nil {
		return 0, fmt.Errorf("%w: score %q: %v", ErrMalformedLine, field, err)
	}
	if s < 0 {
		return 0, fmt.Errorf("%w: negative score %d", ErrMalformedLine, s)
	}
	return s, nil
}

// WriteGames writes records in the fixed-width layout ReadGames accepts.
func WriteGames(w io.Writer, records []league.GameRecord) error {
	bw := bufio.NewWriter(w)
	for i, r := range records {
		if r.HomeScore < 0 || r.HomeScore > maxScore || r.AwayScore < 0 || r.AwayScore > maxScore {
			return fmt.Errorf("game %d: scores %d-%d do not fit two columns", i, r.HomeScore, r.AwayScore)
		}
		// fmt pads by rune, so widths are measured the same way
		if utf8.RuneCountInString(r.HomeTeam) > teamWidth || utf8.RuneCountInString(r.AwayTeam) > teamWidth || utf8.RuneCountInString(r.Date) > dateEnd {
			return fmt.Errorf("game %d: field wider than its column", i)
		}
		fmt.Fprintf(bw, "%-*s%-*s%2d %-*s%2d", dateEnd, r.Date, teamWidth, r.HomeTeam, r.HomeScore, teamWidth, r.AwayTeam, r.AwayScore)
		if r.Neutral {
			bw.WriteString(" N")
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadTeams parses a team list. Blank lines are skipped and names must be
// unique.
func ReadTeams(r io.Reader) (*league.Teams, error) {
	teams, err := league.NewTeams()
	if err != nil {
		return nil, err
	}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		name := strings.TrimSpace(sc.Text())
		if name == "" {
			continue
		}
		if _, err := teams.Add(name); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading teams: %w", err)
	}
	return teams, nil
}

// LoadTeams reads and merges one or more team list files in order.
func LoadTeams(paths ...string) (*league.Teams, error) {
	all, err := league.NewTeams()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("opening team list: %w", err)
		}
		teams, err := ReadTeams(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		if all, err = all.Merge(teams); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return all, nil
}

// LoadGames reads and concatenates one or more score files.
func LoadGames(paths ...string) ([]league.GameRecord, error) {
	var all []league.GameRecord
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("opening scores: %w", err)
		}
		records, err := ReadGames(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		all = append(all, records...)
	}
	return all, nil
}
