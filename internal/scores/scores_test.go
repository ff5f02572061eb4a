package scores

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utakatalp/league-ratings/internal/league"
)

const sample = `2014-08-28Akron                       41 Howard                       0
2014-08-28Central Florida             24 Penn State                  26 Dublin

2014-08-30Alabama                     33 West Virginia               23 N
`

func TestReadGames(t *testing.T) {
	records, err := ReadGames(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, league.GameRecord{
		Date:      "2014-08-28",
		HomeTeam:  "Akron",
		HomeScore: 41,
		AwayTeam:  "Howard",
		AwayScore: 0,
	}, records[0])
	assert.True(t, records[1].Neutral)
	assert.Equal(t, "Penn State", records[1].AwayTeam)
	assert.Equal(t, 26, records[1].AwayScore)
	assert.True(t, records[2].Neutral)
}

func TestReadGamesMalformed(t *testing.T) {
	tests := map[string]string{
		"short":     "2014-08-28Akron  41\n",
		"bad score": "2014-08-28Akron                       4x Howard                       0\n",
		"no team":   "2014-08-28                            41 Howard                       0\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadGames(strings.NewReader(in))
			assert.ErrorIs(t, err, ErrMalformedLine)
			assert.Contains(t, err.Error(), "line 1")
		})
	}
}

func TestWriteGamesRoundTrip(t *testing.T) {
	records := []league.GameRecord{
		{Date: "2015-09-05", HomeTeam: "Ohio State", HomeScore: 42, AwayTeam: "Virginia Tech", AwayScore: 24},
		{Date: "2015-09-05", HomeTeam: "Alabama", HomeScore: 35, AwayTeam: "Wisconsin", AwayScore: 7, Neutral: true},
		{Date: "2015-09-12", HomeTeam: "Navy", HomeScore: 0, AwayTeam: "Army", AwayScore: 3},
		{Date: "2015-09-05", HomeTeam: "San José State", HomeScore: 42, AwayTeam: "Hawai'i", AwayScore: 24},
		{Date: "2015-10-17", HomeTeam: "Hawai'i", HomeScore: 3, AwayTeam: "San José State", AwayScore: 9, Neutral: true},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteGames(&buf, records))

	got, err := ReadGames(&buf)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestReadGamesCountsColumnsInCharacters(t *testing.T) {
	line := "2015-09-05" + "San José State" + strings.Repeat(" ", 14) + "42" + " " +
		"Hawai'i" + strings.Repeat(" ", 21) + "24\n"
	got, err := ReadGames(strings.NewReader(line))
	require.NoError(t, err)
	assert.Equal(t, []league.GameRecord{
		{Date: "2015-09-05", HomeTeam: "San José State", HomeScore: 42, AwayTeam: "Hawai'i", AwayScore: 24},
	}, got)
}

func TestWriteGamesRejectsWideFields(t *testing.T) {
	err := WriteGames(&bytes.Buffer{}, []league.GameRecord{{HomeTeam: "A", AwayTeam: "B", HomeScore: 100}})
	assert.Error(t, err)

	err = WriteGames(&bytes.Buffer{}, []league.GameRecord{{HomeTeam: strings.Repeat("x", 29), AwayTeam: "B"}})
	assert.Error(t, err)

	// 28 characters fit even when they take more bytes
	err = WriteGames(&bytes.Buffer{}, []league.GameRecord{{HomeTeam: strings.Repeat("é", 28), AwayTeam: "B"}})
	assert.NoError(t, err)
}

func TestReadTeams(t *testing.T) {
	teams, err := ReadTeams(strings.NewReader("Akron\n\n  Alabama \nArmy\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Akron", "Alabama", "Army"}, teams.Names())

	_, err = ReadTeams(strings.NewReader("Akron\nAkron\n"))
	assert.ErrorIs(t, err, league.ErrDuplicateTeam)
}

func TestLoadTeamsMerges(t *testing.T) {
	dir := t.TempDir()
	fbs := filepath.Join(dir, "1A.txt")
	fcs := filepath.Join(dir, "1AA.txt")
	require.NoError(t, os.WriteFile(fbs, []byte("Akron\nAlabama\n"), 0o644))
	require.NoError(t, os.WriteFile(fcs, []byte("Howard\n"), 0o644))

	teams, err := LoadTeams(fbs, fcs)
	require.NoError(t, err)
	assert.Equal(t, []string{"Akron", "Alabama", "Howard"}, teams.Names())

	_, err = LoadTeams(fbs, fbs)
	assert.ErrorIs(t, err, league.ErrDuplicateTeam)
}

func TestLoadGames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.txt")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	records, err := LoadGames(path, path)
	require.NoError(t, err)
	assert.Len(t, records, 6)

	_, err = LoadGames(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
