package data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pashagolub/prefrank/pkg/rating"
)

func TestParseEntriesCSV(t *testing.T) {
	engine := rating.DefaultConfig()

	t.Run("valid file", func(t *testing.T) {
		input := `id,title,score,media_type,year
tt01,Heat,8.3,movie,1995
tt02,The Wire,9.3,tv,2002
tt03,Cats,2.8,,2019
`
		result, err := ParseEntriesCSV(strings.NewReader(input), DefaultCSVConfig(), engine)
		require.NoError(t, err)

		require.Len(t, result.Entries, 3)
		assert.Equal(t, 3, result.SuccessfulRows)
		assert.Equal(t, 4, result.TotalRows)
		assert.Empty(t, result.ParseErrors)
		assert.Equal(t, []string{"year"}, result.Metadata.UnmappedColumns)

		heat := result.Entries[0]
		assert.Equal(t, "tt01", heat.ID())
		assert.Equal(t, "Heat", heat.Title)
		assert.Equal(t, MediaMovie, heat.MediaType)
		assert.Equal(t, 8.3, heat.Item.ConsensusScore)
		assert.Equal(t, rating.Seed(8.3).Theta, heat.Item.ThetaPrior)
		assert.False(t, heat.Rated())

		assert.Equal(t, MediaTV, result.Entries[1].MediaType)
		assert.Equal(t, MediaMovie, result.Entries[2].MediaType)
	})

	t.Run("missing and out of range scores", func(t *testing.T) {
		input := "id,title,score\na,Alpha,\nb,Beta,14\nc,Gamma,-2\n"
		result, err := ParseEntriesCSV(strings.NewReader(input), DefaultCSVConfig(), engine)
		require.NoError(t, err)

		require.Len(t, result.Entries, 3)
		assert.Equal(t, rating.DefaultConsensusScore, result.Entries[0].Item.ConsensusScore)
		assert.Equal(t, 10.0, result.Entries[1].Item.ConsensusScore)
		assert.Equal(t, 0.0, result.Entries[2].Item.ConsensusScore)
		assert.Equal(t, []int{2}, result.DefaultedRows)
		assert.Equal(t, []int{3, 4}, result.ClampedRows)
	})

	t.Run("bad rows are reported and skipped", func(t *testing.T) {
		input := `id,title,score,media_type
a,Alpha,7
,NoID,5
b,,5
c,Gamma,great
d,Delta,NaN
a,Again,6
e,Epsilon,5,podcast
,,
f,Phi,4
`
		result, err := ParseEntriesCSV(strings.NewReader(input), DefaultCSVConfig(), engine)
		require.NoError(t, err)

		ids := make([]string, 0, len(result.Entries))
		for _, e := range result.Entries {
			ids = append(ids, e.ID())
		}
		assert.Equal(t, []string{"a", "f"}, ids)
		assert.Len(t, result.ParseErrors, 6)
		assert.Equal(t, []int{9}, result.SkippedRows)

		fields := make([]string, 0, len(result.ParseErrors))
		for _, pe := range result.ParseErrors {
			fields = append(fields, pe.Field)
		}
		assert.Equal(t, []string{"id", "title", "score", "score", "id", "media_type"}, fields)
		assert.Contains(t, result.ParseErrors[4].Error(), "duplicate of row 2")
	})

	t.Run("custom columns and delimiter", func(t *testing.T) {
		config := DefaultCSVConfig()
		config.IDColumn = "tmdb_id"
		config.TitleColumn = "Name"
		config.ScoreColumn = "vote_average"
		config.Delimiter = ";"

		input := "TMDB_ID;name;vote_average\n603;The Matrix;8.2\n"
		result, err := ParseEntriesCSV(strings.NewReader(input), config, engine)
		require.NoError(t, err)
		require.Len(t, result.Entries, 1)
		assert.Equal(t, "603", result.Entries[0].ID())
		assert.Equal(t, 8.2, result.Entries[0].Item.ConsensusScore)
	})

	t.Run("headerless input uses positional columns", func(t *testing.T) {
		config := DefaultCSVConfig()
		config.HasHeader = false

		result, err := ParseEntriesCSV(strings.NewReader("x1,Xanadu,3.1,movie\n"), config, engine)
		require.NoError(t, err)
		require.Len(t, result.Entries, 1)
		assert.Equal(t, "Xanadu", result.Entries[0].Title)
	})

	t.Run("required columns", func(t *testing.T) {
		_, err := ParseEntriesCSV(strings.NewReader("name,score\nA,1\n"), DefaultCSVConfig(), engine)
		assert.ErrorIs(t, err, ErrCSVFormat)

		_, err = ParseEntriesCSV(strings.NewReader("id,score\nA,1\n"), DefaultCSVConfig(), engine)
		assert.ErrorIs(t, err, ErrCSVFormat)
	})

	t.Run("empty input", func(t *testing.T) {
		result, err := ParseEntriesCSV(strings.NewReader(""), DefaultCSVConfig(), engine)
		require.NoError(t, err)
		assert.Empty(t, result.Entries)
	})
}

func TestLoadEntriesFromCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,title,score\nm1,One,5\n"), 0644))

	result, err := LoadEntriesFromCSV(path, DefaultCSVConfig(), rating.DefaultConfig())
	require.NoError(t, err)
	assert.Len(t, result.Entries, 1)

	_, err = LoadEntriesFromCSV(filepath.Join(t.TempDir(), "missing.csv"), DefaultCSVConfig(), rating.DefaultConfig())
	assert.ErrorIs(t, err, ErrCSVFormat)
}
