package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateFromElo(t *testing.T) {
	t.Run("user rating seeds the evidence estimate", func(t *testing.T) {
		legacy := Item{ID: "m", ConsensusScore: 7.0, EloRating: 820, ComparisonCount: 6, Wins: 4}
		require.True(t, NeedsMigration(legacy))

		migrated, err := MigrateFromElo(legacy, DefaultEloScale)
		require.NoError(t, err)

		assert.InDelta(t, Seed(7.0).Theta, migrated.ThetaPrior, tolerance)
		assert.InDelta(t, Logit(0.82), migrated.ThetaMLE, tolerance)
		assert.Equal(t, migrated.ThetaMLE, migrated.Theta)
		assert.InDelta(t, 8.2, DisplayRating(migrated, BradleyTerry{}), 1e-6)
		assert.Equal(t, 820.0, migrated.EloRating)
		assert.Equal(t, 6, migrated.ComparisonCount)
		assert.Equal(t, 2.0, migrated.Losses)
		assert.False(t, NeedsMigration(migrated))
	})

	t.Run("inconsistent counters are repaired", func(t *testing.T) {
		legacy := Item{ID: "m", ConsensusScore: 5, EloRating: 500, ComparisonCount: 2, Wins: 7}
		migrated, err := MigrateFromElo(legacy, 0)
		require.NoError(t, err)
		assert.Equal(t, 2.0, migrated.Wins)
		assert.Equal(t, 0.0, migrated.Losses)
	})

	t.Run("extreme elo is clamped before the logit", func(t *testing.T) {
		legacy := Item{ID: "m", ConsensusScore: 5, EloRating: 2500}
		migrated, err := MigrateFromElo(legacy, DefaultEloScale)
		require.NoError(t, err)
		assert.InDelta(t, Seed(MaxPriorScore).Theta, migrated.Theta, tolerance)
	})

	t.Run("seeded items do not need migration", func(t *testing.T) {
		assert.False(t, NeedsMigration(createItem(t, "m", 8)))
		assert.False(t, NeedsMigration(Item{ID: "m"}))
	})
}
