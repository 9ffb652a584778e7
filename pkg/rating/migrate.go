package rating

// NeedsMigration reports whether an item carries Elo state but no
// Bradley-Terry state, as libraries rated before the Bradley-Terry model do.
func NeedsMigration(item Item) bool {
	return item.EloRating > 0 && item.Theta == 0 && item.ThetaPrior == 0 && item.ThetaMLE == 0
}

// MigrateFromElo derives Bradley-Terry state for an Elo-rated item. The
// user's existing rating (Elo / scale) seeds the evidence estimate and the
// consensus score seeds the prior. Counters are kept; the posterior starts at
// the evidence estimate so the displayed rating does not jump.
func MigrateFromElo(item Item, eloScale float64) (Item, error) {
	if err := item.Validate(); err != nil {
		return item, err
	}
	if eloScale <= 0 || !isFinite(eloScale) {
		eloScale = DefaultEloScale
	}

	consensus := SanitizeScore(item.ConsensusScore)
	prior := seed(consensus, eloScale).Theta

	evidence := prior
	if item.EloRating > 0 {
		userRating := clamp(item.EloRating/eloScale, MinPriorScore, MaxPriorScore)
		evidence = Logit(userRating / MaxConsensusScore)
	}

	migrated := item
	migrated.ConsensusScore = consensus
	migrated.ThetaPrior = prior
	migrated.ThetaMLE = evidence
	migrated.Theta = evidence

	// Older records may carry wins without matching losses
	games := float64(item.ComparisonCount + item.TieCount)
	if migrated.Wins > games {
		migrated.Wins = games
	}
	migrated.Losses = games - migrated.Wins

	if err := migrated.Validate(); err != nil {
		return item, err
	}
	return migrated, nil
}
