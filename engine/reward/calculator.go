package reward

import (
	"math"

	"github.com/questforge/engine/config"
	"github.com/questforge/engine/model"
)

// Calculator maps (quest, player state) to a reward amount. It is a pure
// function of its inputs: identical (quest, streak, high-score flag) always
// yields the identical amount, which the idempotency tests rely on.
type Calculator struct {
	cfg config.RewardsConfig
}

// NewCalculator creates a Calculator with the given constants.
func NewCalculator(cfg config.RewardsConfig) *Calculator {
	return &Calculator{cfg: cfg}
}

// DifficultyFactor scales the base reward by quest tier. Tier 1 is 1.0.
func (c *Calculator) DifficultyFactor(tier int) float64 {
	if tier < 1 {
		tier = 1
	}
	return 1 + c.cfg.DifficultyStep*float64(tier-1)
}

// Compute returns the reward for completing the quest with the given streak
// count (1 = first completion in a window) and high-score flag. The result
// is floored to whole reward points; no fractional remainder is carried.
func (c *Calculator) Compute(quest *model.QuestDefinition, streak int, newHighScore bool) int64 {
	base := float64(quest.RewardPoints)
	amount := base * c.DifficultyFactor(quest.Tier)

	if newHighScore {
		amount += float64(c.cfg.HighScoreBonus)
	}

	// The streak bonus kicks in from the second consecutive completion and
	// is capped so compounding stays bounded.
	if streak > 1 {
		multiplier := float64(streak-1) * c.cfg.StreakStepRate
		if multiplier > c.cfg.MultiplierCap {
			multiplier = c.cfg.MultiplierCap
		}
		amount += base * multiplier
	}

	return int64(math.Floor(amount))
}
