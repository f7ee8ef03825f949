package reward

import (
	"testing"
	"time"

	"github.com/questforge/engine/config"
	"github.com/questforge/engine/model"
	"github.com/stretchr/testify/assert"
)

func testRewardsCfg() config.RewardsConfig {
	return config.RewardsConfig{
		HighScoreBonus: 20,
		StreakStepRate: 0.1,
		MultiplierCap:  1.0,
		StreakWindow:   24 * time.Hour,
		DifficultyStep: 0.5,
		Kind:           "points",
	}
}

func testQuest(base int64, tier int) *model.QuestDefinition {
	return &model.QuestDefinition{
		ID:            "q1",
		Title:         "Test Quest",
		Tier:          tier,
		RequiredScore: 10,
		RewardPoints:  base,
	}
}

func TestCompute_FirstCompletionHighScore(t *testing.T) {
	calc := NewCalculator(testRewardsCfg())
	// 50 base + 20 high-score bonus, no streak bonus on the first completion.
	got := calc.Compute(testQuest(50, 1), 1, true)
	assert.Equal(t, int64(70), got)
}

func TestCompute_NoBonuses(t *testing.T) {
	calc := NewCalculator(testRewardsCfg())
	got := calc.Compute(testQuest(50, 1), 1, false)
	assert.Equal(t, int64(50), got)
}

func TestCompute_StreakBonus(t *testing.T) {
	calc := NewCalculator(testRewardsCfg())
	// streak 3 → multiplier (3-1)*0.1 = 0.2 → 50 + 10
	got := calc.Compute(testQuest(50, 1), 3, false)
	assert.Equal(t, int64(60), got)
}

func TestCompute_StreakCapped(t *testing.T) {
	calc := NewCalculator(testRewardsCfg())
	// Any streak beyond the cap yields the same bonus.
	atCap := calc.Compute(testQuest(50, 1), 11, false)
	beyond := calc.Compute(testQuest(50, 1), 100, false)
	assert.Equal(t, int64(100), atCap)
	assert.Equal(t, atCap, beyond)
}

func TestCompute_TierScaling(t *testing.T) {
	calc := NewCalculator(testRewardsCfg())
	assert.Equal(t, int64(50), calc.Compute(testQuest(50, 1), 1, false))
	assert.Equal(t, int64(75), calc.Compute(testQuest(50, 2), 1, false))
	assert.Equal(t, int64(100), calc.Compute(testQuest(50, 3), 1, false))
}

func TestCompute_FractionFloored(t *testing.T) {
	calc := NewCalculator(testRewardsCfg())
	// 25 + 25*0.1 = 27.5 → 27
	got := calc.Compute(testQuest(25, 1), 2, false)
	assert.Equal(t, int64(27), got)
}

func TestCompute_Deterministic(t *testing.T) {
	calc := NewCalculator(testRewardsCfg())
	q := testQuest(80, 2)
	first := calc.Compute(q, 4, true)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, calc.Compute(q, 4, true))
	}
}

func TestDifficultyFactor(t *testing.T) {
	calc := NewCalculator(testRewardsCfg())
	assert.Equal(t, 1.0, calc.DifficultyFactor(0)) // clamped to tier 1
	assert.Equal(t, 1.0, calc.DifficultyFactor(1))
	assert.Equal(t, 1.5, calc.DifficultyFactor(2))
	assert.Equal(t, 2.5, calc.DifficultyFactor(4))
}
