package achievement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/questforge/engine/config"
	"github.com/questforge/engine/engine/hook"
	"github.com/questforge/engine/engine/issuer"
	"github.com/questforge/engine/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Manager evolves a player's achievement tier. Tier is a step function over
// the configured threshold table and never decreases, even when events
// arrive out of order.
type Manager struct {
	db     *gorm.DB
	issuer issuer.TokenIssuer
	tiers  []int64
	hooks  *hook.Center
	logger *zap.Logger
}

// NewManager creates an achievement Manager. Thresholds must be ascending.
func NewManager(db *gorm.DB, ti issuer.TokenIssuer, cfg config.AchievementsConfig, hooks *hook.Center, logger *zap.Logger) *Manager {
	return &Manager{db: db, issuer: ti, tiers: cfg.Tiers, hooks: hooks, logger: logger}
}

// TierFor returns the largest configured tier whose threshold does not
// exceed the score. Tier 0 means no threshold reached yet.
func (m *Manager) TierFor(score int64) int {
	tier := 0
	for i, threshold := range m.tiers {
		if score >= threshold {
			tier = i + 1
		} else {
			break
		}
	}
	return tier
}

// OnProgress recomputes the candidate tier for the player's cumulative score
// and evolves the token if the candidate exceeds the current tier. Lower
// candidates are ignored; the recorded tier is always max(current, candidate).
func (m *Manager) OnProgress(ctx context.Context, player string, totalScore int64) (*model.AchievementToken, error) {
	token, exists, err := m.load(ctx, player)
	if err != nil {
		return nil, err
	}

	candidate := m.TierFor(totalScore)
	if candidate <= token.Tier {
		if totalScore > token.ScoreSnapshot {
			token.ScoreSnapshot = totalScore
			if err := m.persist(ctx, token, exists); err != nil {
				return nil, err
			}
		}
		return token, nil
	}

	history := decodeHistory(token.History)
	now := time.Now()
	// An evolution can skip tiers when a large score jump arrives; each
	// crossed threshold still gets its own history entry.
	for t := token.Tier + 1; t <= candidate; t++ {
		history = append(history, model.TierEvolution{Tier: t, Score: totalScore, At: now})
	}
	historyJSON, _ := json.Marshal(history)

	token.Tier = candidate
	token.ScoreSnapshot = totalScore
	token.History = datatypes.JSON(historyJSON)
	if err := m.persist(ctx, token, exists); err != nil {
		return nil, err
	}

	if err := m.issuer.MintAchievement(ctx, player, candidate, fmt.Sprintf("tier-%d", candidate)); err != nil {
		// The tier evolution is already durable; the external mint can be
		// re-driven by the operator.
		m.logger.Error("achievement mint failed",
			zap.String("player", player),
			zap.Int("tier", candidate),
			zap.Error(err))
	}

	m.logger.Info("achievement tier evolved",
		zap.String("player", player),
		zap.Int("tier", candidate),
		zap.Int64("score", totalScore))
	if m.hooks != nil {
		_, _ = m.hooks.Trigger(ctx, hook.OnTierEvolved, token)
	}
	return token, nil
}

// Get returns the player's achievement token, or a zero-tier token if the
// player has no recorded achievements yet. Read-only.
func (m *Manager) Get(ctx context.Context, player string) (*model.AchievementToken, error) {
	token, _, err := m.load(ctx, player)
	return token, err
}

func (m *Manager) load(ctx context.Context, player string) (*model.AchievementToken, bool, error) {
	var token model.AchievementToken
	err := m.db.WithContext(ctx).Where("player_id = ?", player).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.AchievementToken{
			PlayerID: player,
			History:  datatypes.JSON([]byte("[]")),
		}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &token, true, nil
}

func (m *Manager) persist(ctx context.Context, token *model.AchievementToken, exists bool) error {
	if exists {
		return m.db.WithContext(ctx).Save(token).Error
	}
	return m.db.WithContext(ctx).Create(token).Error
}

func decodeHistory(raw datatypes.JSON) []model.TierEvolution {
	var history []model.TierEvolution
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &history)
	}
	return history
}
