package progress

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/questforge/engine/config"
	"github.com/questforge/engine/engine/achievement"
	"github.com/questforge/engine/engine/hook"
	"github.com/questforge/engine/engine/keylock"
	"github.com/questforge/engine/engine/registry"
	"github.com/questforge/engine/engine/reward"
	"github.com/questforge/engine/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Action is a normalized, validated inbound action forwarded by the event
// subscriber.
type Action struct {
	Type          string
	Player        string
	QuestID       string
	Score         int64
	SourceEventID string
	ObservedAt    time.Time
}

// Result reports what an applied action did.
type Result struct {
	Completed        bool
	Duplicate        bool
	AlreadyCompleted bool
	Pending          bool
	PendingReason    string
	NewHighScore     bool
	Streak           int
	Reward           int64
	RewardRecord     *model.RewardRecord
}

// Tracker owns all per-player progress state. For a given player every
// mutation runs under that player's key lock, in the order the source
// events were observed; different players proceed fully in parallel.
type Tracker struct {
	db           *gorm.DB
	registry     *registry.Service
	calc         *reward.Calculator
	ledger       *reward.Ledger
	achievements *achievement.Manager
	cfg          config.RewardsConfig
	locks        *keylock.KeyLock
	hooks        *hook.Center
	logger       *zap.Logger
}

// NewTracker creates a progress Tracker and registers it as the registry's
// completion source.
func NewTracker(
	db *gorm.DB,
	reg *registry.Service,
	calc *reward.Calculator,
	ledger *reward.Ledger,
	achievements *achievement.Manager,
	cfg config.RewardsConfig,
	hooks *hook.Center,
	logger *zap.Logger,
) *Tracker {
	t := &Tracker{
		db:           db,
		registry:     reg,
		calc:         calc,
		ledger:       ledger,
		achievements: achievements,
		cfg:          cfg,
		locks:        keylock.New(),
		hooks:        hooks,
		logger:       logger,
	}
	reg.SetCompletionSource(t)
	return t
}

// Apply processes one normalized action under the player's key lock.
//
// An ineligible action, or one below the quest's required score, is recorded
// as pending and does not qualify yet; neither is an error. An eligible,
// qualifying action marks the quest completed, updates high score / streak /
// cumulative score, issues the reward through the ledger, and feeds the
// achievement manager. The TokenIssuer is invoked before any progress state
// is persisted, so an issuance failure leaves the player untouched and the
// same source event can be retried.
func (t *Tracker) Apply(ctx context.Context, a Action) (*Result, error) {
	t.locks.Lock(a.Player)
	defer t.locks.Unlock(a.Player)

	def, err := t.registry.Get(ctx, a.QuestID)
	if err != nil {
		return nil, err
	}

	pp, exists, err := t.load(ctx, a.Player)
	if err != nil {
		return nil, err
	}

	completed := decodeSet(pp.Completed)
	if completed[a.QuestID] {
		// Dedup of redelivered events happens upstream; this is a distinct
		// event for an already-finished quest.
		t.logger.Debug("quest already completed",
			zap.String("player", a.Player),
			zap.String("quest_id", a.QuestID))
		return &Result{AlreadyCompleted: true}, nil
	}

	eligible, err := t.registry.IsEligible(ctx, a.Player, a.QuestID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return t.recordPending(ctx, a, pp, exists, "ineligible")
	}
	if a.Score < def.RequiredScore {
		return t.recordPending(ctx, a, pp, exists, "below_required")
	}

	// Completion. Work out the new state before touching storage.
	highScores := decodeScores(pp.HighScores)
	newHigh := a.Score > highScores[a.QuestID]
	if newHigh {
		highScores[a.QuestID] = a.Score
	}

	streak := 1
	if pp.LastCompletion != nil && a.ObservedAt.Sub(*pp.LastCompletion) <= t.cfg.StreakWindow {
		streak = pp.Streak + 1
	}

	amount := t.calc.Compute(def, streak, newHigh)

	// Value transfer first: if the issuer is down nothing below runs, no
	// progress is recorded, and the event stays retryable.
	record, err := t.ledger.Issue(ctx, a.Player, a.QuestID, a.SourceEventID, amount, t.cfg.Kind)
	if err != nil {
		return nil, err
	}

	completed[a.QuestID] = true
	observedAt := a.ObservedAt
	pp.Completed = encodeJSON(completed)
	pp.HighScores = encodeJSON(highScores)
	pp.Streak = streak
	pp.TotalScore += a.Score
	pp.LastCompletion = &observedAt

	if err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := persistProgress(tx, pp, exists); err != nil {
			return err
		}
		return tx.Create(&model.QuestCompletion{
			PlayerID:      a.Player,
			QuestID:       a.QuestID,
			Score:         a.Score,
			SourceEventID: a.SourceEventID,
			CompletedAt:   a.ObservedAt,
		}).Error
	}); err != nil {
		return nil, err
	}

	t.logger.Info("quest completed",
		zap.String("player", a.Player),
		zap.String("quest_id", a.QuestID),
		zap.Int64("score", a.Score),
		zap.Int("streak", streak),
		zap.Bool("new_high_score", newHigh),
		zap.Int64("reward", amount))
	if t.hooks != nil {
		_, _ = t.hooks.Trigger(ctx, hook.OnQuestCompleted, pp)
	}

	if _, err := t.achievements.OnProgress(ctx, a.Player, pp.TotalScore); err != nil {
		// Tier evolution is recoverable on the next progress event; the
		// completion and reward are already durable.
		t.logger.Error("achievement update failed",
			zap.String("player", a.Player), zap.Error(err))
	}

	return &Result{
		Completed:    true,
		NewHighScore: newHigh,
		Streak:       streak,
		Reward:       amount,
		RewardRecord: record,
	}, nil
}

// CompletedSet implements registry.CompletionSource.
func (t *Tracker) CompletedSet(ctx context.Context, player string) (map[string]bool, error) {
	pp, _, err := t.load(ctx, player)
	if err != nil {
		return nil, err
	}
	return decodeSet(pp.Completed), nil
}

// GetProgress returns the player's progress aggregate. Read-only; an
// unknown player yields an empty aggregate.
func (t *Tracker) GetProgress(ctx context.Context, player string) (*model.PlayerProgress, error) {
	pp, _, err := t.load(ctx, player)
	return pp, err
}

func (t *Tracker) recordPending(ctx context.Context, a Action, pp *model.PlayerProgress, exists bool, reason string) (*Result, error) {
	if err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The aggregate is created on the player's first action even when
		// that action does not qualify yet.
		if !exists {
			if err := persistProgress(tx, pp, false); err != nil {
				return err
			}
		}
		return tx.Create(&model.PendingAction{
			PlayerID:      a.Player,
			QuestID:       a.QuestID,
			Score:         a.Score,
			SourceEventID: a.SourceEventID,
			Reason:        reason,
			ObservedAt:    a.ObservedAt,
		}).Error
	}); err != nil {
		return nil, err
	}

	t.logger.Debug("action recorded as pending",
		zap.String("player", a.Player),
		zap.String("quest_id", a.QuestID),
		zap.String("reason", reason))
	return &Result{Pending: true, PendingReason: reason}, nil
}

func (t *Tracker) load(ctx context.Context, player string) (*model.PlayerProgress, bool, error) {
	var pp model.PlayerProgress
	err := t.db.WithContext(ctx).Where("player_id = ?", player).First(&pp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.PlayerProgress{
			PlayerID:   player,
			Completed:  datatypes.JSON([]byte("[]")),
			HighScores: datatypes.JSON([]byte("{}")),
		}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &pp, true, nil
}

func persistProgress(tx *gorm.DB, pp *model.PlayerProgress, exists bool) error {
	if exists {
		return tx.Save(pp).Error
	}
	return tx.Create(pp).Error
}

func decodeSet(raw datatypes.JSON) map[string]bool {
	set := make(map[string]bool)
	if len(raw) == 0 {
		return set
	}
	var ids []string
	_ = json.Unmarshal(raw, &ids)
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func decodeScores(raw datatypes.JSON) map[string]int64 {
	scores := make(map[string]int64)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &scores)
	}
	return scores
}

func encodeJSON(v interface{}) datatypes.JSON {
	switch m := v.(type) {
	case map[string]bool:
		ids := make([]string, 0, len(m))
		for id := range m {
			ids = append(ids, id)
		}
		raw, _ := json.Marshal(ids)
		return datatypes.JSON(raw)
	default:
		raw, _ := json.Marshal(v)
		return datatypes.JSON(raw)
	}
}
