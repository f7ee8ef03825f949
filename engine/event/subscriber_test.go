package event

import (
	"context"
	"testing"
	"time"

	"github.com/questforge/engine/cache"
	"github.com/questforge/engine/config"
	"github.com/questforge/engine/engine/achievement"
	"github.com/questforge/engine/engine/errs"
	"github.com/questforge/engine/engine/issuer"
	"github.com/questforge/engine/engine/progress"
	"github.com/questforge/engine/engine/registry"
	"github.com/questforge/engine/engine/reward"
	"github.com/questforge/engine/model"
	"github.com/questforge/engine/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func nopLogger() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

type fixture struct {
	db         *gorm.DB
	cache      cache.Cache
	registry   *registry.Service
	ledger     *reward.Ledger
	subscriber *Subscriber
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	logger := nopLogger()

	rewardsCfg := config.RewardsConfig{
		HighScoreBonus: 20,
		StreakStepRate: 0.1,
		MultiplierCap:  1.0,
		StreakWindow:   24 * time.Hour,
		DifficultyStep: 0.5,
		Kind:           "points",
	}
	eventsCfg := config.EventsConfig{
		DedupTTL:      time.Hour,
		SeenRetention: 30 * 24 * time.Hour,
		MaxScore:      1000000,
	}

	reg, err := registry.NewService(db, logger)
	require.NoError(t, err)
	li := issuer.NewLogIssuer(logger)
	ledger := reward.NewLedger(db, li, nil, nil, logger)
	achievements := achievement.NewManager(db, li, config.AchievementsConfig{
		Tiers: []int64{100, 500, 2000, 10000},
	}, nil, logger)
	tracker := progress.NewTracker(db, reg, reward.NewCalculator(rewardsCfg), ledger, achievements, rewardsCfg, nil, logger)
	sub := NewSubscriber(db, c, reg, tracker, nil, eventsCfg, logger)
	return &fixture{db: db, cache: c, registry: reg, ledger: ledger, subscriber: sub}
}

func (f *fixture) addQuest(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.registry.CreateQuest(context.Background(), &model.QuestDefinition{
		ID:            id,
		Title:         "Quest " + id,
		Tier:          1,
		RequiredScore: 10,
		RewardPoints:  50,
	}))
}

func action(player, questID string, score int64, eventID string) progress.Action {
	return progress.Action{
		Type:          "action_recorded",
		Player:        player,
		QuestID:       questID,
		Score:         score,
		SourceEventID: eventID,
		ObservedAt:    time.Now(),
	}
}

func TestSubmit_Completes(t *testing.T) {
	f := setup(t)
	f.addQuest(t, "q1")

	res, err := f.subscriber.Submit(context.Background(), action("alice", "q1", 30, "e1"))
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.False(t, res.Duplicate)
	assert.Equal(t, int64(70), res.Reward)
}

func TestSubmit_Validation(t *testing.T) {
	f := setup(t)
	f.addQuest(t, "q1")

	cases := []progress.Action{
		{Player: "alice", QuestID: "q1", SourceEventID: "e1", ObservedAt: time.Now()},            // no type
		{Type: "x", QuestID: "q1", SourceEventID: "e1", ObservedAt: time.Now()},                  // no player
		{Type: "x", Player: "alice", SourceEventID: "e1", ObservedAt: time.Now()},                // no quest
		{Type: "x", Player: "alice", QuestID: "q1", ObservedAt: time.Now()},                      // no event id
		{Type: "x", Player: "alice", QuestID: "q1", SourceEventID: "e1"},                         // no timestamp
		{Type: "x", Player: " ", QuestID: "q1", SourceEventID: "e1", ObservedAt: time.Now()},     // blank player
		action("alice", "q1", -1, "e1"),                                                         // negative score
		action("alice", "q1", 1000001, "e1"),                                                    // over max
	}
	for _, a := range cases {
		_, err := f.subscriber.Submit(context.Background(), a)
		assert.ErrorIs(t, err, errs.ErrValidation)
	}
}

func TestSubmit_UnknownQuest(t *testing.T) {
	f := setup(t)
	_, err := f.subscriber.Submit(context.Background(), action("alice", "nope", 30, "e1"))
	assert.ErrorIs(t, err, errs.ErrUnknownReference)
}

func TestSubmit_DuplicateEventIdempotent(t *testing.T) {
	f := setup(t)
	f.addQuest(t, "q1")

	res, err := f.subscriber.Submit(context.Background(), action("alice", "q1", 30, "e1"))
	require.NoError(t, err)
	require.True(t, res.Completed)

	// The watcher redelivers the same event: accepted, no new effects.
	res, err = f.subscriber.Submit(context.Background(), action("alice", "q1", 30, "e1"))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.False(t, res.Completed)

	balance, err := f.ledger.Balance(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(70), balance)

	var seen []model.SeenEvent
	f.db.Find(&seen)
	assert.Len(t, seen, 1)
}

func TestSubmit_DedupSurvivesCacheMiss(t *testing.T) {
	f := setup(t)
	f.addQuest(t, "q1")

	_, err := f.subscriber.Submit(context.Background(), action("alice", "q1", 30, "e1"))
	require.NoError(t, err)

	// Drop the cache fast path; the persisted seen set still catches it.
	require.NoError(t, f.cache.Del(context.Background(), seenKeyPrefix+"e1"))

	res, err := f.subscriber.Submit(context.Background(), action("alice", "q1", 30, "e1"))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
}

func TestSubmit_FailedEventNotMarkedSeen(t *testing.T) {
	f := setup(t)
	f.addQuest(t, "a")

	// Unknown quest fails before any state change; the id stays unused.
	_, err := f.subscriber.Submit(context.Background(), action("alice", "nope", 30, "e1"))
	require.Error(t, err)

	var seen []model.SeenEvent
	f.db.Find(&seen)
	assert.Empty(t, seen)

	// The same source event id can then carry a valid action.
	res, err := f.subscriber.Submit(context.Background(), action("alice", "a", 30, "e1"))
	require.NoError(t, err)
	assert.True(t, res.Completed)
}

func TestSubmit_PendingEventsAreMarkedSeen(t *testing.T) {
	f := setup(t)
	f.addQuest(t, "q1")

	// Below required score → pending, but the event itself was processed.
	res, err := f.subscriber.Submit(context.Background(), action("alice", "q1", 5, "e1"))
	require.NoError(t, err)
	require.True(t, res.Pending)

	res, err = f.subscriber.Submit(context.Background(), action("alice", "q1", 5, "e1"))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	var pending []model.PendingAction
	f.db.Find(&pending)
	assert.Len(t, pending, 1)
}

func TestPruneSeen(t *testing.T) {
	f := setup(t)
	f.addQuest(t, "q1")

	_, err := f.subscriber.Submit(context.Background(), action("alice", "q1", 30, "e1"))
	require.NoError(t, err)

	// Age the seen row past retention.
	require.NoError(t, f.db.Model(&model.SeenEvent{}).
		Where("source_event_id = ?", "e1").
		Update("observed_at", time.Now().Add(-31*24*time.Hour)).Error)

	require.NoError(t, f.subscriber.PruneSeen(context.Background()))

	var seen []model.SeenEvent
	f.db.Find(&seen)
	assert.Empty(t, seen)
}
