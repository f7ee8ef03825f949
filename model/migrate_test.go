package model_test

import (
	"testing"
	"time"

	"github.com/questforge/engine/model"
	"github.com/questforge/engine/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)
	now := time.Now()

	// QuestDefinition
	def := &model.QuestDefinition{
		ID:            "q-first",
		Title:         "First Quest",
		Tier:          1,
		RequiredScore: 10,
		RewardPoints:  50,
		Prerequisites: datatypes.JSON([]byte(`[]`)),
	}
	require.NoError(t, db.Create(def).Error)

	var foundDef model.QuestDefinition
	require.NoError(t, db.First(&foundDef, "id = ?", "q-first").Error)
	assert.Equal(t, "First Quest", foundDef.Title)

	// PlayerProgress
	pp := &model.PlayerProgress{
		PlayerID:   "alice",
		Completed:  datatypes.JSON([]byte(`["q-first"]`)),
		HighScores: datatypes.JSON([]byte(`{"q-first":30}`)),
		TotalScore: 30,
		Streak:     1,
	}
	require.NoError(t, db.Create(pp).Error)

	// QuestCompletion
	qc := &model.QuestCompletion{
		PlayerID: "alice", QuestID: "q-first",
		Score: 30, SourceEventID: "e1", CompletedAt: now,
	}
	require.NoError(t, db.Create(qc).Error)

	// RewardRecord
	rr := &model.RewardRecord{
		PlayerID: "alice", SourceEventID: "e1", QuestID: "q-first",
		Amount: 70, Kind: "points", IssuedAt: now,
	}
	require.NoError(t, db.Create(rr).Error)

	// SeenEvent
	require.NoError(t, db.Create(&model.SeenEvent{
		SourceEventID: "e1", PlayerID: "alice", ObservedAt: now,
	}).Error)

	// RandomnessRequest + RaffleRound
	require.NoError(t, db.Create(&model.RandomnessRequest{
		ID: "req-1", ConsumerRef: "round-1",
		Status: model.RandomnessPending, RequestedAt: now,
	}).Error)
	require.NoError(t, db.Create(&model.RaffleRound{
		ID: "round-1", Status: model.RaffleOpen,
		Entrants: datatypes.JSON([]byte(`[]`)),
		OpenedAt: now, EntryDeadline: now.Add(time.Hour),
	}).Error)

	// AchievementToken
	require.NoError(t, db.Create(&model.AchievementToken{
		PlayerID: "alice", Tier: 1, ScoreSnapshot: 150,
		History: datatypes.JSON([]byte(`[]`)),
	}).Error)

	// AuditLog
	require.NoError(t, db.Create(&model.AuditLog{
		TraceID: "trace-001", Action: "event_replayed",
	}).Error)
}

func TestRewardRecord_UniquePlayerSourceEvent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	now := time.Now()

	first := &model.RewardRecord{
		PlayerID: "alice", SourceEventID: "e1",
		Amount: 70, Kind: "points", IssuedAt: now,
	}
	require.NoError(t, db.Create(first).Error)

	dup := &model.RewardRecord{
		PlayerID: "alice", SourceEventID: "e1",
		Amount: 70, Kind: "points", IssuedAt: now,
	}
	assert.Error(t, db.Create(dup).Error, "duplicate (player, source event) must be rejected")

	// The same source event for another player is fine.
	other := &model.RewardRecord{
		PlayerID: "bob", SourceEventID: "e1",
		Amount: 70, Kind: "points", IssuedAt: now,
	}
	assert.NoError(t, db.Create(other).Error)
}

func TestQuestCompletion_UniquePlayerQuest(t *testing.T) {
	db := testutil.SetupTestDB(t)
	now := time.Now()

	require.NoError(t, db.Create(&model.QuestCompletion{
		PlayerID: "alice", QuestID: "q1", Score: 30,
		SourceEventID: "e1", CompletedAt: now,
	}).Error)
	assert.Error(t, db.Create(&model.QuestCompletion{
		PlayerID: "alice", QuestID: "q1", Score: 40,
		SourceEventID: "e2", CompletedAt: now,
	}).Error)
}

func TestSeenEvent_PrimaryKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	now := time.Now()

	require.NoError(t, db.Create(&model.SeenEvent{
		SourceEventID: "e1", PlayerID: "alice", ObservedAt: now,
	}).Error)
	assert.Error(t, db.Create(&model.SeenEvent{
		SourceEventID: "e1", PlayerID: "bob", ObservedAt: now,
	}).Error)
}
