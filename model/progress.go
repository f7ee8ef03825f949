package model

import (
	"time"

	"gorm.io/datatypes"
)

// PlayerProgress is the per-player aggregate: completed set, high scores,
// streak state, cumulative score. Created on a player's first action and
// never deleted. Mutated only by the progress tracker, under the player's
// key lock.
type PlayerProgress struct {
	PlayerID       string         `gorm:"primaryKey;size:128" json:"player_id"`
	Completed      datatypes.JSON `json:"completed"`   // ["quest-id", ...]
	HighScores     datatypes.JSON `json:"high_scores"` // {"quest-id": score}
	TotalScore     int64          `gorm:"default:0" json:"total_score"`
	Streak         int            `gorm:"default:0" json:"streak"`
	LastCompletion *time.Time     `json:"last_completion"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// QuestCompletion is one completed (player, quest) pair in relational form,
// so queries do not have to unpack the JSON completed set.
type QuestCompletion struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PlayerID      string    `gorm:"size:128;index:idx_player_quest,unique;not null" json:"player_id"`
	QuestID       string    `gorm:"size:64;index:idx_player_quest,unique;not null" json:"quest_id"`
	Score         int64     `gorm:"not null" json:"score"`
	SourceEventID string    `gorm:"size:128;not null" json:"source_event_id"`
	CompletedAt   time.Time `gorm:"not null" json:"completed_at"`
}

// PendingAction records an action for a quest the player is not yet eligible
// for. Kept for audit/replay; it does not trigger reward computation.
type PendingAction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PlayerID      string    `gorm:"size:128;index;not null" json:"player_id"`
	QuestID       string    `gorm:"size:64;not null" json:"quest_id"`
	Score         int64     `gorm:"not null" json:"score"`
	SourceEventID string    `gorm:"size:128;not null" json:"source_event_id"`
	Reason        string    `gorm:"size:32" json:"reason"` // ineligible | below_required
	ObservedAt    time.Time `gorm:"not null" json:"observed_at"`
}
