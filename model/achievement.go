package model

import (
	"time"

	"gorm.io/datatypes"
)

// AchievementToken is a player's evolving achievement. Tier is monotonic
// non-decreasing regardless of event delivery order.
type AchievementToken struct {
	PlayerID      string         `gorm:"primaryKey;size:128" json:"player_id"`
	Tier          int            `gorm:"not null;default:0" json:"tier"`
	ScoreSnapshot int64          `gorm:"not null;default:0" json:"score_snapshot"`
	// History is the ordered evolution log: [{"tier":1,"score":120,"at":...}].
	History   datatypes.JSON `json:"history"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TierEvolution is one entry in an achievement token's history.
type TierEvolution struct {
	Tier  int       `json:"tier"`
	Score int64     `json:"score"`
	At    time.Time `json:"at"`
}
