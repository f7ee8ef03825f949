package model

import (
	"time"

	"gorm.io/datatypes"
)

// QuestDefinition is an immutable quest. Changing a quest that has already
// been referenced by a completion requires publishing a new id/version.
type QuestDefinition struct {
	ID            string         `gorm:"primaryKey;size:64" json:"id"`
	Title         string         `gorm:"not null" json:"title"`
	Tier          int            `gorm:"not null;default:1" json:"tier"`
	RequiredScore int64          `gorm:"not null" json:"required_score"`
	RewardPoints  int64          `gorm:"not null" json:"reward_points"`
	RewardXP      int64          `gorm:"default:0" json:"reward_xp"`
	Prerequisites datatypes.JSON `json:"prerequisites"` // ["quest-id", ...]
	Version       int            `gorm:"default:1" json:"version"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
}
