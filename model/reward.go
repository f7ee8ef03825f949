package model

import "time"

// RewardRecord is the append-only proof that a reward was issued for a
// specific source event. The unique (player_id, source_event_id) index is
// the single idempotency guarantee for the whole reward path.
type RewardRecord struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PlayerID      string    `gorm:"size:128;uniqueIndex:idx_player_source;not null" json:"player_id"`
	SourceEventID string    `gorm:"size:128;uniqueIndex:idx_player_source;not null" json:"source_event_id"`
	QuestID       string    `gorm:"size:64" json:"quest_id"`
	Amount        int64     `gorm:"not null" json:"amount"`
	Kind          string    `gorm:"size:32;not null" json:"kind"`
	IssuedAt      time.Time `gorm:"not null" json:"issued_at"`
}

// SeenEvent is the persisted dedup set for inbound source event ids.
// Bounded by retention pruning; the cache SetNX check is only a fast path
// in front of this table.
type SeenEvent struct {
	SourceEventID string    `gorm:"primaryKey;size:128" json:"source_event_id"`
	PlayerID      string    `gorm:"size:128" json:"player_id"`
	ObservedAt    time.Time `gorm:"index;not null" json:"observed_at"`
}
