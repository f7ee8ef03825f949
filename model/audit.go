package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records engine actions, including absorbed idempotency-class
// conditions (duplicate issuance / duplicate fulfillment) that are not
// surfaced to callers.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"size:64;index" json:"trace_id"`
	PlayerID   string         `gorm:"size:128;index" json:"player_id"`
	Action     string         `gorm:"size:64;index;not null" json:"action"`
	Detail     datatypes.JSON `json:"detail"`
	Error      string         `json:"error"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}
