package model

import "time"

// RandomnessStatus is the state of a two-phase oracle request.
type RandomnessStatus = string

const (
	RandomnessPending   RandomnessStatus = "pending"
	RandomnessFulfilled RandomnessStatus = "fulfilled"
)

// RandomnessRequest correlates an outbound oracle request with its later,
// externally-initiated fulfillment. Pending→Fulfilled happens exactly once
// and never reverts.
type RandomnessRequest struct {
	ID          string     `gorm:"primaryKey;size:64" json:"id"`
	ConsumerRef string     `gorm:"size:128;index;not null" json:"consumer_ref"`
	Status      string     `gorm:"size:16;not null;default:pending" json:"status"`
	// Value is a ≥128-bit unsigned integer, stored as a decimal string.
	Value       string     `gorm:"size:64" json:"value,omitempty"`
	RequestedAt time.Time  `gorm:"not null" json:"requested_at"`
	FulfilledAt *time.Time `json:"fulfilled_at,omitempty"`
}
