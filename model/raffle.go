package model

import (
	"time"

	"gorm.io/datatypes"
)

// RaffleStatus is a raffle round lifecycle state. Transitions are monotonic:
// Open → Requested → Drawn → Paid → Closed, with Requested → Closed for
// zero-entrant rounds and force-close from any non-terminal state.
type RaffleStatus = string

const (
	RaffleOpen      RaffleStatus = "open"
	RaffleRequested RaffleStatus = "requested"
	RaffleDrawn     RaffleStatus = "drawn"
	RafflePaid      RaffleStatus = "paid"
	RaffleClosed    RaffleStatus = "closed"
)

// RaffleRound is one time-boxed drawing among entrants.
type RaffleRound struct {
	ID            string         `gorm:"primaryKey;size:64" json:"id"`
	Status        string         `gorm:"size:16;not null;default:open" json:"status"`
	Entrants      datatypes.JSON `json:"entrants"` // ["player-id", ...] in entry order
	RandomnessID  string         `gorm:"size:64;index" json:"randomness_id,omitempty"`
	Winner        string         `gorm:"size:128" json:"winner,omitempty"`
	PayoutAmount  int64          `json:"payout_amount,omitempty"`
	OpenedAt      time.Time      `gorm:"not null" json:"opened_at"`
	EntryDeadline time.Time      `gorm:"not null" json:"entry_deadline"`
	ClosedAt      *time.Time     `json:"closed_at,omitempty"`
}
