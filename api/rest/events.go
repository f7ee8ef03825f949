package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/questforge/engine/engine/event"
	"github.com/questforge/engine/engine/progress"
)

// EventHandler receives inbound action notifications from the external
// ledger watcher.
type EventHandler struct {
	subscriber *event.Subscriber
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(subscriber *event.Subscriber) *EventHandler {
	return &EventHandler{subscriber: subscriber}
}

type submitEventRequest struct {
	EventType     string    `json:"event_type"     binding:"required"`
	Player        string    `json:"player"         binding:"required"`
	QuestID       string    `json:"quest_id"       binding:"required"`
	Score         int64     `json:"score"`
	SourceEventID string    `json:"source_event_id" binding:"required"`
	Timestamp     time.Time `json:"timestamp"      binding:"required"`
}

// Submit handles POST /api/events.
//
// A redelivered source event id returns 200 with duplicate=true: replay is
// an expected operating condition for the upstream watcher, not a fault.
func (h *EventHandler) Submit(c *gin.Context) {
	var req submitEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.subscriber.Submit(c.Request.Context(), progress.Action{
		Type:          req.EventType,
		Player:        req.Player,
		QuestID:       req.QuestID,
		Score:         req.Score,
		SourceEventID: req.SourceEventID,
		ObservedAt:    req.Timestamp,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"completed": result.Completed,
		"duplicate": result.Duplicate,
		"pending":   result.Pending,
	}
	if result.Pending {
		resp["pending_reason"] = result.PendingReason
	}
	if result.Completed {
		resp["reward"] = result.Reward
		resp["streak"] = result.Streak
		resp["new_high_score"] = result.NewHighScore
	}
	c.JSON(http.StatusOK, resp)
}
