package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/questforge/engine/engine/raffle"
)

// RaffleHandler handles entrant-facing raffle endpoints. Entry eligibility
// is decided by the caller (the platform in front of the engine); the
// engine only enforces one entry per player per round.
type RaffleHandler struct {
	raffles *raffle.Manager
}

// NewRaffleHandler creates a RaffleHandler.
func NewRaffleHandler(raffles *raffle.Manager) *RaffleHandler {
	return &RaffleHandler{raffles: raffles}
}

type enterRequest struct {
	Player string `json:"player" binding:"required,min=1,max=128"`
}

// Enter handles POST /api/raffle/rounds/:id/enter.
func (h *RaffleHandler) Enter(c *gin.Context) {
	var req enterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.raffles.Enter(c.Request.Context(), c.Param("id"), req.Player); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
