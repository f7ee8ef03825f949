package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/questforge/engine/engine/achievement"
	"github.com/questforge/engine/engine/progress"
	"github.com/questforge/engine/engine/raffle"
	"github.com/questforge/engine/engine/registry"
	"github.com/questforge/engine/engine/reward"
)

// QueryHandler serves the read-only query interface. No endpoint here has
// side effects.
type QueryHandler struct {
	registry     *registry.Service
	tracker      *progress.Tracker
	ledger       *reward.Ledger
	raffles      *raffle.Manager
	achievements *achievement.Manager
}

// NewQueryHandler creates a QueryHandler.
func NewQueryHandler(
	reg *registry.Service,
	tracker *progress.Tracker,
	ledger *reward.Ledger,
	raffles *raffle.Manager,
	achievements *achievement.Manager,
) *QueryHandler {
	return &QueryHandler{
		registry:     reg,
		tracker:      tracker,
		ledger:       ledger,
		raffles:      raffles,
		achievements: achievements,
	}
}

// GetPlayerProgress handles GET /api/players/:id/progress.
func (h *QueryHandler) GetPlayerProgress(c *gin.Context) {
	player := c.Param("id")
	pp, err := h.tracker.GetProgress(c.Request.Context(), player)
	if err != nil {
		respondError(c, err)
		return
	}
	balance, err := h.ledger.Balance(c.Request.Context(), player)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": pp, "balance": balance})
}

// GetQuest handles GET /api/quests/:id.
func (h *QueryHandler) GetQuest(c *gin.Context) {
	def, err := h.registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

// GetRaffleRound handles GET /api/raffle/rounds/:id.
func (h *QueryHandler) GetRaffleRound(c *gin.Context) {
	round, err := h.raffles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, round)
}

// GetAchievement handles GET /api/players/:id/achievement.
func (h *QueryHandler) GetAchievement(c *gin.Context) {
	token, err := h.achievements.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

// GetRewards handles GET /api/players/:id/rewards.
func (h *QueryHandler) GetRewards(c *gin.Context) {
	records, err := h.ledger.Records(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rewards": records, "count": len(records)})
}
