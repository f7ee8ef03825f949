package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/questforge/engine/engine/raffle"
	"github.com/questforge/engine/engine/registry"
	"github.com/questforge/engine/model"
	"github.com/questforge/engine/scheduler"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
)

// AdminHandler handles operator endpoints: quest creation and the raffle
// round lifecycle. Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	registry *registry.Service
	raffles  *raffle.Manager
	sched    *scheduler.Scheduler
	logger   *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(reg *registry.Service, raffles *raffle.Manager, sched *scheduler.Scheduler, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{registry: reg, raffles: raffles, sched: sched, logger: logger}
}

type createQuestRequest struct {
	ID            string   `json:"id"             binding:"required,min=1,max=64"`
	Title         string   `json:"title"          binding:"required,min=1,max=200"`
	Tier          int      `json:"tier"`
	RequiredScore int64    `json:"required_score" binding:"required"`
	RewardPoints  int64    `json:"reward_points"  binding:"required"`
	RewardXP      int64    `json:"reward_xp"`
	Prerequisites []string `json:"prerequisites"`
}

// CreateQuest handles POST /api/admin/quests.
func (h *AdminHandler) CreateQuest(c *gin.Context) {
	var req createQuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prereqs := req.Prerequisites
	if prereqs == nil {
		prereqs = []string{}
	}
	prereqJSON, _ := json.Marshal(prereqs)

	def := &model.QuestDefinition{
		ID:            req.ID,
		Title:         req.Title,
		Tier:          req.Tier,
		RequiredScore: req.RequiredScore,
		RewardPoints:  req.RewardPoints,
		RewardXP:      req.RewardXP,
		Prerequisites: datatypes.JSON(prereqJSON),
	}
	if err := h.registry.CreateQuest(c.Request.Context(), def); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, def)
}

// StartRaffleRound handles POST /api/admin/raffle/rounds.
func (h *AdminHandler) StartRaffleRound(c *gin.Context) {
	round, err := h.raffles.StartRound(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, round)
}

// CloseRoundEntries handles POST /api/admin/raffle/rounds/:id/close-entries.
func (h *AdminHandler) CloseRoundEntries(c *gin.Context) {
	if err := h.raffles.CloseEntries(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ForceCloseRound handles POST /api/admin/raffle/rounds/:id/close.
func (h *AdminHandler) ForceCloseRound(c *gin.Context) {
	if err := h.raffles.ForceClose(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListSchedulerTasks handles GET /api/admin/scheduler.
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTickers()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// When keyHash is set it is compared as a bcrypt hash; otherwise the key is
// compared directly.
func AdminAuth(adminKey, keyHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" && keyHash == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if keyHash != "" {
			if bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)) != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
		} else if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
