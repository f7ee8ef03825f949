package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/questforge/engine/engine/random"
)

// OracleHandler receives randomness fulfillments from the external oracle.
type OracleHandler struct {
	client *random.Client
}

// NewOracleHandler creates an OracleHandler.
func NewOracleHandler(client *random.Client) *OracleHandler {
	return &OracleHandler{client: client}
}

type fulfillRequest struct {
	RequestID string `json:"request_id" binding:"required"`
	// Value is a decimal string; oracle values are ≥128-bit and do not fit
	// in a JSON number.
	Value string `json:"value" binding:"required"`
}

// Fulfill handles POST /api/oracle/fulfill.
//
// A repeated fulfillment for the same request returns 200: the engine
// accepts it at most once and absorbs the replay.
func (h *OracleHandler) Fulfill(c *gin.Context) {
	var req fulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.client.Fulfill(c.Request.Context(), req.RequestID, req.Value); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
