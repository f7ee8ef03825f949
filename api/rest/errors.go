package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/questforge/engine/engine/errs"
)

// respondError maps engine error classes to HTTP statuses. Idempotency-class
// conditions never reach here; they are absorbed inside the engine.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrUnknownReference):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrCycle):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrIssuanceFailed):
		// Retryable: the idempotency key makes a repeat call safe.
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "retryable": true})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
