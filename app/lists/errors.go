package lists

import (
	"errors"
	"net/http"

	"github.com/sergioamr/img-api/internal/lists"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func respondError(c *gin.Context, err error, action string) {
	requestID := c.MustGet("requestID").(string)

	code := http.StatusInternalServerError
	msg := "Internal server error"

	switch {
	case errors.Is(err, lists.ErrNotFound):
		code, msg = http.StatusNotFound, "Media list not found"
	case errors.Is(err, lists.ErrNotOwner):
		code, msg = http.StatusForbidden, "You don't have access to this list"
	case errors.Is(err, lists.ErrInvalidName):
		code, msg = http.StatusBadRequest, "List names may only contain letters, digits, '-' and '_' (max 32)"
	case errors.Is(err, lists.ErrInvalidAction):
		code, msg = http.StatusBadRequest, "Action must be one of append, remove or toggle"
	default:
		zap.L().Error("Failed to "+action, zap.String("requestID", requestID), zap.Error(err))
	}

	c.JSON(code, gin.H{
		"error":     msg,
		"requestID": requestID,
	})
}
