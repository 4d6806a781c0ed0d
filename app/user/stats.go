package user

import (
	"net/http"

	"github.com/sergioamr/img-api/internal"
	"github.com/sergioamr/img-api/internal/model"
	"github.com/sergioamr/img-api/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func UserStats(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	u := middleware.CurrentUser(c)

	var stats model.Stats
	err := d.DB.
		Where("user_id = ?", u.ID).
		First(&stats).
		Error
	if err != nil && err != gorm.ErrRecordNotFound {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch user stats", zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"username": u.Username,
		"stats":    stats,
	})
}
