package root

import (
	"net/http"

	"github.com/sergioamr/img-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

func Validate(c *gin.Context) {
	u := middleware.CurrentUser(c)

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"username": u.Username,
		"is_anon":  u.IsAnon,
	})
}
