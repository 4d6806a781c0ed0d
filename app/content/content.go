// Package content stores small per-user sections of sanitised text.
package content

import (
	"net/http"
	"regexp"

	"github.com/sergioamr/img-api/internal"
	"github.com/sergioamr/img-api/internal/model"
	"github.com/sergioamr/img-api/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxValueSize is the largest value accepted for a single key, in bytes.
const MaxValueSize = 16384

var (
	validSection = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	policy       = bluemonday.UGCPolicy()
)

// ContentUpdate merges a JSON object of strings into a section.
func ContentUpdate(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	u := middleware.CurrentUser(c)
	section := c.Param("section")

	if !validSection.MatchString(section) || section == "status" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid section name",
			"requestID": requestID,
		})
		return
	}

	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Malformed or invalid JSON request body",
			"requestID": requestID,
		})
		return
	}

	for k, v := range body {
		if len(v) > MaxValueSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":     "Value for " + k + " is too long",
				"requestID": requestID,
			})
			return
		}
		body[k] = policy.Sanitize(v)
	}

	var uc model.UserContent
	err := d.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Where("user_id = ? AND section = ?", u.ID, section).
			First(&uc).
			Error
		if err == gorm.ErrRecordNotFound {
			uc = model.UserContent{UserID: u.ID, Section: section, Values: model.StringMap{}}
		} else if err != nil {
			return err
		}

		for k, v := range body {
			uc.Values[k] = v
		}

		return tx.Save(&uc).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to save user content", zap.String("section", section), zap.Error(err))
		return
	}

	if err := d.Cache.Purge(u.Username); err != nil {
		zap.L().Warn("Failed to purge cached responses", zap.String("username", u.Username), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		section:  uc.Values,
	})
}

// ContentGet returns the section's values, an empty object when unset.
func ContentGet(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	u := middleware.CurrentUser(c)
	section := c.Param("section")

	var uc model.UserContent
	err := d.DB.
		WithContext(c.Request.Context()).
		Where("user_id = ? AND section = ?", u.ID, section).
		First(&uc).
		Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to fetch user content", zap.String("section", section), zap.Error(err))
			return
		}

		uc.Values = model.StringMap{}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		section:  uc.Values,
	})
}
