package media

import (
	"errors"
	"net/http"

	"github.com/sergioamr/img-api/internal/media"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps store errors onto HTTP responses.
func respondError(c *gin.Context, err error, action string) {
	requestID := c.MustGet("requestID").(string)

	code := http.StatusInternalServerError
	msg := "Internal server error"

	switch {
	case errors.Is(err, media.ErrEmptyUpload):
		code, msg = http.StatusBadRequest, "Uploaded file is empty"
	case errors.Is(err, media.ErrUnsupportedFormat):
		code, msg = http.StatusUnsupportedMediaType, "File format not allowed"
	case errors.Is(err, media.ErrImageTooLarge):
		code, msg = http.StatusRequestEntityTooLarge, "Image dimensions are too large"
	case errors.Is(err, media.ErrInvalidImage):
		code, msg = http.StatusBadRequest, "File is not a valid image"
	case errors.Is(err, media.ErrInvalidOwner):
		code, msg = http.StatusBadRequest, "Invalid username"
	case errors.Is(err, media.ErrNotFound):
		code, msg = http.StatusNotFound, "Media not found"
	case errors.Is(err, media.ErrNotOwner):
		code, msg = http.StatusForbidden, "You don't own this media"
	case errors.Is(err, media.ErrFieldNotEditable), errors.Is(err, media.ErrInvalidValue):
		code, msg = http.StatusBadRequest, err.Error()
	default:
		zap.L().Error("Failed to "+action, zap.String("requestID", requestID), zap.Error(err))
	}

	c.JSON(code, gin.H{
		"error":     msg,
		"requestID": requestID,
	})
}
