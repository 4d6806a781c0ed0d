package media

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/sergioamr/img-api/internal"
	"github.com/sergioamr/img-api/internal/media"
	"github.com/sergioamr/img-api/internal/model"
	"github.com/sergioamr/img-api/internal/service"
	"github.com/sergioamr/img-api/pkg/middleware"
	"github.com/sergioamr/img-api/pkg/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const convertTimeout = 30 * time.Second

// loadVisible fetches the media named by the :id param, dropping records
// whose file is gone, and enforces privacy. It writes the error response
// itself and returns nil when the request should stop.
func loadVisible(c *gin.Context, d *internal.Deps, id string) (*model.Media, *media.Owner) {
	requestID := c.MustGet("requestID").(string)
	requester := media.OwnerOf(middleware.CurrentUser(c))

	rec, err := d.Media.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "fetch media")
		return nil, nil
	}

	ok, err := d.Media.CheckExists(c.Request.Context(), rec)
	if err != nil {
		respondError(c, err, "check media file")
		return nil, nil
	}

	if !ok {
		purge(d, rec.Username)
		respondError(c, media.ErrNotFound, "")
		return nil, nil
	}

	if !rec.IsPublic && !media.IsOwner(rec, requester) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":     "This media is private",
			"requestID": requestID,
		})
		return nil, nil
	}

	return rec, requester
}

// MediaGet serves the stored image. Requesting /get/:id.<ext> with an
// extension other than the stored one converts it on the fly.
func MediaGet(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	param := c.Param("id")
	ext := path.Ext(param)
	id := strings.TrimSuffix(param, ext)

	rec, _ := loadVisible(c, d, id)
	if rec == nil {
		return
	}

	rc, err := d.Media.Open(c.Request.Context(), rec)
	if err != nil {
		respondError(c, err, "open media file")
		return
	}
	defer rc.Close()

	if ext == "" || sameFormat(ext, rec.FileFormat) {
		c.Header("Cache-Control", "public, max-age=31536000, immutable")
		c.DataFromReader(http.StatusOK, rec.FileSize, rec.MimeType, rc, map[string]string{
			"Content-Disposition": "inline; filename=\"" + rec.ChecksumMD5 + strings.ToLower(rec.FileFormat) + "\"",
		})
		return
	}

	format, contentType, err := service.TargetFormat(ext)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Unsupported conversion format",
			"requestID": requestID,
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), convertTimeout)
	defer cancel()

	var out bytes.Buffer
	err = d.JobQueue.Convert(ctx, &service.ConvertJob{
		ID:        util.RandStr(5),
		UserID:    rec.UserID,
		Source:    rc,
		SourceExt: rec.FileFormat,
		Format:    format,
		Output:    &out,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrQueueFull):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":     "Job queue is full. Please wait a moment before trying again",
				"requestID": requestID,
			})

			zap.L().Warn("Conversion job queue is full")
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			c.JSON(http.StatusRequestTimeout, gin.H{
				"error":     "Request was cancelled or timed out",
				"requestID": requestID,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to convert media", zap.String("media_id", rec.ID), zap.Error(err))
		}
		return
	}

	c.Header("Content-Length", strconv.Itoa(out.Len()))
	c.Data(http.StatusOK, contentType, out.Bytes())
}

func sameFormat(ext, stored string) bool {
	ext = strings.ToUpper(ext)
	switch ext {
	case ".JPG", ".JPEG":
		return stored == ".JPG" || stored == ".JPEG"
	case ".GIF", ".GIFV":
		return stored == ".GIF" || stored == ".GIFV"
	}

	return ext == stored
}

// MediaInfo returns the serialized record.
func MediaInfo(c *gin.Context, d *internal.Deps) {
	rec, requester := loadVisible(c, d, c.Param("id"))
	if rec == nil {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"media":  media.Serialize(rec, requester),
	})
}

// MediaSource resolves the file behind the :id param so cached info
// responses are invalidated when the file is replaced.
func MediaSource(d *internal.Deps) func(c *gin.Context) string {
	return func(c *gin.Context) string {
		rec, err := d.Media.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			return ""
		}

		return rec.FilePath
	}
}

// OwnsMedia reports whether the requester owns the media behind the :id
// param. Only the owner's view is cached, since the owner's own mutations
// are what purge it.
func OwnsMedia(d *internal.Deps) func(c *gin.Context) bool {
	return func(c *gin.Context) bool {
		userID := c.GetString("userID")
		if userID == "" {
			return false
		}

		rec, err := d.Media.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			return false
		}

		return rec.UserID == userID
	}
}
