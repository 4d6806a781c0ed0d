package media

import (
	"errors"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/sergioamr/img-api/app/user"
	"github.com/sergioamr/img-api/internal"
	"github.com/sergioamr/img-api/internal/media"
	"github.com/sergioamr/img-api/internal/model"
	"github.com/sergioamr/img-api/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MediaUpload stores every multipart file whose field name starts with
// "image" for the authenticated user.
func MediaUpload(c *gin.Context, d *internal.Deps) {
	files := uploadedFiles(c)
	if files == nil {
		return
	}

	storeUploads(c, d, middleware.CurrentUser(c), files, "")
}

// MediaUploadFromWeb is MediaUpload for visitors without an account. An
// anonymous user is created on the fly and its token returned. The user is
// only kept when at least one file was stored.
func MediaUploadFromWeb(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	files := uploadedFiles(c)
	if files == nil {
		return
	}

	u := middleware.CurrentUser(c)
	if u != nil {
		storeUploads(c, d, u, files, "")
		return
	}

	for _, fh := range files {
		if _, err := media.Extension(fh.Filename); err != nil {
			respondError(c, err, "upload media")
			return
		}
	}

	u, token, err := user.CreateAnonymous(c.Request.Context(), d)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to create anonymous user", zap.String("requestID", requestID), zap.Error(err))
		return
	}

	middleware.SetUser(c, u)

	if storeUploads(c, d, u, files, token) == 0 {
		if err := user.DeleteAnonymous(c.Request.Context(), d, u); err != nil {
			zap.L().Error("Failed to remove unused anonymous user", zap.String("requestID", requestID), zap.Error(err))
		}
	}
}

// uploadedFiles returns the files of every "image*" field, ordered by field
// name. It writes the error response itself and returns nil when there is
// nothing to store.
func uploadedFiles(c *gin.Context) []*multipart.FileHeader {
	requestID := c.MustGet("requestID").(string)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":     "Request body size exceeds limit",
				"requestID": requestID,
			})
			return nil
		}

		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Malformed multipart form",
			"requestID": requestID,
		})
		return nil
	}

	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		if strings.HasPrefix(field, "image") {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)

	var files []*multipart.FileHeader
	for _, field := range fields {
		files = append(files, form.File[field]...)
	}

	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No file provided",
			"requestID": requestID,
		})
		return nil
	}

	return files
}

// storeUploads stores files for u, writes the response and returns how
// many files were stored before it finished or failed.
func storeUploads(c *gin.Context, d *internal.Deps, u *model.User, files []*multipart.FileHeader, token string) int {
	requestID := c.MustGet("requestID").(string)

	owner := media.OwnerOf(u)
	views := []media.View{}

	defer func() {
		if len(views) > 0 {
			purge(d, u.Username)
		}
	}()

	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to open multipart file", zap.String("requestID", requestID), zap.Error(err))
			return len(views)
		}

		res, err := d.Media.Upload(c.Request.Context(), owner, f, fh.Filename)
		f.Close()
		if err != nil {
			respondError(c, err, "upload media")
			return len(views)
		}

		zap.L().Debug("Media stored",
			zap.String("media_id", res.Media.ID),
			zap.Bool("deduplicated", res.Deduplicated))

		views = append(views, media.Serialize(res.Media, owner))
	}

	resp := gin.H{
		"status":      "success",
		"username":    u.Username,
		"media_files": views,
	}

	if token != "" {
		resp["token"] = token
		c.SetCookie("auth_token", token, 60*60*24*30, "/", "", d.Config.Host.SSLEnabled, true)
	}

	c.JSON(http.StatusOK, resp)
	return len(views)
}
