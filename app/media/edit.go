package media

import (
	"net/http"

	"github.com/sergioamr/img-api/internal"
	"github.com/sergioamr/img-api/internal/media"
	"github.com/sergioamr/img-api/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MediaEdit applies a JSON object of editable fields.
func MediaEdit(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	u := middleware.CurrentUser(c)

	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil || len(patch) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Malformed or invalid JSON request body",
			"requestID": requestID,
		})
		return
	}

	rec, err := d.Media.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "fetch media")
		return
	}

	owner := media.OwnerOf(u)
	if err := d.Media.Update(c.Request.Context(), rec, owner, patch); err != nil {
		respondError(c, err, "update media")
		return
	}

	purge(d, u.Username)

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"media":  media.Serialize(rec, owner),
	})
}

// MediaSetVisibility handles /posts/:id/set/:mode. "private" hides the
// media, any other mode publishes it.
func MediaSetVisibility(c *gin.Context, d *internal.Deps) {
	u := middleware.CurrentUser(c)

	rec, err := d.Media.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "fetch media")
		return
	}

	public := c.Param("mode") != "private"

	owner := media.OwnerOf(u)
	if err := d.Media.SetVisibility(c.Request.Context(), rec, owner, public); err != nil {
		respondError(c, err, "update media visibility")
		return
	}

	purge(d, u.Username)

	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"media_id":  rec.ID,
		"is_public": rec.IsPublic,
	})
}

// MediaDelete removes a media file and its record. Owner only.
func MediaDelete(c *gin.Context, d *internal.Deps) {
	u := middleware.CurrentUser(c)

	rec, err := d.Media.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "fetch media")
		return
	}

	if !media.IsOwner(rec, media.OwnerOf(u)) {
		respondError(c, media.ErrNotOwner, "")
		return
	}

	if err := d.Media.Delete(c.Request.Context(), rec); err != nil {
		respondError(c, err, "delete media")
		return
	}

	purge(d, u.Username)

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"deleted": rec.ID,
	})
}

func purge(d *internal.Deps, username string) {
	if err := d.Cache.Purge(username); err != nil {
		zap.L().Warn("Failed to purge cached responses", zap.String("username", username), zap.Error(err))
	}
}
