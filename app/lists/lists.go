package lists

import (
	"net/http"

	"github.com/sergioamr/img-api/internal"
	"github.com/sergioamr/img-api/internal/lists"
	"github.com/sergioamr/img-api/internal/media"
	"github.com/sergioamr/img-api/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
}

// ListCreate creates a new named list for the current user.
func ListCreate(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	u := middleware.CurrentUser(c)

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Malformed or invalid JSON request body",
			"requestID": requestID,
		})
		return
	}

	if _, err := d.Lists.Resolve(c.Request.Context(), u, req.Name); err == nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":     "A list with this name already exists",
			"requestID": requestID,
		})
		return
	}

	l, err := d.Lists.Create(c.Request.Context(), u, req.Name, req.Description, req.IsPublic)
	if err != nil {
		respondError(c, err, "create media list")
		return
	}

	purge(d, u.Username)

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"media_list": l,
	})
}

// ListMine returns every list the current user owns.
func ListMine(c *gin.Context, d *internal.Deps) {
	u := middleware.CurrentUser(c)

	ls, err := d.Lists.Mine(c.Request.Context(), u)
	if err != nil {
		respondError(c, err, "fetch media lists")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"media_lists": ls,
	})
}

// ListGet returns a single list if it is public or owned by the requester.
func ListGet(c *gin.Context, d *internal.Deps) {
	l, err := d.Lists.Get(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c))
	if err != nil {
		respondError(c, err, "fetch media list")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"media_list": l,
	})
}

func ListUpdate(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	u := middleware.CurrentUser(c)

	var p lists.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Malformed or invalid JSON request body",
			"requestID": requestID,
		})
		return
	}

	l, err := d.Lists.Get(c.Request.Context(), c.Param("id"), u)
	if err != nil {
		respondError(c, err, "fetch media list")
		return
	}

	if err := d.Lists.Update(c.Request.Context(), l, u, p); err != nil {
		respondError(c, err, "update media list")
		return
	}

	purge(d, u.Username)

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"media_list": l,
	})
}

func ListDelete(c *gin.Context, d *internal.Deps) {
	u := middleware.CurrentUser(c)

	l, err := d.Lists.Get(c.Request.Context(), c.Param("id"), u)
	if err != nil {
		respondError(c, err, "fetch media list")
		return
	}

	if err := d.Lists.Delete(c.Request.Context(), l, u); err != nil {
		respondError(c, err, "delete media list")
		return
	}

	purge(d, u.Username)

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"deleted": l.ID,
	})
}

// ListClearAll deletes every list of the current user.
func ListClearAll(c *gin.Context, d *internal.Deps) {
	u := middleware.CurrentUser(c)

	n, err := d.Lists.ClearAll(c.Request.Context(), u)
	if err != nil {
		respondError(c, err, "clear media lists")
		return
	}

	purge(d, u.Username)

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"deleted": n,
	})
}

// ListPerform handles /user/media/:media_id/:action/:list, e.g.
// /user/media/abc/toggle/likes.
func ListPerform(c *gin.Context, d *internal.Deps) {
	u := middleware.CurrentUser(c)
	mediaID := c.Param("media_id")

	// private media of other users answers like missing media
	rec, err := d.Media.Get(c.Request.Context(), mediaID)
	if err != nil || !rec.IsPublic && !media.IsOwner(rec, media.OwnerOf(u)) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "Media not found",
			"requestID": c.MustGet("requestID").(string),
		})
		return
	}

	l, present, err := d.Lists.Perform(c.Request.Context(), u, mediaID, c.Param("action"), c.Param("list"))
	if err != nil {
		respondError(c, err, "update media list")
		return
	}

	purge(d, u.Username)

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"media_id":   mediaID,
		"list":       l.Name,
		"is_present": present,
	})
}

func purge(d *internal.Deps, username string) {
	if err := d.Cache.Purge(username); err != nil {
		zap.L().Warn("Failed to purge cached responses", zap.String("username", username), zap.Error(err))
	}
}
