package media

import (
	"net/http"
	"strconv"

	"github.com/sergioamr/img-api/internal"
	"github.com/sergioamr/img-api/internal/media"
	"github.com/sergioamr/img-api/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// MediaPosts lists a user's media. The owner also sees private media.
// Logged in requesters get their likes/dislikes/favs marked per item.
func MediaPosts(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	username := c.Param("username")

	u := middleware.CurrentUser(c)
	requester := media.OwnerOf(u)

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		page = 0
	}

	includePrivate := requester != nil && requester.Username == username

	recs, err := d.Media.ListByOwner(c.Request.Context(), username, includePrivate, limit, page*limit)
	if err != nil {
		respondError(c, err, "list media")
		return
	}

	views := media.SerializeAll(recs, requester)

	items := make([]gin.H, 0, len(views))
	var flags map[string]map[string]bool

	if u != nil {
		flags, err = d.Lists.Flags(c.Request.Context(), u)
		if err != nil {
			zap.L().Warn("Failed to load media list flags", zap.String("requestID", requestID), zap.Error(err))
		}
	}

	for _, v := range views {
		item := gin.H{"media": v}
		for name := range flags[v.MediaID] {
			item[name] = true
		}
		items = append(items, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"username":    username,
		"page":        page,
		"media_files": items,
	})
}

// OwnPosts reports whether the requester is reading their own page.
func OwnPosts(c *gin.Context) bool {
	username := c.GetString("username")
	return username != "" && username == c.Param("username")
}
