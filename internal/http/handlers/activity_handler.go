// Activity feed HTTP handlers.
//
// GET /api/activity serves the public event feed, newest first, with a weak
// ETag derived from row count and latest timestamp so polling dashboards can
// cheaply 304.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/1lyagent/agent-backend/internal/repo"
	"github.com/1lyagent/agent-backend/internal/utils"
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

// ListActivity godoc
// @ID          listActivity
// @Summary     List activity events
// @Description Returns the public activity feed, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Activity
// @Produce     json
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       limit          query   int     false "Max events"   minimum(1) maximum(100) default(20)
// @Param       offset         query   int     false "Skip events"  minimum(0) default(0)
// @Success     200  {object}  handlers.Envelope
// @Header      200  {string}  ETag "Weak ETag for current feed"
// @Success     304  {string}  string "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /api/activity [get]
func (h *Handlers) ListActivity(c *gin.Context) {
	ctx := c.Request.Context()

	limit := utils.ClampInt(utils.AtoiDefault(c.Query("limit"), defaultActivityLimit), 1, maxActivityLimit)
	offset := utils.AtoiDefault(c.Query("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	// ETag pre-check (best effort).
	if count, maxTS, err := repo.ActivityStats(ctx, h.db); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"activity:%d:%d"`, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	events, err := repo.ListActivityPage(ctx, h.db, offset, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"events": events, "limit": limit, "offset": offset})
}
