// app/seenmw.go
package app

import (
	"time"

	"github.com/gin-gonic/gin"

	"volunteerops/db"
	"volunteerops/logger"
)

// TouchLastSeen updates last_seen_at at most once per throttle window.
func TouchLastSeen(repo *db.Repo, sessions SessionStore, throttle time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString(CtxUserID)
		if uid == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		if sessions.MarkSeen(ctx, uid, throttle) {
			if err := repo.TouchUserSeen(ctx, uid); err != nil {
				// 不阻塞请求
				logger.GetLogger(ctx).WithError(err).Debug("touch last seen")
			}
		}
		c.Next()
	}
}
