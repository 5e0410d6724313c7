package api

import (
	"time"

	"github.com/gin-gonic/gin"
)

type TickRequest struct {
	At *time.Time `json:"at,omitempty"`
}

// PostTick lets an external cron drive delivery instead of the in-process
// sweeper. An explicit at may replay a past moment but never runs ahead of
// the clock.
func PostTick(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TickRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				HandleError(c, app.Logger(), err, 400, "Invalid JSON")
				return
			}
		}
		now := app.Now()
		at := now
		if req.At != nil && req.At.Before(now) {
			at = *req.At
		}
		report := app.Scheduler().Tick(c.Request.Context(), at)
		HandleSuccess(c, app.Logger(), report, map[string]any{"at": at})
	}
}
