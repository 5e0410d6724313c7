package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Padu76/lifeOS-sub000/internal/auth"
	"github.com/Padu76/lifeOS-sub000/internal/service"
)

func PostIntervention(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)

		var req service.PlanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}

		res, err := app.Planner().Plan(c.Request.Context(), user, &req)
		if err != nil {
			HandleServiceError(c, app.Logger(), err, "Failed to plan intervention")
			return
		}
		if res.Scheduled {
			HandleCreated(c, app.Logger(), res, nil)
			return
		}
		HandleSuccess(c, app.Logger(), res, nil)
	}
}

func GetIntervention(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)
		it, err := app.Planner().Intervention(c.Request.Context(), user, c.Param("id"))
		if err != nil {
			HandleServiceError(c, app.Logger(), err, "Failed to load intervention")
			return
		}
		HandleSuccess(c, app.Logger(), it, nil)
	}
}

func DeleteIntervention(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)
		it, err := app.Planner().Cancel(c.Request.Context(), user, c.Param("id"))
		if err != nil {
			HandleServiceError(c, app.Logger(), err, "Failed to cancel intervention")
			return
		}
		HandleSuccess(c, app.Logger(), it, nil)
	}
}

func ListInterventions(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)
		pending := app.Planner().Pending(user)
		HandleSuccess(c, app.Logger(), pending, map[string]any{"count": len(pending)})
	}
}

func PostFeedback(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)

		var req service.FeedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}

		rec, err := app.Planner().RecordFeedback(c.Request.Context(), user, c.Param("id"), &req)
		if err != nil {
			HandleServiceError(c, app.Logger(), err, "Failed to record feedback")
			return
		}
		HandleCreated(c, app.Logger(), rec, nil)
	}
}
