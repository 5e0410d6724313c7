package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Padu76/lifeOS-sub000/internal/auth"
	"github.com/Padu76/lifeOS-sub000/internal/service"
)

func PostActivity(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)

		var body service.ActivityRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}

		rec, err := app.Planner().RecordActivity(c.Request.Context(), user, &body)
		if err != nil {
			HandleServiceError(c, app.Logger(), err, "Failed to save activity")
			return
		}
		HandleCreated(c, app.Logger(), rec, nil)
	}
}

func PostCheckIn(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)

		var body service.CheckInRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleError(c, app.Logger(), err, 400, "Invalid JSON")
			return
		}

		rec, err := app.Planner().RecordCheckIn(c.Request.Context(), user, &body)
		if err != nil {
			HandleServiceError(c, app.Logger(), err, "Failed to save check-in")
			return
		}
		HandleCreated(c, app.Logger(), rec, nil)
	}
}

func GetMyPattern(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)
		p := app.Planner().Pattern(c.Request.Context(), user.ID, app.Now())
		HandleSuccess(c, app.Logger(), p, nil)
	}
}

func RebuildMyPattern(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)
		p, err := app.Planner().RebuildPattern(c.Request.Context(), user.ID)
		if err != nil {
			HandleError(c, app.Logger(), err, 500, "Failed to store pattern")
			return
		}
		HandleSuccess(c, app.Logger(), p, nil)
	}
}
