package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the per-user routes on r; auth and request-id
// middleware are the caller's.
func RegisterRoutes(r gin.IRouter, app App) {
	r.POST("/interventions", PostIntervention(app))
	r.GET("/interventions", ListInterventions(app))
	r.GET("/interventions/:id", GetIntervention(app))
	r.DELETE("/interventions/:id", DeleteIntervention(app))
	r.POST("/interventions/:id/feedback", PostFeedback(app))

	r.POST("/activities", PostActivity(app))
	r.POST("/checkins", PostCheckIn(app))

	r.GET("/patterns/me", GetMyPattern(app))
	r.POST("/patterns/me/rebuild", RebuildMyPattern(app))
}

// RegisterOperatorRoutes mounts routes that touch every user's queue. r must
// sit behind auth.OperatorMiddleware.
func RegisterOperatorRoutes(r gin.IRouter, app App) {
	r.POST("/scheduler/tick", PostTick(app))
}
