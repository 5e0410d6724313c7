package api

import (
	"time"

	"github.com/Padu76/lifeOS-sub000/internal"
	"github.com/Padu76/lifeOS-sub000/internal/scheduler"
	"github.com/Padu76/lifeOS-sub000/internal/service"
)

type App interface {
	Logger() internal.Logger
	Planner() *service.Planner
	Scheduler() *scheduler.Scheduler
	Now() time.Time
}

type app struct {
	logger    internal.Logger
	planner   *service.Planner
	scheduler *scheduler.Scheduler
	now       func() time.Time
}

func NewApp(logger internal.Logger, planner *service.Planner, sched *scheduler.Scheduler, now func() time.Time) App {
	if now == nil {
		now = time.Now
	}
	return &app{logger: logger, planner: planner, scheduler: sched, now: now}
}

func (a *app) Logger() internal.Logger         { return a.logger }
func (a *app) Planner() *service.Planner       { return a.planner }
func (a *app) Scheduler() *scheduler.Scheduler { return a.scheduler }
func (a *app) Now() time.Time                  { return a.now() }
