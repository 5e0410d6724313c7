// Package worker runs the periodic background jobs of the server.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/Padu76/lifeOS-sub000/internal"
	"github.com/Padu76/lifeOS-sub000/internal/scheduler"
)

// Loop calls run every interval until ctx is cancelled. A panicking cycle is
// logged and the loop keeps going.
type Loop struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
	logger   internal.Logger
}

func NewLoop(name string, interval time.Duration, run func(ctx context.Context) error, logger internal.Logger) *Loop {
	return &Loop{name: name, interval: interval, run: run, logger: logger.With("worker", name)}
}

// Start blocks; run it in its own goroutine.
func (l *Loop) Start(ctx context.Context) {
	l.logger.Infof("%s started, interval %s", l.name, l.interval)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Infof("%s stopped", l.name)
			return
		case <-ticker.C:
			if err := l.cycle(ctx); err != nil {
				l.logger.Errorf("%s cycle failed: %v", l.name, err)
			}
		}
	}
}

func (l *Loop) cycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return l.run(ctx)
}

// NewSweeper ticks the scheduler with wall-clock time.
func NewSweeper(s *scheduler.Scheduler, interval time.Duration, now func() time.Time, logger internal.Logger) *Loop {
	if now == nil {
		now = time.Now
	}
	return NewLoop("sweeper", interval, func(ctx context.Context) error {
		s.Tick(ctx, now())
		return nil
	}, logger)
}

// PatternRebuilder is satisfied by the service planner.
type PatternRebuilder interface {
	RebuildAll(ctx context.Context) (int, error)
}

func NewRebuilder(r PatternRebuilder, interval time.Duration, logger internal.Logger) *Loop {
	var l *Loop
	l = NewLoop("pattern-rebuilder", interval, func(ctx context.Context) error {
		n, err := r.RebuildAll(ctx)
		if err != nil {
			return err
		}
		l.logger.Infof("rebuilt %d patterns", n)
		return nil
	}, logger)
	return l
}
