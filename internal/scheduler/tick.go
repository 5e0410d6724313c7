package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Padu76/lifeOS-sub000/internal"
)

type TickReport struct {
	Due         int `json:"due"`
	Delivered   int `json:"delivered"`
	Rescheduled int `json:"rescheduled"`
	Failed      int `json:"failed"`
	Cancelled   int `json:"cancelled"`
	Discarded   int `json:"discarded"`
}

func (r *TickReport) add(o TickReport) {
	r.Due += o.Due
	r.Delivered += o.Delivered
	r.Rescheduled += o.Rescheduled
	r.Failed += o.Failed
	r.Cancelled += o.Cancelled
	r.Discarded += o.Discarded
}

type outcome int

const (
	outcomeDelivered outcome = iota
	outcomeIneligible
	outcomeSendFailed
	outcomeAborted
)

// Tick dispatches every pending item due at or before now. Users are swept in
// parallel; within a user each item is an independent send whose result is
// applied under the user lock only after it resolves.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) TickReport {
	s.mu.RLock()
	queues := make([]*userQueue, 0, len(s.users))
	for _, q := range s.users {
		queues = append(queues, q)
	}
	s.mu.RUnlock()

	var (
		report TickReport
		mu     sync.Mutex
		g      errgroup.Group
	)
	g.SetLimit(s.cfg.UserConcurrency)
	for _, q := range queues {
		g.Go(func() error {
			r := s.sweep(ctx, q, now)
			mu.Lock()
			report.add(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if report.Due > 0 {
		s.logger.Infof("tick %s: due=%d delivered=%d rescheduled=%d failed=%d cancelled=%d discarded=%d",
			now.Format(time.RFC3339), report.Due, report.Delivered, report.Rescheduled, report.Failed, report.Cancelled, report.Discarded)
	}
	return report
}

func (s *Scheduler) sweep(ctx context.Context, q *userQueue, now time.Time) TickReport {
	q.mu.Lock()
	due := q.takeDue(now)
	var pruned []string
	if s.repo != nil {
		pruned = q.prune(now.Add(-s.retention(q)))
	}
	q.mu.Unlock()
	s.untrack(pruned...)

	var (
		report = TickReport{Due: len(due)}
		mu     sync.Mutex
		g      errgroup.Group
	)
	g.SetLimit(s.cfg.SendConcurrency)
	for _, e := range due {
		// the copy taken here is what the collaborators see; e.item is only touched under q.mu
		q.mu.Lock()
		item := e.item
		q.mu.Unlock()
		g.Go(func() error {
			res, sendErr := s.attempt(ctx, item)
			q.mu.Lock()
			r := s.apply(ctx, q, e, res, sendErr, now)
			q.mu.Unlock()
			mu.Lock()
			report.add(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return report
}

// attempt reads a fresh delivery context, runs the gate and sends. It holds no lock.
func (s *Scheduler) attempt(ctx context.Context, item internal.ScheduledIntervention) (outcome, error) {
	if ctx.Err() != nil {
		return outcomeAborted, ctx.Err()
	}

	checkCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	dc, err := s.device.Snapshot(checkCtx, item.UserID)
	if err != nil {
		if item.Urgency != internal.UrgencyEmergency {
			cancel()
			return outcomeIneligible, fmt.Errorf("device status: %w", err)
		}
		dc = internal.DeliveryContext{NetworkOnline: true}
	}
	eligible := s.gate.Check(checkCtx, item, dc)
	cancel()
	if ctx.Err() != nil {
		return outcomeAborted, ctx.Err()
	}
	if !eligible {
		return outcomeIneligible, errors.New("not eligible at send time")
	}

	sendCtx, cancelSend := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancelSend()
	done := make(chan error, 1)
	go func() { done <- s.transport.Send(sendCtx, item) }()

	select {
	case err := <-done:
		if err != nil {
			return outcomeSendFailed, err
		}
		return outcomeDelivered, nil
	case <-sendCtx.Done():
		if ctx.Err() != nil {
			return outcomeAborted, ctx.Err()
		}
		return outcomeSendFailed, fmt.Errorf("send timed out after %s", s.cfg.SendTimeout)
	}
}

// apply records the result of one attempt; callers hold q.mu. An item that
// left pending while the attempt ran (cancelled) keeps its state and the
// result is dropped.
func (s *Scheduler) apply(ctx context.Context, q *userQueue, e *entry, res outcome, cause error, now time.Time) TickReport {
	e.inFlight = false
	it := &e.item
	if it.State != internal.StatePending {
		s.logger.Infof("dropping %s result for %s: state is %s", describe(res), it.ID, it.State)
		return TickReport{Discarded: 1}
	}

	// timestamps stay in the zone the item was planned in
	local := now.In(it.DueAt.Location())
	var r TickReport
	switch res {
	case outcomeAborted:
		q.requeue(e)
		return r
	case outcomeDelivered:
		at := local
		it.State = internal.StateDelivered
		it.DeliveredAt = &at
		it.LastError = ""
		r.Delivered = 1
	case outcomeIneligible:
		it.Attempts++
		it.LastError = cause.Error()
		if it.Attempts >= s.cfg.MaxAttempts {
			it.State = internal.StateCancelled
			r.Cancelled = 1
		} else {
			it.DueAt = later(it.DueAt, local.Add(s.cfg.IneligibleDelay))
			q.requeue(e)
			r.Rescheduled = 1
		}
	case outcomeSendFailed:
		it.Attempts++
		it.LastError = cause.Error()
		if it.Attempts >= s.cfg.MaxAttempts {
			it.State = internal.StateFailed
			r.Failed = 1
			s.logger.Warnf("intervention %s for user %s failed after %d attempts: %v", it.ID, it.UserID, it.Attempts, cause)
		} else {
			it.DueAt = later(it.DueAt, local.Add(s.backoff(it.Attempts)))
			q.requeue(e)
			r.Rescheduled = 1
		}
	}
	it.UpdatedAt = now
	s.persist(ctx, *it)
	if it.State == internal.StateFailed || it.State == internal.StateCancelled {
		s.evict(q, it.ID)
	}
	return r
}

// backoff is BackoffBase * 2^attempts.
func (s *Scheduler) backoff(attempts int) time.Duration {
	return s.cfg.BackoffBase * time.Duration(1<<uint(attempts))
}

// later keeps due timestamps monotonic across reschedules.
func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func describe(o outcome) string {
	switch o {
	case outcomeDelivered:
		return "delivered"
	case outcomeIneligible:
		return "ineligible"
	case outcomeSendFailed:
		return "send-failed"
	default:
		return "aborted"
	}
}
