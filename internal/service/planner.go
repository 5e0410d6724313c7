// Package service ties pattern analysis, prediction and scheduling together
// for one authenticated user.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Padu76/lifeOS-sub000/internal"
	"github.com/Padu76/lifeOS-sub000/internal/content"
	"github.com/Padu76/lifeOS-sub000/internal/pattern"
	"github.com/Padu76/lifeOS-sub000/internal/predict"
	"github.com/Padu76/lifeOS-sub000/internal/scheduler"
	"github.com/Padu76/lifeOS-sub000/internal/storage"
)

type PlannerConfig struct {
	DefaultMinGap time.Duration
	// stored patterns older than this are rebuilt before predicting
	PatternMaxAge time.Duration
	Now           func() time.Time
}

type PlannerDeps struct {
	Analyzer  *pattern.Analyzer
	Predictor *predict.Predictor
	Scheduler *scheduler.Scheduler
	History   storage.HistoryRepository
	Patterns  storage.PatternRepository
	Catalog   content.Catalog
}

type Planner struct {
	cfg       PlannerConfig
	analyzer  *pattern.Analyzer
	predictor *predict.Predictor
	scheduler *scheduler.Scheduler
	history   storage.HistoryRepository
	patterns  storage.PatternRepository
	catalog   content.Catalog
	logger    internal.Logger
}

func NewPlanner(cfg PlannerConfig, deps PlannerDeps, logger internal.Logger) *Planner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DefaultMinGap <= 0 {
		cfg.DefaultMinGap = 2 * time.Hour
	}
	if cfg.PatternMaxAge <= 0 {
		cfg.PatternMaxAge = 6 * time.Hour
	}
	return &Planner{
		cfg:       cfg,
		analyzer:  deps.Analyzer,
		predictor: deps.Predictor,
		scheduler: deps.Scheduler,
		history:   deps.History,
		patterns:  deps.Patterns,
		catalog:   deps.Catalog,
		logger:    logger.With("component", "Planner"),
	}
}

type PlanResult struct {
	Decision     internal.TimingDecision         `json:"decision"`
	Scheduled    bool                            `json:"scheduled"`
	Reason       string                          `json:"reason,omitempty"`
	Intervention *internal.ScheduledIntervention `json:"intervention,omitempty"`
}

// Plan predicts a moment for the request and enqueues it. Policy rejections
// come back in the result; only invalid input and storage failures are errors.
func (p *Planner) Plan(ctx context.Context, user *internal.User, req *PlanRequest) (*PlanResult, error) {
	if err := ValidatePlanRequest(req); err != nil {
		return nil, err
	}
	category, _ := internal.ParseCategory(req.Category)
	urgency, _ := internal.ParseUrgency(req.Urgency)

	nreq := internal.NotificationRequest{
		UserID:            user.ID,
		Category:          category,
		Urgency:           urgency,
		MinGap:            p.cfg.DefaultMinGap,
		RespectQuietHours: true,
	}
	if req.MinGapMinutes != nil {
		nreq.MinGap = time.Duration(*req.MinGapMinutes) * time.Minute
	}
	if req.RespectQuietHours != nil {
		nreq.RespectQuietHours = *req.RespectQuietHours
	}

	now := p.cfg.Now()
	pat := p.Pattern(ctx, user.ID, now)
	// the pattern's hours are the user's wall clock; predict and enqueue on it
	now = now.In(pat.Location(now.Location()))
	decision := p.predictor.Predict(nreq, pat, now)

	payload, err := p.payload(req, category, pat.Chronotype)
	if err != nil {
		return nil, err
	}
	res, err := p.scheduler.Enqueue(ctx, decision, payload)
	if err != nil {
		return nil, err
	}
	if !res.Scheduled {
		p.logger.Infof("plan for %s (%s/%s) not scheduled: %s", user.ID, category, urgency, res.Reason)
	}
	return &PlanResult{Decision: decision, Scheduled: res.Scheduled, Reason: res.Reason, Intervention: res.Intervention}, nil
}

func (p *Planner) payload(req *PlanRequest, category internal.Category, chronotype internal.Chronotype) (json.RawMessage, error) {
	if len(req.Payload) > 0 {
		if !json.Valid(req.Payload) {
			return nil, fmt.Errorf("%w: payload is not valid JSON", internal.ErrInvalidInput)
		}
		return req.Payload, nil
	}
	if p.catalog == nil {
		return nil, nil
	}
	msg, ok := p.catalog.Lookup(category, chronotype)
	if !ok {
		return nil, nil
	}
	return msg.Payload()
}

// Pattern returns the stored profile, rebuilding it when missing or stale.
func (p *Planner) Pattern(ctx context.Context, userID string, now time.Time) internal.UserPattern {
	stored, err := p.patterns.GetPattern(ctx, userID)
	if err == nil && now.Sub(stored.ComputedAt) < p.cfg.PatternMaxAge {
		return *stored
	}
	if err != nil && !errors.Is(err, internal.ErrNotFound) {
		p.logger.Warnf("load pattern for %s: %v", userID, err)
	}
	pat, err := p.RebuildPattern(ctx, userID)
	if err != nil {
		p.logger.Warnf("save rebuilt pattern for %s: %v", userID, err)
	}
	return pat
}

// RebuildPattern recomputes the profile from history and stores it.
func (p *Planner) RebuildPattern(ctx context.Context, userID string) (internal.UserPattern, error) {
	pat := p.analyzer.Build(ctx, userID, p.cfg.Now())
	if err := p.patterns.SavePattern(ctx, &pat); err != nil {
		return pat, err
	}
	return pat, nil
}

// RebuildAll recomputes patterns for every user with history and reports how many were stored.
func (p *Planner) RebuildAll(ctx context.Context) (int, error) {
	ids, err := p.history.ListUserIDs(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if _, err := p.RebuildPattern(ctx, id); err != nil {
			p.logger.Errorf("rebuild pattern for %s: %v", id, err)
			continue
		}
		n++
	}
	return n, nil
}

func (p *Planner) RecordActivity(ctx context.Context, user *internal.User, req *ActivityRequest) (*internal.ActivityRecord, error) {
	if err := ValidateActivityRequest(req); err != nil {
		return nil, err
	}
	category, _ := internal.ParseCategory(req.Category)
	rec := &internal.ActivityRecord{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Category:  category,
		Completed: req.Completed,
		Timestamp: p.stamp(ctx, user.ID, req.Timestamp),
	}
	if err := p.history.SaveActivity(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (p *Planner) RecordCheckIn(ctx context.Context, user *internal.User, req *CheckInRequest) (*internal.CheckInRecord, error) {
	if err := ValidateCheckInRequest(req); err != nil {
		return nil, err
	}
	rec := &internal.CheckInRecord{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Stress:    req.Stress,
		Energy:    req.Energy,
		Timestamp: p.stamp(ctx, user.ID, req.Timestamp),
	}
	if err := p.history.SaveCheckIn(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordFeedback turns the user's reaction to a delivered intervention into an
// activity record. The record reuses the intervention id, so repeated
// feedback replaces the earlier answer.
func (p *Planner) RecordFeedback(ctx context.Context, user *internal.User, interventionID string, req *FeedbackRequest) (*internal.ActivityRecord, error) {
	if err := ValidateFeedbackRequest(req); err != nil {
		return nil, err
	}
	it, err := p.Intervention(ctx, user, interventionID)
	if err != nil {
		return nil, err
	}
	if it.State != internal.StateDelivered {
		return nil, fmt.Errorf("%w: intervention %s is %s, not delivered", internal.ErrInvalidInput, it.ID, it.State)
	}
	rec := &internal.ActivityRecord{
		ID:        it.ID,
		UserID:    user.ID,
		Category:  it.Category,
		Completed: req.Action != FeedbackDismissed,
		// same zone the intervention was planned in
		Timestamp: p.cfg.Now().In(it.DueAt.Location()),
	}
	if err := p.history.SaveActivity(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Intervention hides other users' items behind ErrNotFound.
func (p *Planner) Intervention(ctx context.Context, user *internal.User, id string) (internal.ScheduledIntervention, error) {
	it, err := p.scheduler.Get(ctx, id)
	if err != nil {
		return internal.ScheduledIntervention{}, err
	}
	if it.UserID != user.ID {
		return internal.ScheduledIntervention{}, fmt.Errorf("intervention %s: %w", id, internal.ErrNotFound)
	}
	return it, nil
}

func (p *Planner) Cancel(ctx context.Context, user *internal.User, id string) (internal.ScheduledIntervention, error) {
	if _, err := p.Intervention(ctx, user, id); err != nil {
		return internal.ScheduledIntervention{}, err
	}
	return p.scheduler.Cancel(ctx, id)
}

func (p *Planner) Pending(user *internal.User) []internal.ScheduledIntervention {
	return p.scheduler.ListPending(user.ID)
}

// stamp fills a missing timestamp with the current time in the user's zone,
// so records without one do not shift the profile's hours.
func (p *Planner) stamp(ctx context.Context, userID string, t time.Time) time.Time {
	if !t.IsZero() {
		return t
	}
	now := p.cfg.Now()
	stored, err := p.patterns.GetPattern(ctx, userID)
	if err != nil {
		return now
	}
	return now.In(stored.Location(now.Location()))
}
