// Package scheduler holds pending interventions in per-user time-ordered
// queues, enforces frequency limits on enqueue and drives delivery with retries.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Padu76/lifeOS-sub000/internal"
	"github.com/Padu76/lifeOS-sub000/internal/burnout"
)

const (
	ReasonDailyLimit = "daily_limit"
	ReasonMinGap     = "min_gap"
)

type EligibilityGate interface {
	Check(ctx context.Context, item internal.ScheduledIntervention, dc internal.DeliveryContext) bool
}

// Transport performs the actual send; it may be slow or unreliable.
type Transport interface {
	Send(ctx context.Context, item internal.ScheduledIntervention) error
}

type DeliveryContextProvider interface {
	Snapshot(ctx context.Context, userID string) (internal.DeliveryContext, error)
}

// PatternSource returns the latest profile or an error wrapping internal.ErrNotFound.
type PatternSource interface {
	GetPattern(ctx context.Context, userID string) (*internal.UserPattern, error)
}

type Repository interface {
	SaveIntervention(ctx context.Context, item *internal.ScheduledIntervention) error
	GetIntervention(ctx context.Context, id string) (*internal.ScheduledIntervention, error)
	ListInterventionsByState(ctx context.Context, state internal.InterventionState) ([]internal.ScheduledIntervention, error)
}

type Config struct {
	DailyMax        int
	MaxAttempts     int
	IneligibleDelay time.Duration
	BackoffBase     time.Duration
	SendTimeout     time.Duration
	UserConcurrency int
	SendConcurrency int

	// deliveries older than this (or the largest min gap, if longer) leave memory
	DeliveredRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		DailyMax:        3,
		MaxAttempts:     3,
		IneligibleDelay: 30 * time.Minute,
		BackoffBase:     5 * time.Minute,
		SendTimeout:     30 * time.Second,
		UserConcurrency: 32,
		SendConcurrency: 4,

		DeliveredRetention: 48 * time.Hour,
	}
}

// Deps are the injected collaborators. Patterns and Repo may be nil.
type Deps struct {
	Gate      EligibilityGate
	Transport Transport
	Device    DeliveryContextProvider
	Patterns  PatternSource
	Repo      Repository
	Now       func() time.Time
}

type EnqueueResult struct {
	Scheduled    bool                            `json:"scheduled"`
	Reason       string                          `json:"reason,omitempty"`
	Intervention *internal.ScheduledIntervention `json:"intervention,omitempty"`
}

type Scheduler struct {
	cfg       Config
	gate      EligibilityGate
	transport Transport
	device    DeliveryContextProvider
	patterns  PatternSource
	repo      Repository
	guard     burnout.Guard
	now       func() time.Time
	logger    internal.Logger

	mu     sync.RWMutex
	users  map[string]*userQueue
	owners map[string]string // intervention id -> user id
}

func New(cfg Config, deps Deps, guard burnout.Guard, logger internal.Logger) (*Scheduler, error) {
	if deps.Gate == nil || deps.Transport == nil || deps.Device == nil {
		return nil, errors.New("scheduler: gate, transport and device provider are required")
	}
	def := DefaultConfig()
	if cfg.DailyMax <= 0 {
		cfg.DailyMax = def.DailyMax
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.IneligibleDelay <= 0 {
		cfg.IneligibleDelay = def.IneligibleDelay
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.UserConcurrency <= 0 {
		cfg.UserConcurrency = def.UserConcurrency
	}
	if cfg.SendConcurrency <= 0 {
		cfg.SendConcurrency = def.SendConcurrency
	}
	if cfg.DeliveredRetention <= 0 {
		cfg.DeliveredRetention = def.DeliveredRetention
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		cfg:       cfg,
		gate:      deps.Gate,
		transport: deps.Transport,
		device:    deps.Device,
		patterns:  deps.Patterns,
		repo:      deps.Repo,
		guard:     guard,
		now:       now,
		logger:    logger.With("component", "DeliveryScheduler"),
		users:     make(map[string]*userQueue),
		owners:    make(map[string]string),
	}, nil
}

func (s *Scheduler) queue(userID string) *userQueue {
	s.mu.RLock()
	q, ok := s.users[userID]
	s.mu.RUnlock()
	if ok {
		return q
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok = s.users[userID]; !ok {
		q = newUserQueue()
		s.users[userID] = q
	}
	return q
}

func (s *Scheduler) lookup(id string) (*userQueue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.owners[id]
	if !ok {
		return nil, false
	}
	return s.users[userID], true
}

func (s *Scheduler) track(id, userID string) {
	s.mu.Lock()
	s.owners[id] = userID
	s.mu.Unlock()
}

func (s *Scheduler) untrack(ids ...string) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	for _, id := range ids {
		delete(s.owners, id)
	}
	s.mu.Unlock()
}

// evict drops a terminal entry from memory once the repository holds it.
// Without a repository the queue is the only record and keeps it.
// Callers hold q.mu.
func (s *Scheduler) evict(q *userQueue, id string) {
	if s.repo == nil {
		return
	}
	q.forget(id)
	s.untrack(id)
}

// retention is how long a delivery must stay in memory to count toward the
// daily max and min gap checks.
func (s *Scheduler) retention(q *userQueue) time.Duration {
	if q.maxGap > s.cfg.DeliveredRetention {
		return q.maxGap
	}
	return s.cfg.DeliveredRetention
}

// Enqueue turns a timing decision into a pending intervention. Policy
// rejections come back as an unscheduled result with a reason, not an error.
// Emergency requests bypass burnout cooldown, daily max and min gap.
func (s *Scheduler) Enqueue(ctx context.Context, decision internal.TimingDecision, payload json.RawMessage) (EnqueueResult, error) {
	req := decision.Request
	if req.UserID == "" {
		return EnqueueResult{}, fmt.Errorf("%w: user id required", internal.ErrInvalidInput)
	}
	if decision.ShouldSkip {
		return EnqueueResult{Reason: decision.SkipReason}, nil
	}
	emergency := req.Urgency == internal.UrgencyEmergency

	// resolved before taking the user lock: it may hit storage
	var cooldown burnout.Verdict
	if !emergency {
		cooldown = s.cooldown(ctx, req)
	}

	now := s.now()
	due := decision.SuggestedAt
	if due.Before(now) {
		// keep the decision's zone: the daily count is per local calendar day
		due = now.In(due.Location())
	}

	q := s.queue(req.UserID)
	q.mu.Lock()
	defer q.mu.Unlock()
	if req.MinGap > q.maxGap {
		q.maxGap = req.MinGap
	}

	if !emergency {
		if cooldown.Suppress {
			return EnqueueResult{Reason: cooldown.Reason}, nil
		}
		if q.countOnDay(due) >= s.cfg.DailyMax {
			return EnqueueResult{Reason: ReasonDailyLimit}, nil
		}
		if q.withinGap(due, req.MinGap) {
			return EnqueueResult{Reason: ReasonMinGap}, nil
		}
	}

	item := internal.ScheduledIntervention{
		ID:                uuid.NewString(),
		UserID:            req.UserID,
		Category:          req.Category,
		Urgency:           req.Urgency,
		RespectQuietHours: req.RespectQuietHours,
		Payload:           payload,
		DueAt:             due,
		State:             internal.StatePending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if s.repo != nil {
		if err := s.repo.SaveIntervention(ctx, &item); err != nil {
			return EnqueueResult{}, fmt.Errorf("scheduler: persist intervention: %w", err)
		}
	}
	q.add(&entry{item: item})
	s.track(item.ID, item.UserID)

	s.logger.Infof("scheduled %s for user %s at %s (%s/%s)", item.ID, item.UserID, item.DueAt.Format(time.RFC3339), item.Category, item.Urgency)
	out := item
	return EnqueueResult{Scheduled: true, Intervention: &out}, nil
}

func (s *Scheduler) cooldown(ctx context.Context, req internal.NotificationRequest) burnout.Verdict {
	if s.patterns == nil {
		return burnout.Verdict{}
	}
	p, err := s.patterns.GetPattern(ctx, req.UserID)
	if err != nil {
		if !errors.Is(err, internal.ErrNotFound) {
			s.logger.Warnf("pattern lookup for %s failed, enqueue without cooldown check: %v", req.UserID, err)
		}
		return burnout.Verdict{}
	}
	return s.guard.Evaluate(p.Burnout, req.Urgency)
}

// Cancel closes a pending intervention immediately regardless of its due time.
// Terminal items are returned unchanged. An in-flight send that resolves later
// is discarded.
func (s *Scheduler) Cancel(ctx context.Context, id string) (internal.ScheduledIntervention, error) {
	if it, ok := s.cancelQueued(ctx, id); ok {
		return it, nil
	}
	if s.repo != nil {
		if it, err := s.repo.GetIntervention(ctx, id); err == nil && it.State.Terminal() {
			return *it, nil
		}
	}
	return internal.ScheduledIntervention{}, fmt.Errorf("intervention %s: %w", id, internal.ErrNotFound)
}

// cancelQueued reports false when id is not held in memory.
func (s *Scheduler) cancelQueued(ctx context.Context, id string) (internal.ScheduledIntervention, bool) {
	q, ok := s.lookup(id)
	if !ok {
		return internal.ScheduledIntervention{}, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.items[id]
	if !ok {
		return internal.ScheduledIntervention{}, false
	}
	if e.item.State.Terminal() {
		return e.item, true
	}
	e.item.State = internal.StateCancelled
	e.item.UpdatedAt = s.now()
	q.remove(e)
	s.persist(ctx, e.item)
	s.evict(q, id)
	s.logger.Infof("cancelled %s for user %s", id, e.item.UserID)
	return e.item, true
}

func (s *Scheduler) Get(ctx context.Context, id string) (internal.ScheduledIntervention, error) {
	if q, ok := s.lookup(id); ok {
		q.mu.Lock()
		e, found := q.items[id]
		var it internal.ScheduledIntervention
		if found {
			it = e.item
		}
		q.mu.Unlock()
		if found {
			return it, nil
		}
	}
	if s.repo != nil {
		it, err := s.repo.GetIntervention(ctx, id)
		if err == nil {
			return *it, nil
		}
		if !errors.Is(err, internal.ErrNotFound) {
			return internal.ScheduledIntervention{}, err
		}
	}
	return internal.ScheduledIntervention{}, fmt.Errorf("intervention %s: %w", id, internal.ErrNotFound)
}

// ListPending returns the user's pending interventions ordered by due time.
func (s *Scheduler) ListPending(userID string) []internal.ScheduledIntervention {
	s.mu.RLock()
	q, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return []internal.ScheduledIntervention{}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending()
	if out == nil {
		return []internal.ScheduledIntervention{}
	}
	return out
}

// Restore reloads pending items, plus recent deliveries that still count
// toward rate limits, from the repository after a restart.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}
	pending, err := s.repo.ListInterventionsByState(ctx, internal.StatePending)
	if err != nil {
		return 0, fmt.Errorf("scheduler: restore pending: %w", err)
	}
	delivered, err := s.repo.ListInterventionsByState(ctx, internal.StateDelivered)
	if err != nil {
		return 0, fmt.Errorf("scheduler: restore delivered: %w", err)
	}
	horizon := s.now().Add(-s.cfg.DeliveredRetention)
	restored := 0
	for _, it := range append(pending, delivered...) {
		if it.State == internal.StateDelivered {
			if at, _ := anchor(it); at.Before(horizon) {
				continue
			}
		}
		if _, known := s.lookup(it.ID); known {
			continue
		}
		q := s.queue(it.UserID)
		q.mu.Lock()
		q.add(&entry{item: it})
		q.mu.Unlock()
		s.track(it.ID, it.UserID)
		if it.State == internal.StatePending {
			restored++
		}
	}
	s.logger.Infof("restored %d pending interventions", restored)
	return restored, nil
}

// persist writes through to the repository; callers hold the user lock.
// The in-memory queue stays authoritative when the write fails.
func (s *Scheduler) persist(ctx context.Context, it internal.ScheduledIntervention) {
	if s.repo == nil {
		return
	}
	if err := s.repo.SaveIntervention(context.WithoutCancel(ctx), &it); err != nil {
		s.logger.Errorf("persist intervention %s (%s): %v", it.ID, it.State, err)
	}
}
