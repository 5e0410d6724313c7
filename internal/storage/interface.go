package storage

import (
	"context"
	"time"

	"github.com/Padu76/lifeOS-sub000/internal"
)

type InterventionRepository interface {
	SaveIntervention(ctx context.Context, item *internal.ScheduledIntervention) error
	GetIntervention(ctx context.Context, id string) (*internal.ScheduledIntervention, error)
	ListInterventionsByState(ctx context.Context, state internal.InterventionState) ([]internal.ScheduledIntervention, error)
}

// HistoryRepository holds raw engagement records. List results are ordered oldest first.
type HistoryRepository interface {
	SaveActivity(ctx context.Context, rec *internal.ActivityRecord) error
	SaveCheckIn(ctx context.Context, rec *internal.CheckInRecord) error
	ListActivities(ctx context.Context, userID string, since time.Time) ([]internal.ActivityRecord, error)
	ListCheckIns(ctx context.Context, userID string, since time.Time) ([]internal.CheckInRecord, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

type PatternRepository interface {
	SavePattern(ctx context.Context, p *internal.UserPattern) error
	GetPattern(ctx context.Context, userID string) (*internal.UserPattern, error)
}

// Repositories bundles one backend's repositories; Close flushes and releases it.
type Repositories struct {
	Interventions InterventionRepository
	History       HistoryRepository
	Patterns      PatternRepository
	Close         func() error
}
