package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Padu76/lifeOS-sub000/internal"
)

type PostgresStorage struct {
	pool   *pgxpool.Pool
	logger internal.Logger
}

func NewPostgresStorage(ctx context.Context, dsn string, logger internal.Logger) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Errorf("failed to connect to postgres: %v", err)
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Errorf("postgres ping failed: %v", err)
		return nil, err
	}
	return &PostgresStorage{pool: pool, logger: logger}, nil
}

func (p *PostgresStorage) Close() { p.pool.Close() }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS interventions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		category TEXT NOT NULL,
		urgency TEXT NOT NULL,
		respect_quiet_hours BOOLEAN NOT NULL DEFAULT TRUE,
		payload JSONB,
		due_at TIMESTAMPTZ NOT NULL,
		state TEXT NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		delivered_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS interventions_state_due_idx ON interventions (state, due_at)`,
	`CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		category TEXT NOT NULL,
		completed BOOLEAN NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		tz_offset INT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS activities_user_ts_idx ON activities (user_id, ts)`,
	`CREATE TABLE IF NOT EXISTS checkins (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		stress DOUBLE PRECISION NOT NULL,
		energy DOUBLE PRECISION NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		tz_offset INT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS checkins_user_ts_idx ON checkins (user_id, ts)`,
	`CREATE TABLE IF NOT EXISTS patterns (
		user_id TEXT PRIMARY KEY,
		data JSONB NOT NULL,
		computed_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the tables when missing; it is safe to run on every start.
func (p *PostgresStorage) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			p.logger.Errorf("migration failed: %v", err)
			return fmt.Errorf("storage: migrate: %w", err)
		}
	}
	return nil
}

// --- InterventionRepository ---
func (p *PostgresStorage) SaveIntervention(ctx context.Context, it *internal.ScheduledIntervention) error {
	var payload []byte
	if len(it.Payload) > 0 {
		payload = it.Payload
	}
	_, err := p.pool.Exec(ctx, `INSERT INTO interventions
		(id, user_id, category, urgency, respect_quiet_hours, payload, due_at, state, attempts, last_error, created_at, updated_at, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			due_at = EXCLUDED.due_at,
			state = EXCLUDED.state,
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at,
			delivered_at = EXCLUDED.delivered_at`,
		it.ID, it.UserID, string(it.Category), string(it.Urgency), it.RespectQuietHours, payload,
		it.DueAt, string(it.State), it.Attempts, it.LastError, it.CreatedAt, it.UpdatedAt, it.DeliveredAt)
	if err != nil {
		p.logger.Errorf("failed to upsert intervention %s: %v", it.ID, err)
		return err
	}
	return nil
}

const interventionColumns = `id, user_id, category, urgency, respect_quiet_hours, payload, due_at, state, attempts, last_error, created_at, updated_at, delivered_at`

func scanIntervention(row pgx.Row) (internal.ScheduledIntervention, error) {
	var (
		it                       internal.ScheduledIntervention
		category, urgency, state string
		payload                  []byte
	)
	err := row.Scan(&it.ID, &it.UserID, &category, &urgency, &it.RespectQuietHours, &payload,
		&it.DueAt, &state, &it.Attempts, &it.LastError, &it.CreatedAt, &it.UpdatedAt, &it.DeliveredAt)
	if err != nil {
		return it, err
	}
	it.Category = internal.Category(category)
	it.Urgency = internal.Urgency(urgency)
	it.State = internal.InterventionState(state)
	if len(payload) > 0 {
		it.Payload = json.RawMessage(payload)
	}
	return it, nil
}

func (p *PostgresStorage) GetIntervention(ctx context.Context, id string) (*internal.ScheduledIntervention, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+interventionColumns+` FROM interventions WHERE id = $1`, id)
	it, err := scanIntervention(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("storage: intervention %s: %w", id, internal.ErrNotFound)
		}
		p.logger.Errorf("failed to load intervention %s: %v", id, err)
		return nil, err
	}
	return &it, nil
}

func (p *PostgresStorage) ListInterventionsByState(ctx context.Context, state internal.InterventionState) ([]internal.ScheduledIntervention, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+interventionColumns+` FROM interventions WHERE state = $1 ORDER BY due_at`, string(state))
	if err != nil {
		p.logger.Errorf("failed to query interventions: %v", err)
		return nil, err
	}
	defer rows.Close()

	out := []internal.ScheduledIntervention{}
	for rows.Next() {
		it, err := scanIntervention(rows)
		if err != nil {
			p.logger.Errorf("failed to scan intervention: %v", err)
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// --- HistoryRepository ---

// Timestamps keep their UTC offset so hour-of-day stays local to the user.
func zoneOffset(t time.Time) int {
	_, off := t.Zone()
	return off
}

func inZone(t time.Time, off int) time.Time {
	if off == 0 {
		return t.UTC()
	}
	return t.In(time.FixedZone("", off))
}

func (p *PostgresStorage) SaveActivity(ctx context.Context, rec *internal.ActivityRecord) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO activities (id, user_id, category, completed, ts, tz_offset)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET category = EXCLUDED.category, completed = EXCLUDED.completed, ts = EXCLUDED.ts, tz_offset = EXCLUDED.tz_offset`,
		rec.ID, rec.UserID, string(rec.Category), rec.Completed, rec.Timestamp, zoneOffset(rec.Timestamp))
	if err != nil {
		p.logger.Errorf("failed to insert activity: %v", err)
		return err
	}
	return nil
}

func (p *PostgresStorage) SaveCheckIn(ctx context.Context, rec *internal.CheckInRecord) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO checkins (id, user_id, stress, energy, ts, tz_offset)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET stress = EXCLUDED.stress, energy = EXCLUDED.energy, ts = EXCLUDED.ts, tz_offset = EXCLUDED.tz_offset`,
		rec.ID, rec.UserID, rec.Stress, rec.Energy, rec.Timestamp, zoneOffset(rec.Timestamp))
	if err != nil {
		p.logger.Errorf("failed to insert check-in: %v", err)
		return err
	}
	return nil
}

func (p *PostgresStorage) ListActivities(ctx context.Context, userID string, since time.Time) ([]internal.ActivityRecord, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, user_id, category, completed, ts, tz_offset FROM activities
		WHERE user_id = $1 AND ts >= $2 ORDER BY ts`, userID, since)
	if err != nil {
		p.logger.Errorf("failed to query activities: %v", err)
		return nil, err
	}
	defer rows.Close()

	out := []internal.ActivityRecord{}
	for rows.Next() {
		var (
			a        internal.ActivityRecord
			category string
			off      int
		)
		if err := rows.Scan(&a.ID, &a.UserID, &category, &a.Completed, &a.Timestamp, &off); err != nil {
			p.logger.Errorf("failed to scan activity: %v", err)
			return nil, err
		}
		a.Category = internal.Category(category)
		a.Timestamp = inZone(a.Timestamp, off)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *PostgresStorage) ListCheckIns(ctx context.Context, userID string, since time.Time) ([]internal.CheckInRecord, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, user_id, stress, energy, ts, tz_offset FROM checkins
		WHERE user_id = $1 AND ts >= $2 ORDER BY ts`, userID, since)
	if err != nil {
		p.logger.Errorf("failed to query check-ins: %v", err)
		return nil, err
	}
	defer rows.Close()

	out := []internal.CheckInRecord{}
	for rows.Next() {
		var (
			c   internal.CheckInRecord
			off int
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.Stress, &c.Energy, &c.Timestamp, &off); err != nil {
			p.logger.Errorf("failed to scan check-in: %v", err)
			return nil, err
		}
		c.Timestamp = inZone(c.Timestamp, off)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresStorage) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT user_id FROM activities UNION SELECT user_id FROM checkins ORDER BY 1`)
	if err != nil {
		p.logger.Errorf("failed to list users: %v", err)
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- PatternRepository ---
func (p *PostgresStorage) SavePattern(ctx context.Context, pat *internal.UserPattern) error {
	data, err := json.Marshal(pat)
	if err != nil {
		return fmt.Errorf("storage: encode pattern: %w", err)
	}
	_, err = p.pool.Exec(ctx, `INSERT INTO patterns (user_id, data, computed_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET data = EXCLUDED.data, computed_at = EXCLUDED.computed_at`,
		pat.UserID, data, pat.ComputedAt)
	if err != nil {
		p.logger.Errorf("failed to save pattern for %s: %v", pat.UserID, err)
		return err
	}
	return nil
}

func (p *PostgresStorage) GetPattern(ctx context.Context, userID string) (*internal.UserPattern, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT data FROM patterns WHERE user_id = $1`, userID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("storage: pattern for %s: %w", userID, internal.ErrNotFound)
		}
		p.logger.Errorf("failed to load pattern for %s: %v", userID, err)
		return nil, err
	}
	var pat internal.UserPattern
	if err := json.Unmarshal(data, &pat); err != nil {
		return nil, fmt.Errorf("storage: decode pattern: %w", err)
	}
	return &pat, nil
}

// --- Compile-time assertions ---
var _ InterventionRepository = (*PostgresStorage)(nil)
var _ HistoryRepository = (*PostgresStorage)(nil)
var _ PatternRepository = (*PostgresStorage)(nil)
