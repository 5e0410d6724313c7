package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/Padu76/lifeOS-sub000/internal"
)

type FilePaths struct {
	Interventions string
	Activities    string
	CheckIns      string
	Patterns      string
}

// FileStorage keeps everything in memory and mirrors each collection to its
// own JSON file. Writes are debounced per file and replaced atomically.
type FileStorage struct {
	mu            sync.RWMutex
	interventions map[string]*internal.ScheduledIntervention
	// per-user records, oldest first
	activities   map[string][]*internal.ActivityRecord
	activityByID map[string]*internal.ActivityRecord
	checkIns     map[string][]*internal.CheckInRecord
	checkInByID  map[string]*internal.CheckInRecord
	patterns     map[string]*internal.UserPattern

	paths        FilePaths
	savers       map[string]*saver
	shutdownChan chan struct{}
	closeOnce    sync.Once
	wg           sync.WaitGroup
	saveDelay    time.Duration
	logger       internal.Logger
}

type saver struct {
	name   string
	signal chan struct{}
	save   func() error
}

func NewFileStorage(paths FilePaths, logger internal.Logger) (*FileStorage, error) {
	return newFileStorage(paths, 500*time.Millisecond, logger)
}

func newFileStorage(paths FilePaths, saveDelay time.Duration, logger internal.Logger) (*FileStorage, error) {
	s := &FileStorage{
		interventions: make(map[string]*internal.ScheduledIntervention),
		activities:    make(map[string][]*internal.ActivityRecord),
		activityByID:  make(map[string]*internal.ActivityRecord),
		checkIns:      make(map[string][]*internal.CheckInRecord),
		checkInByID:   make(map[string]*internal.CheckInRecord),
		patterns:      make(map[string]*internal.UserPattern),
		paths:         paths,
		shutdownChan:  make(chan struct{}),
		saveDelay:     saveDelay,
		logger:        logger,
	}

	if err := s.load(); err != nil {
		logger.Errorf("storage: failed to load data files: %v", err)
		return nil, err
	}

	s.savers = map[string]*saver{
		"interventions": {name: "interventions", signal: make(chan struct{}, 1), save: s.saveInterventions},
		"activities":    {name: "activities", signal: make(chan struct{}, 1), save: s.saveActivities},
		"checkins":      {name: "checkins", signal: make(chan struct{}, 1), save: s.saveCheckIns},
		"patterns":      {name: "patterns", signal: make(chan struct{}, 1), save: s.savePatterns},
	}
	for _, sv := range s.savers {
		s.wg.Add(1)
		go s.saveWorker(sv)
	}
	return s, nil
}

func (s *FileStorage) load() error {
	var items []*internal.ScheduledIntervention
	if err := readJSONFile(s.paths.Interventions, &items); err != nil {
		return fmt.Errorf("interventions: %w", err)
	}
	var acts []*internal.ActivityRecord
	if err := readJSONFile(s.paths.Activities, &acts); err != nil {
		return fmt.Errorf("activities: %w", err)
	}
	var checks []*internal.CheckInRecord
	if err := readJSONFile(s.paths.CheckIns, &checks); err != nil {
		return fmt.Errorf("checkins: %w", err)
	}
	var pats []*internal.UserPattern
	if err := readJSONFile(s.paths.Patterns, &pats); err != nil {
		return fmt.Errorf("patterns: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.interventions[it.ID] = it
	}
	for _, a := range acts {
		s.activityByID[a.ID] = a
		s.activities[a.UserID] = append(s.activities[a.UserID], a)
	}
	for _, c := range checks {
		s.checkInByID[c.ID] = c
		s.checkIns[c.UserID] = append(s.checkIns[c.UserID], c)
	}
	for _, p := range pats {
		s.patterns[p.UserID] = p
	}
	for userID := range s.activities {
		sortActivities(s.activities[userID])
	}
	for userID := range s.checkIns {
		sortCheckIns(s.checkIns[userID])
	}
	return nil
}

// readJSONFile leaves dst untouched when the file is missing or empty.
func readJSONFile(path string, dst interface{}) error {
	if path == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()
	if err := json.NewDecoder(file).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// atomicWriteFileJSON is a no-op for an empty path; that collection stays in memory only.
func atomicWriteFileJSON(filePath string, data interface{}) error {
	if filePath == "" {
		return nil
	}
	tempFile := filePath + ".tmp"
	f, err := os.Create(tempFile)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}

	return os.Rename(tempFile, filePath)
}

func (s *FileStorage) saveInterventions() error {
	s.mu.RLock()
	items := make([]*internal.ScheduledIntervention, 0, len(s.interventions))
	for _, it := range s.interventions {
		cp := *it
		items = append(items, &cp)
	}
	s.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return atomicWriteFileJSON(s.paths.Interventions, items)
}

func (s *FileStorage) saveActivities() error {
	s.mu.RLock()
	recs := make([]internal.ActivityRecord, 0, len(s.activityByID))
	for _, a := range s.activityByID {
		recs = append(recs, *a)
	}
	s.mu.RUnlock()
	return atomicWriteFileJSON(s.paths.Activities, recs)
}

func (s *FileStorage) saveCheckIns() error {
	s.mu.RLock()
	recs := make([]internal.CheckInRecord, 0, len(s.checkInByID))
	for _, c := range s.checkInByID {
		recs = append(recs, *c)
	}
	s.mu.RUnlock()
	return atomicWriteFileJSON(s.paths.CheckIns, recs)
}

func (s *FileStorage) savePatterns() error {
	s.mu.RLock()
	pats := make([]internal.UserPattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		pats = append(pats, *p)
	}
	s.mu.RUnlock()
	return atomicWriteFileJSON(s.paths.Patterns, pats)
}

func (s *FileStorage) saveWorker(sv *saver) {
	defer s.wg.Done()
	timer := time.NewTimer(s.saveDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-sv.signal:
			timer.Reset(s.saveDelay)
		case <-timer.C:
			if err := sv.save(); err != nil {
				s.logger.Errorf("storage: error saving %s: %v", sv.name, err)
			}
		case <-s.shutdownChan:
			return
		}
	}
}

func (s *FileStorage) markDirty(name string) {
	select {
	case s.savers[name].signal <- struct{}{}:
	default:
	}
}

// Close stops the save workers and flushes every collection synchronously.
func (s *FileStorage) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.shutdownChan)
		s.wg.Wait()
		err = errors.Join(s.saveInterventions(), s.saveActivities(), s.saveCheckIns(), s.savePatterns())
	})
	return err
}

// --- InterventionRepository ---
func (s *FileStorage) SaveIntervention(ctx context.Context, item *internal.ScheduledIntervention) error {
	cp := *item
	s.mu.Lock()
	s.interventions[item.ID] = &cp
	s.mu.Unlock()
	s.markDirty("interventions")
	return nil
}

func (s *FileStorage) GetIntervention(ctx context.Context, id string) (*internal.ScheduledIntervention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.interventions[id]
	if !ok {
		return nil, fmt.Errorf("storage: intervention %s: %w", id, internal.ErrNotFound)
	}
	cp := *it
	return &cp, nil
}

func (s *FileStorage) ListInterventionsByState(ctx context.Context, state internal.InterventionState) ([]internal.ScheduledIntervention, error) {
	s.mu.RLock()
	out := []internal.ScheduledIntervention{}
	for _, it := range s.interventions {
		if it.State == state {
			out = append(out, *it)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

// --- HistoryRepository ---
func (s *FileStorage) SaveActivity(ctx context.Context, rec *internal.ActivityRecord) error {
	s.mu.Lock()
	if existing, ok := s.activityByID[rec.ID]; ok && existing.UserID == rec.UserID {
		*existing = *rec
	} else {
		if ok {
			s.activities[existing.UserID] = removeActivity(s.activities[existing.UserID], rec.ID)
		}
		cp := *rec
		s.activityByID[rec.ID] = &cp
		s.activities[rec.UserID] = append(s.activities[rec.UserID], &cp)
	}
	sortActivities(s.activities[rec.UserID])
	s.mu.Unlock()
	s.markDirty("activities")
	return nil
}

func (s *FileStorage) SaveCheckIn(ctx context.Context, rec *internal.CheckInRecord) error {
	s.mu.Lock()
	if existing, ok := s.checkInByID[rec.ID]; ok && existing.UserID == rec.UserID {
		*existing = *rec
	} else {
		if ok {
			s.checkIns[existing.UserID] = removeCheckIn(s.checkIns[existing.UserID], rec.ID)
		}
		cp := *rec
		s.checkInByID[rec.ID] = &cp
		s.checkIns[rec.UserID] = append(s.checkIns[rec.UserID], &cp)
	}
	sortCheckIns(s.checkIns[rec.UserID])
	s.mu.Unlock()
	s.markDirty("checkins")
	return nil
}

func (s *FileStorage) ListActivities(ctx context.Context, userID string, since time.Time) ([]internal.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []internal.ActivityRecord{}
	for _, a := range s.activities[userID] {
		if !a.Timestamp.Before(since) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *FileStorage) ListCheckIns(ctx context.Context, userID string, since time.Time) ([]internal.CheckInRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []internal.CheckInRecord{}
	for _, c := range s.checkIns[userID] {
		if !c.Timestamp.Before(since) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *FileStorage) ListUserIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	seen := make(map[string]struct{}, len(s.activities)+len(s.checkIns))
	for id := range s.activities {
		seen[id] = struct{}{}
	}
	for id := range s.checkIns {
		seen[id] = struct{}{}
	}
	s.mu.RUnlock()
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// --- PatternRepository ---
func (s *FileStorage) SavePattern(ctx context.Context, p *internal.UserPattern) error {
	cp := *p
	s.mu.Lock()
	s.patterns[p.UserID] = &cp
	s.mu.Unlock()
	s.markDirty("patterns")
	return nil
}

func (s *FileStorage) GetPattern(ctx context.Context, userID string) (*internal.UserPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[userID]
	if !ok {
		return nil, fmt.Errorf("storage: pattern for %s: %w", userID, internal.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func sortActivities(recs []*internal.ActivityRecord) {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })
}

func sortCheckIns(recs []*internal.CheckInRecord) {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })
}

func removeActivity(recs []*internal.ActivityRecord, id string) []*internal.ActivityRecord {
	out := recs[:0]
	for _, r := range recs {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

func removeCheckIn(recs []*internal.CheckInRecord, id string) []*internal.CheckInRecord {
	out := recs[:0]
	for _, r := range recs {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

// --- Compile-time assertions ---
var _ InterventionRepository = (*FileStorage)(nil)
var _ HistoryRepository = (*FileStorage)(nil)
var _ PatternRepository = (*FileStorage)(nil)
