package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Padu76/lifeOS-sub000/internal"
	"github.com/Padu76/lifeOS-sub000/internal/pattern"
)

// historyFile is the export format read by analyze and predict.
type historyFile struct {
	Activities []internal.ActivityRecord `json:"activities"`
	CheckIns   []internal.CheckInRecord  `json:"checkins"`
}

func loadHistory(path string) (*historyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var h historyFile
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}
	return &h, nil
}

// forUser keeps the records of userID. An empty userID keeps everything and
// takes the user from the first record.
func (h *historyFile) forUser(userID string) (string, []internal.ActivityRecord, []internal.CheckInRecord) {
	if userID == "" {
		switch {
		case len(h.Activities) > 0:
			userID = h.Activities[0].UserID
		case len(h.CheckIns) > 0:
			userID = h.CheckIns[0].UserID
		}
		return userID, h.Activities, h.CheckIns
	}
	var acts []internal.ActivityRecord
	for _, a := range h.Activities {
		if a.UserID == userID {
			acts = append(acts, a)
		}
	}
	var checks []internal.CheckInRecord
	for _, c := range h.CheckIns {
		if c.UserID == userID {
			checks = append(checks, c)
		}
	}
	return userID, acts, checks
}

func analyze(h *historyFile, userID string, now time.Time) internal.UserPattern {
	id, acts, checks := h.forUser(userID)
	return pattern.Analyze(id, acts, checks, now)
}

func parseAt(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at must be RFC3339: %w", err)
	}
	return t, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
