package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Padu76/lifeOS-sub000/internal"
)

var at = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

const sample = `{
  "activities": [
    {"id": "a1", "user_id": "u1", "category": "energy_boost", "completed": true, "timestamp": "2024-03-14T08:00:00Z"},
    {"id": "a2", "user_id": "u2", "category": "reminder", "completed": false, "timestamp": "2024-03-14T09:00:00Z"}
  ],
  "checkins": [
    {"id": "c1", "user_id": "u1", "stress": 6, "energy": 4, "timestamp": "2024-03-14T15:00:00Z"}
  ]
}`

func writeHistory(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadHistory(t *testing.T) {
	h, err := loadHistory(writeHistory(t, sample))
	require.NoError(t, err)
	assert.Len(t, h.Activities, 2)
	assert.Len(t, h.CheckIns, 1)

	_, err = loadHistory(writeHistory(t, `{"activities":`))
	assert.Error(t, err)

	_, err = loadHistory(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestAnalyze_FiltersByUser(t *testing.T) {
	h, err := loadHistory(writeHistory(t, sample))
	require.NoError(t, err)

	p := analyze(h, "u1", at)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, 2, p.SampleSize)
	assert.Equal(t, at, p.ComputedAt)

	// without --user the first record decides
	p = analyze(h, "", at)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, 3, p.SampleSize)
}

func TestPredictFor(t *testing.T) {
	h, err := loadHistory(writeHistory(t, sample))
	require.NoError(t, err)

	d, err := predictFor(h, "u1", "stress_relief", "emergency", 0, true, at)
	require.NoError(t, err)
	assert.Equal(t, at, d.SuggestedAt)
	assert.Equal(t, "u1", d.Request.UserID)
	assert.False(t, d.ShouldSkip)

	_, err = predictFor(h, "u1", "nap", "low", 0, true, at)
	assert.Error(t, err)
	_, err = predictFor(h, "u1", "reminder", "asap", 0, true, at)
	assert.Error(t, err)
	_, err = predictFor(h, "u1", "reminder", "low", -time.Minute, true, at)
	assert.Error(t, err)
}

func TestParseAt(t *testing.T) {
	got, err := parseAt("2024-03-15T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, at, got)

	_, err = parseAt("tomorrow")
	assert.Error(t, err)

	got, err = parseAt("")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), got, time.Minute)
}

func TestDoPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":401}}`))
			return
		}
		body, _ := io.ReadAll(r.Body)
		var in map[string]any
		_ = json.Unmarshal(body, &in)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": in, "path": r.URL.Path})
	}))
	defer srv.Close()

	data, err := doPostJSON(srv.URL+"/scheduler/tick", "secret", map[string]any{"at": at})
	require.NoError(t, err)
	var out struct {
		Data map[string]string `json:"data"`
		Path string            `json:"path"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "/scheduler/tick", out.Path)
	assert.Equal(t, "2024-03-15T10:00:00Z", out.Data["at"])

	_, err = doPostJSON(srv.URL+"/scheduler/tick", "wrong", map[string]any{})
	assert.ErrorContains(t, err, "401")
}

func TestHistoryFile_EmptyUser(t *testing.T) {
	h := &historyFile{CheckIns: []internal.CheckInRecord{{ID: "c", UserID: "u9"}}}
	id, acts, checks := h.forUser("")
	assert.Equal(t, "u9", id)
	assert.Empty(t, acts)
	assert.Len(t, checks, 1)
}
