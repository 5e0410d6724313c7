package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Padu76/lifeOS-sub000/internal"
	"github.com/Padu76/lifeOS-sub000/internal/config"
)

func NewFileRepositories(dataDir string, logger internal.Logger) (*Repositories, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}
	s, err := NewFileStorage(FilePaths{
		Interventions: filepath.Join(dataDir, "interventions.json"),
		Activities:    filepath.Join(dataDir, "activities.json"),
		CheckIns:      filepath.Join(dataDir, "checkins.json"),
		Patterns:      filepath.Join(dataDir, "patterns.json"),
	}, logger)
	if err != nil {
		return nil, err
	}
	return &Repositories{Interventions: s, History: s, Patterns: s, Close: s.Close}, nil
}

func NewPostgresRepositories(ctx context.Context, dsn string, logger internal.Logger) (*Repositories, error) {
	s, err := NewPostgresStorage(ctx, dsn, logger)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return &Repositories{Interventions: s, History: s, Patterns: s, Close: func() error { s.Close(); return nil }}, nil
}

// NewRepositories picks the backend named by STORAGE_BACKEND.
func NewRepositories(ctx context.Context, cfg *config.Config, logger internal.Logger) (*Repositories, error) {
	switch cfg.DBType {
	case config.BackendPostgres:
		return NewPostgresRepositories(ctx, cfg.DBDSN, logger)
	case config.BackendFile:
		return NewFileRepositories(cfg.DataDir, logger)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.DBType)
	}
}
