package store

import (
	"fmt"
	"log/slog"

	"member-activity/internal/config"
	"member-activity/internal/services"
)

// Backend is everything the commands need from storage.
type Backend interface {
	services.Store
	services.StandingsStore
	Close() error
}

// New opens the backend selected by cfg.Type.
func New(cfg config.Database, logger *slog.Logger) (Backend, error) {
	switch cfg.Type {
	case "sqlite", "postgres":
		s, err := Open(cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgrest":
		return NewPostgrestStore(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown database type %q", cfg.Type)
	}
}
