// Package redis persists scenes, session history and the control event log.
package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	// HistoryTTL bounds how long finished sessions are kept. Zero keeps them forever.
	HistoryTTL time.Duration
	// EventLogMaxLen caps the event stream, approximately.
	EventLogMaxLen int64
}

type Repo struct {
	rc     *redis.Client
	cfg    Config
	logger *slog.Logger
}

func NewRepo(rc *redis.Client, cfg Config, logger *slog.Logger) *Repo {
	if cfg.EventLogMaxLen <= 0 {
		cfg.EventLogMaxLen = 10000
	}
	return &Repo{
		rc:     rc,
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Repo) Ping(ctx context.Context) error {
	return r.rc.Ping(ctx).Err()
}
