package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/studio/internal/repository"
)

const sessionListKey = "studio:sessions"

func (r *Repo) getSessionKey(id string) string {
	return "studio:session:" + id
}

type sessionHash struct {
	ID        string `redis:"id"`
	Title     string `redis:"title"`
	Quality   string `redis:"quality"`
	SceneID   string `redis:"scene_id"`
	Version   uint64 `redis:"version"`
	Platforms string `redis:"platforms"`
	StartedAt int64  `redis:"started_at"`
	EndedAt   int64  `redis:"ended_at"`
}

func (r *Repo) SaveSession(ctx context.Context, s repository.Session) error {
	r.logger.DebugContext(ctx, "called", "session_id", s.ID)
	platforms, err := json.Marshal(s.Platforms)
	if err != nil {
		return fmt.Errorf("failed to encode platforms: %w", err)
	}

	key := r.getSessionKey(s.ID)
	pipe := r.rc.TxPipeline()
	r.hsetStruct(ctx, pipe, key, sessionHash{
		ID:        s.ID,
		Title:     s.Title,
		Quality:   s.Quality,
		SceneID:   s.SceneID,
		Version:   s.Version,
		Platforms: string(platforms),
		StartedAt: s.StartedAt.UnixMilli(),
		EndedAt:   s.EndedAt.UnixMilli(),
	})
	if r.cfg.HistoryTTL > 0 {
		pipe.Expire(ctx, key, r.cfg.HistoryTTL)
	}
	pipe.ZAdd(ctx, sessionListKey, redis.Z{
		Score:  float64(s.StartedAt.UnixMilli()),
		Member: s.ID,
	})

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	return nil
}

func (r *Repo) GetSession(ctx context.Context, id string) (repository.Session, error) {
	r.logger.DebugContext(ctx, "called", "session_id", id)
	var h sessionHash
	if err := r.rc.HGetAll(ctx, r.getSessionKey(id)).Scan(&h); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return repository.Session{}, err
	}
	if h.ID == "" {
		return repository.Session{}, repository.ErrSessionNotFound
	}

	return h.session()
}

// ListSessions returns up to limit sessions, newest first. Expired entries are pruned
// from the index as they are found.
func (r *Repo) ListSessions(ctx context.Context, limit int) ([]repository.Session, error) {
	r.logger.DebugContext(ctx, "called", "limit", limit)
	if limit <= 0 {
		limit = 20
	}

	ids, err := r.rc.ZRevRange(ctx, sessionListKey, 0, int64(limit)-1).Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, err
	}

	sessions := make([]repository.Session, 0, len(ids))
	var expired []any
	for _, id := range ids {
		s, err := r.GetSession(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				expired = append(expired, id)
				continue
			}
			return nil, err
		}
		sessions = append(sessions, s)
	}

	if len(expired) > 0 {
		if err := r.rc.ZRem(ctx, sessionListKey, expired...).Err(); err != nil {
			r.logger.WarnContext(ctx, "failed to prune session index", "error", err)
		}
	}

	return sessions, nil
}

func (h sessionHash) session() (repository.Session, error) {
	s := repository.Session{
		ID:        h.ID,
		Title:     h.Title,
		Quality:   h.Quality,
		SceneID:   h.SceneID,
		Version:   h.Version,
		StartedAt: time.UnixMilli(h.StartedAt).UTC(),
		EndedAt:   time.UnixMilli(h.EndedAt).UTC(),
	}
	if h.Platforms != "" {
		if err := json.Unmarshal([]byte(h.Platforms), &s.Platforms); err != nil {
			return repository.Session{}, fmt.Errorf("failed to decode platforms: %w", err)
		}
	}
	return s, nil
}
