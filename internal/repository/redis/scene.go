package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/studio/internal/repository"
	"github.com/sharetube/studio/internal/scene"
)

const scenesKey = "studio:scenes"

func (r *Repo) SaveScene(ctx context.Context, sc *scene.Scene) error {
	r.logger.DebugContext(ctx, "called", "scene_id", sc.ID())
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("failed to encode scene: %w", err)
	}

	if err := r.rc.HSet(ctx, scenesKey, sc.ID(), data).Err(); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}

	return nil
}

func (r *Repo) GetScene(ctx context.Context, id string) (*scene.Scene, error) {
	r.logger.DebugContext(ctx, "called", "scene_id", id)
	data, err := r.rc.HGet(ctx, scenesKey, id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrSceneNotFound
		}
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, err
	}

	return decodeScene(data)
}

func (r *Repo) ListScenes(ctx context.Context) ([]*scene.Scene, error) {
	r.logger.DebugContext(ctx, "called")
	all, err := r.rc.HGetAll(ctx, scenesKey).Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return nil, err
	}

	scenes := make([]*scene.Scene, 0, len(all))
	for id, data := range all {
		sc, err := decodeScene([]byte(data))
		if err != nil {
			r.logger.WarnContext(ctx, "skipping undecodable scene", "scene_id", id, "error", err)
			continue
		}
		scenes = append(scenes, sc)
	}
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].ID() < scenes[j].ID() })

	return scenes, nil
}

func (r *Repo) DeleteScene(ctx context.Context, id string) error {
	r.logger.DebugContext(ctx, "called", "scene_id", id)
	n, err := r.rc.HDel(ctx, scenesKey, id).Result()
	if err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return err
	}
	if n == 0 {
		return repository.ErrSceneNotFound
	}

	return nil
}

func decodeScene(data []byte) (*scene.Scene, error) {
	var doc scene.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode scene: %w", err)
	}
	return scene.New(doc)
}
