package broadcast

import (
	"context"
	"log/slog"
	"time"

	"github.com/sharetube/studio/internal/encoder"
	"github.com/sharetube/studio/internal/fault"
	"github.com/sharetube/studio/internal/media"
)

// Worker is the part of an encoder worker the supervisor drives.
type Worker interface {
	FeedVideo(f *media.Frame)
	FeedAudio(b media.AudioBlock)
	Stop(timeout time.Duration) error
	Abort(reason *fault.Error)
	Done() <-chan struct{}
	ExitInfo() *encoder.ExitInfo
	Degraded() bool
	Stalled(after time.Duration) bool
	Health() encoder.Health
}

type Spawner interface {
	Spawn(ctx context.Context, target encoder.Target, preset media.Preset) (Worker, error)
}

type SpawnerFunc func(ctx context.Context, target encoder.Target, preset media.Preset) (Worker, error)

func (f SpawnerFunc) Spawn(ctx context.Context, target encoder.Target, preset media.Preset) (Worker, error) {
	return f(ctx, target, preset)
}

// EncoderSpawner starts real encoder subprocesses.
func EncoderSpawner(cfg encoder.Config, logger *slog.Logger) Spawner {
	return SpawnerFunc(func(ctx context.Context, target encoder.Target, preset media.Preset) (Worker, error) {
		w, err := encoder.Start(ctx, cfg, target, preset, logger)
		if err != nil {
			return nil, err
		}
		return w, nil
	})
}
