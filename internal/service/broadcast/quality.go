package broadcast

import (
	"context"

	"github.com/sharetube/studio/internal/events"
	"github.com/sharetube/studio/internal/media"
)

// ChangeQuality switches every binding to preset by stopping all workers and starting
// them again one by one. Per-platform results are returned even when some restarts fail.
func (s *Supervisor) ChangeQuality(ctx context.Context, preset media.Preset) (QualityChange, error) {
	s.quality.Lock()
	defer s.quality.Unlock()

	s.mu.Lock()
	prev := s.preset
	if prev.Name == preset.Name {
		s.mu.Unlock()
		return QualityChange{From: prev.Name, To: preset.Name, Results: []RestartResult{}}, nil
	}
	tags := s.activeTags()
	configs := make([]PlatformConfig, 0, len(tags))
	for _, tag := range tags {
		configs = append(configs, s.bindings[tag].cfg)
	}
	s.mu.Unlock()

	if len(configs) > 0 {
		s.logger.InfoContext(ctx, "restarting platforms for quality change",
			"from", prev.Name,
			"to", preset.Name,
			"platforms", tags,
		)
		s.StopAll(ctx)
	}

	if err := s.Initialize(preset); err != nil {
		s.logger.ErrorContext(ctx, "failed to apply preset", "preset", preset.Name, "error", err)
		return QualityChange{}, err
	}

	change := QualityChange{
		From:    prev.Name,
		To:      preset.Name,
		Changed: true,
		Results: make([]RestartResult, 0, len(configs)),
	}
	for _, cfg := range configs {
		res := RestartResult{Tag: cfg.Tag, Success: true}
		if _, err := s.StartPlatform(ctx, cfg); err != nil {
			res.Success = false
			res.Error = err.Error()
		}
		change.Results = append(change.Results, res)
	}

	if s.publisher != nil {
		s.publisher.Publish(ctx, events.QualityChanged, change)
	}

	return change, nil
}
