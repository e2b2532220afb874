// Package broadcast supervises one encoder worker per platform: start, stop, liveness
// monitoring, bounded restarts and quality changes.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sharetube/studio/internal/events"
	"github.com/sharetube/studio/internal/fault"
	"github.com/sharetube/studio/internal/media"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

var (
	ErrAlreadyActive   = fault.New(fault.AlreadyActive, "platform already has an active binding")
	ErrNotActive       = fault.New(fault.NotActive, "platform has no active binding")
	ErrInvalidArgument = fault.New(fault.InvalidArgument, "platform tag is required")
)

type Config struct {
	Retries         int
	Backoff         time.Duration
	StopGrace       time.Duration
	LiveGrace       time.Duration
	MonitorInterval time.Duration
	// StallTimeout aborts a worker whose queue stays full without a write. Zero disables it.
	StallTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Retries:         3,
		Backoff:         5 * time.Second,
		StopGrace:       10 * time.Second,
		LiveGrace:       2 * time.Second,
		MonitorInterval: time.Second,
		StallTimeout:    10 * time.Second,
	}
}

type Metrics interface {
	IncPlatformRestarts(tag string)
	SetPlatformState(tag, state string)
	DeletePlatform(tag string)
}

type Supervisor struct {
	mu       sync.Mutex
	bindings map[string]*binding
	preset   media.Preset

	// quality serializes ChangeQuality calls.
	quality sync.Mutex

	cfg       Config
	spawner   Spawner
	publisher events.Publisher
	metrics   Metrics
	onPreset  func(media.Preset)
	now       func() time.Time
	logger    *slog.Logger
}

func NewSupervisor(cfg Config, spawner Spawner, publisher events.Publisher, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		bindings:  make(map[string]*binding),
		preset:    media.Preset720p,
		cfg:       cfg,
		spawner:   spawner,
		publisher: publisher,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *Supervisor) SetMetrics(m Metrics) {
	s.metrics = m
}

// OnPresetChange registers fn to run whenever Initialize swaps the preset, before any
// worker is started with it.
func (s *Supervisor) OnPresetChange(fn func(media.Preset)) {
	s.onPreset = fn
}

// Initialize sets the preset for workers started from now on. It refuses while bindings
// exist.
func (s *Supervisor) Initialize(preset media.Preset) error {
	s.mu.Lock()
	if len(s.bindings) > 0 {
		state := maps.Keys(s.bindings)
		s.mu.Unlock()
		slices.Sort(state)
		return fault.WithState(ErrAlreadyActive, map[string]any{"platforms": state})
	}
	s.preset = preset
	s.mu.Unlock()

	if s.onPreset != nil {
		s.onPreset(preset)
	}
	return nil
}

func (s *Supervisor) Preset() media.Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preset
}

// StartPlatform spawns a worker for cfg. The binding starts in starting and the monitor
// promotes it to live after the grace window.
func (s *Supervisor) StartPlatform(ctx context.Context, cfg PlatformConfig) (BindingStatus, error) {
	if err := cfg.Validate(); err != nil {
		return BindingStatus{}, err
	}

	s.mu.Lock()
	if b, ok := s.bindings[cfg.Tag]; ok {
		state := b.status(s.now())
		s.mu.Unlock()
		return BindingStatus{}, fault.WithState(ErrAlreadyActive, state)
	}
	spawned := make(chan struct{})
	b := &binding{cfg: cfg, state: StateStarting, spawned: spawned}
	s.bindings[cfg.Tag] = b
	preset := s.preset
	s.mu.Unlock()

	w, err := s.spawner.Spawn(ctx, cfg.target(), preset)

	s.mu.Lock()
	b.spawned = nil
	close(spawned)

	if err != nil {
		b.state = StateFailed
		if s.bindings[cfg.Tag] == b {
			delete(s.bindings, cfg.Tag)
		}
		s.mu.Unlock()
		s.logger.ErrorContext(ctx, "failed to start platform", "platform", cfg.Tag, "error", err)
		return BindingStatus{}, err
	}
	if b.stopping {
		// StopPlatform ran while the worker was spawning.
		notActive := fault.WithState(ErrNotActive, map[string]string{"platform": cfg.Tag})
		if !b.abandoned {
			b.worker = w
			s.mu.Unlock()
			return BindingStatus{}, notActive
		}
		s.mu.Unlock()
		s.stopOrphan(ctx, cfg.Tag, w)
		return BindingStatus{}, notActive
	}

	b.worker = w
	b.startedAt = s.now()
	s.transition(ctx, b, "", StateStarting, "")
	st := b.status(s.now())
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "platform started", "platform", cfg.Tag, "preset", preset.Name)
	return st, nil
}

// stopOrphan stops a worker whose binding was already removed by StopPlatform.
func (s *Supervisor) stopOrphan(ctx context.Context, tag string, w Worker) {
	s.logger.InfoContext(ctx, "stopping encoder spawned after its platform was stopped", "platform", tag)
	if err := w.Stop(s.cfg.StopGrace); err != nil {
		s.logger.ErrorContext(ctx, "failed to stop encoder", "platform", tag, "error", err)
	}
}

// StopPlatform stops the tag's worker, gracefully first and hard after StopGrace. The
// binding leaves the map once the exit has been observed, or once a spawn still in flight
// has been abandoned.
func (s *Supervisor) StopPlatform(ctx context.Context, tag string) (StopResult, error) {
	s.mu.Lock()
	b, ok := s.bindings[tag]
	if !ok || b.stopping {
		active := s.activeTags()
		s.mu.Unlock()
		return StopResult{}, fault.WithState(ErrNotActive, map[string]any{
			"platform":  tag,
			"platforms": active,
		})
	}
	b.stopping = true
	if b.cancel != nil {
		close(b.cancel)
		b.cancel = nil
	}
	s.mu.Unlock()

	w := s.awaitWorker(b)
	if w != nil {
		if err := w.Stop(s.cfg.StopGrace); err != nil {
			s.logger.ErrorContext(ctx, "failed to stop encoder", "platform", tag, "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bindings[tag] == b {
		delete(s.bindings, tag)
	}
	res := StopResult{Tag: tag}
	if w != nil {
		res.Exit = w.ExitInfo()
	}
	from := b.state
	b.state = StateStopped
	s.publishChange(ctx, b, from, "", false)
	if s.metrics != nil {
		s.metrics.DeletePlatform(tag)
	}

	s.logger.InfoContext(ctx, "platform stopped", "platform", tag)
	return res, nil
}

// awaitWorker returns b's worker, waiting up to StopGrace for a spawn still in flight.
// A spawn that outlasts the wait is abandoned and stops its own worker.
func (s *Supervisor) awaitWorker(b *binding) Worker {
	s.mu.Lock()
	spawned := b.spawned
	s.mu.Unlock()

	if spawned != nil {
		timer := time.NewTimer(s.cfg.StopGrace)
		defer timer.Stop()
		select {
		case <-spawned:
		case <-timer.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b.worker == nil && b.spawned != nil {
		b.abandoned = true
	}
	return b.worker
}

// StopAll stops every binding in parallel.
func (s *Supervisor) StopAll(ctx context.Context) []StopResult {
	s.mu.Lock()
	tags := s.activeTags()
	s.mu.Unlock()

	results := make([]StopResult, len(tags))
	var g errgroup.Group
	for i, tag := range tags {
		g.Go(func() error {
			res, err := s.StopPlatform(ctx, tag)
			if err != nil {
				s.logger.InfoContext(ctx, "platform already stopping", "platform", tag, "error", err)
				res = StopResult{Tag: tag}
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *Supervisor) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Supervisor) snapshot() Snapshot {
	now := s.now()
	tags := maps.Keys(s.bindings)
	slices.Sort(tags)

	snap := Snapshot{Preset: s.preset, Bindings: make([]BindingStatus, 0, len(tags))}
	for _, tag := range tags {
		snap.Bindings = append(snap.Bindings, s.bindings[tag].status(now))
	}
	return snap
}

// Tags lists the bound platforms, stopping ones excluded.
func (s *Supervisor) Tags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeTags()
}

func (s *Supervisor) activeTags() []string {
	tags := make([]string, 0, len(s.bindings))
	for tag, b := range s.bindings {
		if !b.stopping {
			tags = append(tags, tag)
		}
	}
	slices.Sort(tags)
	return tags
}

// Distribute hands one rendered frame and audio block to every running worker. It never
// blocks: workers drop their oldest queued frame when full.
func (s *Supervisor) Distribute(frame *media.Frame, audio media.AudioBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.bindings {
		if b.worker == nil || b.stopping {
			continue
		}
		if frame != nil {
			b.worker.FeedVideo(frame)
		}
		if audio.Samples != nil {
			b.worker.FeedAudio(audio)
		}
	}
}

func (s *Supervisor) transition(ctx context.Context, b *binding, from, to State, errMsg string) {
	b.state = to
	s.publishChange(ctx, b, from, errMsg, false)
}

func (s *Supervisor) publishChange(ctx context.Context, b *binding, from State, errMsg string, terminal bool) {
	if s.metrics != nil {
		s.metrics.SetPlatformState(b.cfg.Tag, string(b.state))
	}
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, events.PlatformStatusChanged, StatusChange{
		Tag:      b.cfg.Tag,
		From:     from,
		To:       b.state,
		Retries:  b.retries,
		Error:    errMsg,
		Terminal: terminal,
	})
}
