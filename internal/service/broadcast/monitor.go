package broadcast

import (
	"context"
	"time"

	"github.com/sharetube/studio/internal/encoder"
	"github.com/sharetube/studio/internal/events"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Run is the monitoring loop. It ends with ctx.
func (s *Supervisor) Run(ctx context.Context) error {
	interval := s.cfg.MonitorInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "broadcast monitor started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

// check observes every binding once, applies the restart policy and publishes the
// aggregate status.
func (s *Supervisor) check(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.bindings) == 0 {
		return
	}

	now := s.now()
	tags := maps.Keys(s.bindings)
	slices.Sort(tags)

	for _, tag := range tags {
		b := s.bindings[tag]
		if b.worker == nil || b.stopping {
			continue
		}

		select {
		case <-b.worker.Done():
			s.handleExit(ctx, b, b.worker.ExitInfo())
			continue
		default:
		}

		if s.cfg.StallTimeout > 0 && b.worker.Stalled(s.cfg.StallTimeout) {
			s.logger.WarnContext(ctx, "encoder stalled, aborting", "platform", tag, "after", s.cfg.StallTimeout)
			b.worker.Abort(encoder.ErrQueueOverflowTerminal)
			continue
		}

		switch b.state {
		case StateStarting:
			if now.Sub(b.startedAt) >= s.cfg.LiveGrace {
				s.transition(ctx, b, StateStarting, StateLive, "")
			}
		case StateLive:
			if b.worker.Degraded() {
				s.transition(ctx, b, StateLive, StateDegraded, "audio queue saturated")
			}
		}
	}

	if s.publisher != nil && len(s.bindings) > 0 {
		s.publisher.Publish(ctx, events.BroadcastStatus, s.snapshot())
	}
}

func (s *Supervisor) handleExit(ctx context.Context, b *binding, info *encoder.ExitInfo) {
	from := b.state

	b.worker = nil
	b.lastExit = info
	b.lastError = "encoder exited"
	if err := info.Err(); err != nil {
		b.lastError = err.Error()
	}

	s.logger.WarnContext(ctx, "encoder exited",
		"platform", b.cfg.Tag,
		"state", from,
		"retries", b.retries,
		"error", b.lastError,
	)
	s.fail(ctx, b, from)
}

// fail marks b failed and either schedules a restart, while the budget allows, or drops
// the binding with a terminal event. Called with s.mu held.
func (s *Supervisor) fail(ctx context.Context, b *binding, from State) {
	b.state = StateFailed

	if b.cfg.AutoRestart && b.retries < s.cfg.Retries {
		s.publishChange(ctx, b, from, b.lastError, false)
		b.cancel = make(chan struct{})
		b.nextAttempt = s.now().Add(s.cfg.Backoff)
		go s.restart(ctx, b, b.cancel)
		return
	}

	delete(s.bindings, b.cfg.Tag)
	s.publishChange(ctx, b, from, b.lastError, true)
	if s.metrics != nil {
		s.metrics.DeletePlatform(b.cfg.Tag)
	}
	s.logger.ErrorContext(ctx, "platform failed permanently",
		"platform", b.cfg.Tag,
		"retries", b.retries,
		"auto_restart", b.cfg.AutoRestart,
		"error", b.lastError,
	)
}

func (s *Supervisor) restart(ctx context.Context, b *binding, cancel <-chan struct{}) {
	timer := time.NewTimer(s.cfg.Backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-cancel:
		return
	case <-timer.C:
	}

	s.mu.Lock()
	if s.bindings[b.cfg.Tag] != b || b.stopping {
		s.mu.Unlock()
		return
	}
	b.cancel = nil
	b.nextAttempt = time.Time{}
	s.transition(ctx, b, StateFailed, StateStarting, "")
	spawned := make(chan struct{})
	b.spawned = spawned
	preset := s.preset
	s.mu.Unlock()

	w, err := s.spawner.Spawn(ctx, b.cfg.target(), preset)

	s.mu.Lock()
	b.spawned = nil
	close(spawned)

	b.retries++
	if s.metrics != nil {
		s.metrics.IncPlatformRestarts(b.cfg.Tag)
	}

	if b.stopping {
		if err != nil {
			b.state = StateFailed
			s.mu.Unlock()
			return
		}
		if b.abandoned {
			s.mu.Unlock()
			s.stopOrphan(ctx, b.cfg.Tag, w)
			return
		}
		b.worker = w
		s.mu.Unlock()
		return
	}
	defer s.mu.Unlock()

	if err != nil {
		b.lastError = err.Error()
		s.logger.ErrorContext(ctx, "failed to restart platform", "platform", b.cfg.Tag, "retries", b.retries, "error", err)
		s.fail(ctx, b, StateStarting)
		return
	}

	b.worker = w
	b.startedAt = s.now()
	s.logger.InfoContext(ctx, "platform restarted", "platform", b.cfg.Tag, "retries", b.retries)
}
