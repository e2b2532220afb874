package events

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type mirror struct {
	name    string
	sink    Sink
	queue   chan Event
	dropped atomic.Uint64
	logger  *slog.Logger
}

func newMirror(name string, s Sink, queue int, logger *slog.Logger) *mirror {
	if queue <= 0 {
		queue = defaultBuffer
	}
	return &mirror{
		name:   name,
		sink:   s,
		queue:  make(chan Event, queue),
		logger: logger.With("sink", name),
	}
}

func (m *mirror) offer(ev Event) {
	select {
	case m.queue <- ev:
	default:
		if m.dropped.Add(1) == 1 {
			m.logger.Warn("event sink is behind, dropping events")
		}
	}
}

func (m *mirror) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.queue:
			if err := m.sink.Append(ctx, ev); err != nil {
				m.logger.WarnContext(ctx, "failed to append event", "seq", ev.Seq, "error", err)
			}
		}
	}
}
