package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sharetube/studio/internal/fault"
)

var (
	ErrLagged = fault.New(fault.Lagged, "subscriber fell behind")
	ErrClosed = fault.New(fault.NotActive, "subscription closed")
)

const defaultBuffer = 256

type Metrics interface {
	IncEventsPublished(kind string)
	IncSubscribersLagged()
}

// Bus fans events out to subscribers. Each subscriber owns a bounded queue; a subscriber
// whose queue is full when an event arrives is disconnected with ErrLagged and never
// blocks the publisher.
type Bus struct {
	mu        sync.Mutex
	seq       uint64
	sessionID string
	nextID    uint64
	subs      map[uint64]*Subscription
	buffer    int
	sinks     []*mirror
	metrics   Metrics
	logger    *slog.Logger
}

func NewBus(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
		logger: logger,
	}
}

func (b *Bus) SetMetrics(m Metrics) {
	b.mu.Lock()
	b.metrics = m
	b.mu.Unlock()
}

// SetSession stamps subsequent events with id.
func (b *Bus) SetSession(id string) {
	b.mu.Lock()
	b.sessionID = id
	b.mu.Unlock()
}

// AddSink mirrors every event into s from a dedicated goroutine with its own queue.
// The goroutine ends with ctx.
func (b *Bus) AddSink(ctx context.Context, name string, s Sink, queue int) {
	m := newMirror(name, s, queue, b.logger)
	go m.run(ctx)

	b.mu.Lock()
	b.sinks = append(b.sinks, m)
	b.mu.Unlock()
}

func (b *Bus) Publish(ctx context.Context, kind Kind, payload any) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	ev := Event{
		Seq:       b.seq,
		SessionID: b.sessionID,
		Kind:      kind,
		Payload:   payload,
		Time:      time.Now().UTC(),
	}

	for id, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			delete(b.subs, id)
			sub.close(ErrLagged)
			b.logger.WarnContext(ctx, "event subscriber lagged", "subscriber", id, "seq", ev.Seq)
			if b.metrics != nil {
				b.metrics.IncSubscribersLagged()
			}
		}
	}

	for _, m := range b.sinks {
		m.offer(ev)
	}

	if b.metrics != nil {
		b.metrics.IncEventsPublished(string(kind))
	}

	return ev
}

// Subscribe starts delivery from the next published event.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:  b.nextID,
		bus: b,
		ch:  make(chan Event, b.buffer),
	}
	b.subs[sub.id] = sub

	return sub
}

func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// LastSeq is the sequence number of the latest event.
func (b *Bus) LastSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		sub.close(ErrClosed)
	}
}

type Subscription struct {
	id   uint64
	bus  *Bus
	ch   chan Event
	once sync.Once
	err  error
}

// Events is closed when the subscription ends; Err then tells why.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) Err() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	return s.err
}

func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// close must be called with the bus lock held.
func (s *Subscription) close(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.ch)
	})
}
