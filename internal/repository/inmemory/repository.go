// Package inmemory keeps scenes, session history and recent events in process memory.
// It backs a studio that runs without redis.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/sharetube/studio/internal/events"
	"github.com/sharetube/studio/internal/repository"
	"github.com/sharetube/studio/internal/scene"
)

const defaultEventLogLen = 1000

type Repo struct {
	mu       sync.RWMutex
	scenes   map[string]*scene.Scene
	sessions map[string]repository.Session
	events   []events.Event
	maxLen   int
}

func NewRepo(eventLogLen int) *Repo {
	if eventLogLen <= 0 {
		eventLogLen = defaultEventLogLen
	}
	return &Repo{
		scenes:   make(map[string]*scene.Scene),
		sessions: make(map[string]repository.Session),
		maxLen:   eventLogLen,
	}
}

func (r *Repo) SaveScene(_ context.Context, sc *scene.Scene) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scenes[sc.ID()] = sc
	return nil
}

func (r *Repo) GetScene(_ context.Context, id string) (*scene.Scene, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sc, ok := r.scenes[id]
	if !ok {
		return nil, repository.ErrSceneNotFound
	}
	return sc, nil
}

func (r *Repo) ListScenes(_ context.Context) ([]*scene.Scene, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	scenes := make([]*scene.Scene, 0, len(r.scenes))
	for _, sc := range r.scenes {
		scenes = append(scenes, sc)
	}
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].ID() < scenes[j].ID() })
	return scenes, nil
}

func (r *Repo) DeleteScene(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.scenes[id]; !ok {
		return repository.ErrSceneNotFound
	}
	delete(r.scenes, id)
	return nil
}

func (r *Repo) SaveSession(_ context.Context, s repository.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = s
	return nil
}

func (r *Repo) GetSession(_ context.Context, id string) (repository.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return repository.Session{}, repository.ErrSessionNotFound
	}
	return s, nil
}

func (r *Repo) ListSessions(_ context.Context, limit int) ([]repository.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	list := make([]repository.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].StartedAt.After(list[j].StartedAt) })
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *Repo) Append(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
	if over := len(r.events) - r.maxLen; over > 0 {
		r.events = append(r.events[:0], r.events[over:]...)
	}
	return nil
}

func (r *Repo) Recent(_ context.Context, n int) ([]events.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > len(r.events) {
		n = len(r.events)
	}
	out := make([]events.Event, n)
	copy(out, r.events[len(r.events)-n:])
	return out, nil
}
