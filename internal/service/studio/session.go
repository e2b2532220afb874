package studio

import (
	"context"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/sharetube/studio/internal/compositor"
	"github.com/sharetube/studio/internal/events"
	"github.com/sharetube/studio/internal/fault"
	"github.com/sharetube/studio/internal/media"
	"github.com/sharetube/studio/internal/repository"
	"github.com/sharetube/studio/internal/service/broadcast"
)

type StartSessionParams struct {
	ActorID      string
	Title        string
	Platforms    []broadcast.PlatformConfig
	Quality      string
	InitialScene string
}

type PlatformResult struct {
	Tag     string                   `json:"tag"`
	Success bool                     `json:"success"`
	Error   string                   `json:"error,omitempty"`
	Binding *broadcast.BindingStatus `json:"binding,omitempty"`
}

type StartSessionResponse struct {
	Session   Session          `json:"session"`
	Platforms []PlatformResult `json:"platforms"`
}

// StartSession validates every input before it touches any state, then starts the
// render loop and one binding per platform. Platforms that fail to spawn are reported
// per tag and do not fail the session.
func (s *Service) StartSession(ctx context.Context, params *StartSessionParams) (StartSessionResponse, error) {
	if _, err := s.requireRole(params.ActorID, isHost); err != nil {
		return StartSessionResponse{}, err
	}

	quality := params.Quality
	if quality == "" {
		s.mu.Lock()
		quality = s.session.Quality
		s.mu.Unlock()
	}
	preset, err := media.LookupPreset(quality)
	if err != nil {
		return StartSessionResponse{}, err
	}

	seen := make(map[string]struct{}, len(params.Platforms))
	for _, cfg := range params.Platforms {
		if err := cfg.Validate(); err != nil {
			return StartSessionResponse{}, err
		}
		if _, dup := seen[cfg.Tag]; dup {
			return StartSessionResponse{}, fault.WithMessage(ErrInvalidArgument, "duplicate platform tag "+cfg.Tag)
		}
		seen[cfg.Tag] = struct{}{}
	}

	initial := s.compositor.Scene()
	if params.InitialScene != "" {
		if initial, err = s.scenes.GetScene(ctx, params.InitialScene); err != nil {
			return StartSessionResponse{}, err
		}
	}
	if initial == nil {
		return StartSessionResponse{}, fault.WithMessage(ErrInvalidArgument, "no scene loaded")
	}

	s.mu.Lock()
	if s.session.Status != SessionOffline {
		sess := s.sessionView()
		s.mu.Unlock()
		return StartSessionResponse{}, fault.WithState(ErrAlreadyActive, sess)
	}
	if err := s.supervisor.Initialize(preset); err != nil {
		s.mu.Unlock()
		return StartSessionResponse{}, err
	}

	now := s.now()
	prevScene := s.session.SceneID
	s.session = Session{
		ID:        ulid.Make().String(),
		Title:     strings.TrimSpace(params.Title),
		Status:    SessionStarting,
		Quality:   preset.Name,
		SceneID:   initial.ID(),
		Platforms: []string{},
		Version:   s.session.Version,
		StartedAt: &now,
	}
	s.bus.SetSession(s.session.ID)
	s.compositor.SetScene(initial)
	s.startRender(ctx)
	change := s.stateChange(SessionOffline, SessionStarting)
	sessionID := s.session.ID
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "session starting",
		"session_id", sessionID,
		"quality", preset.Name,
		"scene", initial.ID(),
		"platforms", len(params.Platforms),
	)
	s.publish(ctx, events.SessionStateChanged, change)
	if prevScene != initial.ID() {
		s.publish(ctx, events.SceneSwitched, SceneSwitched{
			SceneID:  initial.ID(),
			Name:     initial.Name(),
			Previous: prevScene,
			Version:  change.Version,
		})
	}

	results := make([]PlatformResult, 0, len(params.Platforms))
	for _, cfg := range params.Platforms {
		res := PlatformResult{Tag: cfg.Tag, Success: true}
		if !s.isStarting(sessionID) {
			res.Success = false
			res.Error = fault.WithMessage(ErrNotActive, "session stopped while starting").Error()
			results = append(results, res)
			continue
		}
		st, err := s.supervisor.StartPlatform(ctx, cfg)
		switch {
		case err != nil:
			res.Success = false
			res.Error = err.Error()
		case !s.isStarting(sessionID):
			// the stop snapshot may have missed this binding
			if _, err := s.supervisor.StopPlatform(ctx, cfg.Tag); err != nil {
				s.logger.InfoContext(ctx, "platform already stopping", "platform", cfg.Tag, "error", err)
			}
			res.Success = false
			res.Error = fault.WithMessage(ErrNotActive, "session stopped while starting").Error()
		default:
			res.Binding = &st
		}
		results = append(results, res)
	}

	s.mu.Lock()
	if s.session.ID != sessionID || s.session.Status != SessionStarting {
		sess := s.sessionView()
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "session stopped while starting", "session_id", sessionID)
		return StartSessionResponse{}, fault.WithState(ErrNotActive, sess)
	}
	s.session.Status = SessionLive
	s.session.Platforms = s.supervisor.Tags()
	change = s.stateChange(SessionStarting, SessionLive)
	sess := s.sessionView()
	m := s.metrics
	s.mu.Unlock()

	if m != nil {
		m.SetSessionLive(true)
	}
	s.publish(ctx, events.SessionStateChanged, change)
	s.logger.InfoContext(ctx, "session live", "session_id", sess.ID, "platforms", sess.Platforms)

	return StartSessionResponse{Session: sess, Platforms: results}, nil
}

// isStarting reports whether the session id is still the one starting.
func (s *Service) isStarting(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.ID == id && s.session.Status == SessionStarting
}

type StopSessionResponse struct {
	Session   Session                `json:"session"`
	Platforms []broadcast.StopResult `json:"platforms"`
}

func (s *Service) StopSession(ctx context.Context, actorID string) (StopSessionResponse, error) {
	if _, err := s.requireRole(actorID, isHost); err != nil {
		return StopSessionResponse{}, err
	}
	return s.stopSession(ctx)
}

// stopSession stops every worker, ends the render loop and files the session into the
// history store.
func (s *Service) stopSession(ctx context.Context) (StopSessionResponse, error) {
	s.mu.Lock()
	if s.session.Status != SessionLive && s.session.Status != SessionStarting {
		sess := s.sessionView()
		s.mu.Unlock()
		return StopSessionResponse{}, fault.WithState(ErrNotActive, sess)
	}
	from := s.session.Status
	s.session.Status = SessionStopping
	change := s.stateChange(from, SessionStopping)
	s.mu.Unlock()

	s.publish(ctx, events.SessionStateChanged, change)

	bindings := s.supervisor.Status().Bindings
	stopped := s.supervisor.StopAll(ctx)

	s.mu.Lock()
	render := s.render
	s.render = nil
	s.mu.Unlock()
	if render != nil {
		render.cancel()
		<-render.done
	}

	s.mu.Lock()
	now := s.now()
	s.session.EndedAt = &now
	s.session.Platforms = []string{}
	record := repository.Session{
		ID:        s.session.ID,
		Title:     s.session.Title,
		Quality:   s.session.Quality,
		SceneID:   s.session.SceneID,
		Version:   s.session.Version,
		Platforms: make([]repository.PlatformRecord, 0, len(bindings)),
		EndedAt:   now,
	}
	if s.session.StartedAt != nil {
		record.StartedAt = *s.session.StartedAt
	}
	for _, b := range bindings {
		record.Platforms = append(record.Platforms, repository.PlatformRecord{
			Tag:       b.Tag,
			IngestURL: b.IngestURL,
			State:     string(b.State),
			Retries:   b.Retries,
			LastError: b.LastError,
		})
	}
	s.session.Status = SessionOffline
	change = s.stateChange(SessionStopping, SessionOffline)
	sess := s.sessionView()
	m := s.metrics
	s.mu.Unlock()

	if m != nil {
		m.SetSessionLive(false)
	}
	s.publish(ctx, events.SessionStateChanged, change)
	s.bus.SetSession("")

	if s.history != nil {
		if err := s.history.SaveSession(ctx, record); err != nil {
			s.logger.ErrorContext(ctx, "failed to save session history", "session_id", record.ID, "error", err)
		}
	}
	s.logger.InfoContext(ctx, "session stopped", "session_id", record.ID, "platforms", len(stopped))

	return StopSessionResponse{Session: sess, Platforms: stopped}, nil
}

// stateChange bumps the version and builds the event payload. Callers hold s.mu.
func (s *Service) stateChange(from, to SessionStatus) SessionStateChanged {
	return SessionStateChanged{
		SessionID: s.session.ID,
		From:      from,
		To:        to,
		Version:   s.bump(),
	}
}

// startRender runs the compositor until the session stops. Callers hold s.mu.
func (s *Service) startRender(ctx context.Context) {
	renderCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	loop := &renderLoop{cancel: cancel, done: make(chan struct{})}
	s.render = loop
	m := s.metrics

	go func() {
		defer close(loop.done)
		err := s.compositor.Run(renderCtx, func(t compositor.Tick) {
			s.supervisor.Distribute(t.Frame, t.Audio)
			if m != nil {
				m.AddFrames(1)
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.ErrorContext(renderCtx, "render loop ended", "error", err)
		}
	}()
}

func (s *Service) requireSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.Status != SessionLive {
		return fault.WithState(ErrNotActive, s.sessionView())
	}
	return nil
}

func (s *Service) StartPlatform(ctx context.Context, actorID string, cfg broadcast.PlatformConfig) (broadcast.BindingStatus, error) {
	if _, err := s.requireRole(actorID, isHost); err != nil {
		return broadcast.BindingStatus{}, err
	}
	if err := cfg.Validate(); err != nil {
		return broadcast.BindingStatus{}, err
	}
	if err := s.requireSession(); err != nil {
		return broadcast.BindingStatus{}, err
	}

	st, err := s.supervisor.StartPlatform(ctx, cfg)
	if err != nil {
		return broadcast.BindingStatus{}, err
	}
	s.syncPlatforms()
	return st, nil
}

func (s *Service) StopPlatform(ctx context.Context, actorID, tag string) (broadcast.StopResult, error) {
	if _, err := s.requireRole(actorID, isHost); err != nil {
		return broadcast.StopResult{}, err
	}

	res, err := s.supervisor.StopPlatform(ctx, tag)
	if err != nil {
		return broadcast.StopResult{}, err
	}
	s.syncPlatforms()
	return res, nil
}

func (s *Service) syncPlatforms() {
	tags := s.supervisor.Tags()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.Status == SessionLive {
		s.session.Platforms = tags
		s.bump()
	}
}

// ChangeQuality restarts every binding at the named preset. Without a session it only
// changes the preset the next session starts with.
func (s *Service) ChangeQuality(ctx context.Context, actorID, quality string) (broadcast.QualityChange, error) {
	if _, err := s.requireRole(actorID, isHost); err != nil {
		return broadcast.QualityChange{}, err
	}
	preset, err := media.LookupPreset(quality)
	if err != nil {
		return broadcast.QualityChange{}, err
	}

	change, err := s.supervisor.ChangeQuality(ctx, preset)
	if err != nil {
		return broadcast.QualityChange{}, err
	}

	s.mu.Lock()
	s.session.Quality = preset.Name
	if change.Changed {
		s.bump()
	}
	s.mu.Unlock()
	s.syncPlatforms()

	return change, nil
}

func (s *Service) History(ctx context.Context, limit int) ([]repository.Session, error) {
	if s.history == nil {
		return []repository.Session{}, nil
	}
	return s.history.ListSessions(ctx, limit)
}

func (s *Service) RecentEvents(ctx context.Context, n int) ([]events.Event, error) {
	if s.eventLog == nil {
		return []events.Event{}, nil
	}
	return s.eventLog.Recent(ctx, n)
}
