// Package studio is the control plane behind the request API: it owns the broadcast
// session and routes operator and guest requests to the supervisor, the guest manager
// and the compositor, publishing a control event for every change.
package studio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sharetube/studio/internal/compositor"
	"github.com/sharetube/studio/internal/events"
	"github.com/sharetube/studio/internal/fault"
	"github.com/sharetube/studio/internal/media"
	"github.com/sharetube/studio/internal/repository"
	"github.com/sharetube/studio/internal/scene"
	"github.com/sharetube/studio/internal/service/broadcast"
	"github.com/sharetube/studio/internal/service/guest"
)

var (
	ErrAlreadyActive   = fault.New(fault.AlreadyActive, "session is already running")
	ErrNotActive       = fault.New(fault.NotActive, "no session is running")
	ErrNotAuthorized   = fault.New(fault.NotAuthorized, "actor is not allowed to do this")
	ErrInvalidArgument = fault.New(fault.InvalidArgument, "invalid argument")
	ErrSceneReadOnly   = fault.New(fault.InvalidScene, "preset scenes are read-only")
)

const DefaultScene = "talking_head"

type iSceneStore interface {
	SaveScene(ctx context.Context, sc *scene.Scene) error
	GetScene(ctx context.Context, id string) (*scene.Scene, error)
	ListScenes(ctx context.Context) ([]*scene.Scene, error)
}

type iHistoryStore interface {
	SaveSession(ctx context.Context, s repository.Session) error
	ListSessions(ctx context.Context, limit int) ([]repository.Session, error)
}

type iEventLog interface {
	Recent(ctx context.Context, n int) ([]events.Event, error)
}

type iMetrics interface {
	AddFrames(n uint64)
	SetGuests(inSlots, waiting int)
	SetSessionLive(live bool)
}

type Config struct {
	DefaultQuality string
	DefaultScene   string
	// Secret signs actor tokens and is what auth/host exchanges for a host token.
	Secret   string
	TokenTTL time.Duration
}

type Deps struct {
	Supervisor *broadcast.Supervisor
	Guests     *guest.Manager
	Compositor *compositor.Compositor
	Inputs     *media.Inputs
	Bus        *events.Bus
	Scenes     iSceneStore
	History    iHistoryStore
	EventLog   iEventLog
}

type Service struct {
	mu      sync.Mutex
	session Session
	// render is set while the render loop runs.
	render *renderLoop

	hostID string

	cfg        Config
	supervisor *broadcast.Supervisor
	guests     *guest.Manager
	compositor *compositor.Compositor
	inputs     *media.Inputs
	bus        *events.Bus
	scenes     iSceneStore
	history    iHistoryStore
	eventLog   iEventLog
	metrics    iMetrics
	now        func() time.Time
	logger     *slog.Logger
}

type renderLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(cfg Config, deps Deps, logger *slog.Logger) *Service {
	if cfg.DefaultQuality == "" {
		cfg.DefaultQuality = media.Preset720p.Name
	}
	if cfg.DefaultScene == "" {
		cfg.DefaultScene = DefaultScene
	}

	s := &Service{
		cfg:        cfg,
		supervisor: deps.Supervisor,
		guests:     deps.Guests,
		compositor: deps.Compositor,
		inputs:     deps.Inputs,
		bus:        deps.Bus,
		scenes:     deps.Scenes,
		history:    deps.History,
		eventLog:   deps.EventLog,
		now:        time.Now,
		logger:     logger,
	}
	s.session = Session{Status: SessionOffline, Quality: cfg.DefaultQuality, Platforms: []string{}}
	s.supervisor.OnPresetChange(s.compositor.SetPreset)

	return s
}

func (s *Service) SetMetrics(m iMetrics) {
	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()
}

// Init seeds the scene store with the preset library and extra, creates the host record
// and loads the default scene and quality into the compositor.
func (s *Service) Init(ctx context.Context, extra []*scene.Scene) error {
	for _, sc := range append(scene.Presets(), extra...) {
		if err := s.scenes.SaveScene(ctx, sc); err != nil {
			return err
		}
	}

	initial, err := s.scenes.GetScene(ctx, s.cfg.DefaultScene)
	if err != nil {
		return err
	}
	s.compositor.SetScene(initial)

	preset, err := media.LookupPreset(s.cfg.DefaultQuality)
	if err != nil {
		return err
	}
	if err := s.supervisor.Initialize(preset); err != nil {
		return err
	}

	host, err := s.guests.CreateInvite(ctx, &guest.CreateInviteParams{Name: "host", Role: string(guest.RoleHost)})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.hostID = host.GuestID
	s.session.SceneID = initial.ID()
	s.session.Quality = preset.Name
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "studio initialized",
		"scene", initial.ID(),
		"quality", preset.Name,
		"scenes", len(extra)+len(scene.Presets()),
	)
	return nil
}

// Run drives the supervisor's monitor until ctx ends, then stops a running session.
func (s *Service) Run(ctx context.Context) error {
	err := s.supervisor.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	if _, stopErr := s.stopSession(stopCtx); stopErr != nil && !errors.Is(stopErr, ErrNotActive) {
		s.logger.ErrorContext(stopCtx, "failed to stop session on shutdown", "error", stopErr)
	}

	return err
}

func (s *Service) HostID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostID
}

func (s *Service) Inputs() *media.Inputs {
	return s.inputs
}

func (s *Service) Bus() *events.Bus {
	return s.bus
}

func (s *Service) Status() Status {
	s.mu.Lock()
	sess := s.sessionView()
	s.mu.Unlock()

	st := Status{
		Session:     sess,
		Broadcast:   s.supervisor.Status(),
		Guests:      s.guests.Status(),
		Frames:      s.compositor.Frames(),
		Subscribers: s.bus.Subscribers(),
	}
	if sc := s.compositor.Scene(); sc != nil {
		st.Scene = SceneInfo{ID: sc.ID(), Name: sc.Name()}
	}
	return st
}

// UpdateGauges refreshes the sampled metrics.
func (s *Service) UpdateGauges() {
	s.mu.Lock()
	m := s.metrics
	live := s.session.Status == SessionLive
	s.mu.Unlock()
	if m == nil {
		return
	}

	snap := s.guests.Status()
	m.SetGuests(snap.Occupied, snap.Waiting)
	m.SetSessionLive(live)
}

func (s *Service) sessionView() Session {
	sess := s.session
	sess.Platforms = append([]string{}, s.session.Platforms...)
	return sess
}

// bump advances the session version. Callers hold s.mu.
func (s *Service) bump() uint64 {
	s.session.Version++
	return s.session.Version
}

func (s *Service) publish(ctx context.Context, kind events.Kind, payload any) {
	s.bus.Publish(ctx, kind, payload)
}
