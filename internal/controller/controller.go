package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/studio/internal/events"
	"github.com/sharetube/studio/internal/media"
	"github.com/sharetube/studio/internal/metrics"
	"github.com/sharetube/studio/internal/repository"
	"github.com/sharetube/studio/internal/scene"
	"github.com/sharetube/studio/internal/service/broadcast"
	"github.com/sharetube/studio/internal/service/guest"
	"github.com/sharetube/studio/internal/service/studio"
	"github.com/sharetube/studio/pkg/validator"
	"github.com/sharetube/studio/pkg/wsrouter"
)

type iStudioService interface {
	// auth
	AuthHost(context.Context, string) (studio.AuthHostResponse, error)
	Authenticate(context.Context, string) (studio.Actor, error)
	// session
	StartSession(context.Context, *studio.StartSessionParams) (studio.StartSessionResponse, error)
	StopSession(ctx context.Context, actorID string) (studio.StopSessionResponse, error)
	StartPlatform(ctx context.Context, actorID string, cfg broadcast.PlatformConfig) (broadcast.BindingStatus, error)
	StopPlatform(ctx context.Context, actorID, tag string) (broadcast.StopResult, error)
	ChangeQuality(ctx context.Context, actorID, quality string) (broadcast.QualityChange, error)
	Status() studio.Status
	History(ctx context.Context, limit int) ([]repository.Session, error)
	RecentEvents(ctx context.Context, n int) ([]events.Event, error)
	UpdateGauges()
	// scene
	SwitchScene(ctx context.Context, actorID, sceneID string) (studio.SceneSwitched, error)
	UpsertScene(ctx context.Context, actorID string, doc scene.Document) (*scene.Scene, error)
	DuplicateScene(context.Context, *studio.DuplicateSceneParams) (*scene.Scene, error)
	ListScenes(context.Context) ([]*scene.Scene, error)
	PresetScenes() []*scene.Scene
	// guest
	Invite(context.Context, *studio.InviteParams) (guest.CreateInviteResponse, error)
	Join(context.Context, *guest.JoinParams) (studio.JoinResponse, error)
	Leave(ctx context.Context, actorID, guestID string) (guest.ReleaseResponse, error)
	Kick(context.Context, *guest.KickParams) (guest.ReleaseResponse, error)
	Admit(context.Context, *guest.AdmitParams) (guest.Guest, error)
	Mute(context.Context, *guest.ModerateParams) (guest.Guest, error)
	StopCamera(context.Context, *guest.ModerateParams) (guest.Guest, error)
	SetMedia(ctx context.Context, actorID string, params *guest.SetMediaParams) (guest.Guest, error)
	SetHand(ctx context.Context, actorID, guestID string, raised bool) (guest.Guest, error)
	Pin(context.Context, *guest.PinParams) (guest.Guest, error)
	SetRole(context.Context, *guest.SetRoleParams) (guest.Guest, error)
	UpdateDevices(ctx context.Context, actorID string, prefs map[string]any) (guest.Guest, error)
	SetControls(ctx context.Context, actorID string, patch *guest.ControlsPatch) (guest.SetControlsResponse, error)
	Guests(studio.Actor) []guest.Guest
	Touch(guestID string)
	// inputs
	Inputs() *media.Inputs
	Bus() *events.Bus
}

type Config struct {
	// PingInterval is how often the event socket is pinged. The read deadline is twice
	// that.
	PingInterval time.Duration
}

type controller struct {
	studioService iStudioService
	upgrader      websocket.Upgrader
	validate      *validator.Validator
	wsmux         *wsrouter.WSRouter
	metrics       *metrics.Metrics
	pingInterval  time.Duration
	logger        *slog.Logger
}

func NewController(studioService iStudioService, m *metrics.Metrics, cfg Config, logger *slog.Logger) *controller {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}

	c := &controller{
		studioService: studioService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate:     validator.NewValidator(),
		metrics:      m,
		pingInterval: cfg.PingInterval,
		logger:       logger,
	}
	c.wsmux = c.getWSRouter()

	return c
}
