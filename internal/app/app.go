package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sharetube/studio/internal/compositor"
	"github.com/sharetube/studio/internal/controller"
	"github.com/sharetube/studio/internal/encoder"
	"github.com/sharetube/studio/internal/events"
	"github.com/sharetube/studio/internal/media"
	"github.com/sharetube/studio/internal/metrics"
	"github.com/sharetube/studio/internal/repository"
	"github.com/sharetube/studio/internal/repository/inmemory"
	redisrepo "github.com/sharetube/studio/internal/repository/redis"
	"github.com/sharetube/studio/internal/scene"
	"github.com/sharetube/studio/internal/service/broadcast"
	"github.com/sharetube/studio/internal/service/guest"
	"github.com/sharetube/studio/internal/service/studio"
	"github.com/sharetube/studio/pkg/ctxlogger"
	"github.com/sharetube/studio/pkg/redisclient"
)

type AppConfig struct {
	Secret          string        `json:"-"`
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	LogLevel        string        `json:"log_level"`
	SlotCapacity    int           `json:"slot_capacity"`
	DefaultQuality  string        `json:"default_quality"`
	RestartRetries  int           `json:"restart_retries"`
	RestartBackoff  time.Duration `json:"restart_backoff"`
	StopGrace       time.Duration `json:"stop_grace"`
	LiveGrace       time.Duration `json:"live_grace"`
	MonitorInterval time.Duration `json:"monitor_interval"`
	StallTimeout    time.Duration `json:"stall_timeout"`
	AudioBlockSize  int           `json:"audio_block_size"`
	AudioSampleRate int           `json:"audio_sample_rate"`
	AudioChannels   int           `json:"audio_channels"`
	EncoderBin      string        `json:"encoder_bin"`
	ProbeCodecs     bool          `json:"probe_codecs"`
	EventBuffer     int           `json:"event_buffer"`
	ScenesFile      string        `json:"scenes_file"`
	AssetRoot       string        `json:"asset_root"`
	RedisHost       string        `json:"redis_host"`
	RedisPort       int           `json:"redis_port"`
	RedisPassword   string        `json:"-"`
	EventLogMaxLen  int           `json:"event_log_max_len"`
	HistoryTTL      time.Duration `json:"history_ttl"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.Secret == "" {
		return fmt.Errorf("secret must be set")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if cfg.SlotCapacity < 1 {
		return fmt.Errorf("slot capacity must be greater than 0")
	}
	if _, err := media.LookupPreset(cfg.DefaultQuality); err != nil {
		return fmt.Errorf("invalid default quality %q: %w", cfg.DefaultQuality, err)
	}
	if cfg.RestartRetries < 0 {
		return fmt.Errorf("restart retries must not be negative")
	}
	if cfg.RestartBackoff <= 0 || cfg.StopGrace <= 0 || cfg.LiveGrace <= 0 || cfg.MonitorInterval <= 0 {
		return fmt.Errorf("restart backoff, stop grace, live grace and monitor interval must be positive")
	}
	if cfg.AudioBlockSize < 1 || cfg.AudioSampleRate < 1 || cfg.AudioChannels < 1 {
		return fmt.Errorf("audio block size, sample rate and channels must be greater than 0")
	}
	if cfg.EncoderBin == "" {
		return fmt.Errorf("encoder binary must be set")
	}
	if cfg.EventBuffer < 1 {
		return fmt.Errorf("event buffer must be greater than 0")
	}
	if cfg.EventLogMaxLen < 1 {
		return fmt.Errorf("event log max len must be greater than 0")
	}
	return nil
}

func (cfg *AppConfig) audioFormat() media.AudioFormat {
	return media.AudioFormat{
		SampleRate: cfg.AudioSampleRate,
		Channels:   cfg.AudioChannels,
		BlockSize:  cfg.AudioBlockSize,
	}
}

type store interface {
	SaveScene(ctx context.Context, sc *scene.Scene) error
	GetScene(ctx context.Context, id string) (*scene.Scene, error)
	ListScenes(ctx context.Context) ([]*scene.Scene, error)
	SaveSession(ctx context.Context, s repository.Session) error
	ListSessions(ctx context.Context, limit int) ([]repository.Session, error)
	Append(ctx context.Context, ev events.Event) error
	Recent(ctx context.Context, n int) ([]events.Event, error)
}

// components is the wired studio. close releases what newComponents opened.
type components struct {
	service    *studio.Service
	controller http.Handler
	close      func()
}

func newLogger(level string) (*slog.Logger, error) {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	return slog.New(&h), nil
}

func openStore(ctx context.Context, cfg *AppConfig, logger *slog.Logger) (store, func(), error) {
	if cfg.RedisHost == "" {
		logger.InfoContext(ctx, "redis host not set, using in-memory stores")
		return inmemory.NewRepo(cfg.EventLogMaxLen), func() {}, nil
	}

	rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
		Port:     cfg.RedisPort,
		Host:     cfg.RedisHost,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	repo := redisrepo.NewRepo(rc, redisrepo.Config{
		HistoryTTL:     cfg.HistoryTTL,
		EventLogMaxLen: int64(cfg.EventLogMaxLen),
	}, logger)
	return repo, func() { rc.Close() }, nil
}

func loadScenes(path string) ([]*scene.Scene, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scenes file: %w", err)
	}
	defer f.Close()

	scenes, err := scene.LoadLibrary(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenes file: %w", err)
	}
	return scenes, nil
}

// newComponents wires stores, the media pipeline and the control plane. ctx bounds the
// event log mirror.
func newComponents(ctx context.Context, cfg *AppConfig, spawner broadcast.Spawner, logger *slog.Logger) (*components, error) {
	extra, err := loadScenes(cfg.ScenesFile)
	if err != nil {
		return nil, err
	}

	repo, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	audio := cfg.audioFormat()
	m := metrics.New()

	bus := events.NewBus(cfg.EventBuffer, logger)
	bus.SetMetrics(m)
	bus.AddSink(ctx, "event-log", repo, cfg.EventBuffer)

	if spawner == nil {
		spawner = broadcast.EncoderSpawner(encoder.Config{
			Binary:      cfg.EncoderBin,
			ProbeCodecs: cfg.ProbeCodecs,
			Audio:       audio,
		}, logger)
	}
	supervisor := broadcast.NewSupervisor(broadcast.Config{
		Retries:         cfg.RestartRetries,
		Backoff:         cfg.RestartBackoff,
		StopGrace:       cfg.StopGrace,
		LiveGrace:       cfg.LiveGrace,
		MonitorInterval: cfg.MonitorInterval,
		StallTimeout:    cfg.StallTimeout,
	}, spawner, bus, logger)
	supervisor.SetMetrics(m)

	guests := guest.NewManager(cfg.SlotCapacity, logger)
	inputs := media.NewInputs()
	preset, _ := media.LookupPreset(cfg.DefaultQuality)
	comp := compositor.New(compositor.Config{
		Capture:   inputs,
		Slots:     studio.Slots(guests),
		Preset:    preset,
		Audio:     audio,
		AssetRoot: cfg.AssetRoot,
	}, logger)

	svc := studio.NewService(studio.Config{
		DefaultQuality: cfg.DefaultQuality,
		Secret:         cfg.Secret,
	}, studio.Deps{
		Supervisor: supervisor,
		Guests:     guests,
		Compositor: comp,
		Inputs:     inputs,
		Bus:        bus,
		Scenes:     repo,
		History:    repo,
		EventLog:   repo,
	}, logger)
	svc.SetMetrics(m)

	if err := svc.Init(ctx, extra); err != nil {
		closeStore()
		return nil, fmt.Errorf("failed to init studio: %w", err)
	}

	c := controller.NewController(svc, m, controller.Config{}, logger)

	return &components{
		service:    svc,
		controller: c.GetMux(),
		close:      closeStore,
	}, nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	appCtx, stopApp := context.WithCancel(ctx)
	defer stopApp()

	comps, err := newComponents(appCtx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer comps.close()

	studioDone := make(chan error, 1)
	go func() {
		studioDone <- comps.service.Run(appCtx)
	}()

	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: comps.controller}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	// stops the running session and its encoders
	stopApp()
	return <-studioDone
}
