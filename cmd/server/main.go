package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/studio/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

var (
	secret = configVar[string]{
		envKey:  "STUDIO_SECRET",
		flagKey: "secret",
		usage:   "Server secret, exchanged for a host token",
	}
	host = configVar[string]{
		envKey:       "STUDIO_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
		usage:        "Server host",
	}
	port = configVar[int]{
		envKey:       "STUDIO_PORT",
		flagKey:      "port",
		defaultValue: 80,
		usage:        "Server port",
	}
	logLevel = configVar[string]{
		envKey:       "STUDIO_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
	slotCapacity = configVar[int]{
		envKey:       "STUDIO_SLOT_CAPACITY",
		flagKey:      "slot-capacity",
		defaultValue: 6,
		usage:        "Number of on-air guest slots",
	}
	defaultQuality = configVar[string]{
		envKey:       "STUDIO_DEFAULT_QUALITY",
		flagKey:      "default-quality",
		defaultValue: "720p",
		usage:        "Quality preset of new sessions",
	}
	restartRetries = configVar[int]{
		envKey:       "STUDIO_RESTART_RETRIES",
		flagKey:      "restart-retries",
		defaultValue: 3,
		usage:        "Encoder restarts per platform before it fails",
	}
	restartBackoff = configVar[time.Duration]{
		envKey:       "STUDIO_RESTART_BACKOFF",
		flagKey:      "restart-backoff",
		defaultValue: 5 * time.Second,
		usage:        "Wait before an encoder restart",
	}
	stopGrace = configVar[time.Duration]{
		envKey:       "STUDIO_STOP_GRACE",
		flagKey:      "stop-grace",
		defaultValue: 10 * time.Second,
		usage:        "Time an encoder gets to flush before it is killed",
	}
	liveGrace = configVar[time.Duration]{
		envKey:       "STUDIO_LIVE_GRACE",
		flagKey:      "live-grace",
		defaultValue: 2 * time.Second,
		usage:        "Time an encoder must run before its platform is live",
	}
	monitorInterval = configVar[time.Duration]{
		envKey:       "STUDIO_MONITOR_INTERVAL",
		flagKey:      "monitor-interval",
		defaultValue: time.Second,
		usage:        "Encoder health check interval",
	}
	stallTimeout = configVar[time.Duration]{
		envKey:       "STUDIO_STALL_TIMEOUT",
		flagKey:      "stall-timeout",
		defaultValue: 10 * time.Second,
		usage:        "Abort an encoder whose input stays full this long, 0 disables",
	}
	audioBlockSize = configVar[int]{
		envKey:       "STUDIO_AUDIO_BLOCK_SIZE",
		flagKey:      "audio-block-size",
		defaultValue: 1024,
		usage:        "Audio samples per channel per block",
	}
	audioSampleRate = configVar[int]{
		envKey:       "STUDIO_AUDIO_SAMPLE_RATE",
		flagKey:      "audio-sample-rate",
		defaultValue: 44100,
		usage:        "Audio sample rate",
	}
	audioChannels = configVar[int]{
		envKey:       "STUDIO_AUDIO_CHANNELS",
		flagKey:      "audio-channels",
		defaultValue: 2,
		usage:        "Audio channels",
	}
	encoderBin = configVar[string]{
		envKey:       "STUDIO_ENCODER_BIN",
		flagKey:      "encoder-bin",
		defaultValue: "ffmpeg",
		usage:        "Encoder binary",
	}
	probeCodecs = configVar[bool]{
		envKey:       "STUDIO_PROBE_CODECS",
		flagKey:      "probe-codecs",
		defaultValue: true,
		usage:        "Check the encoder lists libx264 and aac before the first spawn",
	}
	eventBuffer = configVar[int]{
		envKey:       "STUDIO_EVENT_BUFFER",
		flagKey:      "event-buffer",
		defaultValue: 256,
		usage:        "Events buffered per subscriber before it is dropped as lagged",
	}
	scenesFile = configVar[string]{
		envKey:  "STUDIO_SCENES_FILE",
		flagKey: "scenes-file",
		usage:   "Optional YAML scene library loaded on startup",
	}
	assetRoot = configVar[string]{
		envKey:  "STUDIO_ASSET_ROOT",
		flagKey: "asset-root",
		usage:   "Directory relative image sources are read from",
	}
	redisHost = configVar[string]{
		envKey:  "REDIS_HOST",
		flagKey: "redis-host",
		usage:   "Redis host, empty keeps every store in memory",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
		usage:        "Redis port",
	}
	redisPassword = configVar[string]{
		envKey:  "REDIS_PASSWORD",
		flagKey: "redis-password",
		usage:   "Redis password",
	}
	eventLogMaxLen = configVar[int]{
		envKey:       "STUDIO_EVENT_LOG_MAX_LEN",
		flagKey:      "event-log-max-len",
		defaultValue: 10000,
		usage:        "Approximate length of the event log",
	}
	historyTTL = configVar[time.Duration]{
		envKey:       "STUDIO_HISTORY_TTL",
		flagKey:      "history-ttl",
		defaultValue: 336 * time.Hour,
		usage:        "How long finished sessions are kept",
	}
)

func (v configVar[T]) bind() {
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func loadAppConfig() *app.AppConfig {
	pflag.String(secret.flagKey, secret.defaultValue, secret.usage)
	pflag.String(host.flagKey, host.defaultValue, host.usage)
	pflag.Int(port.flagKey, port.defaultValue, port.usage)
	pflag.String(logLevel.flagKey, logLevel.defaultValue, logLevel.usage)
	pflag.Int(slotCapacity.flagKey, slotCapacity.defaultValue, slotCapacity.usage)
	pflag.String(defaultQuality.flagKey, defaultQuality.defaultValue, defaultQuality.usage)
	pflag.Int(restartRetries.flagKey, restartRetries.defaultValue, restartRetries.usage)
	pflag.Duration(restartBackoff.flagKey, restartBackoff.defaultValue, restartBackoff.usage)
	pflag.Duration(stopGrace.flagKey, stopGrace.defaultValue, stopGrace.usage)
	pflag.Duration(liveGrace.flagKey, liveGrace.defaultValue, liveGrace.usage)
	pflag.Duration(monitorInterval.flagKey, monitorInterval.defaultValue, monitorInterval.usage)
	pflag.Duration(stallTimeout.flagKey, stallTimeout.defaultValue, stallTimeout.usage)
	pflag.Int(audioBlockSize.flagKey, audioBlockSize.defaultValue, audioBlockSize.usage)
	pflag.Int(audioSampleRate.flagKey, audioSampleRate.defaultValue, audioSampleRate.usage)
	pflag.Int(audioChannels.flagKey, audioChannels.defaultValue, audioChannels.usage)
	pflag.String(encoderBin.flagKey, encoderBin.defaultValue, encoderBin.usage)
	pflag.Bool(probeCodecs.flagKey, probeCodecs.defaultValue, probeCodecs.usage)
	pflag.Int(eventBuffer.flagKey, eventBuffer.defaultValue, eventBuffer.usage)
	pflag.String(scenesFile.flagKey, scenesFile.defaultValue, scenesFile.usage)
	pflag.String(assetRoot.flagKey, assetRoot.defaultValue, assetRoot.usage)
	pflag.String(redisHost.flagKey, redisHost.defaultValue, redisHost.usage)
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, redisPort.usage)
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, redisPassword.usage)
	pflag.Int(eventLogMaxLen.flagKey, eventLogMaxLen.defaultValue, eventLogMaxLen.usage)
	pflag.Duration(historyTTL.flagKey, historyTTL.defaultValue, historyTTL.usage)
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	secret.bind()
	host.bind()
	port.bind()
	logLevel.bind()
	slotCapacity.bind()
	defaultQuality.bind()
	restartRetries.bind()
	restartBackoff.bind()
	stopGrace.bind()
	liveGrace.bind()
	monitorInterval.bind()
	stallTimeout.bind()
	audioBlockSize.bind()
	audioSampleRate.bind()
	audioChannels.bind()
	encoderBin.bind()
	probeCodecs.bind()
	eventBuffer.bind()
	scenesFile.bind()
	assetRoot.bind()
	redisHost.bind()
	redisPort.bind()
	redisPassword.bind()
	eventLogMaxLen.bind()
	historyTTL.bind()

	config := &app.AppConfig{
		Secret:          viper.GetString(secret.flagKey),
		Host:            viper.GetString(host.flagKey),
		Port:            viper.GetInt(port.flagKey),
		LogLevel:        viper.GetString(logLevel.flagKey),
		SlotCapacity:    viper.GetInt(slotCapacity.flagKey),
		DefaultQuality:  viper.GetString(defaultQuality.flagKey),
		RestartRetries:  viper.GetInt(restartRetries.flagKey),
		RestartBackoff:  viper.GetDuration(restartBackoff.flagKey),
		StopGrace:       viper.GetDuration(stopGrace.flagKey),
		LiveGrace:       viper.GetDuration(liveGrace.flagKey),
		MonitorInterval: viper.GetDuration(monitorInterval.flagKey),
		StallTimeout:    viper.GetDuration(stallTimeout.flagKey),
		AudioBlockSize:  viper.GetInt(audioBlockSize.flagKey),
		AudioSampleRate: viper.GetInt(audioSampleRate.flagKey),
		AudioChannels:   viper.GetInt(audioChannels.flagKey),
		EncoderBin:      viper.GetString(encoderBin.flagKey),
		ProbeCodecs:     viper.GetBool(probeCodecs.flagKey),
		EventBuffer:     viper.GetInt(eventBuffer.flagKey),
		ScenesFile:      viper.GetString(scenesFile.flagKey),
		AssetRoot:       viper.GetString(assetRoot.flagKey),
		RedisHost:       viper.GetString(redisHost.flagKey),
		RedisPort:       viper.GetInt(redisPort.flagKey),
		RedisPassword:   viper.GetString(redisPassword.flagKey),
		EventLogMaxLen:  viper.GetInt(eventLogMaxLen.flagKey),
		HistoryTTL:      viper.GetDuration(historyTTL.flagKey),
	}

	return config
}

func main() {
	ctx := context.Background()

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	appConfig := loadAppConfig()
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	if err := app.Run(ctx, appConfig); err != nil {
		log.Fatal(err)
	}
}
