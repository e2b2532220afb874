package broadcast

import (
	"strings"
	"time"

	"github.com/sharetube/studio/internal/encoder"
	"github.com/sharetube/studio/internal/media"
)

type State string

const (
	StateStarting State = "starting"
	StateLive     State = "live"
	StateDegraded State = "degraded"
	StateFailed   State = "failed"
	StateStopped  State = "stopped"
)

type PlatformConfig struct {
	Tag         string `json:"tag"`
	IngestURL   string `json:"ingest_url"`
	Secret      string `json:"-"`
	AutoRestart bool   `json:"auto_restart"`
	// Bundle overrides the encoder option bundle picked from the tag.
	Bundle string `json:"bundle,omitempty"`
}

func (c PlatformConfig) target() encoder.Target {
	return encoder.Target{
		Platform:     c.Tag,
		IngestURL:    c.IngestURL,
		StreamSecret: c.Secret,
		Bundle:       c.Bundle,
	}
}

func (c PlatformConfig) Validate() error {
	if strings.TrimSpace(c.Tag) == "" {
		return ErrInvalidArgument
	}
	return c.target().Validate()
}

type binding struct {
	cfg       PlatformConfig
	worker    Worker
	state     State
	retries   int
	startedAt time.Time
	lastError string
	lastExit  *encoder.ExitInfo
	stopping  bool
	// spawned is closed once the spawn in flight has settled, nil when none is.
	spawned chan struct{}
	// abandoned is set when StopPlatform gave up waiting on the spawn; the spawning side
	// then stops its own worker.
	abandoned bool
	// cancel aborts a pending restart backoff.
	cancel      chan struct{}
	nextAttempt time.Time
}

type BindingStatus struct {
	Tag           string            `json:"tag"`
	IngestURL     string            `json:"ingest_url"`
	Bundle        string            `json:"bundle,omitempty"`
	State         State             `json:"state"`
	AutoRestart   bool              `json:"auto_restart"`
	Retries       int               `json:"retries"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	LastError     string            `json:"last_error,omitempty"`
	LastExit      *encoder.ExitInfo `json:"last_exit,omitempty"`
	NextAttemptAt *time.Time        `json:"next_attempt_at,omitempty"`
	Health        *encoder.Health   `json:"health,omitempty"`
}

func (b *binding) status(now time.Time) BindingStatus {
	st := BindingStatus{
		Tag:         b.cfg.Tag,
		IngestURL:   b.cfg.IngestURL,
		Bundle:      b.cfg.Bundle,
		State:       b.state,
		AutoRestart: b.cfg.AutoRestart,
		Retries:     b.retries,
		LastError:   b.lastError,
		LastExit:    b.lastExit,
	}
	if b.worker != nil {
		started := b.startedAt
		st.StartedAt = &started
		st.UptimeSeconds = now.Sub(started).Seconds()
		h := b.worker.Health()
		st.Health = &h
	}
	if !b.nextAttempt.IsZero() {
		next := b.nextAttempt
		st.NextAttemptAt = &next
	}
	return st
}

type Snapshot struct {
	Preset   media.Preset    `json:"preset"`
	Bindings []BindingStatus `json:"bindings"`
}

// Live reports whether any binding is running.
func (s Snapshot) Live() bool {
	for _, b := range s.Bindings {
		if b.State == StateLive || b.State == StateDegraded {
			return true
		}
	}
	return false
}

// StatusChange is the payload of platform_status_changed.
type StatusChange struct {
	Tag      string `json:"tag"`
	From     State  `json:"from,omitempty"`
	To       State  `json:"to"`
	Retries  int    `json:"retries"`
	Error    string `json:"error,omitempty"`
	Terminal bool   `json:"terminal,omitempty"`
}

type StopResult struct {
	Tag  string            `json:"tag"`
	Exit *encoder.ExitInfo `json:"exit,omitempty"`
}

type RestartResult struct {
	Tag     string `json:"tag"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type QualityChange struct {
	From    string          `json:"from"`
	To      string          `json:"to"`
	Changed bool            `json:"changed"`
	Results []RestartResult `json:"results"`
}
