package studio

import (
	"time"

	"github.com/sharetube/studio/internal/service/broadcast"
	"github.com/sharetube/studio/internal/service/guest"
)

type SessionStatus string

const (
	SessionOffline  SessionStatus = "offline"
	SessionStarting SessionStatus = "starting"
	SessionLive     SessionStatus = "live"
	SessionStopping SessionStatus = "stopping"
)

type Session struct {
	ID        string        `json:"id,omitempty"`
	Title     string        `json:"title,omitempty"`
	Status    SessionStatus `json:"status"`
	Quality   string        `json:"quality"`
	SceneID   string        `json:"scene_id"`
	Platforms []string      `json:"platforms"`
	Version   uint64        `json:"version"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
}

type SceneInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Status struct {
	Session     Session            `json:"session"`
	Broadcast   broadcast.Snapshot `json:"broadcast"`
	Guests      guest.Snapshot     `json:"guests"`
	Scene       SceneInfo          `json:"scene"`
	Frames      uint64             `json:"frames"`
	Subscribers int                `json:"subscribers"`
}

// Event payloads. They are plain values so they survive the event log encoding.

type SessionStateChanged struct {
	SessionID string        `json:"session_id"`
	From      SessionStatus `json:"from"`
	To        SessionStatus `json:"to"`
	Version   uint64        `json:"version"`
}

type SceneSwitched struct {
	SceneID  string `json:"scene_id"`
	Name     string `json:"name"`
	Previous string `json:"previous,omitempty"`
	// Updated is set when the current scene was replaced by a newer version of itself.
	Updated bool   `json:"updated,omitempty"`
	Version uint64 `json:"version"`
}

type GuestJoined struct {
	Guest    guest.Summary `json:"guest"`
	Slot     int           `json:"slot"`
	Admitted bool          `json:"admitted,omitempty"`
}

type GuestWaiting struct {
	Guest    guest.Summary `json:"guest"`
	Position int           `json:"position"`
}

type GuestLeft struct {
	Guest     guest.Summary `json:"guest"`
	FreedSlot int           `json:"freed_slot,omitempty"`
	Kicked    bool          `json:"kicked"`
	Reason    string        `json:"reason,omitempty"`
}

type GuestMediaChanged struct {
	Guest guest.Summary `json:"guest"`
	Slot  int           `json:"slot,omitempty"`
}

type GuestUpdated struct {
	Guest guest.Summary `json:"guest"`
	Slot  int           `json:"slot,omitempty"`
}

type ControlsChanged struct {
	Controls guest.Controls `json:"controls"`
	ActorID  string         `json:"actor_id"`
}
