// Package events carries control events from the studio services to observers.
package events

import (
	"context"
	"time"
)

type Kind string

const (
	SceneSwitched         Kind = "scene_switched"
	GuestJoined           Kind = "guest_joined"
	GuestLeft             Kind = "guest_left"
	GuestMediaChanged     Kind = "guest_media_changed"
	PlatformStatusChanged Kind = "platform_status_changed"
	QualityChanged        Kind = "quality_changed"
	SessionStateChanged   Kind = "session_state_changed"

	// Kinds beyond the core set. Observers ignore kinds they do not know.
	BroadcastStatus Kind = "broadcast_status"
	GuestUpdated    Kind = "guest_updated"
	GuestWaiting    Kind = "guest_waiting"
	ControlsChanged Kind = "controls_changed"
)

type Event struct {
	Seq       uint64    `json:"seq" msgpack:"seq"`
	SessionID string    `json:"session_id" msgpack:"session_id"`
	Kind      Kind      `json:"kind" msgpack:"kind"`
	Payload   any       `json:"payload" msgpack:"payload"`
	Time      time.Time `json:"time" msgpack:"time"`
}

// Publisher is what services depend on to emit events.
type Publisher interface {
	Publish(ctx context.Context, kind Kind, payload any) Event
}

// Sink receives every published event after subscribers have been served.
type Sink interface {
	Append(ctx context.Context, ev Event) error
}
