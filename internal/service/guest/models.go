package guest

import (
	"strings"
	"time"
)

type Role string

const (
	RoleGuest     Role = "guest"
	RoleModerator Role = "moderator"
	RoleHost      Role = "host"
	RoleSpectator Role = "spectator"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return RoleGuest, nil
	case RoleGuest, RoleModerator, RoleHost, RoleSpectator:
		return r, nil
	default:
		return "", ErrInvalidRole
	}
}

// CanModerate reports whether the role may run moderator operations.
func (r Role) CanModerate() bool {
	return r == RoleModerator || r == RoleHost
}

type Status string

const (
	StatusInvited    Status = "invited"
	StatusConnecting Status = "connecting"
	StatusOnline     Status = "online"
	StatusMuted      Status = "muted"
	StatusVideoOff   Status = "video_off"
	StatusKicked     Status = "kicked"
	StatusDeparted   Status = "departed"
)

// Active statuses are the ones that hold a slot.
func (s Status) Active() bool {
	return s == StatusOnline || s == StatusMuted || s == StatusVideoOff
}

type CameraState string

const (
	CameraOn       CameraState = "on"
	CameraOff      CameraState = "off"
	CameraDisabled CameraState = "disabled"
)

func ParseCamera(s string) (CameraState, error) {
	switch c := CameraState(strings.ToLower(s)); c {
	case CameraOn, CameraOff, CameraDisabled:
		return c, nil
	default:
		return "", ErrInvalidArgument
	}
}

type MicState string

const (
	MicOn       MicState = "on"
	MicMuted    MicState = "muted"
	MicDisabled MicState = "disabled"
)

// ParseMic accepts "off" as a synonym of "muted".
func ParseMic(s string) (MicState, error) {
	switch m := MicState(strings.ToLower(s)); m {
	case MicOn, MicMuted, MicDisabled:
		return m, nil
	case "off":
		return MicMuted, nil
	default:
		return "", ErrInvalidArgument
	}
}

// Device preference keys accepted by UpdateDeviceConfig.
var deviceKeys = map[string]struct{}{
	"video_quality":      {},
	"audio_quality":      {},
	"background_blur":    {},
	"virtual_background": {},
	"camera_device":      {},
	"microphone_device":  {},
}

type Guest struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Email        string         `json:"email,omitempty"`
	InviteCode   string         `json:"-"`
	Role         Role           `json:"role"`
	Status       Status         `json:"status"`
	Camera       CameraState    `json:"camera"`
	Mic          MicState       `json:"mic"`
	Slot         int            `json:"slot,omitempty"`
	HandRaised   bool           `json:"hand_raised"`
	Pinned       bool           `json:"pinned"`
	Devices      map[string]any `json:"devices,omitempty"`
	IP           string         `json:"-"`
	UserAgent    string         `json:"-"`
	KickReason   string         `json:"kick_reason,omitempty"`
	InvitedAt    time.Time      `json:"invited_at"`
	JoinedAt     *time.Time     `json:"joined_at,omitempty"`
	LastActiveAt *time.Time     `json:"last_active_at,omitempty"`
}

func (g *Guest) clone() Guest {
	cp := *g
	if g.Devices != nil {
		cp.Devices = make(map[string]any, len(g.Devices))
		for k, v := range g.Devices {
			cp.Devices[k] = v
		}
	}
	return cp
}

type Summary struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Role       Role        `json:"role"`
	Status     Status      `json:"status"`
	Camera     CameraState `json:"camera"`
	Mic        MicState    `json:"mic"`
	HandRaised bool        `json:"hand_raised"`
	Pinned     bool        `json:"pinned"`
}

// Summary is the public view of g used in events and slot layouts.
func (g Guest) Summary() Summary {
	return g.summary()
}

func (g *Guest) summary() Summary {
	return Summary{
		ID:         g.ID,
		Name:       g.Name,
		Role:       g.Role,
		Status:     g.Status,
		Camera:     g.Camera,
		Mic:        g.Mic,
		HandRaised: g.HandRaised,
		Pinned:     g.Pinned,
	}
}

type Controls struct {
	GlobalMute         bool `json:"global_mute"`
	Locked             bool `json:"lock_studio"`
	AutoAdmit          bool `json:"auto_admit"`
	WaitingRoomEnabled bool `json:"waiting_room_enabled"`
}

type SlotView struct {
	Index int      `json:"index"`
	Guest *Summary `json:"guest"`
}

type Snapshot struct {
	Capacity    int        `json:"capacity"`
	Occupied    int        `json:"occupied"`
	Available   int        `json:"available"`
	Waiting     int        `json:"waiting"`
	Slots       []SlotView `json:"slots"`
	WaitingRoom []Summary  `json:"waiting_room"`
	Controls    Controls   `json:"controls"`
}
