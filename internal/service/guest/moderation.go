package guest

import (
	"context"

	"github.com/sharetube/studio/internal/fault"
)

type ModerateParams struct {
	GuestID string
	ActorID string
}

// activeTarget resolves a guest that must currently hold a slot.
func (m *Manager) activeTarget(id string) (*Guest, error) {
	g, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if !g.Status.Active() {
		return nil, fault.WithState(ErrNotActive, g.summary())
	}
	return g, nil
}

// Mute turns the guest's mic off. A guest whose camera is also off stays video_off.
func (m *Manager) Mute(ctx context.Context, params *ModerateParams) (Guest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.authorize(params.ActorID); err != nil {
		return Guest{}, err
	}
	g, err := m.activeTarget(params.GuestID)
	if err != nil {
		return Guest{}, err
	}

	if g.Mic == MicOn {
		g.Mic = MicMuted
	}
	if g.Camera != CameraOn {
		g.Status = StatusVideoOff
	} else {
		g.Status = StatusMuted
	}

	m.logger.InfoContext(ctx, "guest muted", "guest_id", g.ID, "actor_id", params.ActorID, "status", g.Status)
	return g.clone(), nil
}

func (m *Manager) StopCamera(ctx context.Context, params *ModerateParams) (Guest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.authorize(params.ActorID); err != nil {
		return Guest{}, err
	}
	g, err := m.activeTarget(params.GuestID)
	if err != nil {
		return Guest{}, err
	}

	if g.Camera == CameraOn {
		g.Camera = CameraOff
	}
	g.Status = StatusVideoOff

	m.logger.InfoContext(ctx, "guest camera stopped", "guest_id", g.ID, "actor_id", params.ActorID)
	return g.clone(), nil
}

type SetMediaParams struct {
	GuestID string
	Camera  *CameraState
	Mic     *MicState
}

// SetMedia applies a guest's own media toggles and recomputes its status.
func (m *Manager) SetMedia(ctx context.Context, params *SetMediaParams) (Guest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, err := m.activeTarget(params.GuestID)
	if err != nil {
		return Guest{}, err
	}

	if params.Camera != nil {
		g.Camera = *params.Camera
	}
	if params.Mic != nil {
		g.Mic = *params.Mic
	}
	g.Status = mediaStatus(g.Camera, g.Mic)
	m.touch(g)

	m.logger.DebugContext(ctx, "guest media changed", "guest_id", g.ID, "camera", g.Camera, "mic", g.Mic)
	return g.clone(), nil
}

// SetHand raises or lowers the hand of a guest that is seated or waiting.
func (m *Manager) SetHand(ctx context.Context, guestID string, raised bool) (Guest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, err := m.lookup(guestID)
	if err != nil {
		return Guest{}, err
	}
	if !g.Status.Active() && m.waitingPosition(g.ID) < 0 {
		return Guest{}, fault.WithState(ErrNotActive, g.summary())
	}

	g.HandRaised = raised
	m.touch(g)
	return g.clone(), nil
}

func (m *Manager) RaiseHand(ctx context.Context, guestID string) (Guest, error) {
	return m.SetHand(ctx, guestID, true)
}

func (m *Manager) LowerHand(ctx context.Context, guestID string) (Guest, error) {
	return m.SetHand(ctx, guestID, false)
}

type PinParams struct {
	GuestID string
	ActorID string
	Pinned  bool
}

func (m *Manager) Pin(ctx context.Context, params *PinParams) (Guest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.authorize(params.ActorID); err != nil {
		return Guest{}, err
	}
	g, err := m.lookup(params.GuestID)
	if err != nil {
		return Guest{}, err
	}
	if g.Status == StatusKicked || g.Status == StatusDeparted {
		return Guest{}, fault.WithState(ErrNotActive, g.summary())
	}

	g.Pinned = params.Pinned
	return g.clone(), nil
}

type SetRoleParams struct {
	GuestID string
	ActorID string
	Role    string
}

// SetRole changes a guest's role. Only a host grants or revokes moderator and host.
func (m *Manager) SetRole(ctx context.Context, params *SetRoleParams) (Guest, error) {
	role, err := ParseRole(params.Role)
	if err != nil {
		return Guest{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	actor, err := m.authorize(params.ActorID)
	if err != nil {
		return Guest{}, err
	}
	g, err := m.lookup(params.GuestID)
	if err != nil {
		return Guest{}, err
	}
	if actor.Role != RoleHost && (role.CanModerate() || g.Role.CanModerate()) {
		return Guest{}, ErrNotAuthorized
	}
	if g.Status == StatusKicked {
		return Guest{}, fault.WithState(ErrNotActive, g.summary())
	}

	prev := g.Role
	g.Role = role
	m.logger.InfoContext(ctx, "guest role changed", "guest_id", g.ID, "from", prev, "to", role, "actor_id", actor.ID)
	return g.clone(), nil
}

// UpdateDeviceConfig merges prefs into the guest's device preferences. A nil value
// removes the key.
func (m *Manager) UpdateDeviceConfig(ctx context.Context, guestID string, prefs map[string]any) (Guest, error) {
	for k := range prefs {
		if _, ok := deviceKeys[k]; !ok {
			return Guest{}, fault.WithState(ErrInvalidDeviceConfig, map[string]string{"key": k})
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	g, err := m.lookup(guestID)
	if err != nil {
		return Guest{}, err
	}
	if g.Status == StatusKicked {
		return Guest{}, fault.WithState(ErrNotActive, g.summary())
	}

	if g.Devices == nil {
		g.Devices = make(map[string]any, len(prefs))
	}
	for k, v := range prefs {
		if v == nil {
			delete(g.Devices, k)
			continue
		}
		g.Devices[k] = v
	}

	return g.clone(), nil
}

type ControlsPatch struct {
	GlobalMute         *bool
	Locked             *bool
	AutoAdmit          *bool
	WaitingRoomEnabled *bool
}

type SetControlsResponse struct {
	Controls Controls
	Admitted []Guest
}

// SetControls applies the non-nil toggles. Turning auto_admit on drains the waiting room
// into free slots.
func (m *Manager) SetControls(ctx context.Context, actorID string, patch *ControlsPatch) (SetControlsResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.authorize(actorID); err != nil {
		return SetControlsResponse{}, err
	}

	if patch.GlobalMute != nil {
		m.controls.GlobalMute = *patch.GlobalMute
	}
	if patch.Locked != nil {
		m.controls.Locked = *patch.Locked
	}
	if patch.AutoAdmit != nil {
		m.controls.AutoAdmit = *patch.AutoAdmit
	}
	if patch.WaitingRoomEnabled != nil {
		m.controls.WaitingRoomEnabled = *patch.WaitingRoomEnabled
	}

	admitted := m.admitWaiting()
	m.logger.InfoContext(ctx, "studio controls changed", "controls", m.controls, "actor_id", actorID)

	return SetControlsResponse{
		Controls: m.controls,
		Admitted: admitted,
	}, nil
}

// Touch records activity for a connected guest.
func (m *Manager) Touch(guestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if g, ok := m.guests[guestID]; ok {
		m.touch(g)
	}
}

func (m *Manager) touch(g *Guest) {
	now := m.now()
	g.LastActiveAt = &now
}
