package guest

import (
	"context"
	"strings"

	"github.com/sharetube/studio/internal/fault"
)

type CreateInviteParams struct {
	Name  string
	Email string
	Role  string
}

type CreateInviteResponse struct {
	GuestID    string
	InviteCode string
	Guest      Guest
}

func (m *Manager) CreateInvite(ctx context.Context, params *CreateInviteParams) (CreateInviteResponse, error) {
	role, err := ParseRole(params.Role)
	if err != nil {
		return CreateInviteResponse{}, err
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return CreateInviteResponse{}, ErrInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	code, err := m.newInviteCode()
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to create invite", "error", err)
		return CreateInviteResponse{}, err
	}

	g := &Guest{
		ID:         newGuestID(),
		Name:       name,
		Email:      params.Email,
		InviteCode: code,
		Role:       role,
		Status:     StatusInvited,
		Camera:     CameraOn,
		Mic:        MicOn,
		InvitedAt:  m.now(),
	}
	m.guests[g.ID] = g
	m.codes[code] = g.ID

	m.logger.InfoContext(ctx, "invite created", "guest_id", g.ID, "role", role)

	return CreateInviteResponse{
		GuestID:    g.ID,
		InviteCode: code,
		Guest:      g.clone(),
	}, nil
}

type JoinOutcome string

const (
	JoinConnected JoinOutcome = "connected"
	JoinWaiting   JoinOutcome = "waiting"
)

type JoinParams struct {
	InviteCode string
	IP         string
	UserAgent  string
}

type JoinResponse struct {
	Outcome JoinOutcome
	Slot    int
	// Position is the 0-based place in the waiting room.
	Position int
	Guest    Guest
}

func (m *Manager) Join(ctx context.Context, params *JoinParams) (JoinResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.codes[params.InviteCode]
	if !ok {
		return JoinResponse{}, ErrInvalidCode
	}
	g := m.guests[id]

	switch {
	case g.Status == StatusKicked:
		return JoinResponse{}, ErrNotAuthorized
	case g.Status.Active():
		return JoinResponse{}, fault.WithState(ErrAlreadyConnected, g.summary())
	case m.waitingPosition(id) >= 0:
		return JoinResponse{}, fault.WithState(ErrAlreadyConnected, g.summary())
	}
	if m.controls.Locked {
		return JoinResponse{}, ErrStudioLocked
	}

	slot := m.freeSlot()
	if slot == 0 && !m.controls.WaitingRoomEnabled {
		return JoinResponse{}, fault.WithState(ErrSlotUnavailable, map[string]int{
			"capacity": len(m.slots),
			"occupied": m.occupied(),
		})
	}

	now := m.now()
	g.Status = StatusConnecting
	g.Slot = 0
	g.IP = params.IP
	g.UserAgent = params.UserAgent
	g.HandRaised = false
	g.KickReason = ""
	g.LastActiveAt = &now

	if slot == 0 || !m.controls.AutoAdmit {
		m.waiting = append(m.waiting, id)
		pos := len(m.waiting) - 1
		m.logger.InfoContext(ctx, "guest parked in waiting room", "guest_id", id, "position", pos)
		return JoinResponse{
			Outcome:  JoinWaiting,
			Position: pos,
			Guest:    g.clone(),
		}, nil
	}

	m.seat(g, slot)
	m.logger.InfoContext(ctx, "guest joined", "guest_id", id, "slot", slot)

	return JoinResponse{
		Outcome: JoinConnected,
		Slot:    slot,
		Guest:   g.clone(),
	}, nil
}

// ReleaseResponse describes a leave or kick and every guest it admitted from the
// waiting room.
type ReleaseResponse struct {
	Guest     Guest
	FreedSlot int
	Admitted  []Guest
}

func (m *Manager) Leave(ctx context.Context, guestID string) (ReleaseResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, err := m.lookup(guestID)
	if err != nil {
		return ReleaseResponse{}, err
	}
	if !g.Status.Active() && m.waitingPosition(g.ID) < 0 {
		return ReleaseResponse{}, fault.WithState(ErrNotActive, g.summary())
	}

	freed := g.Slot
	m.release(g)
	g.Status = StatusDeparted
	g.HandRaised = false

	admitted := m.admitWaiting()
	m.logger.InfoContext(ctx, "guest left", "guest_id", g.ID, "freed_slot", freed, "admitted", len(admitted))

	return ReleaseResponse{
		Guest:     g.clone(),
		FreedSlot: freed,
		Admitted:  admitted,
	}, nil
}

type KickParams struct {
	GuestID string
	ActorID string
	Reason  string
}

// Kick removes a guest for good; the invite code stays bound to the kicked record.
func (m *Manager) Kick(ctx context.Context, params *KickParams) (ReleaseResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	actor, err := m.authorize(params.ActorID)
	if err != nil {
		return ReleaseResponse{}, err
	}
	g, err := m.lookup(params.GuestID)
	if err != nil {
		return ReleaseResponse{}, err
	}
	if g.Role == RoleHost && actor.Role != RoleHost {
		return ReleaseResponse{}, ErrNotAuthorized
	}
	if g.Status == StatusKicked {
		return ReleaseResponse{}, fault.WithState(ErrNotActive, g.summary())
	}

	freed := g.Slot
	m.release(g)
	g.Status = StatusKicked
	g.KickReason = params.Reason
	g.HandRaised = false
	g.Pinned = false

	admitted := m.admitWaiting()
	m.logger.InfoContext(ctx, "guest kicked",
		"guest_id", g.ID,
		"actor_id", actor.ID,
		"reason", params.Reason,
		"freed_slot", freed,
	)

	return ReleaseResponse{
		Guest:     g.clone(),
		FreedSlot: freed,
		Admitted:  admitted,
	}, nil
}

type AdmitParams struct {
	GuestID string
	ActorID string
}

// Admit moves a waiting guest into the lowest free slot regardless of auto_admit.
func (m *Manager) Admit(ctx context.Context, params *AdmitParams) (Guest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.authorize(params.ActorID); err != nil {
		return Guest{}, err
	}
	g, err := m.lookup(params.GuestID)
	if err != nil {
		return Guest{}, err
	}
	pos := m.waitingPosition(g.ID)
	if pos < 0 {
		return Guest{}, fault.WithState(ErrNotActive, g.summary())
	}
	slot := m.freeSlot()
	if slot == 0 {
		return Guest{}, fault.WithState(ErrSlotUnavailable, map[string]int{
			"capacity": len(m.slots),
			"occupied": m.occupied(),
		})
	}

	m.waiting = append(m.waiting[:pos], m.waiting[pos+1:]...)
	m.seat(g, slot)
	m.logger.InfoContext(ctx, "guest admitted", "guest_id", g.ID, "slot", slot, "actor_id", params.ActorID)

	return g.clone(), nil
}
