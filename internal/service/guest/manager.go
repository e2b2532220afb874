// Package guest owns the studio's guest table: invites, the bounded slot table, the
// waiting room and the moderator operations that move guests between them.
package guest

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sharetube/studio/internal/fault"
)

var (
	ErrInvalidCode         = fault.New(fault.InvalidCode, "unknown invite code")
	ErrInvalidRole         = fault.New(fault.InvalidRole, "unknown role")
	ErrInvalidArgument     = fault.New(fault.InvalidArgument, "invalid argument")
	ErrInvalidDeviceConfig = fault.New(fault.InvalidDeviceConfig, "unknown device preference")
	ErrAlreadyConnected    = fault.New(fault.AlreadyConnected, "guest is already connected")
	ErrStudioLocked        = fault.New(fault.StudioLocked, "studio is locked")
	ErrSlotUnavailable     = fault.New(fault.SlotUnavailable, "no free slot")
	ErrNotAuthorized       = fault.New(fault.NotAuthorized, "actor is not allowed to do this")
	ErrNotActive           = fault.New(fault.NotActive, "guest is not active")
	ErrNotFound            = fault.New(fault.NotFound, "guest not found")
)

const (
	DefaultCapacity = 6

	inviteCodeSize     = 12
	inviteCodeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Manager holds every guest record. All state sits behind one mutex and no I/O happens
// while it is held.
type Manager struct {
	mu       sync.Mutex
	slots    []string // index i holds slot i+1, "" when free
	waiting  []string
	guests   map[string]*Guest
	codes    map[string]string
	controls Controls
	now      func() time.Time
	logger   *slog.Logger
}

func NewManager(capacity int, logger *slog.Logger) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Manager{
		slots:  make([]string, capacity),
		guests: make(map[string]*Guest),
		codes:  make(map[string]string),
		controls: Controls{
			AutoAdmit:          true,
			WaitingRoomEnabled: true,
		},
		now:    time.Now,
		logger: logger,
	}
}

func (m *Manager) Capacity() int {
	return len(m.slots)
}

func (m *Manager) lookup(id string) (*Guest, error) {
	g, ok := m.guests[id]
	if !ok {
		return nil, fault.WithState(ErrNotFound, map[string]string{"guest_id": id})
	}
	return g, nil
}

// authorize checks that actorID names a guest whose role may moderate.
func (m *Manager) authorize(actorID string) (*Guest, error) {
	actor, ok := m.guests[actorID]
	if !ok || !actor.Role.CanModerate() || actor.Status == StatusKicked {
		return nil, ErrNotAuthorized
	}
	return actor, nil
}

func (m *Manager) freeSlot() int {
	for i, id := range m.slots {
		if id == "" {
			return i + 1
		}
	}
	return 0
}

func (m *Manager) occupied() int {
	n := 0
	for _, id := range m.slots {
		if id != "" {
			n++
		}
	}
	return n
}

func (m *Manager) waitingPosition(id string) int {
	for i, w := range m.waiting {
		if w == id {
			return i
		}
	}
	return -1
}

func (m *Manager) seat(g *Guest, slot int) {
	now := m.now()
	m.slots[slot-1] = g.ID
	g.Slot = slot
	g.Status = mediaStatus(g.Camera, g.Mic)
	g.JoinedAt = &now
	g.LastActiveAt = &now
}

// release takes g out of whichever structure holds it.
func (m *Manager) release(g *Guest) {
	if g.Slot > 0 {
		m.slots[g.Slot-1] = ""
		g.Slot = 0
	}
	if pos := m.waitingPosition(g.ID); pos >= 0 {
		m.waiting = append(m.waiting[:pos], m.waiting[pos+1:]...)
	}
}

// admitWaiting moves waiting-room heads into free slots while both exist.
func (m *Manager) admitWaiting() []Guest {
	if !m.controls.AutoAdmit {
		return nil
	}

	var admitted []Guest
	for len(m.waiting) > 0 {
		slot := m.freeSlot()
		if slot == 0 {
			break
		}
		head := m.guests[m.waiting[0]]
		m.waiting = m.waiting[1:]
		m.seat(head, slot)
		admitted = append(admitted, head.clone())
		m.logger.Info("admitted guest from waiting room", "guest_id", head.ID, "slot", slot)
	}
	return admitted
}

func (m *Manager) newInviteCode() (string, error) {
	for {
		code, err := gonanoid.Generate(inviteCodeAlphabet, inviteCodeSize)
		if err != nil {
			return "", fmt.Errorf("failed to generate invite code: %w", err)
		}
		if _, taken := m.codes[code]; !taken {
			return code, nil
		}
	}
}

// mediaStatus derives the status of an active guest from its media flags.
func mediaStatus(camera CameraState, mic MicState) Status {
	switch {
	case mic != MicOn:
		return StatusMuted
	case camera != CameraOn:
		return StatusVideoOff
	default:
		return StatusOnline
	}
}

func newGuestID() string {
	return uuid.NewString()
}

// verify checks the table invariants and returns the first violation.
func (m *Manager) verify() error {
	seen := make(map[string]string)

	for i, id := range m.slots {
		if id == "" {
			continue
		}
		g, ok := m.guests[id]
		if !ok {
			return fmt.Errorf("slot %d holds unknown guest %s", i+1, id)
		}
		if g.Slot != i+1 {
			return fmt.Errorf("guest %s in slot %d records slot %d", id, i+1, g.Slot)
		}
		if !g.Status.Active() {
			return fmt.Errorf("guest %s in slot %d has status %s", id, i+1, g.Status)
		}
		if where, dup := seen[id]; dup {
			return fmt.Errorf("guest %s appears in %s and slot %d", id, where, i+1)
		}
		seen[id] = fmt.Sprintf("slot %d", i+1)
	}

	for _, id := range m.waiting {
		g, ok := m.guests[id]
		if !ok {
			return fmt.Errorf("waiting room holds unknown guest %s", id)
		}
		if g.Slot != 0 || g.Status != StatusConnecting {
			return fmt.Errorf("waiting guest %s has slot %d status %s", id, g.Slot, g.Status)
		}
		if where, dup := seen[id]; dup {
			return fmt.Errorf("guest %s appears in %s and the waiting room", id, where)
		}
		seen[id] = "waiting room"
	}

	active := 0
	for id, g := range m.guests {
		if g.Status.Active() || (g.Status == StatusConnecting && m.waitingPosition(id) >= 0) {
			active++
		}
		if g.Slot != 0 && !g.Status.Active() {
			return fmt.Errorf("guest %s holds slot %d with status %s", id, g.Slot, g.Status)
		}
		if g.Slot < 0 || g.Slot > len(m.slots) {
			return fmt.Errorf("guest %s slot %d out of range", id, g.Slot)
		}
		if owner := m.codes[g.InviteCode]; owner != id {
			return fmt.Errorf("invite code of guest %s maps to %q", id, owner)
		}
	}
	if len(m.codes) != len(m.guests) {
		return fmt.Errorf("%d invite codes for %d guests", len(m.codes), len(m.guests))
	}
	if active != len(seen) {
		return fmt.Errorf("%d active guests but %d placed", active, len(seen))
	}

	return nil
}
