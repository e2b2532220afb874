package guest

import (
	"sort"
)

func (m *Manager) Status() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Capacity:    len(m.slots),
		Slots:       make([]SlotView, len(m.slots)),
		WaitingRoom: make([]Summary, 0, len(m.waiting)),
		Waiting:     len(m.waiting),
		Controls:    m.controls,
	}
	for i, id := range m.slots {
		snap.Slots[i] = SlotView{Index: i + 1}
		if id == "" {
			continue
		}
		sum := m.guests[id].summary()
		snap.Slots[i].Guest = &sum
		snap.Occupied++
	}
	snap.Available = snap.Capacity - snap.Occupied
	for _, id := range m.waiting {
		snap.WaitingRoom = append(snap.WaitingRoom, m.guests[id].summary())
	}

	return snap
}

func (m *Manager) Controls() Controls {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.controls
}

func (m *Manager) Get(id string) (Guest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, err := m.lookup(id)
	if err != nil {
		return Guest{}, err
	}
	return g.clone(), nil
}

// List returns every guest record, kicked and departed ones included, oldest invite first.
func (m *Manager) List() []Guest {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := make([]Guest, 0, len(m.guests))
	for _, g := range m.guests {
		list = append(list, g.clone())
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].InvitedAt.Equal(list[j].InvitedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].InvitedAt.Before(list[j].InvitedAt)
	})
	return list
}

// Occupant returns the guest seated in slot, plus the studio-wide mute flag.
func (m *Manager) Occupant(slot int) (Guest, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slot < 1 || slot > len(m.slots) || m.slots[slot-1] == "" {
		return Guest{}, m.controls.GlobalMute, false
	}
	g := m.guests[m.slots[slot-1]]
	return Guest{ID: g.ID, Camera: g.Camera, Mic: g.Mic, Status: g.Status}, m.controls.GlobalMute, true
}
