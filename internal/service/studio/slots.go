package studio

import (
	"github.com/sharetube/studio/internal/compositor"
	"github.com/sharetube/studio/internal/service/guest"
)

type slotResolver struct {
	guests *guest.Manager
}

// Slots adapts the guest table to the compositor. Global mute silences every slot.
func Slots(guests *guest.Manager) compositor.SlotResolver {
	return slotResolver{guests: guests}
}

func (r slotResolver) ResolveSlot(slot int) (compositor.SlotOccupant, bool) {
	g, globalMute, ok := r.guests.Occupant(slot)
	if !ok {
		return compositor.SlotOccupant{}, false
	}
	return compositor.SlotOccupant{
		GuestID: g.ID,
		Camera:  g.Camera == guest.CameraOn,
		Mic:     g.Mic == guest.MicOn && !globalMute,
	}, true
}
