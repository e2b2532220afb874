package studio

import (
	"context"

	"github.com/sharetube/studio/internal/events"
	"github.com/sharetube/studio/internal/media"
	"github.com/sharetube/studio/internal/service/guest"
)

type InviteParams struct {
	ActorID string
	Name    string
	Email   string
	Role    string
}

// Invite creates a guest record and its invite code. Inviting a moderator or a host
// takes a host.
func (s *Service) Invite(ctx context.Context, params *InviteParams) (guest.CreateInviteResponse, error) {
	actor, err := s.requireRole(params.ActorID, canModerate)
	if err != nil {
		return guest.CreateInviteResponse{}, err
	}
	role, err := guest.ParseRole(params.Role)
	if err != nil {
		return guest.CreateInviteResponse{}, err
	}
	if role.CanModerate() && actor.Role != guest.RoleHost {
		return guest.CreateInviteResponse{}, ErrNotAuthorized
	}

	return s.guests.CreateInvite(ctx, &guest.CreateInviteParams{
		Name:  params.Name,
		Email: params.Email,
		Role:  string(role),
	})
}

type JoinResponse struct {
	guest.JoinResponse
	AuthToken string
}

// Join redeems an invite code and issues the guest's actor token.
func (s *Service) Join(ctx context.Context, params *guest.JoinParams) (JoinResponse, error) {
	res, err := s.guests.Join(ctx, params)
	if err != nil {
		return JoinResponse{}, err
	}

	token, err := s.generateJWT(res.Guest.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to issue guest token", "guest_id", res.Guest.ID, "error", err)
		return JoinResponse{}, err
	}

	switch res.Outcome {
	case guest.JoinConnected:
		s.publish(ctx, events.GuestJoined, GuestJoined{Guest: res.Guest.Summary(), Slot: res.Slot})
	case guest.JoinWaiting:
		s.publish(ctx, events.GuestWaiting, GuestWaiting{Guest: res.Guest.Summary(), Position: res.Position})
	}
	s.UpdateGauges()

	return JoinResponse{JoinResponse: res, AuthToken: token}, nil
}

// Leave takes a guest out of the studio. A guest leaves itself; moderators may remove
// anyone without marking them kicked.
func (s *Service) Leave(ctx context.Context, actorID, guestID string) (guest.ReleaseResponse, error) {
	if actorID != guestID {
		if _, err := s.requireRole(actorID, canModerate); err != nil {
			return guest.ReleaseResponse{}, err
		}
	}

	res, err := s.guests.Leave(ctx, guestID)
	if err != nil {
		return guest.ReleaseResponse{}, err
	}
	s.afterRelease(ctx, res, "")
	return res, nil
}

func (s *Service) Kick(ctx context.Context, params *guest.KickParams) (guest.ReleaseResponse, error) {
	res, err := s.guests.Kick(ctx, params)
	if err != nil {
		return guest.ReleaseResponse{}, err
	}
	s.afterRelease(ctx, res, params.Reason)
	return res, nil
}

func (s *Service) afterRelease(ctx context.Context, res guest.ReleaseResponse, reason string) {
	s.inputs.Remove(media.GuestVideoInput(res.Guest.ID))
	s.inputs.Remove(media.GuestAudioInput(res.Guest.ID))

	s.publish(ctx, events.GuestLeft, GuestLeft{
		Guest:     res.Guest.Summary(),
		FreedSlot: res.FreedSlot,
		Kicked:    res.Guest.Status == guest.StatusKicked,
		Reason:    reason,
	})
	s.publishAdmitted(ctx, res.Admitted)
	s.UpdateGauges()
}

func (s *Service) publishAdmitted(ctx context.Context, admitted []guest.Guest) {
	for _, g := range admitted {
		s.publish(ctx, events.GuestJoined, GuestJoined{Guest: g.Summary(), Slot: g.Slot, Admitted: true})
	}
}

func (s *Service) Admit(ctx context.Context, params *guest.AdmitParams) (guest.Guest, error) {
	g, err := s.guests.Admit(ctx, params)
	if err != nil {
		return guest.Guest{}, err
	}
	s.publishAdmitted(ctx, []guest.Guest{g})
	s.UpdateGauges()
	return g, nil
}

func (s *Service) Mute(ctx context.Context, params *guest.ModerateParams) (guest.Guest, error) {
	g, err := s.guests.Mute(ctx, params)
	if err != nil {
		return guest.Guest{}, err
	}
	s.publishMedia(ctx, g)
	return g, nil
}

func (s *Service) StopCamera(ctx context.Context, params *guest.ModerateParams) (guest.Guest, error) {
	g, err := s.guests.StopCamera(ctx, params)
	if err != nil {
		return guest.Guest{}, err
	}
	s.publishMedia(ctx, g)
	return g, nil
}

// SetMedia is self-service: the actor must be the guest.
func (s *Service) SetMedia(ctx context.Context, actorID string, params *guest.SetMediaParams) (guest.Guest, error) {
	if actorID != params.GuestID {
		return guest.Guest{}, ErrNotAuthorized
	}

	g, err := s.guests.SetMedia(ctx, params)
	if err != nil {
		return guest.Guest{}, err
	}
	s.publishMedia(ctx, g)
	return g, nil
}

func (s *Service) publishMedia(ctx context.Context, g guest.Guest) {
	s.publish(ctx, events.GuestMediaChanged, GuestMediaChanged{Guest: g.Summary(), Slot: g.Slot})
}

func (s *Service) publishUpdated(ctx context.Context, g guest.Guest) {
	s.publish(ctx, events.GuestUpdated, GuestUpdated{Guest: g.Summary(), Slot: g.Slot})
}

func (s *Service) SetHand(ctx context.Context, actorID, guestID string, raised bool) (guest.Guest, error) {
	if actorID != guestID {
		return guest.Guest{}, ErrNotAuthorized
	}

	g, err := s.guests.SetHand(ctx, guestID, raised)
	if err != nil {
		return guest.Guest{}, err
	}
	s.publishUpdated(ctx, g)
	return g, nil
}

func (s *Service) Pin(ctx context.Context, params *guest.PinParams) (guest.Guest, error) {
	g, err := s.guests.Pin(ctx, params)
	if err != nil {
		return guest.Guest{}, err
	}
	s.publishUpdated(ctx, g)
	return g, nil
}

func (s *Service) SetRole(ctx context.Context, params *guest.SetRoleParams) (guest.Guest, error) {
	g, err := s.guests.SetRole(ctx, params)
	if err != nil {
		return guest.Guest{}, err
	}
	s.publishUpdated(ctx, g)
	return g, nil
}

// UpdateDevices changes the actor's own device preferences.
func (s *Service) UpdateDevices(ctx context.Context, actorID string, prefs map[string]any) (guest.Guest, error) {
	g, err := s.guests.UpdateDeviceConfig(ctx, actorID, prefs)
	if err != nil {
		return guest.Guest{}, err
	}
	s.publishUpdated(ctx, g)
	return g, nil
}

func (s *Service) SetControls(ctx context.Context, actorID string, patch *guest.ControlsPatch) (guest.SetControlsResponse, error) {
	res, err := s.guests.SetControls(ctx, actorID, patch)
	if err != nil {
		return guest.SetControlsResponse{}, err
	}
	s.publish(ctx, events.ControlsChanged, ControlsChanged{Controls: res.Controls, ActorID: actorID})
	s.publishAdmitted(ctx, res.Admitted)
	s.UpdateGauges()
	return res, nil
}

// Guests lists every guest record. Spectators and guests see only the seated and
// waiting ones.
func (s *Service) Guests(actor Actor) []guest.Guest {
	all := s.guests.List()
	if actor.Role.CanModerate() {
		return all
	}

	visible := make([]guest.Guest, 0, len(all))
	for _, g := range all {
		if g.Status.Active() || g.Status == guest.StatusConnecting {
			visible = append(visible, g)
		}
	}
	return visible
}

func (s *Service) Touch(guestID string) {
	s.guests.Touch(guestID)
}
