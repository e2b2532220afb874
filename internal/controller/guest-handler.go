package controller

import (
	"net/http"

	"github.com/sharetube/studio/internal/service/guest"
	"github.com/sharetube/studio/internal/service/studio"
	"github.com/sharetube/studio/pkg/rest"
)

type inviteGuestRequest struct {
	Name  string `json:"name" validate:"required,max=64"`
	Email string `json:"email" validate:"omitempty,email"`
	Role  string `json:"role"`
}

type inviteGuestResponse struct {
	GuestID    string      `json:"guest_id"`
	InviteCode string      `json:"invite_code"`
	Guest      guest.Guest `json:"guest"`
}

// Role is left to the guest manager so an unknown role fails with invalid_role.
func (c controller) inviteGuest(w http.ResponseWriter, r *http.Request) {
	var req inviteGuestRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	resp, err := c.studioService.Invite(r.Context(), &studio.InviteParams{
		ActorID: c.getActorFromCtx(r.Context()).GuestID,
		Name:    req.Name,
		Email:   req.Email,
		Role:    req.Role,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusCreated, inviteGuestResponse{
		GuestID:    resp.GuestID,
		InviteCode: resp.InviteCode,
		Guest:      resp.Guest,
	})
}

type joinGuestRequest struct {
	InviteCode string `json:"invite_code" validate:"required"`
}

type joinGuestResponse struct {
	Outcome   guest.JoinOutcome `json:"outcome"`
	Slot      int               `json:"slot,omitempty"`
	Position  *int              `json:"position,omitempty"`
	GuestID   string            `json:"guest_id"`
	AuthToken string            `json:"auth_token"`
	Guest     guest.Guest       `json:"guest"`
}

func (c controller) joinGuest(w http.ResponseWriter, r *http.Request) {
	var req joinGuestRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	resp, err := c.studioService.Join(r.Context(), &guest.JoinParams{
		InviteCode: req.InviteCode,
		IP:         r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	out := joinGuestResponse{
		Outcome:   resp.Outcome,
		Slot:      resp.Slot,
		GuestID:   resp.Guest.ID,
		AuthToken: resp.AuthToken,
		Guest:     resp.Guest,
	}
	if resp.Outcome == guest.JoinWaiting {
		pos := resp.Position
		out.Position = &pos
	}
	rest.WriteData(w, http.StatusOK, out)
}

// guestRequest names the guest an operation targets. Self-service routes default to the
// actor.
type guestRequest struct {
	GuestID string `json:"guest_id"`
}

func (g guestRequest) target(actor studio.Actor) string {
	if g.GuestID == "" {
		return actor.GuestID
	}
	return g.GuestID
}

type releaseResponse struct {
	Guest     guest.Guest   `json:"guest"`
	FreedSlot int           `json:"freed_slot,omitempty"`
	Admitted  []guest.Guest `json:"admitted"`
}

func newReleaseResponse(res guest.ReleaseResponse) releaseResponse {
	admitted := res.Admitted
	if admitted == nil {
		admitted = []guest.Guest{}
	}
	return releaseResponse{Guest: res.Guest, FreedSlot: res.FreedSlot, Admitted: admitted}
}

func (c controller) leaveGuest(w http.ResponseWriter, r *http.Request) {
	var req guestRequest
	if !c.readRequest(w, r, &req) {
		return
	}
	actor := c.getActorFromCtx(r.Context())

	resp, err := c.studioService.Leave(r.Context(), actor.GuestID, req.target(actor))
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, newReleaseResponse(resp))
}

type kickGuestRequest struct {
	GuestID string `json:"guest_id" validate:"required"`
	Reason  string `json:"reason" validate:"max=256"`
}

func (c controller) kickGuest(w http.ResponseWriter, r *http.Request) {
	var req kickGuestRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	resp, err := c.studioService.Kick(r.Context(), &guest.KickParams{
		GuestID: req.GuestID,
		ActorID: c.getActorFromCtx(r.Context()).GuestID,
		Reason:  req.Reason,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, newReleaseResponse(resp))
}

type setGuestMediaRequest struct {
	GuestID string  `json:"guest_id"`
	Camera  *string `json:"camera"`
	Mic     *string `json:"mic"`
}

func (c controller) setGuestMedia(w http.ResponseWriter, r *http.Request) {
	var req setGuestMediaRequest
	if !c.readRequest(w, r, &req) {
		return
	}
	actor := c.getActorFromCtx(r.Context())

	params, err := mediaParams(guestRequest{GuestID: req.GuestID}.target(actor), req.Camera, req.Mic)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	g, err := c.studioService.SetMedia(r.Context(), actor.GuestID, params)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, g)
}

func mediaParams(guestID string, camera, mic *string) (*guest.SetMediaParams, error) {
	params := &guest.SetMediaParams{GuestID: guestID}
	if camera != nil {
		state, err := guest.ParseCamera(*camera)
		if err != nil {
			return nil, err
		}
		params.Camera = &state
	}
	if mic != nil {
		state, err := guest.ParseMic(*mic)
		if err != nil {
			return nil, err
		}
		params.Mic = &state
	}
	return params, nil
}

type setGuestHandRequest struct {
	GuestID string `json:"guest_id"`
	Raised  bool   `json:"raised"`
}

func (c controller) setGuestHand(w http.ResponseWriter, r *http.Request) {
	var req setGuestHandRequest
	if !c.readRequest(w, r, &req) {
		return
	}
	actor := c.getActorFromCtx(r.Context())

	g, err := c.studioService.SetHand(r.Context(), actor.GuestID, guestRequest{GuestID: req.GuestID}.target(actor), req.Raised)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, g)
}

type setGuestDevicesRequest struct {
	Devices map[string]any `json:"devices" validate:"required"`
}

func (c controller) setGuestDevices(w http.ResponseWriter, r *http.Request) {
	var req setGuestDevicesRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	g, err := c.studioService.UpdateDevices(r.Context(), c.getActorFromCtx(r.Context()).GuestID, req.Devices)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, g)
}

type pinGuestRequest struct {
	GuestID string `json:"guest_id" validate:"required"`
	Pinned  bool   `json:"pinned"`
}

func (c controller) pinGuest(w http.ResponseWriter, r *http.Request) {
	var req pinGuestRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	g, err := c.studioService.Pin(r.Context(), &guest.PinParams{
		GuestID: req.GuestID,
		ActorID: c.getActorFromCtx(r.Context()).GuestID,
		Pinned:  req.Pinned,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, g)
}

type targetGuestRequest struct {
	GuestID string `json:"guest_id" validate:"required"`
}

func (c controller) muteGuest(w http.ResponseWriter, r *http.Request) {
	var req targetGuestRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	g, err := c.studioService.Mute(r.Context(), &guest.ModerateParams{
		GuestID: req.GuestID,
		ActorID: c.getActorFromCtx(r.Context()).GuestID,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, g)
}

func (c controller) stopGuestCamera(w http.ResponseWriter, r *http.Request) {
	var req targetGuestRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	g, err := c.studioService.StopCamera(r.Context(), &guest.ModerateParams{
		GuestID: req.GuestID,
		ActorID: c.getActorFromCtx(r.Context()).GuestID,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, g)
}

func (c controller) admitGuest(w http.ResponseWriter, r *http.Request) {
	var req targetGuestRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	g, err := c.studioService.Admit(r.Context(), &guest.AdmitParams{
		GuestID: req.GuestID,
		ActorID: c.getActorFromCtx(r.Context()).GuestID,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, g)
}

type setGuestRoleRequest struct {
	GuestID string `json:"guest_id" validate:"required"`
	Role    string `json:"role" validate:"required"`
}

func (c controller) setGuestRole(w http.ResponseWriter, r *http.Request) {
	var req setGuestRoleRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	g, err := c.studioService.SetRole(r.Context(), &guest.SetRoleParams{
		GuestID: req.GuestID,
		ActorID: c.getActorFromCtx(r.Context()).GuestID,
		Role:    req.Role,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, g)
}

type setControlsRequest struct {
	GlobalMute         *bool `json:"global_mute"`
	LockStudio         *bool `json:"lock_studio"`
	AutoAdmit          *bool `json:"auto_admit"`
	WaitingRoomEnabled *bool `json:"waiting_room_enabled"`
}

type setControlsResponse struct {
	Controls guest.Controls `json:"controls"`
	Admitted []guest.Guest  `json:"admitted"`
}

func (c controller) setControls(w http.ResponseWriter, r *http.Request) {
	var req setControlsRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	resp, err := c.studioService.SetControls(r.Context(), c.getActorFromCtx(r.Context()).GuestID, &guest.ControlsPatch{
		GlobalMute:         req.GlobalMute,
		Locked:             req.LockStudio,
		AutoAdmit:          req.AutoAdmit,
		WaitingRoomEnabled: req.WaitingRoomEnabled,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	admitted := resp.Admitted
	if admitted == nil {
		admitted = []guest.Guest{}
	}
	rest.WriteData(w, http.StatusOK, setControlsResponse{Controls: resp.Controls, Admitted: admitted})
}

func (c controller) listGuests(w http.ResponseWriter, r *http.Request) {
	rest.WriteData(w, http.StatusOK, c.studioService.Guests(c.getActorFromCtx(r.Context())))
}
