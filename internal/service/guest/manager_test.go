package guest

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/sharetube/studio/internal/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	m      *Manager
	hostID string
	codes  map[string]string
	ids    map[string]string
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()

	m := NewManager(capacity, slog.Default())
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick int
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	host, err := m.CreateInvite(context.Background(), &CreateInviteParams{Name: "Host", Role: "host"})
	require.NoError(t, err)

	return &fixture{
		m:      m,
		hostID: host.GuestID,
		codes:  map[string]string{},
		ids:    map[string]string{},
	}
}

func (f *fixture) invite(t *testing.T, name, role string) {
	t.Helper()
	resp, err := f.m.CreateInvite(context.Background(), &CreateInviteParams{Name: name, Role: role})
	require.NoError(t, err)
	f.codes[name] = resp.InviteCode
	f.ids[name] = resp.GuestID
}

func (f *fixture) join(t *testing.T, name string) JoinResponse {
	t.Helper()
	resp, err := f.m.Join(context.Background(), &JoinParams{InviteCode: f.codes[name], IP: "127.0.0.1"})
	require.NoError(t, err)
	f.check(t)
	return resp
}

func (f *fixture) check(t *testing.T) {
	t.Helper()
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	require.NoError(t, f.m.verify())
}

func (f *fixture) fill(t *testing.T, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		name := fmt.Sprintf("G%d", i)
		f.invite(t, name, "guest")
		f.join(t, name)
	}
}

func TestFillThenOverflow(t *testing.T) {
	f := newFixture(t, 6)

	for i := 1; i <= 7; i++ {
		f.invite(t, fmt.Sprintf("G%d", i), "guest")
	}
	for i := 1; i <= 6; i++ {
		resp := f.join(t, fmt.Sprintf("G%d", i))
		assert.Equal(t, JoinConnected, resp.Outcome)
		assert.Equal(t, i, resp.Slot)
		assert.Equal(t, StatusOnline, resp.Guest.Status)
	}

	resp := f.join(t, "G7")
	assert.Equal(t, JoinWaiting, resp.Outcome)
	assert.Equal(t, 0, resp.Position)

	snap := f.m.Status()
	assert.Equal(t, 6, snap.Capacity)
	assert.Equal(t, 6, snap.Occupied)
	assert.Equal(t, 0, snap.Available)
	assert.Equal(t, 1, snap.Waiting)
	assert.Equal(t, f.ids["G7"], snap.WaitingRoom[0].ID)
}

func TestKickTriggersAdmission(t *testing.T) {
	f := newFixture(t, 6)
	f.fill(t, 7)

	resp, err := f.m.Kick(context.Background(), &KickParams{
		GuestID: f.ids["G3"],
		ActorID: f.hostID,
		Reason:  "test",
	})
	require.NoError(t, err)
	f.check(t)

	assert.Equal(t, StatusKicked, resp.Guest.Status)
	assert.Equal(t, 3, resp.FreedSlot)
	require.Len(t, resp.Admitted, 1)
	assert.Equal(t, f.ids["G7"], resp.Admitted[0].ID)

	g7, err := f.m.Get(f.ids["G7"])
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, g7.Status)
	assert.Equal(t, 3, g7.Slot)

	g3, err := f.m.Get(f.ids["G3"])
	require.NoError(t, err)
	assert.Equal(t, 0, g3.Slot)
	assert.Equal(t, "test", g3.KickReason)

	snap := f.m.Status()
	assert.Equal(t, 0, snap.Waiting)
	assert.Equal(t, f.ids["G7"], snap.Slots[2].Guest.ID)
}

func TestLeaveTriggersAdmission(t *testing.T) {
	f := newFixture(t, 2)
	f.fill(t, 4)

	resp, err := f.m.Leave(context.Background(), f.ids["G1"])
	require.NoError(t, err)
	f.check(t)

	assert.Equal(t, StatusDeparted, resp.Guest.Status)
	require.Len(t, resp.Admitted, 1)
	assert.Equal(t, f.ids["G3"], resp.Admitted[0].ID)
	assert.Equal(t, 1, resp.Admitted[0].Slot)

	snap := f.m.Status()
	require.Len(t, snap.WaitingRoom, 1)
	assert.Equal(t, f.ids["G4"], snap.WaitingRoom[0].ID)
}

func TestMutePrecedence(t *testing.T) {
	f := newFixture(t, 6)
	f.fill(t, 1)
	ctx := context.Background()
	params := &ModerateParams{GuestID: f.ids["G1"], ActorID: f.hostID}

	g, err := f.m.StopCamera(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, StatusVideoOff, g.Status)

	g, err = f.m.Mute(ctx, params)
	require.NoError(t, err)
	f.check(t)

	assert.Equal(t, CameraOff, g.Camera)
	assert.Equal(t, MicMuted, g.Mic)
	assert.Equal(t, StatusVideoOff, g.Status)
	assert.Equal(t, 1, g.Slot)
}

func TestMuteOnlyMic(t *testing.T) {
	f := newFixture(t, 6)
	f.fill(t, 1)

	g, err := f.m.Mute(context.Background(), &ModerateParams{GuestID: f.ids["G1"], ActorID: f.hostID})
	require.NoError(t, err)
	assert.Equal(t, StatusMuted, g.Status)
	assert.Equal(t, CameraOn, g.Camera)
}

func TestSetMediaRecomputesStatus(t *testing.T) {
	f := newFixture(t, 6)
	f.fill(t, 1)
	ctx := context.Background()
	id := f.ids["G1"]

	off, on := CameraOff, CameraOn
	muted, live := MicMuted, MicOn

	g, err := f.m.SetMedia(ctx, &SetMediaParams{GuestID: id, Camera: &off})
	require.NoError(t, err)
	assert.Equal(t, StatusVideoOff, g.Status)

	g, err = f.m.SetMedia(ctx, &SetMediaParams{GuestID: id, Mic: &muted})
	require.NoError(t, err)
	assert.Equal(t, StatusMuted, g.Status, "mic takes precedence on the self-service path")

	g, err = f.m.SetMedia(ctx, &SetMediaParams{GuestID: id, Camera: &on, Mic: &live})
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, g.Status)
	f.check(t)
}

func TestJoinErrors(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.fill(t, 1)

	_, err := f.m.Join(ctx, &JoinParams{InviteCode: "nope"})
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = f.m.Join(ctx, &JoinParams{InviteCode: f.codes["G1"]})
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	fe, ok := fault.As(err)
	require.True(t, ok)
	assert.NotNil(t, fe.State)

	f.invite(t, "late", "guest")
	_, err = f.m.SetControls(ctx, f.hostID, &ControlsPatch{Locked: ptr(true)})
	require.NoError(t, err)
	_, err = f.m.Join(ctx, &JoinParams{InviteCode: f.codes["late"]})
	assert.ErrorIs(t, err, ErrStudioLocked)

	_, err = f.m.SetControls(ctx, f.hostID, &ControlsPatch{Locked: ptr(false), WaitingRoomEnabled: ptr(false)})
	require.NoError(t, err)
	_, err = f.m.Join(ctx, &JoinParams{InviteCode: f.codes["late"]})
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	late, err := f.m.Get(f.ids["late"])
	require.NoError(t, err)
	assert.Equal(t, StatusInvited, late.Status, "failed join leaves the record untouched")
	f.check(t)
}

func TestKickedCannotRejoinDepartedCan(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()
	f.fill(t, 2)

	_, err := f.m.Kick(ctx, &KickParams{GuestID: f.ids["G1"], ActorID: f.hostID})
	require.NoError(t, err)
	_, err = f.m.Join(ctx, &JoinParams{InviteCode: f.codes["G1"]})
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.m.Leave(ctx, f.ids["G2"])
	require.NoError(t, err)
	resp := f.join(t, "G2")
	assert.Equal(t, JoinConnected, resp.Outcome)
	assert.Equal(t, 1, resp.Slot)
}

func TestModeratorOnlyOperations(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()
	f.fill(t, 2)

	_, err := f.m.Kick(ctx, &KickParams{GuestID: f.ids["G2"], ActorID: f.ids["G1"]})
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = f.m.Mute(ctx, &ModerateParams{GuestID: f.ids["G2"], ActorID: f.ids["G1"]})
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = f.m.Pin(ctx, &PinParams{GuestID: f.ids["G2"], ActorID: f.ids["G1"], Pinned: true})
	assert.ErrorIs(t, err, ErrNotAuthorized)

	g, err := f.m.SetRole(ctx, &SetRoleParams{GuestID: f.ids["G1"], ActorID: f.hostID, Role: "moderator"})
	require.NoError(t, err)
	assert.Equal(t, RoleModerator, g.Role)

	_, err = f.m.SetRole(ctx, &SetRoleParams{GuestID: f.ids["G2"], ActorID: f.ids["G1"], Role: "host"})
	assert.ErrorIs(t, err, ErrNotAuthorized, "only the host grants moderation roles")
	g, err = f.m.SetRole(ctx, &SetRoleParams{GuestID: f.ids["G2"], ActorID: f.ids["G1"], Role: "spectator"})
	require.NoError(t, err)
	assert.Equal(t, RoleSpectator, g.Role)

	_, err = f.m.Kick(ctx, &KickParams{GuestID: f.hostID, ActorID: f.ids["G1"]})
	assert.ErrorIs(t, err, ErrNotAuthorized)

	g, err = f.m.Pin(ctx, &PinParams{GuestID: f.ids["G2"], ActorID: f.ids["G1"], Pinned: true})
	require.NoError(t, err)
	assert.True(t, g.Pinned)

	_, err = f.m.SetRole(ctx, &SetRoleParams{GuestID: f.ids["G2"], ActorID: f.hostID, Role: "admin"})
	assert.ErrorIs(t, err, ErrInvalidRole)
	f.check(t)
}

func TestAutoAdmitOff(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	_, err := f.m.SetControls(ctx, f.hostID, &ControlsPatch{AutoAdmit: ptr(false)})
	require.NoError(t, err)

	f.invite(t, "A", "guest")
	f.invite(t, "B", "guest")
	resp := f.join(t, "A")
	assert.Equal(t, JoinWaiting, resp.Outcome, "arrivals park even with free slots")
	resp = f.join(t, "B")
	assert.Equal(t, 1, resp.Position)

	g, err := f.m.Admit(ctx, &AdmitParams{GuestID: f.ids["B"], ActorID: f.hostID})
	require.NoError(t, err)
	assert.Equal(t, 1, g.Slot)
	f.check(t)

	out, err := f.m.SetControls(ctx, f.hostID, &ControlsPatch{AutoAdmit: ptr(true)})
	require.NoError(t, err)
	require.Len(t, out.Admitted, 1)
	assert.Equal(t, f.ids["A"], out.Admitted[0].ID)
	assert.Equal(t, 2, out.Admitted[0].Slot)
	f.check(t)

	_, err = f.m.Admit(ctx, &AdmitParams{GuestID: f.ids["A"], ActorID: f.hostID})
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestHandsAndDevices(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.fill(t, 2)

	g, err := f.m.RaiseHand(ctx, f.ids["G2"])
	require.NoError(t, err)
	assert.True(t, g.HandRaised, "waiting guests may raise a hand")
	assert.Equal(t, 0, g.Slot)

	g, err = f.m.LowerHand(ctx, f.ids["G2"])
	require.NoError(t, err)
	assert.False(t, g.HandRaised)

	g, err = f.m.UpdateDeviceConfig(ctx, f.ids["G1"], map[string]any{
		"camera_device":   "/dev/video0",
		"background_blur": true,
	})
	require.NoError(t, err)
	assert.Equal(t, "/dev/video0", g.Devices["camera_device"])

	g, err = f.m.UpdateDeviceConfig(ctx, f.ids["G1"], map[string]any{"camera_device": nil})
	require.NoError(t, err)
	assert.NotContains(t, g.Devices, "camera_device")
	assert.Equal(t, true, g.Devices["background_blur"])

	_, err = f.m.UpdateDeviceConfig(ctx, f.ids["G1"], map[string]any{"resolution": "4k"})
	assert.ErrorIs(t, err, ErrInvalidDeviceConfig)
	f.check(t)
}

func TestInviteCodesAreUnique(t *testing.T) {
	f := newFixture(t, 6)
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		resp, err := f.m.CreateInvite(context.Background(), &CreateInviteParams{Name: fmt.Sprintf("g%d", i)})
		require.NoError(t, err)
		assert.Equal(t, RoleGuest, resp.Guest.Role)
		assert.Len(t, resp.InviteCode, inviteCodeSize)
		require.False(t, seen[resp.InviteCode])
		seen[resp.InviteCode] = true
	}
	f.check(t)
}

func TestOccupant(t *testing.T) {
	f := newFixture(t, 3)
	f.fill(t, 1)

	g, muted, ok := f.m.Occupant(1)
	require.True(t, ok)
	assert.Equal(t, f.ids["G1"], g.ID)
	assert.False(t, muted)

	_, _, ok = f.m.Occupant(2)
	assert.False(t, ok)
	_, _, ok = f.m.Occupant(9)
	assert.False(t, ok)
}

func TestInvariantsUnderChurn(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	f.fill(t, 8)

	for i := 1; i <= 8; i++ {
		id := f.ids[fmt.Sprintf("G%d", i)]
		if i%2 == 0 {
			_, err := f.m.Kick(ctx, &KickParams{GuestID: id, ActorID: f.hostID})
			require.NoError(t, err)
		} else {
			_, err := f.m.Leave(ctx, id)
			require.NoError(t, err)
		}
		f.check(t)

		snap := f.m.Status()
		assert.LessOrEqual(t, snap.Occupied, snap.Capacity)
		if snap.Waiting > 0 {
			assert.Equal(t, snap.Capacity, snap.Occupied, "a free slot never coexists with waiting guests")
		}
	}
}

func ptr[T any](v T) *T {
	return &v
}
