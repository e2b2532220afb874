package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTest = New(AlreadyActive, "binding exists")

func TestIsMatchesOnCode(t *testing.T) {
	err := WithState(errTest, map[string]string{"tag": "twitch"})
	wrapped := fmt.Errorf("failed to start platform: %w", err)

	assert.ErrorIs(t, wrapped, errTest)
	assert.NotErrorIs(t, wrapped, New(NotActive, ""))

	fe, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"tag": "twitch"}, fe.State)
	assert.Nil(t, errTest.State, "sentinel must stay untouched")
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("exec: not found")
	err := Wrap(New(SpawnFailed, "ffmpeg"), cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "spawn_failed: ffmpeg: exec: not found", err.Error())

	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, SpawnFailed, code)
}

func TestClass(t *testing.T) {
	assert.Equal(t, ClassValidation, InvalidURL.Class())
	assert.Equal(t, ClassState, StudioLocked.Class())
	assert.Equal(t, ClassResource, CodecUnavailable.Class())
	assert.Equal(t, ClassTransient, Lagged.Class())
}
