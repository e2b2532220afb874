package encoder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharetube/studio/internal/media"
)

func argValue(t *testing.T, args []string, flag string) string {
	t.Helper()
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	t.Fatalf("flag %s not found in %v", flag, args)
	return ""
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func TestBuildArgsEncodesPreset(t *testing.T) {
	args := BuildArgs(media.Preset720p, media.DefaultAudioFormat, DefaultBundles().For("custom", ""), "rtmp://ingest/app/key")

	assert.Equal(t, "1280x720", argValue(t, args, "-s"))
	assert.Equal(t, "30", argValue(t, args, "-r"))
	assert.Equal(t, "bgr24", argValue(t, args, "-pix_fmt"))
	assert.Equal(t, "3000000", argValue(t, args, "-b:v"))
	assert.Equal(t, "3000000", argValue(t, args, "-minrate"))
	assert.Equal(t, "4000000", argValue(t, args, "-maxrate"))
	assert.Equal(t, "6000000", argValue(t, args, "-bufsize"))
	assert.Equal(t, "60", argValue(t, args, "-g"))
	assert.Equal(t, "60", argValue(t, args, "-keyint_min"))
	assert.Equal(t, "zerolatency", argValue(t, args, "-tune"))
	assert.Equal(t, "128k", argValue(t, args, "-b:a"))
	assert.Equal(t, "44100", argValue(t, args, "-ar"))
	assert.Equal(t, "flv", args[len(args)-2])
	assert.Equal(t, "rtmp://ingest/app/key", args[len(args)-1])

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-pix_fmt yuv420p")
	assert.Contains(t, joined, "-f s16le -ar 44100 -ac 2 -i pipe:3")
	assert.False(t, hasFlag(args, "-bf"))
	assert.False(t, hasFlag(args, "-movflags"))
}

func TestBundles(t *testing.T) {
	bundles := DefaultBundles()

	twitch := BuildArgs(media.Preset720p, media.DefaultAudioFormat, bundles.For("Twitch", ""), "rtmp://x/y")
	assert.Equal(t, "1", argValue(t, twitch, "-bf"))
	assert.False(t, hasFlag(twitch, "-movflags"))

	youtube := BuildArgs(media.Preset720p, media.DefaultAudioFormat, bundles.For("youtube", ""), "rtmp://x/y")
	assert.Equal(t, "+faststart", argValue(t, youtube, "-movflags"))
	assert.False(t, hasFlag(youtube, "-bf"))

	for _, b := range []Bundle{bundles.For("twitch", ""), bundles.For("youtube", ""), bundles.For("kick", "")} {
		assert.Equal(t, "yuv420p", b.PixFmt, b.Name)
	}

	assert.Equal(t, TwitchFamily, bundles.For("kick", TwitchFamily).Name, "override picks the bundle")
	assert.Equal(t, DefaultBundle, bundles.For("kick", "missing").Name)

	assigned := bundles.Assign("kick", TwitchFamily)
	assert.Equal(t, TwitchFamily, assigned.For("kick", "").Name)
	assert.Equal(t, DefaultBundle, bundles.For("kick", "").Name, "assign copies")
}

func TestTargetValidate(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		err    error
	}{
		{"ok", Target{IngestURL: "rtmp://live.example.com/app", StreamSecret: "k"}, nil},
		{"rtmps", Target{IngestURL: "rtmps://live.example.com:443/app/", StreamSecret: "k"}, nil},
		{"empty url", Target{StreamSecret: "k"}, ErrInvalidURL},
		{"http", Target{IngestURL: "http://example.com/app", StreamSecret: "k"}, ErrInvalidURL},
		{"no host", Target{IngestURL: "rtmp:///app", StreamSecret: "k"}, ErrInvalidURL},
		{"missing secret", Target{IngestURL: "rtmp://live.example.com/app", StreamSecret: " "}, ErrMissingSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if tt.err == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}

	dest, err := Target{IngestURL: "rtmp://live.example.com/app/", StreamSecret: "abc"}.Destination()
	require.NoError(t, err)
	assert.Equal(t, "rtmp://live.example.com/app/abc", dest)
	assert.Equal(t, "rtmp://live.example.com/app/***", redact(dest))
}

func TestMissingEncoders(t *testing.T) {
	out := []byte(`Encoders:
 V..... = Video
 ------
 V....D libx264              libx264 H.264 / AVC
 A....D aac                  AAC (Advanced Audio Coding)
`)
	assert.Empty(t, missingEncoders(out))
	assert.Equal(t, []string{"libx264"}, missingEncoders([]byte(" A....D aac   AAC\n")))
}
