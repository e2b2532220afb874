package encoder

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sharetube/studio/internal/media"
)

const (
	DefaultBundle = "default"
	TwitchFamily  = "twitch-family"
	YouTubeFamily = "youtube-family"
)

// Bundle is the platform-specific slice of the encoder command line.
type Bundle struct {
	Name   string `json:"name"`
	PixFmt string `json:"pix_fmt"`
	// BFrames is passed as -bf when zero or greater.
	BFrames  int    `json:"b_frames"`
	MovFlags string `json:"mov_flags,omitempty"`
}

type Bundles struct {
	bundles map[string]Bundle
	// families maps a platform tag to a bundle name.
	families map[string]string
}

func DefaultBundles() Bundles {
	return Bundles{
		bundles: map[string]Bundle{
			DefaultBundle: {Name: DefaultBundle, PixFmt: "yuv420p", BFrames: -1},
			TwitchFamily:  {Name: TwitchFamily, PixFmt: "yuv420p", BFrames: 1},
			YouTubeFamily: {Name: YouTubeFamily, PixFmt: "yuv420p", BFrames: -1, MovFlags: "+faststart"},
		},
		families: map[string]string{
			"twitch":  TwitchFamily,
			"youtube": YouTubeFamily,
		},
	}
}

// Assign returns a copy of b with platform mapped to the named bundle.
func (b Bundles) Assign(platform, bundle string) Bundles {
	if b.bundles == nil {
		b = DefaultBundles()
	}

	families := make(map[string]string, len(b.families)+1)
	for k, v := range b.families {
		families[k] = v
	}
	families[strings.ToLower(platform)] = bundle

	return Bundles{bundles: b.bundles, families: families}
}

// For picks the bundle for a platform tag. A non-empty override names the bundle
// directly. Unknown tags get the default bundle.
func (b Bundles) For(platform, override string) Bundle {
	if b.bundles == nil {
		b = DefaultBundles()
	}

	name := override
	if name == "" {
		name = b.families[strings.ToLower(platform)]
	}
	if bundle, ok := b.bundles[name]; ok {
		return bundle
	}

	return b.bundles[DefaultBundle]
}

func (b Bundles) Has(name string) bool {
	if b.bundles == nil {
		b = DefaultBundles()
	}
	_, ok := b.bundles[name]
	return ok
}

// BuildArgs assembles the encoder command line: raw BGR24 video on stdin, s16le audio on
// fd 3, single-pass CBR H.264 + AAC muxed as FLV to dest.
func BuildArgs(p media.Preset, a media.AudioFormat, b Bundle, dest string) []string {
	bufsize := p.BufferSize
	if bufsize == 0 {
		bufsize = 2 * p.Bitrate
	}
	keyint := strconv.Itoa(p.KeyframeInterval)

	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostats",
		"-progress", "pipe:1",

		"-f", "rawvideo", "-pix_fmt", "bgr24",
		"-s", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-r", strconv.Itoa(p.FPS),
		"-i", "pipe:0",

		"-f", "s16le",
		"-ar", strconv.Itoa(a.SampleRate),
		"-ac", strconv.Itoa(a.Channels),
		"-i", "pipe:3",

		"-map", "0:v", "-map", "1:a",

		"-c:v", "libx264", "-preset", "veryfast", "-tune", "zerolatency",
		"-b:v", strconv.Itoa(p.Bitrate),
		"-minrate", strconv.Itoa(p.Bitrate),
		"-maxrate", strconv.Itoa(p.MaxBitrate),
		"-bufsize", strconv.Itoa(bufsize),
		"-g", keyint, "-keyint_min", keyint, "-sc_threshold", "0",
		"-x264-params", "nal-hrd=cbr",
		"-pix_fmt", b.PixFmt,
	}

	if b.BFrames >= 0 {
		args = append(args, "-bf", strconv.Itoa(b.BFrames))
	}

	args = append(args,
		"-c:a", "aac", "-b:a", "128k", "-ar", "44100", "-ac", "2",
	)

	if b.MovFlags != "" {
		args = append(args, "-movflags", b.MovFlags)
	}

	return append(args, "-f", "flv", dest)
}
