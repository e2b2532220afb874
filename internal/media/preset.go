package media

import (
	"strings"
	"time"

	"github.com/sharetube/studio/internal/fault"
)

var ErrInvalidQuality = fault.New(fault.InvalidQuality, "unknown quality preset")

// Preset is an immutable encoding profile. Bitrates are in bits per second, the keyframe
// interval is in frames.
type Preset struct {
	Name             string `json:"name" yaml:"name"`
	Width            int    `json:"width" yaml:"width"`
	Height           int    `json:"height" yaml:"height"`
	Bitrate          int    `json:"bitrate" yaml:"bitrate"`
	MaxBitrate       int    `json:"max_bitrate" yaml:"max_bitrate"`
	BufferSize       int    `json:"buffer_size" yaml:"buffer_size"`
	FPS              int    `json:"fps" yaml:"fps"`
	KeyframeInterval int    `json:"keyframe_interval" yaml:"keyframe_interval"`
}

var (
	Preset360p = Preset{
		Name: "360p", Width: 640, Height: 360,
		Bitrate: 800_000, MaxBitrate: 1_000_000, BufferSize: 1_600_000,
		FPS: 30, KeyframeInterval: 60,
	}
	Preset480p = Preset{
		Name: "480p", Width: 854, Height: 480,
		Bitrate: 1_500_000, MaxBitrate: 2_000_000, BufferSize: 3_000_000,
		FPS: 30, KeyframeInterval: 60,
	}
	Preset720p = Preset{
		Name: "720p", Width: 1280, Height: 720,
		Bitrate: 3_000_000, MaxBitrate: 4_000_000, BufferSize: 6_000_000,
		FPS: 30, KeyframeInterval: 60,
	}
	Preset1080p = Preset{
		Name: "1080p", Width: 1920, Height: 1080,
		Bitrate: 6_000_000, MaxBitrate: 8_000_000, BufferSize: 12_000_000,
		FPS: 30, KeyframeInterval: 60,
	}
)

func Presets() []Preset {
	return []Preset{Preset360p, Preset480p, Preset720p, Preset1080p}
}

func LookupPreset(name string) (Preset, error) {
	for _, p := range Presets() {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}

	return Preset{}, fault.WithMessage(ErrInvalidQuality, "unknown quality preset "+name)
}

// FrameSize is the byte length of one packed BGR24 frame.
func (p Preset) FrameSize() int {
	return p.Width * p.Height * 3
}

func (p Preset) FrameInterval() time.Duration {
	if p.FPS <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(p.FPS)
}
