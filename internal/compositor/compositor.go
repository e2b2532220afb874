// Package compositor turns the current scene into one video frame and one audio block
// per tick.
package compositor

import (
	"context"
	"image"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/sharetube/studio/internal/media"
	"github.com/sharetube/studio/internal/scene"
)

// Capture is the pull side of the capture inputs. Both calls must not block.
type Capture interface {
	TryGetFrame(name string) (image.Image, bool)
	TryGetAudioBlock(name string) (media.AudioBlock, bool)
}

type SlotOccupant struct {
	GuestID string
	Camera  bool
	Mic     bool
}

// SlotResolver maps a guest slot to the guest occupying it at the moment of the call.
type SlotResolver interface {
	ResolveSlot(slot int) (SlotOccupant, bool)
}

type Tick struct {
	Frame   *media.Frame
	Audio   media.AudioBlock
	SceneID string
}

type Config struct {
	Capture Capture
	Slots   SlotResolver
	Preset  media.Preset
	Audio   media.AudioFormat
	// AssetRoot prefixes relative image source paths.
	AssetRoot string
}

type Compositor struct {
	scene   atomic.Pointer[scene.Scene]
	preset  atomic.Pointer[media.Preset]
	master  atomic.Uint64
	frames  atomic.Uint64
	// owed counts audio sample frames due but not yet emitted, scaled by the frame rate.
	owed    atomic.Int64
	capture Capture
	slots   SlotResolver
	audio   media.AudioFormat
	assets  *assetCache
	logger  *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Compositor {
	if cfg.Audio.BlockSize == 0 {
		cfg.Audio = media.DefaultAudioFormat
	}

	c := &Compositor{
		capture: cfg.Capture,
		slots:   cfg.Slots,
		audio:   cfg.Audio,
		assets:  newAssetCache(cfg.AssetRoot, logger),
		logger:  logger,
	}
	c.SetPreset(cfg.Preset)
	c.SetMasterVolume(1)

	return c
}

// SetScene swaps the scene reference. The next tick renders s in full; a tick in flight
// keeps the scene it loaded.
func (c *Compositor) SetScene(s *scene.Scene) *scene.Scene {
	return c.scene.Swap(s)
}

func (c *Compositor) Scene() *scene.Scene {
	return c.scene.Load()
}

func (c *Compositor) SetPreset(p media.Preset) {
	c.preset.Store(&p)
	c.owed.Store(0)
}

func (c *Compositor) Preset() media.Preset {
	return *c.preset.Load()
}

func (c *Compositor) SetMasterVolume(v float64) {
	c.master.Store(math.Float64bits(math.Max(0, v)))
}

func (c *Compositor) MasterVolume() float64 {
	return math.Float64frombits(c.master.Load())
}

// Frames is the number of ticks rendered so far.
func (c *Compositor) Frames() uint64 {
	return c.frames.Load()
}

func (c *Compositor) AudioFormat() media.AudioFormat {
	return c.audio
}

// RenderTick renders the scene loaded at the start of the call. Audio carries however
// many whole blocks the audio clock owes, so over time it matches the sample rate.
func (c *Compositor) RenderTick() Tick {
	sc := c.scene.Load()
	preset := c.Preset()
	blocks := c.audioBlocksDue(preset.FPS)

	canvas := newCanvas(preset.Width, preset.Height)
	audio := silence(c.audio, blocks)

	var sceneID string
	if sc != nil {
		sceneID = sc.ID()
		sx, sy := scaleFor(sc, preset)
		for _, src := range sc.RenderOrder() {
			c.drawSource(canvas, src, sx, sy)
		}
		audio = c.mix(sc, blocks)
	}

	seq := c.frames.Add(1)
	audio.Seq = seq

	return Tick{
		Frame:   media.FrameFromRGBA(canvas, seq),
		Audio:   audio,
		SceneID: sceneID,
	}
}

// audioBlocksDue advances the audio clock by one video tick and returns the whole blocks
// due. The remainder carries into the next tick.
func (c *Compositor) audioBlocksDue(fps int) int {
	if fps <= 0 {
		fps = 1
	}
	cost := int64(c.audio.BlockSize * fps)
	owed := c.owed.Add(int64(c.audio.SampleRate))
	n := owed / cost
	if n > 0 {
		c.owed.Add(-n * cost)
	}
	return int(n)
}

// Run renders at the preset's frame rate until ctx ends, handing every tick to sink.
// sink must not block.
func (c *Compositor) Run(ctx context.Context, sink func(Tick)) error {
	interval := c.Preset().FrameInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.InfoContext(ctx, "render loop started", "interval", interval)
	defer c.logger.InfoContext(ctx, "render loop stopped", "frames", c.Frames())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		sink(c.RenderTick())

		if next := c.Preset().FrameInterval(); next != interval {
			interval = next
			ticker.Reset(interval)
		}
	}
}

func scaleFor(sc *scene.Scene, p media.Preset) (float64, float64) {
	w, h := sc.Canvas()
	if w == 0 || h == 0 {
		return 1, 1
	}
	return float64(p.Width) / float64(w), float64(p.Height) / float64(h)
}
