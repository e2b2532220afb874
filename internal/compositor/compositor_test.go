package compositor

import (
	"image"
	"image/color"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharetube/studio/internal/media"
	"github.com/sharetube/studio/internal/scene"
)

var testPreset = media.Preset{Name: "test", Width: 64, Height: 36, FPS: 30, KeyframeInterval: 60}

type fakeSlots map[int]SlotOccupant

func (f fakeSlots) ResolveSlot(slot int) (SlotOccupant, bool) {
	o, ok := f[slot]
	return o, ok
}

func newTestCompositor(inputs *media.Inputs) *Compositor {
	return New(Config{Capture: inputs, Preset: testPreset}, slog.Default())
}

func colorSrc(id string, x, y, w, h, z int, hex string) scene.Source {
	return scene.Source{
		ID: id, Kind: scene.KindColor, X: x, Y: y, Width: w, Height: h, Z: z,
		Visible: true, Opacity: 1, Volume: 1,
		Options: &scene.ColorOptions{Color: hex},
	}
}

func mustScene(t *testing.T, id string, sources ...scene.Source) *scene.Scene {
	t.Helper()
	s, err := scene.New(scene.Document{ID: id, Name: id, Sources: sources})
	require.NoError(t, err)
	return s
}

func rgb(f *media.Frame, x, y int) [3]byte {
	b, g, r := f.BGR(x, y)
	return [3]byte{r, g, b}
}

func TestRenderWithoutSceneIsBlack(t *testing.T) {
	c := newTestCompositor(media.NewInputs())
	tick := c.RenderTick()

	require.Equal(t, testPreset.FrameSize(), len(tick.Frame.Data))
	assert.Equal(t, [3]byte{0, 0, 0}, rgb(tick.Frame, 10, 10))
	assert.Len(t, tick.Audio.Samples, media.DefaultAudioFormat.Samples())
	assert.Equal(t, uint64(1), c.Frames())
}

func TestZOrderAndVisibility(t *testing.T) {
	c := newTestCompositor(media.NewInputs())

	hidden := colorSrc("hidden", 0, 0, 64, 36, 100, "#0000ff")
	hidden.Visible = false

	c.SetScene(mustScene(t, "z",
		colorSrc("top", 0, 0, 32, 36, 10, "#ff0000"),
		colorSrc("bottom", 0, 0, 64, 36, 1, "#00ff00"),
		hidden,
	))
	tick := c.RenderTick()

	assert.Equal(t, [3]byte{255, 0, 0}, rgb(tick.Frame, 5, 5))
	assert.Equal(t, [3]byte{0, 255, 0}, rgb(tick.Frame, 50, 5))
	assert.Equal(t, "z", tick.SceneID)
}

func TestEqualZKeepsInsertionOrder(t *testing.T) {
	c := newTestCompositor(media.NewInputs())
	c.SetScene(mustScene(t, "eq",
		colorSrc("first", 0, 0, 64, 36, 1, "#ff0000"),
		colorSrc("second", 0, 0, 64, 36, 1, "#0000ff"),
	))

	assert.Equal(t, [3]byte{0, 0, 255}, rgb(c.RenderTick().Frame, 1, 1))
}

func TestOpacityBlendsAgainstCanvas(t *testing.T) {
	c := newTestCompositor(media.NewInputs())
	src := colorSrc("white", 0, 0, 64, 36, 1, "#ffffff")
	src.Opacity = 0.5
	c.SetScene(mustScene(t, "half", src))

	px := rgb(c.RenderTick().Frame, 10, 10)
	assert.InDelta(t, 128, int(px[0]), 2)
	assert.InDelta(t, 128, int(px[2]), 2)
}

func TestOutOfCanvasSourceIsSkipped(t *testing.T) {
	c := newTestCompositor(media.NewInputs())
	c.SetScene(mustScene(t, "off",
		colorSrc("away", 500, 500, 10, 10, 1, "#ffffff"),
		colorSrc("partial", 60, 30, 10, 10, 2, "#ff0000"),
	))

	tick := c.RenderTick()
	assert.Equal(t, [3]byte{255, 0, 0}, rgb(tick.Frame, 63, 35), "partially visible source is clipped")
	assert.Equal(t, [3]byte{0, 0, 0}, rgb(tick.Frame, 10, 10))
}

func TestRotationAboutCenter(t *testing.T) {
	c := newTestCompositor(media.NewInputs())
	bar := colorSrc("bar", 12, 16, 40, 4, 1, "#ffffff")
	bar.Rotation = 90
	c.SetScene(mustScene(t, "rot", bar))

	f := c.RenderTick().Frame
	assert.Equal(t, [3]byte{255, 255, 255}, rgb(f, 32, 2), "rotated bar reaches the top")
	assert.Equal(t, [3]byte{0, 0, 0}, rgb(f, 14, 18), "original extent is cleared")
}

func TestReferenceCanvasScales(t *testing.T) {
	c := newTestCompositor(media.NewInputs())
	s, err := scene.New(scene.Document{
		ID: "scaled", Name: "scaled", Width: 128, Height: 72,
		Sources: []scene.Source{colorSrc("right", 64, 0, 64, 72, 1, "#ff0000")},
	})
	require.NoError(t, err)
	c.SetScene(s)

	f := c.RenderTick().Frame
	assert.Equal(t, [3]byte{255, 0, 0}, rgb(f, 40, 10))
	assert.Equal(t, [3]byte{0, 0, 0}, rgb(f, 20, 10))
}

func TestCaptureAndGuestSlots(t *testing.T) {
	inputs := media.NewInputs()
	green := image.NewNRGBA(image.Rect(0, 0, 64, 36))
	for i := 0; i < len(green.Pix); i += 4 {
		green.Pix[i+1], green.Pix[i+3] = 255, 255
	}
	inputs.PushFrame(media.GuestVideoInput("g1"), green)

	slots := fakeSlots{1: {GuestID: "g1", Camera: true, Mic: true}}
	c := New(Config{Capture: inputs, Slots: slots, Preset: testPreset}, slog.Default())

	cam := scene.Source{
		ID: "guest", Kind: scene.KindCamera, Width: 64, Height: 36, Visible: true, Opacity: 1, Volume: 1,
		Options: &scene.CameraOptions{Device: "slot:1"},
	}
	c.SetScene(mustScene(t, "guest", cam))
	assert.Equal(t, [3]byte{0, 255, 0}, rgb(c.RenderTick().Frame, 30, 20))

	slots[1] = SlotOccupant{GuestID: "g1", Camera: false, Mic: true}
	assert.Equal(t, [3]byte{0, 0, 0}, rgb(c.RenderTick().Frame, 30, 20), "camera off is not drawn")
}

func audioSrc(id, device string, volume float64) scene.Source {
	return scene.Source{
		ID: id, Kind: scene.KindAudio, Visible: true, Opacity: 1, Volume: volume,
		Options: &scene.AudioOptions{Device: device},
	}
}

func block(v int16) media.AudioBlock {
	samples := make([]int16, media.DefaultAudioFormat.Samples())
	for i := range samples {
		samples[i] = v
	}
	return media.AudioBlock{Samples: samples}
}

func TestMixerVolumesAndSaturation(t *testing.T) {
	inputs := media.NewInputs()
	c := newTestCompositor(inputs)

	muted := audioSrc("c", "mic-c", 1)
	muted.Muted = true
	c.SetScene(mustScene(t, "mix", audioSrc("a", "mic-a", 0.5), audioSrc("b", "mic-b", 1), muted))

	inputs.PushAudio("mic-a", block(1000))
	inputs.PushAudio("mic-b", block(300))
	inputs.PushAudio("mic-c", block(5000))
	assert.Equal(t, int16(800), c.RenderTick().Audio.Samples[0])

	inputs.PushAudio("mic-a", block(32000))
	inputs.PushAudio("mic-b", block(30000))
	assert.Equal(t, int16(32767), c.RenderTick().Audio.Samples[0], "sum saturates")

	inputs.PushAudio("mic-a", block(-32000))
	inputs.PushAudio("mic-b", block(-30000))
	assert.Equal(t, int16(-32768), c.RenderTick().Audio.Samples[5])

	c.SetMasterVolume(0)
	inputs.PushAudio("mic-b", block(30000))
	assert.Equal(t, int16(0), c.RenderTick().Audio.Samples[0])
}

func TestAudioClockMatchesSampleRate(t *testing.T) {
	inputs := media.NewInputs()
	c := newTestCompositor(inputs)
	c.SetScene(mustScene(t, "mic", audioSrc("a", "mic-a", 1)))
	format := media.DefaultAudioFormat

	// one second of video
	frames := 0
	perTick := map[int]int{}
	for i := 0; i < testPreset.FPS; i++ {
		inputs.PushAudio("mic-a", block(100))
		inputs.PushAudio("mic-a", block(100))
		samples := c.RenderTick().Audio.Samples
		require.Zero(t, len(samples)%format.Samples())
		perTick[len(samples)/format.Samples()]++
		frames += len(samples) / format.Channels
	}

	assert.Equal(t, format.SampleRate/format.BlockSize*format.BlockSize, frames)
	assert.InDelta(t, format.SampleRate, frames, float64(format.BlockSize))
	assert.Positive(t, perTick[2], "some ticks carry two blocks")
	assert.Zero(t, perTick[0])
}

func TestMixerSkipsMutedGuest(t *testing.T) {
	inputs := media.NewInputs()
	slots := fakeSlots{2: {GuestID: "g2", Camera: true, Mic: false}}
	c := New(Config{Capture: inputs, Slots: slots, Preset: testPreset}, slog.Default())
	c.SetScene(mustScene(t, "guest-mic", audioSrc("g", "slot:2", 1)))

	inputs.PushAudio(media.GuestAudioInput("g2"), block(1234))
	assert.Equal(t, int16(0), c.RenderTick().Audio.Samples[0])

	slots[2] = SlotOccupant{GuestID: "g2", Camera: true, Mic: true}
	assert.Equal(t, int16(1234), c.RenderTick().Audio.Samples[0])
}

func TestTextSourceRenders(t *testing.T) {
	c := newTestCompositor(media.NewInputs())
	c.SetScene(mustScene(t, "text", scene.Source{
		ID: "t", Kind: scene.KindText, Width: 64, Height: 36, Visible: true, Opacity: 1, Volume: 1,
		Options: &scene.TextOptions{Text: "LIVE", FontSize: 20, Color: "#ffffff", BackgroundColor: "#ff0000"},
	}))

	f := c.RenderTick().Frame
	assert.Equal(t, [3]byte{255, 0, 0}, rgb(f, 63, 0), "background fills the box")

	lit := 0
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			if px := rgb(f, x, y); px[1] > 100 {
				lit++
			}
		}
	}
	assert.Greater(t, lit, 0, "glyphs are drawn")
}

// Every frame rendered while the scene is being swapped shows exactly one scene.
func TestSceneSwitchIsAtomicPerTick(t *testing.T) {
	c := newTestCompositor(media.NewInputs())

	sceneA := mustScene(t, "A",
		colorSrc("a-left", 0, 0, 32, 36, 1, "#ff0000"),
		colorSrc("a-right", 32, 0, 32, 36, 2, "#00ff00"),
	)
	sceneB := mustScene(t, "B",
		colorSrc("b-left", 0, 0, 32, 36, 1, "#0000ff"),
		colorSrc("b-right", 32, 0, 32, 36, 2, "#ffff00"),
	)
	c.SetScene(sceneA)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				c.SetScene(sceneB)
			} else {
				c.SetScene(sceneA)
			}
		}
	}()

	seen := map[string]int{}
	for i := 0; i < 200; i++ {
		tick := c.RenderTick()
		left, right := rgb(tick.Frame, 5, 5), rgb(tick.Frame, 60, 30)

		switch tick.SceneID {
		case "A":
			assert.Equal(t, [3]byte{255, 0, 0}, left)
			assert.Equal(t, [3]byte{0, 255, 0}, right)
		case "B":
			assert.Equal(t, [3]byte{0, 0, 255}, left)
			assert.Equal(t, [3]byte{255, 255, 0}, right)
		default:
			t.Fatalf("unexpected scene %q", tick.SceneID)
		}
		seen[tick.SceneID]++
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 200, seen["A"]+seen["B"])
}

func TestParseHexColor(t *testing.T) {
	c, err := parseHexColor("#102030")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0x10, G: 0x20, B: 0x30, A: 255}, c)

	c, err = parseHexColor("10203080")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x80), c.A)

	_, err = parseHexColor("#zzz")
	assert.Error(t, err)
}
