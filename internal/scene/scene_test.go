package scene

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func colorSource(id string, z int, hex string) Source {
	return Source{
		ID: id, Kind: KindColor, Width: 10, Height: 10, Z: z,
		Visible: true, Opacity: 1, Volume: 1,
		Options: &ColorOptions{Color: hex},
	}
}

func TestNewOrdersByZStable(t *testing.T) {
	s, err := New(Document{
		ID:   "a",
		Name: "A",
		Sources: []Source{
			colorSource("top", 5, "#ffffff"),
			colorSource("first", 1, "#000000"),
			colorSource("second", 1, "#ff0000"),
			colorSource("bottom", -1, "#00ff00"),
		},
	})
	require.NoError(t, err)

	var ids []string
	for _, src := range s.RenderOrder() {
		ids = append(ids, src.ID)
	}
	assert.Equal(t, []string{"bottom", "first", "second", "top"}, ids)
	assert.Equal(t, "top", s.Document().Sources[0].ID, "document order is preserved")
}

func TestNewRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
	}{
		{"missing id", Document{Name: "x"}},
		{"duplicate source", Document{ID: "a", Name: "A", Sources: []Source{
			colorSource("dup", 0, "#ffffff"), colorSource("dup", 1, "#ffffff"),
		}}},
		{"bad color", Document{ID: "a", Name: "A", Sources: []Source{colorSource("c", 0, "red")}}},
		{"opacity out of range", Document{ID: "a", Name: "A", Sources: []Source{func() Source {
			s := colorSource("c", 0, "#ffffff")
			s.Opacity = 1.5
			return s
		}()}}},
		{"options of another kind", Document{ID: "a", Name: "A", Sources: []Source{func() Source {
			s := colorSource("c", 0, "#ffffff")
			s.Kind = KindText
			return s
		}()}}},
		{"half canvas", Document{ID: "a", Name: "A", Width: 1280}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.doc)
			assert.ErrorIs(t, err, ErrInvalidScene)
		})
	}
}

func TestSourceJSON(t *testing.T) {
	var src Source
	err := json.Unmarshal([]byte(`{"id":"cam","kind":"camera","width":640,"height":360,
		"options":{"device":"slot:2","mirror":true,"chroma_key":{"color":"#00ff00","smoothing":0.1}}}`), &src)
	require.NoError(t, err)

	assert.True(t, src.Visible)
	assert.Equal(t, 1.0, src.Opacity)
	assert.Equal(t, 1.0, src.Volume)

	opts, ok := src.Options.(*CameraOptions)
	require.True(t, ok)
	assert.True(t, opts.Mirror)
	require.NotNil(t, opts.ChromaKey)
	assert.Equal(t, "#00ff00", opts.ChromaKey.Color)

	slot, ok := src.SlotRef()
	require.True(t, ok)
	assert.Equal(t, 2, slot)
	require.NoError(t, src.Validate())

	out, err := json.Marshal(src)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"device":"slot:2"`)
}

func TestSourceJSONRejectsUnknownOption(t *testing.T) {
	var src Source
	err := json.Unmarshal([]byte(`{"id":"c","kind":"color","width":1,"height":1,"options":{"colour":"#fff"}}`), &src)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"id":"c","kind":"hologram","options":{}}`), &src)
	assert.Error(t, err)
}

func TestAudible(t *testing.T) {
	assert.True(t, Source{Kind: KindAudio, Options: &AudioOptions{Device: "mic"}}.Audible())
	assert.True(t, Source{Kind: KindVideo, Options: &VideoOptions{Path: "a.mp4", Audio: true}}.Audible())
	assert.False(t, Source{Kind: KindVideo, Options: &VideoOptions{Path: "a.mp4"}}.Audible())
	assert.False(t, Source{Kind: KindCamera, Options: &CameraOptions{Device: "cam"}}.Audible())
}

func TestPresets(t *testing.T) {
	var ids []string
	for _, s := range Presets() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"gaming", "green_screen", "interview", "presentation", "talking_head"}, ids)

	interview, ok := Preset("interview")
	require.True(t, ok)
	w, h := interview.Canvas()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)

	var guestSlot int
	for _, src := range interview.RenderOrder() {
		if src.ID == "guest" {
			guestSlot, _ = src.SlotRef()
		}
	}
	assert.Equal(t, 1, guestSlot)

	_, ok = Preset("nope")
	assert.False(t, ok)
}

func TestDuplicate(t *testing.T) {
	gaming, ok := Preset("gaming")
	require.True(t, ok)

	custom, err := Duplicate(gaming, "my-gaming", "My gaming")
	require.NoError(t, err)
	assert.Equal(t, "my-gaming", custom.ID())
	assert.Equal(t, gaming.Len(), custom.Len())
	assert.Equal(t, "gaming", gaming.ID())
}

func TestLoadLibrary(t *testing.T) {
	scenes, err := LoadLibrary(strings.NewReader(`
scenes:
  - id: solo
    name: Solo
    sources:
      - id: bg
        kind: color
        width: 100
        height: 100
        visible: false
        options: {color: "#123456"}
`))
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	src := scenes[0].RenderOrder()[0]
	assert.False(t, src.Visible)
	assert.Equal(t, "#123456", src.Options.(*ColorOptions).Color)

	_, err = LoadLibrary(strings.NewReader("scenes:\n  - id: broken\n"))
	assert.ErrorIs(t, err, ErrInvalidScene)
}

func TestLoadLibraryRejectsUnknownOption(t *testing.T) {
	_, err := LoadLibrary(strings.NewReader(`
scenes:
  - id: solo
    name: Solo
    sources:
      - id: bg
        kind: color
        width: 100
        height: 100
        options: {color: "#123456", colour: "#654321"}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}
