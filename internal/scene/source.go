package scene

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"gopkg.in/yaml.v3"
)

type Kind string

const (
	KindCamera  Kind = "camera"
	KindDisplay Kind = "display"
	KindImage   Kind = "image"
	KindVideo   Kind = "video"
	KindText    Kind = "text"
	KindColor   Kind = "color"
	KindBrowser Kind = "browser"
	KindAudio   Kind = "audio"
)

var kinds = []any{KindCamera, KindDisplay, KindImage, KindVideo, KindText, KindColor, KindBrowser, KindAudio}

// Visual reports whether sources of this kind are drawn on the canvas.
func (k Kind) Visual() bool {
	return k != KindAudio
}

const slotPrefix = "slot:"

var (
	hexColor   = regexp.MustCompile(`^#?([0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
	resolution = regexp.MustCompile(`^[0-9]+x[0-9]+$`)
	slotDevice = regexp.MustCompile(`^slot:[1-9][0-9]*$`)
)

// SlotRef parses a "slot:N" device reference.
func SlotRef(device string) (int, bool) {
	if !strings.HasPrefix(device, slotPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(device, slotPrefix))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Options is the kind-specific settings record of a source.
type Options interface {
	Kind() Kind
	// Input names the capture input the source binds to. Empty when it binds to none.
	Input() string
	Validate() error
}

type ChromaKey struct {
	Color     string  `json:"color" yaml:"color"`
	Smoothing float64 `json:"smoothing" yaml:"smoothing"`
}

func (c ChromaKey) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Color, validation.Required, validation.Match(hexColor)),
		validation.Field(&c.Smoothing, validation.Min(0.0), validation.Max(1.0)),
	)
}

type CameraOptions struct {
	Device     string     `json:"device" yaml:"device"`
	Resolution string     `json:"resolution,omitempty" yaml:"resolution"`
	Framerate  int        `json:"framerate,omitempty" yaml:"framerate"`
	Mirror     bool       `json:"mirror,omitempty" yaml:"mirror"`
	ChromaKey  *ChromaKey `json:"chroma_key,omitempty" yaml:"chroma_key"`
}

func (o *CameraOptions) Kind() Kind     { return KindCamera }
func (o *CameraOptions) Input() string { return o.Device }

func (o *CameraOptions) Validate() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.Device, validation.Required),
		validation.Field(&o.Resolution, validation.Match(resolution)),
		validation.Field(&o.Framerate, validation.Min(0)),
		validation.Field(&o.ChromaKey),
	)
}

type DisplayOptions struct {
	Display     string `json:"display" yaml:"display"`
	CaptureMode string `json:"capture_mode,omitempty" yaml:"capture_mode"`
	Resolution  string `json:"resolution,omitempty" yaml:"resolution"`
	FPS         int    `json:"fps,omitempty" yaml:"fps"`
}

func (o *DisplayOptions) Kind() Kind     { return KindDisplay }
func (o *DisplayOptions) Input() string { return o.Display }

func (o *DisplayOptions) Validate() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.Display, validation.Required),
		validation.Field(&o.CaptureMode, validation.In("screen", "window", "region")),
		validation.Field(&o.Resolution, validation.Match(resolution)),
		validation.Field(&o.FPS, validation.Min(0)),
	)
}

type ImageOptions struct {
	Path      string   `json:"path" yaml:"path"`
	ScaleMode string   `json:"scale_mode,omitempty" yaml:"scale_mode"`
	Opacity   *float64 `json:"opacity,omitempty" yaml:"opacity"`
}

func (o *ImageOptions) Kind() Kind     { return KindImage }
func (o *ImageOptions) Input() string { return "" }

func (o *ImageOptions) Validate() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.Path, validation.Required),
		validation.Field(&o.ScaleMode, validation.In("stretch", "fit", "fill")),
		validation.Field(&o.Opacity, validation.Min(0.0), validation.Max(1.0)),
	)
}

type VideoOptions struct {
	Path  string `json:"path" yaml:"path"`
	Loop  bool   `json:"loop,omitempty" yaml:"loop"`
	Audio bool   `json:"audio,omitempty" yaml:"audio"`
}

func (o *VideoOptions) Kind() Kind     { return KindVideo }
func (o *VideoOptions) Input() string { return o.Path }

func (o *VideoOptions) Validate() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.Path, validation.Required),
	)
}

type TextOptions struct {
	Text            string `json:"text" yaml:"text"`
	FontSize        int    `json:"font_size,omitempty" yaml:"font_size"`
	FontFamily      string `json:"font_family,omitempty" yaml:"font_family"`
	Color           string `json:"color,omitempty" yaml:"color"`
	Bold            bool   `json:"bold,omitempty" yaml:"bold"`
	OutlineColor    string `json:"outline_color,omitempty" yaml:"outline_color"`
	OutlineWidth    int    `json:"outline_width,omitempty" yaml:"outline_width"`
	BackgroundColor string `json:"background_color,omitempty" yaml:"background_color"`
}

func (o *TextOptions) Kind() Kind     { return KindText }
func (o *TextOptions) Input() string { return "" }

func (o *TextOptions) Validate() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.Text, validation.Required),
		validation.Field(&o.FontSize, validation.Min(0), validation.Max(512)),
		validation.Field(&o.Color, validation.Match(hexColor)),
		validation.Field(&o.OutlineColor, validation.Match(hexColor)),
		validation.Field(&o.OutlineWidth, validation.Min(0), validation.Max(16)),
		validation.Field(&o.BackgroundColor, validation.Match(hexColor)),
	)
}

type BrowserOptions struct {
	URL    string `json:"url" yaml:"url"`
	Width  int    `json:"width,omitempty" yaml:"width"`
	Height int    `json:"height,omitempty" yaml:"height"`
	CSS    string `json:"css,omitempty" yaml:"css"`
}

func (o *BrowserOptions) Kind() Kind     { return KindBrowser }
func (o *BrowserOptions) Input() string { return o.URL }

func (o *BrowserOptions) Validate() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.URL, validation.Required, is.URL),
		validation.Field(&o.Width, validation.Min(0)),
		validation.Field(&o.Height, validation.Min(0)),
	)
}

type ColorOptions struct {
	Color string `json:"color" yaml:"color"`
}

func (o *ColorOptions) Kind() Kind     { return KindColor }
func (o *ColorOptions) Input() string { return "" }

func (o *ColorOptions) Validate() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.Color, validation.Required, validation.Match(hexColor)),
	)
}

type AudioOptions struct {
	Device     string `json:"device" yaml:"device"`
	SampleRate int    `json:"sample_rate,omitempty" yaml:"sample_rate"`
	Channels   int    `json:"channels,omitempty" yaml:"channels"`
}

func (o *AudioOptions) Kind() Kind     { return KindAudio }
func (o *AudioOptions) Input() string { return o.Device }

func (o *AudioOptions) Validate() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.Device, validation.Required),
		validation.Field(&o.SampleRate, validation.Min(0)),
		validation.Field(&o.Channels, validation.Min(0), validation.Max(8)),
	)
}

func newOptions(k Kind) (Options, error) {
	switch k {
	case KindCamera:
		return &CameraOptions{}, nil
	case KindDisplay:
		return &DisplayOptions{}, nil
	case KindImage:
		return &ImageOptions{}, nil
	case KindVideo:
		return &VideoOptions{}, nil
	case KindText:
		return &TextOptions{}, nil
	case KindColor:
		return &ColorOptions{}, nil
	case KindBrowser:
		return &BrowserOptions{}, nil
	case KindAudio:
		return &AudioOptions{}, nil
	}
	return nil, fmt.Errorf("unknown source kind %q", k)
}

// Source is one element of a scene. Options holds the record matching Kind.
type Source struct {
	ID       string  `json:"id"`
	Kind     Kind    `json:"kind"`
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Z        int     `json:"z"`
	Visible  bool    `json:"visible"`
	Opacity  float64 `json:"opacity"`
	Rotation float64 `json:"rotation"`
	Muted    bool    `json:"muted"`
	Volume   float64 `json:"volume"`
	Options  Options `json:"options"`
}

func (s Source) Validate() error {
	if err := validation.ValidateStruct(&s,
		validation.Field(&s.ID, validation.Required, validation.Length(1, 64)),
		validation.Field(&s.Kind, validation.Required, validation.In(kinds...)),
		validation.Field(&s.Width, validation.When(s.Kind.Visual(), validation.Required, validation.Min(1))),
		validation.Field(&s.Height, validation.When(s.Kind.Visual(), validation.Required, validation.Min(1))),
		validation.Field(&s.Opacity, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&s.Volume, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&s.Rotation, validation.Min(-360.0), validation.Max(360.0)),
	); err != nil {
		return err
	}

	if s.Options == nil {
		return validation.Errors{"options": validation.ErrRequired}
	}
	if s.Options.Kind() != s.Kind {
		return validation.Errors{"options": fmt.Errorf("options are for kind %s", s.Options.Kind())}
	}
	if err := s.Options.Validate(); err != nil {
		return validation.Errors{"options": err}
	}

	return nil
}

// SlotRef reports the guest slot a camera or audio source is bound to.
func (s Source) SlotRef() (int, bool) {
	if s.Options == nil || (s.Kind != KindCamera && s.Kind != KindAudio) {
		return 0, false
	}
	if !slotDevice.MatchString(s.Options.Input()) {
		return 0, false
	}
	return SlotRef(s.Options.Input())
}

// Audible reports whether the source contributes to the audio mix.
func (s Source) Audible() bool {
	switch o := s.Options.(type) {
	case *AudioOptions:
		return true
	case *VideoOptions:
		return o.Audio
	}
	return false
}

// fields shared by the json and yaml document forms. Absent visible, opacity and volume
// default to true, 1 and 1.
type sourceFields struct {
	ID       string   `json:"id" yaml:"id"`
	Kind     Kind     `json:"kind" yaml:"kind"`
	X        int      `json:"x" yaml:"x"`
	Y        int      `json:"y" yaml:"y"`
	Width    int      `json:"width" yaml:"width"`
	Height   int      `json:"height" yaml:"height"`
	Z        int      `json:"z" yaml:"z"`
	Visible  *bool    `json:"visible" yaml:"visible"`
	Opacity  *float64 `json:"opacity" yaml:"opacity"`
	Rotation float64  `json:"rotation" yaml:"rotation"`
	Muted    bool     `json:"muted" yaml:"muted"`
	Volume   *float64 `json:"volume" yaml:"volume"`
}

func (f sourceFields) source(opts Options) Source {
	s := Source{
		ID:       f.ID,
		Kind:     f.Kind,
		X:        f.X,
		Y:        f.Y,
		Width:    f.Width,
		Height:   f.Height,
		Z:        f.Z,
		Visible:  true,
		Opacity:  1,
		Rotation: f.Rotation,
		Muted:    f.Muted,
		Volume:   1,
		Options:  opts,
	}
	if f.Visible != nil {
		s.Visible = *f.Visible
	}
	if f.Opacity != nil {
		s.Opacity = *f.Opacity
	}
	if f.Volume != nil {
		s.Volume = *f.Volume
	}
	return s
}

// UnmarshalJSON decodes the options bag into the record for the source's kind and
// rejects option keys the kind does not recognize.
func (s *Source) UnmarshalJSON(data []byte) error {
	var doc struct {
		sourceFields
		Options json.RawMessage `json:"options"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	opts, err := newOptions(doc.Kind)
	if err != nil {
		return err
	}

	if len(doc.Options) > 0 && !bytes.Equal(doc.Options, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(doc.Options))
		dec.DisallowUnknownFields()
		if err := dec.Decode(opts); err != nil {
			return fmt.Errorf("source %s options: %w", doc.ID, err)
		}
	}

	*s = doc.sourceFields.source(opts)
	return nil
}

func (s *Source) UnmarshalYAML(node *yaml.Node) error {
	var doc struct {
		sourceFields `yaml:",inline"`
		Options      yaml.Node `yaml:"options"`
	}
	if err := node.Decode(&doc); err != nil {
		return err
	}

	opts, err := newOptions(doc.Kind)
	if err != nil {
		return err
	}

	if !doc.Options.IsZero() {
		// node.Decode does not check field names, so the bag goes back through a decoder
		raw, err := yaml.Marshal(&doc.Options)
		if err != nil {
			return fmt.Errorf("source %s options: %w", doc.ID, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(opts); err != nil {
			return fmt.Errorf("source %s options: %w", doc.ID, err)
		}
	}

	*s = doc.sourceFields.source(opts)
	return nil
}
