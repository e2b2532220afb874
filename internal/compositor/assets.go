package compositor

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/sharetube/studio/internal/scene"
)

const maxCachedAssets = 256

type colorKey struct {
	hex  string
	w, h int
}

type imageKey struct {
	path, mode string
	w, h       int
}

type textKey struct {
	opts scene.TextOptions
	w, h int
}

// assetCache holds static pixels (solid colors, files from disk, rendered text) that
// do not change between ticks.
type assetCache struct {
	root   string
	logger *slog.Logger

	mu       sync.Mutex
	colors   map[colorKey]image.Image
	images   map[imageKey]image.Image
	texts    map[textKey]image.Image
	failures map[string]error
}

func newAssetCache(root string, logger *slog.Logger) *assetCache {
	return &assetCache{
		root:     root,
		logger:   logger,
		colors:   make(map[colorKey]image.Image),
		images:   make(map[imageKey]image.Image),
		texts:    make(map[textKey]image.Image),
		failures: make(map[string]error),
	}
}

func cacheGet[K comparable](c *assetCache, m map[K]image.Image, key K, build func() (image.Image, error)) (image.Image, error) {
	c.mu.Lock()
	img, ok := m[key]
	c.mu.Unlock()
	if ok {
		return img, nil
	}

	img, err := build()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if len(m) >= maxCachedAssets {
		clear(m)
	}
	m[key] = img
	c.mu.Unlock()

	return img, nil
}

func (c *assetCache) color(hex string, w, h int) (image.Image, error) {
	return cacheGet(c, c.colors, colorKey{hex, w, h}, func() (image.Image, error) {
		col, err := parseHexColor(hex)
		if err != nil {
			return nil, err
		}
		return imaging.New(w, h, col), nil
	})
}

func (c *assetCache) image(path, mode string, w, h int) (image.Image, error) {
	c.mu.Lock()
	err, failed := c.failures[path]
	c.mu.Unlock()
	if failed {
		return nil, err
	}

	return cacheGet(c, c.images, imageKey{path, mode, w, h}, func() (image.Image, error) {
		full := path
		if c.root != "" && !filepath.IsAbs(path) {
			full = filepath.Join(c.root, path)
		}

		src, err := imaging.Open(full)
		if err != nil {
			c.mu.Lock()
			c.failures[path] = err
			c.mu.Unlock()
			c.logger.Warn("failed to load image source", "path", full, "error", err)
			return nil, err
		}

		switch mode {
		case "fit":
			fitted := imaging.Fit(src, w, h, imaging.Lanczos)
			b := fitted.Bounds()
			return imaging.Paste(imaging.New(w, h, color.Transparent), fitted,
				image.Pt((w-b.Dx())/2, (h-b.Dy())/2)), nil
		case "fill":
			return imaging.Fill(src, w, h, imaging.Center, imaging.Lanczos), nil
		default:
			return imaging.Resize(src, w, h, imaging.Lanczos), nil
		}
	})
}

func (c *assetCache) text(o scene.TextOptions, w, h int) (image.Image, error) {
	return cacheGet(c, c.texts, textKey{o, w, h}, func() (image.Image, error) {
		return renderText(o, w, h)
	})
}

const baseGlyphHeight = 13

// renderText rasterises with the built-in bitmap face and scales it to font_size.
// font_family is accepted but only the built-in face is available.
func renderText(o scene.TextOptions, w, h int) (image.Image, error) {
	fg := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	if o.Color != "" {
		c, err := parseHexColor(o.Color)
		if err != nil {
			return nil, err
		}
		fg = c
	}

	bg := color.NRGBA{}
	if o.BackgroundColor != "" {
		c, err := parseHexColor(o.BackgroundColor)
		if err != nil {
			return nil, err
		}
		bg = c
	}

	face := basicfont.Face7x13
	metrics := face.Metrics()
	pad := o.OutlineWidth + 1
	textW := font.MeasureString(face, o.Text).Ceil()
	textH := (metrics.Ascent + metrics.Descent).Ceil()

	glyphs := image.NewNRGBA(image.Rect(0, 0, textW+2*pad+1, textH+2*pad))
	drawAt := func(dx, dy int, col color.Color) {
		d := &font.Drawer{
			Dst:  glyphs,
			Src:  image.NewUniform(col),
			Face: face,
			Dot:  fixed.P(pad+dx, pad+metrics.Ascent.Ceil()+dy),
		}
		d.DrawString(o.Text)
	}

	if o.OutlineWidth > 0 {
		outline := color.NRGBA{A: 255}
		if o.OutlineColor != "" {
			if c, err := parseHexColor(o.OutlineColor); err == nil {
				outline = c
			}
		}
		for dx := -o.OutlineWidth; dx <= o.OutlineWidth; dx++ {
			for dy := -o.OutlineWidth; dy <= o.OutlineWidth; dy++ {
				if dx != 0 || dy != 0 {
					drawAt(dx, dy, outline)
				}
			}
		}
	}
	drawAt(0, 0, fg)
	if o.Bold {
		drawAt(1, 0, fg)
	}

	size := o.FontSize
	if size == 0 {
		size = baseGlyphHeight
	}
	scale := float64(size) / baseGlyphHeight
	tw := max(1, int(float64(glyphs.Bounds().Dx())*scale))
	th := max(1, int(float64(glyphs.Bounds().Dy())*scale))

	var text image.Image = imaging.Resize(glyphs, tw, th, imaging.Lanczos)
	if tw > w || th > h {
		text = imaging.Fit(text, w, h, imaging.Lanczos)
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	tb := text.Bounds()
	at := image.Pt(0, (h-tb.Dy())/2)
	draw.Draw(out, tb.Sub(tb.Min).Add(at), text, tb.Min, draw.Over)

	return out, nil
}

// parseHexColor accepts #rrggbb and #rrggbbaa, with or without the leading '#'.
func parseHexColor(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 && len(s) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}

	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}

	if len(s) == 6 {
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
