package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"

	"github.com/sharetube/studio/internal/media"
	"github.com/sharetube/studio/internal/scene"
)

var opaqueBlack = image.NewUniform(color.RGBA{A: 255})

func newCanvas(w, h int) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), opaqueBlack, image.Point{}, draw.Src)
	return canvas
}

func placement(src scene.Source, sx, sy float64) image.Rectangle {
	x := int(math.Round(float64(src.X) * sx))
	y := int(math.Round(float64(src.Y) * sy))
	w := int(math.Round(float64(src.Width) * sx))
	h := int(math.Round(float64(src.Height) * sy))
	return image.Rect(x, y, x+w, y+h)
}

func (c *Compositor) drawSource(canvas *image.RGBA, src scene.Source, sx, sy float64) {
	if !src.Visible || !src.Kind.Visual() || src.Opacity <= 0 {
		return
	}

	rect := placement(src, sx, sy)
	if rect.Empty() || !rect.Overlaps(canvas.Bounds()) {
		return
	}

	img, opacity, ok := c.sourceImage(src, rect.Dx(), rect.Dy())
	if !ok {
		return
	}

	if b := img.Bounds(); b.Dx() != rect.Dx() || b.Dy() != rect.Dy() {
		img = imaging.Resize(img, rect.Dx(), rect.Dy(), imaging.Lanczos)
	}

	dst := rect
	if rot := math.Mod(src.Rotation, 360); rot != 0 {
		// imaging rotates counter-clockwise; scene rotation is clockwise.
		img = imaging.Rotate(img, -rot, color.Transparent)
		center := image.Pt(rect.Min.X+rect.Dx()/2, rect.Min.Y+rect.Dy()/2)
		b := img.Bounds()
		dst = image.Rect(0, 0, b.Dx(), b.Dy()).Add(center.Sub(image.Pt(b.Dx()/2, b.Dy()/2)))
	}

	opacity *= src.Opacity
	var mask image.Image
	if opacity < 1 {
		mask = image.NewUniform(color.Alpha{A: uint8(math.Round(opacity * 255))})
	}

	draw.DrawMask(canvas, dst, img, img.Bounds().Min, mask, image.Point{}, draw.Over)
}

// sourceImage returns the pixels for one source sized for a w x h box, plus an extra
// opacity factor from the source's options.
func (c *Compositor) sourceImage(src scene.Source, w, h int) (image.Image, float64, bool) {
	switch o := src.Options.(type) {
	case *scene.ColorOptions:
		img, err := c.assets.color(o.Color, w, h)
		return img, 1, err == nil

	case *scene.ImageOptions:
		img, err := c.assets.image(o.Path, o.ScaleMode, w, h)
		if err != nil {
			return nil, 0, false
		}
		opacity := 1.0
		if o.Opacity != nil {
			opacity = *o.Opacity
		}
		return img, opacity, true

	case *scene.TextOptions:
		img, err := c.assets.text(*o, w, h)
		return img, 1, err == nil

	case *scene.CameraOptions:
		input := o.Device
		if slot, ok := src.SlotRef(); ok {
			occupant, ok := c.resolveSlot(slot)
			if !ok || !occupant.Camera {
				return nil, 0, false
			}
			input = media.GuestVideoInput(occupant.GuestID)
		}
		img, ok := c.capture.TryGetFrame(input)
		if !ok {
			return nil, 0, false
		}
		if o.Mirror {
			img = imaging.FlipH(img)
		}
		if o.ChromaKey != nil {
			key, err := parseHexColor(o.ChromaKey.Color)
			if err == nil {
				img = chromaKey(img, key, o.ChromaKey.Smoothing)
			}
		}
		return img, 1, true

	case *scene.DisplayOptions, *scene.VideoOptions, *scene.BrowserOptions:
		img, ok := c.capture.TryGetFrame(src.Options.Input())
		return img, 1, ok
	}

	return nil, 0, false
}

func (c *Compositor) resolveSlot(slot int) (SlotOccupant, bool) {
	if c.slots == nil {
		return SlotOccupant{}, false
	}
	return c.slots.ResolveSlot(slot)
}

const chromaSimilarity = 0.15

// chromaKey clears pixels close to key and feathers the edge over smoothing.
func chromaKey(img image.Image, key color.NRGBA, smoothing float64) *image.NRGBA {
	out := imaging.Clone(img)
	blend := math.Max(smoothing*0.3, 1e-3)
	maxDist := math.Sqrt(3 * 255 * 255)

	for i := 0; i+3 < len(out.Pix); i += 4 {
		dr := float64(out.Pix[i]) - float64(key.R)
		dg := float64(out.Pix[i+1]) - float64(key.G)
		db := float64(out.Pix[i+2]) - float64(key.B)
		d := math.Sqrt(dr*dr+dg*dg+db*db) / maxDist

		switch {
		case d < chromaSimilarity:
			out.Pix[i+3] = 0
		case d < chromaSimilarity+blend:
			out.Pix[i+3] = uint8(float64(out.Pix[i+3]) * (d - chromaSimilarity) / blend)
		}
	}

	return out
}
