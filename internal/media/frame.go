package media

import (
	"image"
	"time"
)

// Frame is one composed video frame, packed 24-bit BGR, row-major without padding.
// A frame is shared read-only between every encoder worker once emitted.
type Frame struct {
	Width  int
	Height int
	Data   []byte
	Seq    uint64
	At     time.Time
}

// FrameFromRGBA packs img into a BGR24 frame. Alpha is dropped; the canvas is opaque.
func FrameFromRGBA(img *image.RGBA, seq uint64) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]byte, w*h*3)

	for y := 0; y < h; y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+w*4]
		dst := data[y*w*3 : (y+1)*w*3]
		for x := 0; x < w; x++ {
			dst[x*3+0] = src[x*4+2]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+0]
		}
	}

	return &Frame{Width: w, Height: h, Data: data, Seq: seq, At: time.Now()}
}

// BGR returns the pixel at (x, y) as blue, green, red.
func (f *Frame) BGR(x, y int) (byte, byte, byte) {
	i := (y*f.Width + x) * 3
	return f.Data[i], f.Data[i+1], f.Data[i+2]
}
