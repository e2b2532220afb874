package compositor

import (
	"math"

	"github.com/sharetube/studio/internal/media"
	"github.com/sharetube/studio/internal/scene"
)

func silence(f media.AudioFormat, blocks int) media.AudioBlock {
	if blocks == 0 {
		return media.AudioBlock{}
	}
	return media.AudioBlock{Samples: make([]int16, blocks*f.Samples())}
}

// mix sums every audible source's next blocks scaled by source volume times master
// volume. Muted sources contribute silence. The sum saturates to the int16 range.
func (c *Compositor) mix(sc *scene.Scene, blocks int) media.AudioBlock {
	if blocks == 0 {
		return media.AudioBlock{}
	}
	n := c.audio.Samples()
	acc := make([]float64, blocks*n)
	master := c.MasterVolume()

	for _, src := range sc.RenderOrder() {
		if src.Muted || !src.Audible() {
			continue
		}

		input := src.Options.Input()
		if slot, ok := src.SlotRef(); ok {
			occupant, ok := c.resolveSlot(slot)
			if !ok || !occupant.Mic {
				continue
			}
			input = media.GuestAudioInput(occupant.GuestID)
		}

		gain := src.Volume * master
		for b := 0; b < blocks; b++ {
			block, ok := c.capture.TryGetAudioBlock(input)
			if !ok {
				break
			}
			dst := acc[b*n : (b+1)*n]
			for i := 0; i < n && i < len(block.Samples); i++ {
				dst[i] += float64(block.Samples[i]) * gain
			}
		}
	}

	out := make([]int16, len(acc))
	for i, v := range acc {
		out[i] = saturate(v)
	}

	return media.AudioBlock{Samples: out}
}

func saturate(v float64) int16 {
	v = math.Round(v)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
