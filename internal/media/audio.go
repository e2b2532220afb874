package media

import "encoding/binary"

// AudioFormat describes interleaved signed 16-bit little-endian PCM.
type AudioFormat struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
	// BlockSize is the number of samples per channel in one block.
	BlockSize int `json:"block_size"`
}

var DefaultAudioFormat = AudioFormat{
	SampleRate: 44100,
	Channels:   2,
	BlockSize:  1024,
}

// Samples is the interleaved sample count of one block.
func (f AudioFormat) Samples() int {
	return f.BlockSize * f.Channels
}

type AudioBlock struct {
	// Samples are interleaved per channel.
	Samples []int16
	Seq     uint64
}

func Silence(f AudioFormat) AudioBlock {
	return AudioBlock{Samples: make([]int16, f.Samples())}
}

// Bytes encodes the block as s16le.
func (b AudioBlock) Bytes() []byte {
	out := make([]byte, len(b.Samples)*2)
	for i, s := range b.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// AudioBlockFromBytes decodes s16le PCM. A trailing odd byte is ignored.
func AudioBlockFromBytes(p []byte) AudioBlock {
	samples := make([]int16, len(p)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(p[i*2:]))
	}
	return AudioBlock{Samples: samples}
}
