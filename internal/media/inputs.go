package media

import (
	"image"
	"sync"
)

const defaultAudioDepth = 16

// GuestVideoInput and GuestAudioInput name the capture inputs a guest's media is pushed to.
func GuestVideoInput(guestID string) string { return "guest/" + guestID + "/video" }

func GuestAudioInput(guestID string) string { return "guest/" + guestID + "/audio" }

// Inputs is the registry of named capture inputs. Video inputs keep only the latest frame;
// audio inputs keep a short FIFO of blocks and drop the oldest when full.
type Inputs struct {
	mu         sync.RWMutex
	video      map[string]image.Image
	audio      map[string][]AudioBlock
	audioDepth int
}

func NewInputs() *Inputs {
	return &Inputs{
		video:      make(map[string]image.Image),
		audio:      make(map[string][]AudioBlock),
		audioDepth: defaultAudioDepth,
	}
}

func (in *Inputs) PushFrame(name string, img image.Image) {
	in.mu.Lock()
	in.video[name] = img
	in.mu.Unlock()
}

// PushAudio appends a block and reports whether an older block had to be dropped.
func (in *Inputs) PushAudio(name string, block AudioBlock) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	q := append(in.audio[name], block)
	dropped := false
	if len(q) > in.audioDepth {
		q = q[len(q)-in.audioDepth:]
		dropped = true
	}
	in.audio[name] = q

	return dropped
}

// TryGetFrame returns the latest frame for name without consuming it.
func (in *Inputs) TryGetFrame(name string) (image.Image, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()

	img, ok := in.video[name]
	return img, ok && img != nil
}

// TryGetAudioBlock pops the oldest pending block for name.
func (in *Inputs) TryGetAudioBlock(name string) (AudioBlock, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	q := in.audio[name]
	if len(q) == 0 {
		return AudioBlock{}, false
	}
	block := q[0]
	in.audio[name] = q[1:]

	return block, true
}

func (in *Inputs) Remove(name string) {
	in.mu.Lock()
	delete(in.video, name)
	delete(in.audio, name)
	in.mu.Unlock()
}

// Names lists every input that currently holds data.
func (in *Inputs) Names() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()

	seen := make(map[string]struct{}, len(in.video)+len(in.audio))
	names := make([]string, 0, len(in.video)+len(in.audio))
	for n := range in.video {
		seen[n] = struct{}{}
		names = append(names, n)
	}
	for n, q := range in.audio {
		if _, ok := seen[n]; ok || len(q) == 0 {
			continue
		}
		names = append(names, n)
	}

	return names
}
