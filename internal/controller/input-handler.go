package controller

import (
	"io"
	"net/http"
	"net/url"

	"github.com/disintegration/imaging"
	"github.com/go-chi/chi/v5"
	"github.com/sharetube/studio/internal/fault"
	"github.com/sharetube/studio/internal/media"
	"github.com/sharetube/studio/internal/service/studio"
	"github.com/sharetube/studio/pkg/rest"
)

const (
	maxFrameBytes = 8 << 20
	maxAudioBytes = 1 << 20
)

var errInvalidInput = fault.New(fault.InvalidArgument, "invalid input payload")

type pushInputResponse struct {
	Name    string `json:"name"`
	Dropped bool   `json:"dropped,omitempty"`
}

// inputName resolves the {name} path parameter. Guests may only feed their own inputs.
func (c controller) inputName(r *http.Request) (string, error) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || name == "" {
		return "", fault.WithMessage(errInvalidInput, "invalid input name")
	}

	actor := c.getActorFromCtx(r.Context())
	if actor.Role.CanModerate() {
		return name, nil
	}
	if name != media.GuestVideoInput(actor.GuestID) && name != media.GuestAudioInput(actor.GuestID) {
		return "", studio.ErrNotAuthorized
	}
	return name, nil
}

// pushFrame decodes an encoded image body (png, jpeg, gif, bmp or tiff) into the named
// input.
func (c controller) pushFrame(w http.ResponseWriter, r *http.Request) {
	name, err := c.inputName(r)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	img, err := imaging.Decode(http.MaxBytesReader(w, r.Body, maxFrameBytes))
	if err != nil {
		c.writeError(w, r, fault.Wrap(errInvalidInput, err))
		return
	}

	c.studioService.Inputs().PushFrame(name, img)
	rest.WriteData(w, http.StatusAccepted, pushInputResponse{Name: name})
}

// pushAudio takes one block of interleaved s16le PCM.
func (c controller) pushAudio(w http.ResponseWriter, r *http.Request) {
	name, err := c.inputName(r)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBytes))
	if err != nil {
		c.writeError(w, r, fault.Wrap(errInvalidInput, err))
		return
	}
	if len(body) < 2 {
		c.writeError(w, r, fault.WithMessage(errInvalidInput, "audio block is empty"))
		return
	}

	dropped := c.studioService.Inputs().PushAudio(name, media.AudioBlockFromBytes(body))
	rest.WriteData(w, http.StatusAccepted, pushInputResponse{Name: name, Dropped: dropped})
}
