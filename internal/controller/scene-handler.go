package controller

import (
	"net/http"

	"github.com/sharetube/studio/internal/scene"
	"github.com/sharetube/studio/internal/service/studio"
	"github.com/sharetube/studio/pkg/rest"
)

type switchSceneRequest struct {
	SceneID string `json:"scene_id" validate:"required"`
}

func (c controller) switchScene(w http.ResponseWriter, r *http.Request) {
	var req switchSceneRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	resp, err := c.studioService.SwitchScene(r.Context(), c.getActorFromCtx(r.Context()).GuestID, req.SceneID)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, resp)
}

// The scene document is validated by the scene model itself.
func (c controller) upsertScene(w http.ResponseWriter, r *http.Request) {
	var doc scene.Document
	if !c.readRequest(w, r, &doc) {
		return
	}

	sc, err := c.studioService.UpsertScene(r.Context(), c.getActorFromCtx(r.Context()).GuestID, doc)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, sc)
}

type duplicateSceneRequest struct {
	SourceID string `json:"source_id" validate:"required"`
	ID       string `json:"id" validate:"max=64"`
	Name     string `json:"name" validate:"max=128"`
}

func (c controller) duplicateScene(w http.ResponseWriter, r *http.Request) {
	var req duplicateSceneRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	sc, err := c.studioService.DuplicateScene(r.Context(), &studio.DuplicateSceneParams{
		ActorID:  c.getActorFromCtx(r.Context()).GuestID,
		SourceID: req.SourceID,
		ID:       req.ID,
		Name:     req.Name,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusCreated, sc)
}

func (c controller) listScenes(w http.ResponseWriter, r *http.Request) {
	scenes, err := c.studioService.ListScenes(r.Context())
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, scenes)
}

func (c controller) listPresetScenes(w http.ResponseWriter, r *http.Request) {
	rest.WriteData(w, http.StatusOK, c.studioService.PresetScenes())
}
