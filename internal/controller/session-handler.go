package controller

import (
	"net/http"

	"github.com/sharetube/studio/internal/service/broadcast"
	"github.com/sharetube/studio/internal/service/studio"
	"github.com/sharetube/studio/pkg/rest"
)

type authHostRequest struct {
	Secret string `json:"secret" validate:"required"`
}

func (c controller) authHost(w http.ResponseWriter, r *http.Request) {
	var req authHostRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	resp, err := c.studioService.AuthHost(r.Context(), req.Secret)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, resp)
}

type platformOptions struct {
	AutoRestart *bool  `json:"auto_restart"`
	Bundle      string `json:"bundle" validate:"omitempty,oneof=default twitch-family youtube-family"`
}

// Ingest url and secret are checked by the supervisor so that they fail with
// invalid_url and missing_secret.
type platformRequest struct {
	Tag       string          `json:"tag" validate:"required,max=64"`
	IngestURL string          `json:"ingest_url"`
	Secret    string          `json:"secret"`
	Options   platformOptions `json:"options"`
}

func (p platformRequest) config() broadcast.PlatformConfig {
	autoRestart := true
	if p.Options.AutoRestart != nil {
		autoRestart = *p.Options.AutoRestart
	}
	return broadcast.PlatformConfig{
		Tag:         p.Tag,
		IngestURL:   p.IngestURL,
		Secret:      p.Secret,
		AutoRestart: autoRestart,
		Bundle:      p.Options.Bundle,
	}
}

type startSessionRequest struct {
	Title        string            `json:"title" validate:"max=256"`
	Platforms    []platformRequest `json:"platforms" validate:"max=16,dive"`
	Quality      string            `json:"quality"`
	InitialScene string            `json:"initial_scene"`
}

func (c controller) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	platforms := make([]broadcast.PlatformConfig, 0, len(req.Platforms))
	for _, p := range req.Platforms {
		platforms = append(platforms, p.config())
	}

	resp, err := c.studioService.StartSession(r.Context(), &studio.StartSessionParams{
		ActorID:      c.getActorFromCtx(r.Context()).GuestID,
		Title:        req.Title,
		Platforms:    platforms,
		Quality:      req.Quality,
		InitialScene: req.InitialScene,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, resp)
}

func (c controller) stopSession(w http.ResponseWriter, r *http.Request) {
	resp, err := c.studioService.StopSession(r.Context(), c.getActorFromCtx(r.Context()).GuestID)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, resp)
}

func (c controller) startPlatform(w http.ResponseWriter, r *http.Request) {
	var req platformRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	resp, err := c.studioService.StartPlatform(r.Context(), c.getActorFromCtx(r.Context()).GuestID, req.config())
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, resp)
}

type stopPlatformRequest struct {
	Tag string `json:"tag" validate:"required"`
}

func (c controller) stopPlatform(w http.ResponseWriter, r *http.Request) {
	var req stopPlatformRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	resp, err := c.studioService.StopPlatform(r.Context(), c.getActorFromCtx(r.Context()).GuestID, req.Tag)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, resp)
}

type changeQualityRequest struct {
	Preset string `json:"preset" validate:"required"`
}

func (c controller) changeQuality(w http.ResponseWriter, r *http.Request) {
	var req changeQualityRequest
	if !c.readRequest(w, r, &req) {
		return
	}

	resp, err := c.studioService.ChangeQuality(r.Context(), c.getActorFromCtx(r.Context()).GuestID, req.Preset)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, resp)
}

func (c controller) getStatus(w http.ResponseWriter, r *http.Request) {
	rest.WriteData(w, http.StatusOK, c.studioService.Status())
}

func (c controller) getHistory(w http.ResponseWriter, r *http.Request) {
	sessions, err := c.studioService.History(r.Context(), c.getIntQueryParam(r, "limit", 20))
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, sessions)
}

func (c controller) getRecentEvents(w http.ResponseWriter, r *http.Request) {
	evs, err := c.studioService.RecentEvents(r.Context(), c.getIntQueryParam(r, "n", 100))
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteData(w, http.StatusOK, evs)
}
