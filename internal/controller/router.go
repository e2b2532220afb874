package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sharetube/studio/internal/metrics"
	"github.com/sharetube/studio/internal/service/guest"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	if c.metrics != nil {
		r.Use(metrics.RequestMiddleware(c.metrics))
	}
	r.Use(c.requestIdMw)
	r.Use(c.requestLoggingMw)
	r.Use(cors.AllowAll().Handler)

	if c.metrics != nil {
		r.Method(http.MethodGet, "/metrics", c.metrics.Handler(c.studioService.UpdateGauges))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		r.Post("/auth/host", c.authHost)
		r.Post("/guest/join", c.joinGuest)

		r.Group(func(r chi.Router) {
			r.Use(c.authMw)

			r.Get("/status", c.getStatus)
			r.Get("/scenes", c.listScenes)
			r.Get("/scenes/presets", c.listPresetScenes)
			r.Get("/guests", c.listGuests)
			r.Get("/ws/events", c.events)

			// self-service
			r.Post("/guest/leave", c.leaveGuest)
			r.Post("/guest/media", c.setGuestMedia)
			r.Post("/guest/hand", c.setGuestHand)
			r.Post("/guest/devices", c.setGuestDevices)
			r.Post("/inputs/{name}/frame", c.pushFrame)
			r.Post("/inputs/{name}/audio", c.pushAudio)

			r.Group(func(r chi.Router) {
				r.Use(c.requireRoleMw(guest.RoleModerator, guest.RoleHost))

				r.Post("/scene/switch", c.switchScene)
				r.Post("/scene/upsert", c.upsertScene)
				r.Post("/scene/duplicate", c.duplicateScene)
				r.Post("/guest/invite", c.inviteGuest)
				r.Post("/guest/kick", c.kickGuest)
				r.Post("/guest/pin", c.pinGuest)
				r.Post("/guest/mute", c.muteGuest)
				r.Post("/guest/stop-camera", c.stopGuestCamera)
				r.Post("/guest/admit", c.admitGuest)
				r.Post("/guest/role", c.setGuestRole)
				r.Post("/guest/controls", c.setControls)
				r.Get("/history", c.getHistory)
				r.Get("/events/recent", c.getRecentEvents)
			})

			r.Group(func(r chi.Router) {
				r.Use(c.requireRoleMw(guest.RoleHost))

				r.Post("/session/start", c.startSession)
				r.Post("/session/stop", c.stopSession)
				r.Post("/platform/start", c.startPlatform)
				r.Post("/platform/stop", c.stopPlatform)
				r.Post("/quality", c.changeQuality)
			})
		})
	})

	return r
}
