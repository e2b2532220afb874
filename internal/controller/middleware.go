package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sharetube/studio/internal/service/guest"
	"github.com/sharetube/studio/internal/service/studio"
	"github.com/sharetube/studio/pkg/ctxlogger"
	"github.com/sharetube/studio/pkg/rest"
)

func (c controller) requestIdMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = ctxlogger.AppendCtx(ctx, slog.String("request_id", c.generateTimeBasedId()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLoggingMw logs every request once it is served. Headers are left out since they
// carry actor tokens.
func (c controller) requestLoggingMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		c.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"url", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// authMw resolves the actor token and stores the actor in the request context.
func (c controller) authMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := c.getToken(r)
		if token == "" {
			rest.WriteError(w, http.StatusUnauthorized, rest.ErrorBody{
				Code:    "unauthenticated",
				Message: tokenHeader + " was not provided",
			})
			return
		}

		actor, err := c.studioService.Authenticate(r.Context(), token)
		if err != nil {
			c.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), actorCtxKey, actor)
		ctx = ctxlogger.AppendCtx(ctx, slog.String("actor_id", actor.GuestID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRoleMw rejects actors whose role is not allowed before the handler runs.
func (c controller) requireRoleMw(allowed ...guest.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := c.getActorFromCtx(r.Context())
			for _, role := range allowed {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			c.writeError(w, r, studio.ErrNotAuthorized)
		})
	}
}
