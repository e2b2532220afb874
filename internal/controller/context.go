package controller

import (
	"context"

	"github.com/sharetube/studio/internal/service/studio"
)

type contextKey int

const (
	actorCtxKey contextKey = iota
	outboxCtxKey
)

func (c controller) getActorFromCtx(ctx context.Context) studio.Actor {
	actor, ok := ctx.Value(actorCtxKey).(studio.Actor)
	if !ok {
		return studio.Actor{}
	}

	return actor
}

// getOutboxFromCtx returns the queue of the event socket's writer. Nil outside a socket.
func (c controller) getOutboxFromCtx(ctx context.Context) chan<- Output {
	outbox, _ := ctx.Value(outboxCtxKey).(chan<- Output)
	return outbox
}
