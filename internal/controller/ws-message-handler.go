package controller

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

type EmptyInput struct{}

func (c controller) handleAlive(ctx context.Context, conn *websocket.Conn, _ EmptyInput) error {
	c.extendReadDeadline(conn)
	c.studioService.Touch(c.getActorFromCtx(ctx).GuestID)
	return nil
}

func (c controller) handleRaiseHand(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	return c.setHand(ctx, true)
}

func (c controller) handleLowerHand(ctx context.Context, _ *websocket.Conn, _ EmptyInput) error {
	return c.setHand(ctx, false)
}

func (c controller) setHand(ctx context.Context, raised bool) error {
	actorID := c.getActorFromCtx(ctx).GuestID
	if _, err := c.studioService.SetHand(ctx, actorID, actorID, raised); err != nil {
		return fmt.Errorf("failed to set hand: %w", err)
	}
	return nil
}

type SetMediaInput struct {
	Camera *string `json:"camera"`
	Mic    *string `json:"mic"`
}

func (c controller) handleSetMedia(ctx context.Context, _ *websocket.Conn, input SetMediaInput) error {
	actorID := c.getActorFromCtx(ctx).GuestID

	params, err := mediaParams(actorID, input.Camera, input.Mic)
	if err != nil {
		return err
	}
	if _, err := c.studioService.SetMedia(ctx, actorID, params); err != nil {
		return fmt.Errorf("failed to set media: %w", err)
	}
	return nil
}
