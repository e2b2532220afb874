package controller

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/studio/internal/events"
	"github.com/sharetube/studio/internal/service/studio"
)

const (
	closeKicked = 4001
	closeLagged = 4008

	writeWait  = 10 * time.Second
	outboxSize = 16
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// send queues out for the socket's writer. It drops out when the socket is gone.
func (c controller) send(ctx context.Context, out Output) {
	outbox := c.getOutboxFromCtx(ctx)
	if outbox == nil {
		return
	}
	select {
	case outbox <- out:
	case <-ctx.Done():
	}
}

// closeConn sends a close frame. The peer may already be gone, so errors are only
// logged.
func (c controller) closeConn(ctx context.Context, conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.logger.DebugContext(ctx, "failed to write close message", "error", err)
	}
}

func (c controller) writeOutput(conn *websocket.Conn, out Output) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(out)
}

// closeReason reports whether ev ends actor's socket and with which close code.
func closeReason(ev events.Event, actor studio.Actor) (int, string, bool) {
	if ev.Kind != events.GuestLeft {
		return 0, "", false
	}
	left, ok := ev.Payload.(studio.GuestLeft)
	if !ok || left.Guest.ID != actor.GuestID {
		return 0, "", false
	}
	if left.Kicked {
		return closeKicked, "kicked", true
	}
	return websocket.CloseNormalClosure, "left", true
}

// writeEvents is the socket's only writer. It forwards bus events and queued replies,
// pings the peer and closes the socket when the subscription ends.
func (c controller) writeEvents(ctx context.Context, conn *websocket.Conn, actor studio.Actor, sub *events.Subscription, outbox <-chan Output) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			c.closeConn(ctx, conn, websocket.CloseGoingAway, "")
			return
		case ev, ok := <-sub.Events():
			if !ok {
				if errors.Is(sub.Err(), events.ErrLagged) {
					c.logger.InfoContext(ctx, "event subscriber lagged")
					c.closeConn(ctx, conn, closeLagged, "lagged")
				} else {
					c.closeConn(ctx, conn, websocket.CloseGoingAway, "")
				}
				return
			}
			if err := c.writeOutput(conn, Output{Type: "EVENT", Payload: ev}); err != nil {
				c.logger.InfoContext(ctx, "failed to write event", "error", err)
				return
			}
			if code, reason, ok := closeReason(ev, actor); ok {
				c.closeConn(ctx, conn, code, reason)
				return
			}
		case out := <-outbox:
			if err := c.writeOutput(conn, out); err != nil {
				c.logger.InfoContext(ctx, "failed to write reply", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.InfoContext(ctx, "failed to ping", "error", err)
				return
			}
		}
	}
}
