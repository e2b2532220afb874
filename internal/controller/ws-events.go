package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// events upgrades to the event channel. The actor receives every bus event published from
// now on and may send the commands registered in getWSRouter.
func (c controller) events(w http.ResponseWriter, r *http.Request) {
	actor := c.getActorFromCtx(r.Context())

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to upgrade connection", "error", err)
		return
	}

	sub := c.studioService.Bus().Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbox := make(chan Output, outboxSize)
	ctx = context.WithValue(ctx, outboxCtxKey, chan<- Output(outbox))

	c.extendReadDeadline(conn)
	conn.SetPongHandler(func(string) error {
		c.extendReadDeadline(conn)
		return nil
	})

	c.logger.InfoContext(ctx, "event subscriber connected", "role", actor.Role)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeEvents(ctx, conn, actor, sub, outbox)
	}()

	if err := c.wsmux.ServeConn(ctx, conn); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.logger.InfoContext(ctx, "event socket closed", "error", err)
		}
	}
	cancel()
	<-done

	c.logger.InfoContext(ctx, "event subscriber disconnected")
}

func (c controller) extendReadDeadline(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(2 * c.pingInterval))
}
