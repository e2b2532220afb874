package controller

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/sharetube/studio/internal/fault"
	"github.com/sharetube/studio/pkg/wsrouter"
)

func (c controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()
	mux.Use(c.wsRequestIdWSMw(), c.loggerWSMw())
	mux.OnError(c.wsErrorHandler)

	wsrouter.Handle(mux, "ALIVE", c.handleAlive)
	wsrouter.Handle(mux, "RAISE_HAND", c.handleRaiseHand)
	wsrouter.Handle(mux, "LOWER_HAND", c.handleLowerHand)
	wsrouter.Handle(mux, "SET_MEDIA", c.handleSetMedia)

	return mux
}

type wsError struct {
	MessageType string `json:"message_type"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

// wsErrorHandler replies with an ERROR message through the socket's writer.
func (c controller) wsErrorHandler(ctx context.Context, _ *websocket.Conn, messageType string, err error) {
	out := wsError{MessageType: messageType, Code: string(fault.InvalidArgument), Message: err.Error()}
	if fe, ok := fault.As(err); ok {
		out.Code = string(fe.Code)
	}

	c.logger.InfoContext(ctx, "websocket message failed", "message_type", messageType, "error", err)
	c.send(ctx, Output{Type: "ERROR", Payload: out})
}
