package events

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
)

// Handler returns the WebSocket endpoint for the installation controller.
// Only one subscriber is served at a time; a new connection replaces the
// previous one, which is closed with a normal-closure frame.
func (o *Orchestrator) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			o.logger.Warn("accepting controller connection", "err", err)
			return
		}
		o.attach(conn)
		o.logger.Info("controller connected", "remote", r.RemoteAddr)

		o.readLoop(r.Context(), conn)

		o.detach(conn)
		conn.CloseNow()
		o.logger.Info("controller disconnected", "remote", r.RemoteAddr)
	})
}

// attach swaps the subscriber: the previous connection, if any, is closed
// in favor of the new one.
func (o *Orchestrator) attach(conn *websocket.Conn) {
	o.clientMu.Lock()
	prev := o.client
	o.client = conn
	o.clientMu.Unlock()
	if prev != nil {
		prev.Close(websocket.StatusNormalClosure, "New client connected")
	}
}

// detach clears the subscriber slot if conn still owns it.
func (o *Orchestrator) detach(conn *websocket.Conn) {
	o.clientMu.Lock()
	if o.client == conn {
		o.client = nil
	}
	o.clientMu.Unlock()
}

// readLoop services inbound frames until the connection drops. The only
// recognized message is the hello greeting, answered with hello.ack; anything
// else is ignored.
func (o *Orchestrator) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg HelloMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "hello" {
			continue
		}
		ack, err := json.Marshal(NewHelloAck())
		if err != nil {
			continue
		}
		writeCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err = conn.Write(writeCtx, websocket.MessageText, ack)
		cancel()
		if err != nil {
			return
		}
	}
}
