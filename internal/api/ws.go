package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/focusroom/internal/middleware"
	"github.com/lalith-99/focusroom/internal/models"
	"github.com/lalith-99/focusroom/internal/room"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Ping period; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size. Chat messages are capped well below
	// this anyway.
	maxMessageSize = 2048
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientFrame is what the browser sends over the room socket.
type clientFrame struct {
	Type   string      `json:"type"`             // "timer" | "chat"
	Action string      `json:"action,omitempty"` // "toggle" | "switch_mode"
	Mode   models.Mode `json:"mode,omitempty"`
	Text   string      `json:"text,omitempty"`
}

// Stream handles GET /v1/rooms/:id/ws — the live event feed for a
// joined room. Server frames are room.Event values: the full room
// document on every change, local timer transitions, chat snapshots,
// and countdown-finished signals.
//
// Closing the socket does NOT leave the room: membership has no
// liveness tied to the connection, so a dropped tab stays listed until
// an explicit leave.
func (h *RoomHandler) Stream(c *gin.Context) {
	acct := middleware.GetAccount(c)
	if acct == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	sess := h.sessions.Get(acct.UID)
	if sess == nil || sess.RoomID() != c.Param("id") {
		c.JSON(http.StatusNotFound, gin.H{"error": "not in this room"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	done := make(chan struct{})
	go h.writePump(conn, sess, done)
	h.readPump(c.Request.Context(), conn, sess)
	close(done)
	conn.Close()
}

// readPump applies inbound frames to the session until the peer goes
// away. It runs on the handler goroutine.
func (h *RoomHandler) readPump(ctx context.Context, conn *websocket.Conn, sess *room.Session) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.logger.Debug("malformed client frame ignored", zap.Error(err))
			continue
		}
		switch {
		case frame.Type == "timer" && frame.Action == "toggle":
			sess.Timer().Toggle(ctx)
		case frame.Type == "timer" && frame.Action == "switch_mode":
			sess.Timer().SwitchMode(ctx, frame.Mode)
		case frame.Type == "chat":
			if _, err := sess.Chat().SendMessage(ctx, frame.Text); err != nil {
				h.logger.Debug("chat send rejected", zap.Error(err))
			}
		}
	}
}

// writePump pushes the initial snapshot, then session events, plus
// keepalive pings.
func (h *RoomHandler) writePump(conn *websocket.Conn, sess *room.Session, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	current := sess.Room()
	state := sess.Timer().State()
	initial := []room.Event{
		{Type: room.EventRoom, Room: &current},
		{Type: room.EventTimer, Timer: &state},
		{Type: room.EventChat, Messages: sess.Chat().Messages()},
	}
	for _, ev := range initial {
		if err := h.writeEvent(conn, ev); err != nil {
			return
		}
	}

	for {
		select {
		case <-done:
			return
		case ev := <-sess.Events():
			if err := h.writeEvent(conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *RoomHandler) writeEvent(conn *websocket.Conn, ev room.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}
