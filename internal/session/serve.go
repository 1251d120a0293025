package session

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dispatchcore/internal/collab"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades an authenticated HTTP request to a websocket session
// and runs it until the client disconnects, adapting the teacher's
// single-room ServeRide into the multi-room plane this spec needs.
func (p *Plane) ServeWS(w http.ResponseWriter, r *http.Request, auth collab.AuthProvider) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
			token = h[7:]
		}
	}
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	userID, userType, role, _, err := auth.Verify(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if p.log != nil {
			p.log.Warn("ws upgrade failed", zap.Error(err))
		}
		return
	}

	c := NewConn(ws, userID, role, userType)
	p.Connect(r.Context(), c)

	go p.writePump(c)
	p.readPump(c)
}

func (p *Plane) readPump(c *Conn) {
	defer func() {
		outcome := p.Disconnect(context.Background(), c)
		if p.log != nil {
			p.log.Info("session disconnected",
				zap.String("userId", c.UserID),
				zap.Bool("forceOnline", outcome.ForceOnline),
				zap.Bool("touchOnly", outcome.TouchOnly))
		}
	}()

	c.ws.SetReadLimit(maxMessage)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		reply := p.HandleInbound(context.Background(), c, frame)
		out, err := json.Marshal(reply)
		if err != nil {
			continue
		}
		select {
		case c.send <- out:
		default:
		}
	}
}

func (p *Plane) writePump(c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
