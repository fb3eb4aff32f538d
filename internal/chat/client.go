package chat

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"jobmarket/internal/policy"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"jobmarket/db"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth is the query-string token; the socket is not cookie-bound.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscriber is one websocket connection to a room.
type subscriber struct {
	id   uuid.UUID
	user *db.User
	room *room
	conn *websocket.Conn
	send chan []byte
}

// ServeWS upgrades GET /ws/chat/{jobId}?token=... into a room
// subscription. Authentication and authorization happen before the
// upgrade: a denied caller sees a rejected handshake and may retry
// after the job's state changes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.Atoi(chi.URLParam(r, "jobId"))
	if err != nil || jobID <= 0 {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	user, err := h.store.GetUserByToken(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if !policy.CanMessage(user, job) {
		http.Error(w, "not authorized for this conversation", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "err", err)
		return
	}

	sub := &subscriber{
		id:   uuid.New(),
		user: user,
		room: h.room(jobID),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	sub.room.register <- sub

	go sub.writePump()
	sub.readPump(h.log)
}

// readPump relays inbound frames to the room until the connection
// drops. Empty bodies are rejected here, before they reach the room.
func (s *subscriber) readPump(log *slog.Logger) {
	defer func() {
		s.room.unregister <- s
		s.conn.Close()
	}()
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", "conn", s.id, "err", err)
			}
			return
		}

		var in inboundFrame
		if err := json.Unmarshal(data, &in); err != nil {
			log.Warn("invalid inbound frame", "conn", s.id, "err", err)
			continue
		}
		if strings.TrimSpace(in.Message) == "" {
			publishRejectsTotal.Inc()
			continue
		}

		req := publishReq{sender: s.user, body: in.Message, reply: make(chan publishResult, 1)}
		s.room.publish <- req
		if res := <-req.reply; res.err != nil {
			log.Warn("publish rejected", "conn", s.id, "err", res.err)
		}
	}
}

// writePump drains the send channel onto the wire and keeps the
// connection alive with pings. A closed send channel (room shutdown or
// slow-subscriber drop) closes the socket; the client reconnects.
func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
