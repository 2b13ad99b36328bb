package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/route-matching/internal/observability"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsWriteWait  = 10 * time.Second
	wsMaxMessage = maxBodyBytes
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsRequest is one search on a live session. ID is echoed back so clients can
// pair replies with requests.
type wsRequest struct {
	ID    string          `json:"id,omitempty"`
	Op    string          `json:"op"`
	Query json.RawMessage `json:"query"`
}

type wsReply struct {
	ID    string `json:"id,omitempty"`
	Op    string `json:"op"`
	Data  any    `json:"data,omitempty"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleWSSearch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	session := uuid.NewString()
	observability.WSSessions.Inc()
	defer observability.WSSessions.Dec()
	s.logger.Info("ws session opened", "session_id", session, "remote_addr", remoteIP(r))

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("ws read failed", "session_id", session, "error", err)
			}
			s.logger.Info("ws session closed", "session_id", session)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		reply := s.wsSearch(r, msg)
		b, err := json.Marshal(reply)
		if err != nil {
			s.logger.Error("ws encode reply failed", "session_id", session, "op", reply.Op, "error", err)
			b, _ = json.Marshal(wsReply{ID: reply.ID, Op: reply.Op, Error: "internal error"})
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			s.logger.Warn("ws write failed", "session_id", session, "error", err)
			return
		}
	}
}

func (s *Server) wsSearch(r *http.Request, msg []byte) wsReply {
	var req wsRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return wsReply{Error: "invalid message: " + err.Error()}
	}
	reply := wsReply{ID: req.ID, Op: req.Op}
	res, n, err := s.search(r.Context(), req.Op, req.Query)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			s.logger.Error("ws search failed", "op", req.Op, "error", err)
			reply.Error = "internal error"
		} else {
			reply.Error = err.Error()
		}
		return reply
	}
	reply.Data, reply.Count = res, n
	return reply
}
