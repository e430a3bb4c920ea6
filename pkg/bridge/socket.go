package bridge

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// SocketHandler terminates the per-call media frame channel. The phone
// network opens one websocket per call: a start message names the call,
// media messages carry μ-law frames, stop or a closed socket ends it.
type SocketHandler struct {
	mgr      *Manager
	upgrader websocket.Upgrader
}

func NewSocketHandler(mgr *Manager) *SocketHandler {
	return &SocketHandler{
		mgr: mgr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *SocketHandler) HandleMediaStream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	session, err := h.accept(conn)
	if err != nil {
		log.Warnf("media channel rejected | error: %v", err)
		conn.Close()
		return nil
	}

	h.readLoop(conn, session)
	return nil
}

// accept waits for the start message and binds the socket to its session.
func (h *SocketHandler) accept(conn *websocket.Conn) (*Session, error) {
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		return nil, err
	}
	if msg.Event != EventStart || msg.Start == nil {
		return nil, ErrUnknownCall
	}

	session, err := h.mgr.byCall(msg.Start.CallRef)
	if err != nil {
		return nil, err
	}

	session.lock.Lock()
	session.conn = conn
	session.lock.Unlock()
	log.Infof("media channel open | callRef: %s, participant: %s", session.CallRef, session.ParticipantID)
	return session, nil
}

// readLoop pumps inbound frames until the phone hangs up. A read error
// is a hard phone disconnect: the session tears down and the state
// machine drives the participant to completed.
func (h *SocketHandler) readLoop(conn *websocket.Conn, session *Session) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			session.shutdown(true)
			return
		}

		var msg Message
		if err = json.Unmarshal(payload, &msg); err != nil {
			log.Debugf("bad media message | participant: %s, error: %v", session.ParticipantID, err)
			continue
		}

		switch msg.Event {
		case EventMedia:
			if msg.Media == nil {
				continue
			}
			frame, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil || len(frame) == 0 {
				continue
			}
			session.handleMedia(frame)
		case EventStop:
			session.shutdown(true)
			return
		}
	}
}
