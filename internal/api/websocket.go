package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/enem-redacao/essay-form/internal/form"
	"github.com/enem-redacao/essay-form/internal/models"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// WebSocket message types for the status stream
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeStatus    = "status"
	MsgTypeClosed    = "closed"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WSMessage is the envelope for every frame on the status stream
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WSErrorPayload describes a protocol error
type WSErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler streams form status transitions to the browser
type WebSocketHandler struct {
	formBinder
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new status stream handler
func NewWebSocketHandler(deps *Dependencies) StatusStreamHandler {
	return &WebSocketHandler{
		formBinder: newFormBinder(deps.Sessions, deps.Store, deps.CookieName, deps.SessionTTL),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
		},
	}
}

// HandleStatusStream upgrades the connection and forwards status events of
// the caller's form until either side goes away or the form is unmounted.
func (wsh *WebSocketHandler) HandleStatusStream(c echo.Context) error {
	id, f, ok := wsh.existing(c)
	if !ok {
		return NewNotFoundError("form", wsh.sessionID(c))
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	events, unsubscribe := f.Subscribe()
	defer unsubscribe()

	log.Debug().Str("form", f.ID()).Msg("status stream connected")

	pongs := make(chan struct{}, 1)
	readDone := make(chan struct{})
	go wsh.readLoop(ws, pongs, readDone)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	if err := wsh.send(ws, MsgTypeConnected, nil); err != nil {
		return nil
	}
	if err := wsh.send(ws, MsgTypeStatus, snapshot(f)); err != nil {
		return nil
	}

	for {
		select {
		case ev, open := <-events:
			if !open {
				wsh.send(ws, MsgTypeClosed, nil)
				ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "form closed"),
					time.Now().Add(wsWriteWait))
				return nil
			}
			if err := wsh.send(ws, MsgTypeStatus, ev); err != nil {
				return nil
			}
		case <-pongs:
			// An open page keeps its session from idling out.
			wsh.sessions.Touch(id)
			if err := wsh.send(ws, MsgTypePong, nil); err != nil {
				return nil
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-readDone:
			log.Debug().Str("form", f.ID()).Msg("status stream disconnected")
			return nil
		}
	}
}

// readLoop consumes client frames. Gorilla requires a reader to process
// control frames; application pings are answered through pongs.
func (wsh *WebSocketHandler) readLoop(ws *websocket.Conn, pongs chan<- struct{}, done chan<- struct{}) {
	defer close(done)

	ws.SetReadLimit(4 * 1024)
	ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("status stream read error")
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(wsPongWait))
		if msg.Type == MsgTypePing {
			select {
			case pongs <- struct{}{}:
			default:
			}
		}
	}
}

func (wsh *WebSocketHandler) send(ws *websocket.Conn, msgType string, payload interface{}) error {
	msg := WSMessage{Type: msgType, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		msg.Payload = data
	}

	ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := ws.WriteJSON(msg); err != nil {
		log.Debug().Err(err).Str("type", msgType).Msg("status stream write failed")
		return err
	}
	return nil
}

// snapshot reports the form's current state as a status event so a client
// that connects mid-request starts in sync.
func snapshot(f *form.SubmissionForm) models.StatusEvent {
	v := f.View()
	return models.StatusEvent{
		SessionID: v.SessionID,
		Status:    v.Status,
		Error:     v.ErrorMessage,
		Timestamp: time.Now().UnixMilli(),
	}
}
