package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/medinote/backend/internal/realtime"
	"github.com/medinote/backend/internal/utils"
	"github.com/sirupsen/logrus"
)

type WSHandler struct {
	hub      *realtime.Hub
	coord    *realtime.Coordinator
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *realtime.Hub, coord *realtime.Coordinator, log *logrus.Logger) *WSHandler {
	return &WSHandler{
		hub:   hub,
		coord: coord,
		log:   log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

type wsClientMsg struct {
	Type        string `json:"type"` // start_realtime|audio_chunk|stop_realtime|watch_session|unwatch_session
	SessionID   string `json:"session_id"`
	Seq         int64  `json:"seq"`
	AudioBase64 string `json:"audio_base64"`
}

type wsAck struct {
	Type            string `json:"type"`
	SessionID       string `json:"session_id,omitempty"`
	TranscriptionID string `json:"transcription_id,omitempty"`
	Text            string `json:"text,omitempty"`
}

type wsError struct {
	Type    string     `json:"type"`
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

// Realtime serves one websocket connection. Messages are read one at a
// time, so a connection's operations reach the coordinator strictly in
// order; the deferred disconnect hook finalizes whatever session is still
// live when the read loop exits for any reason.
func (h *WSHandler) Realtime(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	role := callerRole(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	h.hub.Register(connID, conn)
	defer func() {
		h.coord.HandleDisconnect(connID)
		h.hub.Unregister(connID)
	}()

	log := h.log.WithFields(logrus.Fields{
		"connection_id": connID,
		"user_id":       userID,
	})
	log.Debug("realtime connection opened")

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ctx := c.Request.Context()
	for {
		_, data, rerr := conn.ReadMessage()
		if rerr != nil {
			log.WithError(rerr).Debug("realtime connection closed")
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var msg wsClientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(connID, utils.E(utils.CodeInvalidArgument, "WSHandler", "invalid json", err))
			continue
		}

		switch msg.Type {
		case "start_realtime":
			if err := h.coord.StartRealtime(ctx, connID, userID, role, msg.SessionID); err != nil {
				h.sendError(connID, err)
				continue
			}
			h.send(connID, wsAck{Type: "started", SessionID: msg.SessionID})

		case "audio_chunk":
			audio, err := decodeAudio(msg.AudioBase64)
			if err != nil {
				h.sendError(connID, utils.E(utils.CodeInvalidArgument, "WSHandler", "invalid audio_base64", err))
				continue
			}
			if err := h.coord.UploadChunk(ctx, connID, msg.SessionID, audio); err != nil {
				h.sendError(connID, err)
			}
			// no per-chunk ack; errors only

		case "stop_realtime":
			t, err := h.coord.StopRealtime(ctx, connID, userID, role, msg.SessionID)
			if err != nil {
				h.sendError(connID, err)
				continue
			}
			ack := wsAck{Type: "stopped", SessionID: msg.SessionID}
			if t != nil {
				ack.TranscriptionID = t.ID
				ack.Text = t.Text
			}
			h.send(connID, ack)

		case "watch_session":
			if err := h.coord.WatchSession(ctx, connID, userID, role, msg.SessionID); err != nil {
				h.sendError(connID, err)
				continue
			}
			h.send(connID, wsAck{Type: "watching", SessionID: msg.SessionID})

		case "unwatch_session":
			h.coord.UnwatchSession(connID, msg.SessionID)
			h.send(connID, wsAck{Type: "unwatched", SessionID: msg.SessionID})

		default:
			h.sendError(connID, utils.E(utils.CodeInvalidArgument, "WSHandler", "unknown message type", nil))
		}
	}
}

func (h *WSHandler) send(connID string, v any) {
	payload, _ := json.Marshal(v)
	if err := h.hub.SendToConn(connID, payload); err != nil {
		h.log.WithError(err).WithField("connection_id", connID).Debug("ws write failed")
	}
}

func (h *WSHandler) sendError(connID string, err error) {
	out := wsError{Type: "error", Code: utils.CodeInternal, Message: "internal error"}
	var ae *utils.AppError
	if errors.As(err, &ae) {
		out.Code = ae.Code
		out.Message = ae.Message
	}
	payload, _ := json.Marshal(out)
	_ = h.hub.SendToConn(connID, payload)
}

// decodeAudio accepts plain base64 or a data URL.
func decodeAudio(b64 string) ([]byte, error) {
	if i := strings.Index(b64, ","); i >= 0 {
		b64 = b64[i+1:] // strip data:...;base64,
	}
	return base64.StdEncoding.DecodeString(b64)
}
