// internal/handler/ws_handler.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"presence-service/internal/client"
	"presence-service/internal/domain"
	"presence-service/internal/middleware"
	"presence-service/internal/presence"
	"presence-service/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// reconnectCounter folds a session's connection-state events into the
// reconnect metric. The first connecting transition is the initial connect;
// every later one is a retry, whether the supervisor scheduled it or the
// client asked for a manual recovery.
type reconnectCounter struct {
	connects atomic.Int32
}

func (rc *reconnectCounter) observe(st presence.ConnectionState) bool {
	if st != presence.StateConnecting {
		return false
	}
	return rc.connects.Add(1) > 1
}

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WSMessage is the wire format in both directions. Inbound messages carry
// user input (activity, cursor, status changes); outbound ones carry session
// events back to the client.
type WSMessage struct {
	Type      string                 `json:"type"`
	Status    string                 `json:"status,omitempty"`
	ItemID    string                 `json:"itemId,omitempty"`
	UserID    string                 `json:"userId,omitempty"`
	X         float64                `json:"x,omitempty"`
	Y         float64                `json:"y,omitempty"`
	State     string                 `json:"state,omitempty"`
	Active    []domain.UserPresence  `json:"active,omitempty"`
	Presence  *domain.UserPresence   `json:"presence,omitempty"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

type WSHandler struct {
	logger          *zap.Logger
	userClient      client.UserClient
	presenceService *service.PresenceService
}

func NewWSHandler(
	logger *zap.Logger,
	userClient client.UserClient,
	presenceService *service.PresenceService,
) *WSHandler {
	return &WSHandler{
		logger:          logger,
		userClient:      userClient,
		presenceService: presenceService,
	}
}

// HandleWebSocket connects a client to a trip's presence channel. One
// connection owns one session; closing the connection tears the session down.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	tripIDStr := c.Param("tripId")
	tripID, err := uuid.Parse(tripIDStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip ID"})
		return
	}

	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	validationResp, err := h.userClient.ValidateToken(ctx, token)
	if err != nil || !validationResp.Valid {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	userID, err := uuid.Parse(validationResp.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	profile := presence.Profile{UserID: userID, Name: "Unknown"}
	userInfo, err := h.userClient.GetUserInfo(ctx, validationResp.UserID, token)
	if err != nil {
		h.logger.Warn("Failed to get user info", zap.Error(err))
	} else {
		profile.Name = userInfo.NickName
		profile.AvatarURL = userInfo.ProfileImageURL
		profile.Email = userInfo.Email
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	send := make(chan []byte, 256)
	done := make(chan struct{})
	reconnects := &reconnectCounter{}

	session, err := h.presenceService.StartSession(profile, tripID, func(ev presence.SessionEvent) {
		if ev.Kind == presence.KindState && reconnects.observe(ev.State) {
			middleware.RecordReconnectAttempt()
		}
		payload, ok := encodeSessionEvent(ev)
		if !ok {
			return
		}
		select {
		case send <- payload:
		default:
			// slow consumer; the next sync carries the full state anyway
		}
	})
	if err != nil {
		h.logger.Error("Failed to start presence session", zap.Error(err))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session rejected"))
		conn.Close()
		return
	}

	middleware.RecordWebSocketConnection()
	middleware.RecordSessionStarted()
	h.logger.Info("Presence WebSocket connected",
		zap.String("tripId", tripID.String()),
		zap.String("userId", userID.String()))

	go h.writePump(conn, send, done)
	h.readPump(conn, session, tripID, userID, done)
}

func encodeSessionEvent(ev presence.SessionEvent) ([]byte, bool) {
	msg := WSMessage{Timestamp: time.Now()}

	switch ev.Kind {
	case presence.KindSync:
		msg.Type = "PRESENCE_SYNC"
		msg.Active = ev.Active
	case presence.KindJoin:
		msg.Type = "PRESENCE_JOIN"
		msg.Presence = ev.Presence
	case presence.KindLeave:
		msg.Type = "PRESENCE_LEAVE"
		msg.UserID = ev.UserID.String()
	case presence.KindState:
		msg.Type = "CONNECTION_STATE"
		msg.State = string(ev.State)
	case presence.KindError:
		msg.Type = "PRESENCE_ERROR"
		msg.Payload = map[string]interface{}{"message": ev.Err.Error()}
		var perr *presence.PersistenceError
		if errors.As(ev.Err, &perr) {
			msg.Payload = map[string]interface{}{
				"code":    string(perr.Kind),
				"message": perr.Message,
			}
		}
	default:
		return nil, false
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, false
	}
	return payload, true
}

func (h *WSHandler) readPump(conn *websocket.Conn, session *presence.Session, tripID, userID uuid.UUID, done chan struct{}) {
	defer func() {
		h.presenceService.StopSession(tripID, userID, session)
		close(done)
		conn.Close()
		middleware.RecordWebSocketDisconnection()
		middleware.RecordSessionStopped()
		h.logger.Info("Presence WebSocket disconnected",
			zap.String("tripId", tripID.String()),
			zap.String("userId", userID.String()))
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		var wsMsg WSMessage
		if err := json.Unmarshal(message, &wsMsg); err != nil {
			h.logger.Warn("Failed to parse message", zap.Error(err))
			continue
		}

		h.handleMessage(session, &wsMsg)
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, send chan []byte, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

func (h *WSHandler) handleMessage(session *presence.Session, wsMsg *WSMessage) {
	switch wsMsg.Type {
	case "ACTIVITY":
		session.Activity()
	case "CURSOR":
		session.Cursor(wsMsg.X, wsMsg.Y)
	case "SET_STATUS":
		status := domain.PresenceStatus(wsMsg.Status)
		if !status.Valid() || status == domain.PresenceStatusEditing {
			h.logger.Warn("Invalid status", zap.String("status", wsMsg.Status))
			return
		}
		session.SetStatus(status)
		middleware.RecordPresenceUpdate(string(status))
	case "EDIT_START":
		itemID, err := uuid.Parse(wsMsg.ItemID)
		if err != nil {
			h.logger.Warn("Invalid item ID", zap.String("itemId", wsMsg.ItemID))
			return
		}
		session.StartEditing(itemID)
		middleware.RecordPresenceUpdate(string(domain.PresenceStatusEditing))
	case "EDIT_STOP":
		session.StopEditing()
		middleware.RecordPresenceUpdate(string(domain.PresenceStatusOnline))
	case "RECOVER":
		// the resulting connecting transition is counted by the session
		// event stream
		session.Recover()
	default:
		h.logger.Warn("Unknown message type", zap.String("type", wsMsg.Type))
	}
}
