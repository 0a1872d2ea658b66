package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"proctorhub/internal/auth"
	pkgerrors "proctorhub/pkg/errors"
	"proctorhub/pkg/utils/logger"
	"proctorhub/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Session types accepted on the websocket endpoint.
const (
	SessionExam    = "exam"
	SessionTeacher = "teacher"
	SessionAdmin   = "admin"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second

	maxInboundMessageSize = 256 * 1024
)

// ExamResolver maps an attempt onto its exam so a student drop can be fanned
// out to the right proctor feed.
type ExamResolver interface {
	ExamIDFor(attemptID string) (string, bool)
}

// WSController upgrades HTTP requests to websocket sessions and bridges them
// onto the hub.
type WSController struct {
	hub    *Hub
	router *Router
	tokens *auth.TokenService
	exams  ExamResolver

	upgrader websocket.Upgrader
}

// NewWSController creates the websocket controller. exams may be nil when no
// attempt registry is wired.
func NewWSController(hub *Hub, router *Router, tokens *auth.TokenService, exams ExamResolver) *WSController {
	return &WSController{
		hub:    hub,
		router: router,
		tokens: tokens,
		exams:  exams,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin enforcement happens at the gateway.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes mounts the websocket endpoint on the given router group.
func (wc *WSController) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws/:sessionType/:sessionID", wc.Serve)
}

// Serve authenticates the request, resolves the target channel and runs the
// session until either side disconnects.
func (wc *WSController) Serve(c *gin.Context) {
	sessionType := c.Param("sessionType")
	sessionID := c.Param("sessionID")

	// Browsers cannot set headers on websocket dials, so the token rides
	// the query string.
	user, err := wc.tokens.Authenticate(c.Query("token"))
	if err != nil {
		response.AbortWithError(c, err)
		return
	}

	channel, err := channelFor(sessionType, sessionID, user)
	if err != nil {
		response.AbortWithError(c, err)
		return
	}

	conn, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		response.AbortWithError(c, pkgerrors.Wrap(err, pkgerrors.UpgradeFailed))
		return
	}

	observerID := user.ID + ":" + sessionID
	obs := wc.hub.Join(channel, observerID)
	logger.Info(c.Request.Context(), "observer joined",
		zap.String("channel", channel),
		zap.String("observer_id", observerID),
		zap.String("role", user.Role))

	go wc.writeLoop(conn, obs)
	wc.readLoop(conn, obs, sessionID, sessionType)
}

// channelFor maps a session type to its hub channel, enforcing role access.
func channelFor(sessionType, sessionID string, user auth.UserInfo) (string, error) {
	switch sessionType {
	case SessionExam:
		return ExamChannel(sessionID), nil
	case SessionTeacher:
		if !auth.HasRole(user.Role, []string{auth.RoleTeacher, auth.RoleAdmin}) {
			return "", pkgerrors.New(pkgerrors.RoleNotAllowed)
		}
		return TeacherFeedChannel(sessionID), nil
	case SessionAdmin:
		if !auth.HasRole(user.Role, []string{auth.RoleAdmin}) {
			return "", pkgerrors.New(pkgerrors.RoleNotAllowed)
		}
		return AdminChannel, nil
	default:
		return "", pkgerrors.New(pkgerrors.SessionTypeInvalid).
			WithMessage("unknown session type: " + sessionType)
	}
}

// readLoop consumes inbound frames and routes them until the connection
// drops, then detaches the observer.
func (wc *WSController) readLoop(conn *websocket.Conn, obs *Observer, sessionID, sessionType string) {
	defer func() {
		wc.hub.Leave(obs)
		_ = conn.Close()
		if sessionType == SessionExam {
			wc.notifyDisconnect(sessionID)
		}
	}()

	conn.SetReadLimit(maxInboundMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn(context.Background(), "observer read failed",
					zap.String("observer_id", obs.ID),
					zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		// Exam sessions speak on behalf of one attempt; pin the IDs so a
		// client cannot route into another session's channel.
		if sessionType == SessionExam {
			msg.AttemptID = sessionID
		}
		wc.router.Route(obs, &msg)
	}
}

// notifyDisconnect tells the proctor feed that a student session dropped, so
// an unexplained absence is visible before the heartbeat gap fires.
func (wc *WSController) notifyDisconnect(attemptID string) {
	if wc.exams == nil {
		return
	}
	examID, ok := wc.exams.ExamIDFor(attemptID)
	if !ok {
		return
	}
	wc.router.Route(nil, &Message{
		Type:      TypeDisconnect,
		AttemptID: attemptID,
		ExamID:    examID,
	})
}

// writeLoop drains the observer's outbox onto the wire and keeps the
// connection alive with pings.
func (wc *WSController) writeLoop(conn *websocket.Conn, obs *Observer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-obs.Outbox():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
