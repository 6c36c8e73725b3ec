package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/uasprep/mockexam-backend/internal/middleware"
	"github.com/uasprep/mockexam-backend/internal/service"
	ws "github.com/uasprep/mockexam-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams the section countdown over a WebSocket so the client
// clock cannot drift from the server's.
type WSHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
	tickInterval   time.Duration
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
		tickInterval:   time.Second,
	}
}

// TimerStream godoc
// WS /ws/v1/exams/:exam_id/timer
// Pushes a tick every second with the authoritative remaining time. The
// stream ends after the expiry tick; submitting is the client's move.
func (h *WSHandler) TimerStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	userID := claims.UserID
	wsLog := h.log.With().
		Int("user_id", userID).
		Str("exam_id", examID.String()).
		Logger()
	wsLog.Info().Msg("Timer stream connected")

	// Writes come from this loop and from ping replies in the read loop.
	// gorilla/websocket allows one writer at a time, so funnel pings here.
	pings := make(chan struct{}, 1)
	go h.readLoop(conn, wsLog, pings)

	ticker := time.NewTicker(h.tickInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		status, err := h.sessionService.CheckTimeRemaining(ctx, userID, examID)
		if err != nil {
			ws.WriteError(conn, "no running section for this exam")
			return
		}

		tick := ws.TickResponse{
			Event:         ws.EventTick,
			SectionName:   status.SectionName,
			TimeRemaining: status.TimeRemaining,
			AutoSubmit:    status.AutoSubmit,
		}
		if err := ws.WriteTyped(conn, tick); err != nil {
			wsLog.Debug().Msg("Timer stream closed")
			return
		}

		if status.AutoSubmit {
			ws.WriteTyped(conn, ws.ExpiredResponse{Event: ws.EventExpired, SectionName: status.SectionName})
			wsLog.Info().Msg("Section expired, closing timer stream")
			return
		}

		select {
		case <-ticker.C:
		case <-pings:
			if err := ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readLoop drains client frames until the peer goes away, signaling pings to
// the writer loop.
func (h *WSHandler) readLoop(conn *websocket.Conn, wsLog zerolog.Logger, pings chan<- struct{}) {
	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}
		if msg.Action == ws.ActionPing {
			select {
			case pings <- struct{}{}:
			default:
			}
		}
	}
}
