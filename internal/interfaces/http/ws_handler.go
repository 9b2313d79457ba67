package http

import (
	stdhttp "net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"ops-portal/internal/application"
	"ops-portal/internal/domain"
	"ops-portal/internal/ports"
)

// WatchHandler streams the caller's session snapshot over a websocket:
// one frame on connect, then a frame every time an administrator's edit
// reaches the live subscription. The client never needs to re-fetch after
// a permission change.
type WatchHandler struct {
	sessions *application.SessionManager
	logger   ports.Logger

	upgrader websocket.Upgrader
}

func NewWatchHandler(sessions *application.SessionManager, allowedOrigins []string, logger ports.Logger) *WatchHandler {
	return &WatchHandler{
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *stdhttp.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

type sessionFrame struct {
	State       string               `json:"state"`
	Role        domain.RoleTag       `json:"role"`
	Permissions domain.PermissionSet `json:"permissions"`
	IsAdmin     bool                 `json:"is_admin"`
	Menu        []domain.MenuItem    `json:"menu"`
	SentAt      time.Time            `json:"sent_at"`
}

func frameFor(sess *application.Session) sessionFrame {
	rec := sess.Record()
	return sessionFrame{
		State:       sess.State().String(),
		Role:        rec.Role,
		Permissions: rec.Permissions,
		IsAdmin:     sess.IsAdmin(),
		Menu:        sess.VisibleMenu(),
		SentAt:      time.Now().UTC(),
	}
}

func (h *WatchHandler) Watch(c echo.Context) error {
	uid, ok := currentUserID(c)
	if !ok {
		return c.JSON(stdhttp.StatusUnauthorized, map[string]string{"error": "missing identity"})
	}

	sess, err := h.sessions.Attach(c.Request().Context(), uid)
	if err != nil {
		return handleError(c, err)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		sess.Close()
		return err
	}
	connID := uuid.NewString()
	ctx := c.Request().Context()
	h.logger.Info(ctx, "watch connected", "user_id", uid, "conn_id", connID)

	defer func() {
		sess.Close()
		_ = conn.Close()
		h.logger.Info(ctx, "watch disconnected", "user_id", uid, "conn_id", connID)
	}()

	// Reader goroutine: only there to notice the peer going away.
	peerGone := make(chan struct{})
	go func() {
		defer close(peerGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Grab the update signal before reading the snapshot so a push landing
	// between the two still wakes the loop.
	updated := sess.Updated()
	if err := conn.WriteJSON(frameFor(sess)); err != nil {
		return nil
	}

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-peerGone:
			return nil
		case <-ctx.Done():
			return nil
		case <-updated:
			updated = sess.Updated()
			if err := conn.WriteJSON(frameFor(sess)); err != nil {
				return nil
			}
		case <-keepalive.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return nil
			}
		}
	}
}
