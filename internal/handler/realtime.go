package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/middleware"
	"github.com/iliyamo/taskflow/internal/model"
	"github.com/iliyamo/taskflow/internal/realtime"
	"github.com/iliyamo/taskflow/internal/service"
)

// RealtimeHandler upgrades GET /v1/realtime to a websocket subscribed to
// the requested channels.
type RealtimeHandler struct {
	ErrorWriter
	Hub      *realtime.Hub
	Upgrader websocket.Upgrader
	// Base ends every session when cancelled, typically on shutdown.
	Base context.Context
}

func NewRealtimeHandler(hub *realtime.Hub, base context.Context, log *zap.Logger) *RealtimeHandler {
	if hub == nil {
		panic("nil hub passed to NewRealtimeHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RealtimeHandler{
		ErrorWriter: ErrorWriter{Log: log},
		Hub:         hub,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// bearer tokens authenticate the session, not cookies
			CheckOrigin: func(*http.Request) bool { return true },
		},
		Base: base,
	}
}

// channelsFor validates the requested channel list.  Private notification
// channels are only open to their owner.
func channelsFor(caller model.User, raw string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		if !realtime.ValidChannel(name) {
			return nil, fmt.Errorf("%w: unknown channel %q", service.ErrValidation, name)
		}
		if id, ok := realtime.NotificationRecipient(name); ok && id != caller.ExternalID {
			return nil, fmt.Errorf("%w to subscribe to %s", service.ErrForbidden, name)
		}
		seen[name] = true
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no channels requested", service.ErrValidation)
	}
	return out, nil
}

func (h *RealtimeHandler) Subscribe(c echo.Context) error {
	caller := middleware.Caller(c)
	channels, err := channelsFor(caller, c.QueryParam("channels"))
	if err != nil {
		return h.write(c, err)
	}

	conn, err := h.Upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the error response
		h.Log.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	if h.Base != nil {
		stop := context.AfterFunc(h.Base, cancel)
		defer stop()
	}
	h.Log.Debug("realtime session opened", zap.Uint64("user_id", caller.ID), zap.Strings("channels", channels))
	realtime.Serve(ctx, conn, h.Hub.Subscribe(channels...), h.Log)
	return nil
}
