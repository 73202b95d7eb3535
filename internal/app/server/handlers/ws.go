package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"livechat/internal/app/registry"
	"livechat/internal/app/server/ws"
	"livechat/internal/core/domain"
	"livechat/internal/core/services"
	"livechat/pkg/logging"
	"livechat/pkg/middleware"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type WSHandler struct {
	hub       *registry.Registry
	rooms     *services.RoomService
	messages  *services.MessageService
	governor  *services.Governor
	queueSize int
}

func NewWSHandler(
	hub *registry.Registry,
	rooms *services.RoomService,
	messages *services.MessageService,
	governor *services.Governor,
	queueSize int,
) *WSHandler {
	return &WSHandler{
		hub:       hub,
		rooms:     rooms,
		messages:  messages,
		governor:  governor,
		queueSize: queueSize,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // tighten later
	},
}

func (h *WSHandler) Handler(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	span := trace.SpanFromContext(r.Context())

	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok {
		log.ErrorContext(r.Context(), "ws handler - missing user_id")
		http.Error(w, "Unauthorized: User ID missing", http.StatusUnauthorized)
		return
	}
	span.SetAttributes(attribute.String("user.id", userID))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorContext(r.Context(), "ws handler - upgrade failed", logging.Err(err))
		return
	}

	// The session outlives the HTTP request.
	sessionCtx := context.WithoutCancel(r.Context())
	ctx, cancel := context.WithCancel(sessionCtx)
	defer cancel()

	socket := ws.NewWebSocket(ctx, conn)
	connID := uuid.NewString()
	client := ws.NewClient(ctx, socket, connID, userID, h.queueSize)

	if err := h.hub.Register(client); err != nil {
		log.ErrorContext(ctx, "ws handler - register failed", logging.Err(err))
		client.Close()
		return
	}
	defer func() {
		// Best-effort closed frame, then full teardown. Unregister is
		// idempotent, so racing the sweeper here is harmless.
		data, _ := json.Marshal(domain.ClosedEvent{Type: domain.TypeClosed, Reason: "connection closed"})
		client.TrySend(data)
		client.Drain()
		h.hub.Unregister(connID)
		h.governor.Forget(connID)
		client.Close()
	}()

	hs, _ := json.Marshal(domain.HandshakeResponse{
		Type:         domain.TypeHandshake,
		ConnectionID: connID,
		UserID:       userID,
	})
	client.TrySend(hs)
	log.InfoContext(ctx, "ws handler - connection established", logging.Conn(connID), logging.User(userID))

	// Frames are handled inline: one ordered event loop per connection,
	// no re-entrant callback chains.
	socket.ReadLoop(func(data []byte) {
		client.Touch()
		h.handleFrame(ctx, client, data)
	})
}

func (h *WSHandler) handleFrame(ctx context.Context, client *ws.Client, data []byte) {
	log := logging.FromContext(ctx)
	var frame domain.ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.sendError(client, "bad_request", "malformed frame")
		return
	}
	switch frame.Type {
	case domain.TypeSubscribe:
		if err := h.rooms.Join(ctx, client, frame.RoomID, frame.ResumeFrom); err != nil {
			h.sendError(client, errCode(err), err.Error())
			return
		}
		client.MarkSubscribed()
	case domain.TypeUnsubscribe:
		h.rooms.Leave(ctx, client, frame.RoomID)
	case domain.TypeSend:
		if _, err := h.messages.HandleSend(ctx, client, frame); err != nil {
			h.sendError(client, errCode(err), err.Error())
		}
	default:
		log.WarnContext(ctx, "ws handler - unknown frame type", "type", frame.Type, logging.Conn(client.ID()))
		h.sendError(client, "bad_request", "unknown frame type")
	}
}

func (h *WSHandler) sendError(client *ws.Client, code, msg string) {
	data, _ := json.Marshal(domain.ErrorMessage{
		Type:    domain.TypeError,
		Code:    code,
		Message: msg,
	})
	client.TrySend(data)
}

func errCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrConnectionNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence_error"
	case errors.Is(err, domain.ErrInvalidRoomID), errors.Is(err, domain.ErrInvalidUserID):
		return "bad_request"
	default:
		return "internal"
	}
}
