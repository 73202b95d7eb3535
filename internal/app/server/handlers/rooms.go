package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"livechat/internal/core/domain"
	"livechat/internal/core/services"
	"livechat/pkg/logging"
	"livechat/pkg/middleware"

	"github.com/google/uuid"
)

type RoomsHandler struct {
	rooms    domain.RoomRepository
	backfill *services.Backfill
}

func NewRoomsHandler(rooms domain.RoomRepository, backfill *services.Backfill) *RoomsHandler {
	return &RoomsHandler{rooms: rooms, backfill: backfill}
}

func (h *RoomsHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	userID, err := requestUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	room := &domain.Room{
		ID:        uuid.New(),
		Name:      req.Name,
		CreatedBy: userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.rooms.CreateRoom(r.Context(), room); err != nil {
		if errors.Is(err, domain.ErrRoomAlreadyExists) {
			http.Error(w, "room already exists", http.StatusConflict)
			return
		}
		log.ErrorContext(r.Context(), "rooms handler - create failed", "name", req.Name, logging.Err(err))
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}
	// The creator is a member from the start.
	if err := h.rooms.AddMember(r.Context(), room.ID, userID); err != nil {
		log.ErrorContext(r.Context(), "rooms handler - add creator failed", logging.Room(room.ID.String()), logging.Err(err))
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"room_id":    room.ID,
		"name":       room.Name,
		"created_at": room.CreatedAt,
	})
}

func (h *RoomsHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	callerID, err := requestUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	roomID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}
	// Only existing members may invite.
	if ok, err := h.rooms.IsMember(r.Context(), roomID, callerID); err != nil || !ok {
		http.Error(w, "permission denied", http.StatusForbidden)
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	memberID, err := uuid.Parse(req.UserID)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	if err := h.rooms.AddMember(r.Context(), roomID, memberID); err != nil {
		log.ErrorContext(r.Context(), "rooms handler - add member failed", logging.Room(roomID.String()), logging.Err(err))
		http.Error(w, "failed to add member", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History serves the backfill pages over plain HTTP for non-socket
// readers and reconnect catch-up.
func (h *RoomsHandler) History(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	callerID, err := requestUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	roomID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}
	if _, err := h.rooms.GetRoomByID(r.Context(), roomID); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if ok, err := h.rooms.IsMember(r.Context(), roomID, callerID); err != nil || !ok {
		http.Error(w, "permission denied", http.StatusForbidden)
		return
	}

	sinceSeq, _ := strconv.ParseInt(r.URL.Query().Get("since_seq"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs, err := h.backfill.Page(r.Context(), roomID, sinceSeq, limit)
	if err != nil {
		log.ErrorContext(r.Context(), "rooms handler - history failed", logging.Room(roomID.String()), logging.Err(err))
		http.Error(w, "history read failed", http.StatusInternalServerError)
		return
	}
	out := make([]domain.ChatMessage, 0, len(msgs))
	for i := range msgs {
		out = append(out, domain.ChatMessageFrom(&msgs[i]))
	}
	json.NewEncoder(w).Encode(map[string]any{"messages": out})
}

func requestUser(r *http.Request) (uuid.UUID, error) {
	raw, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok {
		return uuid.Nil, domain.ErrInvalidUserID
	}
	return uuid.Parse(raw)
}
