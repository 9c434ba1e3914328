package handlers

import (
	"net/http"
	"strconv"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/auth"
	"chat-realtime/internal/models"
	"chat-realtime/internal/services"
	"chat-realtime/pkg/logger"
)

type RoomHandlers struct {
	roomService *services.RoomService
	authService *auth.Service
}

func NewRoomHandlers(roomService *services.RoomService, authService *auth.Service) *RoomHandlers {
	return &RoomHandlers{
		roomService: roomService,
		authService: authService,
	}
}

func (h *RoomHandlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	req, ok := decodeBody[models.CreateRoomRequest](w, r)
	if !ok {
		return
	}

	room, err := h.roomService.CreateRoom(r.Context(), &req, userID)
	if err != nil {
		logger.Error("Create room error: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, room)
}

// ListRooms is the REST room-list snapshot, unread counters included.
func (h *RoomHandlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	rooms, err := h.roomService.ListUserRooms(r.Context(), userID)
	if err != nil {
		logger.Error("List rooms error: %v", err)
		writeError(w, err)
		return
	}
	if rooms == nil {
		rooms = []models.RoomSummary{}
	}

	writeJSON(w, http.StatusOK, rooms)
}

func (h *RoomHandlers) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	userID, roomID, ok := h.roomRequest(w, r)
	if !ok {
		return
	}

	if err := h.roomService.DeleteRoom(r.Context(), roomID, userID); err != nil {
		logger.Error("Delete room error: %v", err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomHandlers) InviteUser(w http.ResponseWriter, r *http.Request) {
	userID, roomID, ok := h.roomRequest(w, r)
	if !ok {
		return
	}

	req, ok := decodeBody[models.InviteRequest](w, r)
	if !ok {
		return
	}

	if err := h.roomService.InviteUser(r.Context(), roomID, userID, req.Email); err != nil {
		logger.Error("Invite user error: %v", err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomHandlers) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	userID, roomID, ok := h.roomRequest(w, r)
	if !ok {
		return
	}

	if err := h.roomService.LeaveRoom(r.Context(), userID, roomID); err != nil {
		logger.Error("Leave room error: %v", err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomHandlers) GetRoomMembers(w http.ResponseWriter, r *http.Request) {
	userID, roomID, ok := h.roomRequest(w, r)
	if !ok {
		return
	}

	members, err := h.roomService.GetRoomMembers(r.Context(), roomID, userID)
	if err != nil {
		logger.Error("Get room members error: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, members)
}

func (h *RoomHandlers) GetActiveUsers(w http.ResponseWriter, r *http.Request) {
	userID, roomID, ok := h.roomRequest(w, r)
	if !ok {
		return
	}

	activeUsers, err := h.roomService.GetActiveUsers(r.Context(), roomID, userID)
	if err != nil {
		logger.Error("Get active users error: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room_id":      roomID,
		"active_users": activeUsers,
		"count":        len(activeUsers),
	})
}

func (h *RoomHandlers) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, roomID, ok := h.roomRequest(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	messages, err := h.roomService.History(r.Context(), roomID, userID, limit)
	if err != nil {
		logger.Error("Get messages error: %v", err)
		writeError(w, err)
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	writeJSON(w, http.StatusOK, messages)
}

func (h *RoomHandlers) authenticate(w http.ResponseWriter, r *http.Request) (int, bool) {
	claims, err := h.authService.ValidateToken(bearerToken(r))
	if err != nil {
		writeError(w, apperr.ErrAuthenticationFailed)
		return 0, false
	}
	return claims.UserID, true
}

func (h *RoomHandlers) roomRequest(w http.ResponseWriter, r *http.Request) (userID, roomID int, ok bool) {
	if userID, ok = h.authenticate(w, r); !ok {
		return 0, 0, false
	}
	roomID, err := pathID(r, 1)
	if err != nil {
		http.Error(w, "invalid room ID", http.StatusBadRequest)
		return 0, 0, false
	}
	return userID, roomID, true
}
