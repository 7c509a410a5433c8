package app

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"relay/internal/ids"
	"relay/internal/store"
)

type roomCreateRequest struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	IsPrivate   bool     `json:"isPrivate"`
	Members     []string `json:"members"`
}

type roomDeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleRoomsList returns all rooms, creating the default room when the
// listing is empty so a fresh deployment is immediately usable.
func (a *App) handleRoomsList(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.store.Rooms(r.Context())
	if err != nil {
		a.log.Error("rooms.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "rooms_failed", "failed to list rooms")
		return
	}
	if len(rooms) == 0 {
		room, err := a.store.CreateRoom(r.Context(), store.DefaultRoom())
		if err != nil {
			a.log.Error("rooms.default.create.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "rooms_failed", "failed to create default room")
			return
		}
		rooms = []store.Room{room}
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (a *App) handleRoomCreate(w http.ResponseWriter, r *http.Request) {
	var req roomCreateRequest
	if err := decodeJSON(w, r, 64<<10, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid room payload")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "room name is required")
		return
	}

	if strings.TrimSpace(req.ID) == "" {
		id, err := ids.NewULID(time.Now().UTC())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "failed to allocate room id")
			return
		}
		req.ID = id
	}

	room, err := a.store.CreateRoom(r.Context(), store.Room{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
		Members:     req.Members,
	})
	if err != nil {
		a.log.Error("rooms.create.fail", "room_id", req.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "rooms_failed", "failed to create room")
		return
	}

	a.log.Info("rooms.created", "room_id", room.ID, "name", room.Name)
	writeJSON(w, http.StatusOK, room)
}

func (a *App) handleRoomDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == store.DefaultRoomID {
		writeError(w, http.StatusBadRequest, "bad_request", "Cannot delete the general room")
		return
	}

	ok, err := a.store.DeleteRoom(r.Context(), id)
	if err != nil {
		a.log.Error("rooms.delete.fail", "room_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "rooms_failed", "failed to delete room")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("Room with ID %s not found", id))
		return
	}

	a.log.Info("rooms.deleted", "room_id", id)
	writeJSON(w, http.StatusOK, roomDeleteResponse{
		Success: true,
		Message: fmt.Sprintf("Room %s deleted successfully", id),
	})
}
