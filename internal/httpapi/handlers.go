package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kkingfung/CavalryFight-sub004/internal/game"
	"github.com/kkingfung/CavalryFight-sub004/internal/hub"
	"github.com/kkingfung/CavalryFight-sub004/internal/room"
)

const replyTimeout = 2 * time.Second

type createRoomRequest struct {
	Settings game.RoomSettings `json:"settings"`
}

type createRoomResponse struct {
	Code string `json:"code"`
}

type roomInfoResponse struct {
	Code        string        `json:"code"`
	RoomName    string        `json:"room_name"`
	Mode        game.GameMode `json:"mode"`
	MaxPlayers  int           `json:"max_players"`
	Occupied    int           `json:"occupied"`
	HasPassword bool          `json:"has_password"`
	IsPublic    bool          `json:"is_public"`
	Phase       room.Phase    `json:"phase"`
}

// CreateRoom allocates a room and returns its join code. The creator then
// connects over /ws with that code and takes the first slot (and authority).
func CreateRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		reply := make(chan hub.CreateReply, 1)
		h.Inbox() <- hub.CreateRoom{Settings: req.Settings, Reply: reply}

		var res hub.CreateReply
		select {
		case res = <-reply:
		case <-time.After(replyTimeout):
			http.Error(w, "timed out", http.StatusServiceUnavailable)
			return
		}
		if res.Err != nil {
			if errors.Is(res.Err, game.ErrInvalidSettings) {
				http.Error(w, res.Err.Error(), http.StatusUnprocessableEntity)
				return
			}
			log.Error("room creation failed", zap.Error(res.Err))
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(createRoomResponse{Code: res.Code})
	}
}

// RoomInfo exposes what a client needs before joining: capacity, mode and
// whether a password is required. Password contents stay server-side.
func RoomInfo(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.GetRoom{Code: code, Reply: reply}

		var rm *room.Room
		select {
		case rm = <-reply:
		case <-time.After(replyTimeout):
		}
		if rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		view := make(chan room.View, 1)
		rm.Inbox() <- room.GetState{Reply: view}
		select {
		case v := <-view:
			if !v.Settings.IsPublic {
				http.Error(w, "room not found", http.StatusNotFound)
				return
			}
			occupied := 0
			for _, s := range v.Slots {
				if s.Occupied() {
					occupied++
				}
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(roomInfoResponse{
				Code:        code,
				RoomName:    v.Settings.RoomName,
				Mode:        v.Settings.Mode,
				MaxPlayers:  v.Settings.MaxPlayers,
				Occupied:    occupied,
				HasPassword: v.Settings.Password != "",
				IsPublic:    v.Settings.IsPublic,
				Phase:       v.Phase,
			})
		case <-time.After(replyTimeout):
			http.Error(w, "timed out", http.StatusServiceUnavailable)
		}
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
