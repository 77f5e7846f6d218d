package ws

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kkingfung/CavalryFight-sub004/internal/game"
	"github.com/kkingfung/CavalryFight-sub004/internal/hub"
	"github.com/kkingfung/CavalryFight-sub004/internal/room"
	"github.com/kkingfung/CavalryFight-sub004/internal/types"
)

const (
	lookupTimeout = 2 * time.Second
	writeTimeout  = 3 * time.Second
)

// LobbyPlayerInfo is per-connection metadata. It lives and dies with the
// websocket, never in authoritative state.
// Authority is not tracked here: the room names the current host in every
// snapshot it broadcasts.
type LobbyPlayerInfo struct {
	ClientID    uuid.UUID
	PlayerID    game.PlayerID
	DisplayName string
	PresetName  string
}

// newPlayerID derives a human player id from a fresh connection identity.
// Human ids keep the sign bit clear so they can never collide with CPU ids.
func newPlayerID() (uuid.UUID, game.PlayerID) {
	cid := uuid.New()
	id := game.PlayerID(binary.BigEndian.Uint64(cid[:8]) &^ (1 << 63))
	if id.IsEmpty() {
		id = 1
	}
	return cid, id
}

// Handler upgrades the connection, joins the room named by the query and
// pumps messages both ways until either side hangs up.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		name := q.Get("name")
		if name == "" {
			http.Error(w, "missing name", http.StatusBadRequest)
			return
		}

		rm, err := lookupRoom(r.Context(), h, code)
		if err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		cid, pid := newPlayerID()
		info := LobbyPlayerInfo{
			ClientID:    cid,
			PlayerID:    pid,
			DisplayName: name,
			PresetName:  q.Get("preset"),
		}

		out := make(chan room.Event, 16)
		reply := make(chan error, 1)
		rm.Inbox() <- room.Join{
			PlayerID: info.PlayerID,
			Name:     info.DisplayName,
			Preset:   info.PresetName,
			Password: q.Get("password"),
			Outbox:   out,
			Reply:    reply,
		}
		if err := recvErr(r.Context(), reply); err != nil {
			writeError(r.Context(), conn, err)
			return
		}
		defer func() { rm.Inbox() <- room.Leave{PlayerID: info.PlayerID} }()

		log.Info("client connected",
			zap.String("room", code),
			zap.String("client", info.ClientID.String()),
			zap.Uint64("player", uint64(info.PlayerID)))

		// Writer goroutine: events out until the room closes our channel.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for ev := range out {
				msg := types.ServerMessage{Type: string(ev.Type), Event: &ev}
				payload, _ := json.Marshal(msg)
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
			// Room closed the subscription; bring the reader down too.
			conn.Close(websocket.StatusNormalClosure, "room closed")
		}()

		// Reader loop.
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, errBadJSON)
				continue
			}
			if done := dispatch(r.Context(), conn, rm, info, cm); done {
				return
			}
		}
	}
}

// dispatch translates one client message into a room message and relays the
// rejection, if any, back to this client only. Returns true when the
// connection should end.
func dispatch(ctx context.Context, conn *websocket.Conn, rm *room.Room, info LobbyPlayerInfo, cm types.ClientMessage) bool {
	reply := make(chan error, 1)
	self := info.PlayerID

	switch cm.Type {
	case types.MsgSetReady:
		rm.Inbox() <- room.SetReady{PlayerID: self, Ready: cm.Ready, Reply: reply}

	case types.MsgUpdateSettings:
		if cm.Settings == nil {
			writeError(ctx, conn, errBadJSON)
			return false
		}
		rm.Inbox() <- room.UpdateSettings{PlayerID: self, Settings: *cm.Settings, Reply: reply}

	case types.MsgAddCPU:
		d, ok := game.ParseAIDifficulty(cm.Difficulty)
		if !ok {
			d = game.DifficultyNormal
		}
		idx := -1 // omitted means first empty slot
		if cm.SlotIndex != nil {
			idx = *cm.SlotIndex
		}
		rm.Inbox() <- room.AddCPU{PlayerID: self, Difficulty: d, SlotIndex: idx, Reply: reply}

	case types.MsgRemoveCPU:
		if cm.SlotIndex == nil {
			writeError(ctx, conn, errBadJSON)
			return false
		}
		rm.Inbox() <- room.RemoveCPU{PlayerID: self, SlotIndex: *cm.SlotIndex, Reply: reply}

	case types.MsgSetCPUDifficulty:
		d, ok := game.ParseAIDifficulty(cm.Difficulty)
		if !ok || cm.SlotIndex == nil {
			writeError(ctx, conn, errBadJSON)
			return false
		}
		rm.Inbox() <- room.SetCPUDifficulty{PlayerID: self, SlotIndex: *cm.SlotIndex, Difficulty: d, Reply: reply}

	case types.MsgKickPlayer:
		rm.Inbox() <- room.Kick{PlayerID: self, Target: cm.TargetID, Reply: reply}

	case types.MsgStartMatch:
		rm.Inbox() <- room.StartMatch{PlayerID: self, Reply: reply}

	case types.MsgLeave:
		rm.Inbox() <- room.Leave{PlayerID: self}
		return true

	case types.MsgPlayerMoved:
		if cm.Position != nil {
			rm.Inbox() <- room.PlayerMoved{PlayerID: self, Position: *cm.Position}
		}
		return false

	case types.MsgShotFired:
		if cm.Shot != nil {
			shot := *cm.Shot
			shot.ShooterID = self // never trust the reported shooter
			rm.Inbox() <- room.ShotReport{Shot: shot}
		}
		return false

	default:
		writeError(ctx, conn, errUnknownType)
		return false
	}

	if err := recvErr(ctx, reply); err != nil {
		writeError(ctx, conn, err)
	}
	return false
}

func lookupRoom(ctx context.Context, h *hub.Hub, code string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	h.Inbox() <- hub.GetRoom{Code: code, Reply: reply}
	select {
	case rm := <-reply:
		if rm == nil {
			return nil, game.ErrRoomNotFound
		}
		return rm, nil
	case <-time.After(lookupTimeout):
		return nil, game.ErrRoomNotFound
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func recvErr(ctx context.Context, reply <-chan error) error {
	select {
	case err := <-reply:
		return err
	case <-time.After(lookupTimeout):
		return game.ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	errBadJSON     = jsonError("bad json")
	errUnknownType = jsonError("unknown type")
)

type jsonError string

func (e jsonError) Error() string { return string(e) }

func writeError(ctx context.Context, conn *websocket.Conn, err error) {
	msg := types.ServerMessage{Type: "error", Error: err.Error()}
	payload, _ := json.Marshal(msg)
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}
