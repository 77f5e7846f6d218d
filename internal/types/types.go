package types

import (
	"github.com/kkingfung/CavalryFight-sub004/internal/game"
	"github.com/kkingfung/CavalryFight-sub004/internal/match"
	"github.com/kkingfung/CavalryFight-sub004/internal/room"
)

// ClientMessage is one command from a connected participant. Type selects
// which optional fields matter. Joining is not a message: it happens in the
// websocket handshake query (code, name, password, preset).
type ClientMessage struct {
	Type string `json:"type"`

	Ready      bool                 `json:"ready,omitempty"`
	Settings   *game.RoomSettings   `json:"settings,omitempty"`
	SlotIndex  *int                 `json:"slot_index,omitempty"`
	Difficulty string               `json:"difficulty,omitempty"`
	TargetID   game.PlayerID        `json:"target_id,omitempty"`
	Position   *match.Vec3          `json:"position,omitempty"`
	Shot       *match.ArrowShotData `json:"shot,omitempty"`
}

const (
	MsgSetReady         = "set_ready"
	MsgUpdateSettings   = "update_settings"
	MsgAddCPU           = "add_cpu"
	MsgRemoveCPU        = "remove_cpu"
	MsgSetCPUDifficulty = "set_cpu_difficulty"
	MsgKickPlayer       = "kick_player"
	MsgStartMatch       = "start_match"
	MsgLeave            = "leave"
	MsgPlayerMoved      = "player_moved"
	MsgShotFired        = "shot_fired"
)

// ServerMessage wraps either a room event or a request rejection addressed
// to one client.
type ServerMessage struct {
	Type  string      `json:"type"` // event type or "error"
	Event *room.Event `json:"event,omitempty"`
	Error string      `json:"error,omitempty"`
}
