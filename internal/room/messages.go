package room

import (
	"github.com/kkingfung/CavalryFight-sub004/internal/game"
	"github.com/kkingfung/CavalryFight-sub004/internal/match"
)

type Msg interface{ isRoomMsg() }

// Join seats a human player. The first human to join an empty room becomes
// the authority.
type Join struct {
	PlayerID game.PlayerID
	Name     string
	Preset   string
	Password string
	Outbox   chan Event // where this client wants to receive events
	Reply    chan error
}

func (Join) isRoomMsg() {}

// Leave is idempotent and safe in any phase.
type Leave struct{ PlayerID game.PlayerID }

func (Leave) isRoomMsg() {}

type SetReady struct {
	PlayerID game.PlayerID
	Ready    bool
	Reply    chan error
}

func (SetReady) isRoomMsg() {}

// UpdateSettings replaces room settings. Authority-only.
type UpdateSettings struct {
	PlayerID game.PlayerID
	Settings game.RoomSettings
	Reply    chan error
}

func (UpdateSettings) isRoomMsg() {}

// AddCPU seats a CPU player (slot -1 = first empty). Authority-only.
type AddCPU struct {
	PlayerID   game.PlayerID
	Difficulty game.AIDifficulty
	SlotIndex  int
	Reply      chan error
}

func (AddCPU) isRoomMsg() {}

type RemoveCPU struct {
	PlayerID  game.PlayerID
	SlotIndex int
	Reply     chan error
}

func (RemoveCPU) isRoomMsg() {}

type SetCPUDifficulty struct {
	PlayerID   game.PlayerID
	SlotIndex  int
	Difficulty game.AIDifficulty
	Reply      chan error
}

func (SetCPUDifficulty) isRoomMsg() {}

type Kick struct {
	PlayerID game.PlayerID
	Target   game.PlayerID
	Reply    chan error
}

func (Kick) isRoomMsg() {}

type StartMatch struct {
	PlayerID game.PlayerID
	Reply    chan error
}

func (StartMatch) isRoomMsg() {}

// PlayerMoved records an authoritative position sample used for shot-origin
// plausibility checks.
type PlayerMoved struct {
	PlayerID game.PlayerID
	Position match.Vec3
}

func (PlayerMoved) isRoomMsg() {}

// ShotReport carries one client-reported shot into adjudication. No reply:
// the outcome is broadcast to everyone, rejections degrade to a miss.
type ShotReport struct {
	Shot match.ArrowShotData
}

func (ShotReport) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// GetState reflects internal state without data races. Used by the room
// info endpoint and by tests.
type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

// timer fires are self-messages; gen guards against stale fires after the
// timer was logically cancelled (see armTimer).
type startTimerFired struct{ gen int }

func (startTimerFired) isRoomMsg() {}

type limitTimerFired struct{ gen int }

func (limitTimerFired) isRoomMsg() {}

type Phase string

const (
	PhaseOpen     Phase = "open"
	PhaseStarting Phase = "starting"
	PhaseInMatch  Phase = "in_match"
	PhaseClosed   Phase = "closed"
)

type EventType string

const (
	EvtRoomSnapshot    EventType = "room_snapshot"
	EvtPlayerJoined    EventType = "player_joined"
	EvtPlayerLeft      EventType = "player_left"
	EvtSettingsChanged EventType = "settings_changed"
	EvtReadyChanged    EventType = "ready_changed"
	EvtMatchStarting   EventType = "match_starting"
	EvtMatchStarted    EventType = "match_started"
	EvtHitResult       EventType = "hit_result"
	EvtScoreUpdate     EventType = "score_update"
	EvtMatchEnded      EventType = "match_ended"
	EvtKicked          EventType = "kicked"
	EvtRoomClosed      EventType = "room_closed"
	EvtError           EventType = "error"
)

// Event is one broadcast to room participants. Which fields are set depends
// on Type; snapshots carry the full roster so late deliveries stay coherent.
type Event struct {
	Type      EventType           `json:"type"`
	Version   int                 `json:"version"`
	Phase     Phase               `json:"phase,omitempty"`
	HostID    game.PlayerID       `json:"host_id,omitempty"`
	Settings  *game.RoomSettings  `json:"settings,omitempty"`
	Slots     []game.PlayerSlot   `json:"slots,omitempty"`
	PlayerID  game.PlayerID       `json:"player_id,omitempty"`
	Ready     bool                `json:"ready,omitempty"`
	Countdown int                 `json:"countdown_sec,omitempty"`
	Hit       *match.HitResult    `json:"hit,omitempty"`
	Score     *match.PlayerScore  `json:"score,omitempty"`
	Standings []match.PlayerScore `json:"standings,omitempty"`
	Message   string              `json:"message,omitempty"`
}

// View is a read-only reflection of room internals.
type View struct {
	Version    int
	Phase      Phase
	HostID     game.PlayerID
	NumClients int
	Settings   game.RoomSettings
	Slots      []game.PlayerSlot
	Standings  []match.PlayerScore
}
