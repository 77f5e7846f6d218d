package game

import "unicode/utf8"

// Bounded-length wire strings. Anything longer is cut (or, for passwords,
// rejected) at the boundary before it reaches authoritative state.
const (
	MaxRoomNameLen   = 32
	MaxPlayerNameLen = 24
	MaxPasswordLen   = 16
	MaxMapIDLen      = 32
	MaxPresetLen     = 32
)

const (
	MinRoomPlayers = 2
	MaxRoomPlayers = 8
)

type GameMode string

const (
	ModeArena      GameMode = "arena"
	ModeScoreMatch GameMode = "score_match"
	ModeTeamFight  GameMode = "team_fight"
	ModeDeathmatch GameMode = "deathmatch"
	ModePvE        GameMode = "pve"
)

func ParseGameMode(s string) (GameMode, bool) {
	switch GameMode(s) {
	case ModeArena, ModeScoreMatch, ModeTeamFight, ModeDeathmatch, ModePvE:
		return GameMode(s), true
	default:
		return "", false
	}
}

// HasTeams reports whether joining players are dealt onto the two teams.
func (m GameMode) HasTeams() bool {
	return m == ModeTeamFight
}

type AIDifficulty string

const (
	DifficultyEasy   AIDifficulty = "easy"
	DifficultyNormal AIDifficulty = "normal"
	DifficultyHard   AIDifficulty = "hard"
	DifficultyExpert AIDifficulty = "expert"
)

func ParseAIDifficulty(s string) (AIDifficulty, bool) {
	switch AIDifficulty(s) {
	case DifficultyEasy, DifficultyNormal, DifficultyHard, DifficultyExpert:
		return AIDifficulty(s), true
	default:
		return "", false
	}
}

// PlayerID is an unsigned 64-bit identity. Human ids come from connection
// identifiers and stay below 1<<63; CPU occupants get synthetic ids in the
// negative-equivalent range (sign bit set), counting down from ^uint64(0)
// so the two populations can never collide.
type PlayerID uint64

// EmptyPlayerID marks an unoccupied slot.
const EmptyPlayerID PlayerID = 0

const cpuIDBase = ^PlayerID(0) // two's-complement -1

func (id PlayerID) IsEmpty() bool { return id == EmptyPlayerID }
func (id PlayerID) IsCPU() bool   { return id&(1<<63) != 0 }
func (id PlayerID) IsHuman() bool { return !id.IsEmpty() && !id.IsCPU() }

// CPUPlayerID returns the synthetic id for the n-th CPU added to a roster
// (n starts at 0). Ids decrease: -1, -2, -3, ...
func CPUPlayerID(n uint64) PlayerID { return cpuIDBase - PlayerID(n) }

// RoomSettings is authority-owned room configuration. Mutable only through
// the room actor; every accepted change bumps the room version.
type RoomSettings struct {
	RoomName   string   `json:"room_name"`
	Mode       GameMode `json:"mode"`
	MaxPlayers int      `json:"max_players"`
	Password   string   `json:"password,omitempty"`
	IsPublic   bool     `json:"is_public"`
	TimeLimit  int      `json:"time_limit_sec"` // 0 = unlimited
	ScoreGoal  int      `json:"score_goal"`     // 0 = none
	MapID      string   `json:"map_id"`
}

// Validate checks settings at the boundary, truncating bounded strings in
// place and rejecting what cannot be truncated.
func (s *RoomSettings) Validate() error {
	if s.MaxPlayers < MinRoomPlayers || s.MaxPlayers > MaxRoomPlayers {
		return ErrInvalidSettings
	}
	if _, ok := ParseGameMode(string(s.Mode)); !ok {
		return ErrInvalidSettings
	}
	if s.TimeLimit < 0 || s.ScoreGoal < 0 {
		return ErrInvalidSettings
	}
	if len(s.Password) > MaxPasswordLen {
		return ErrInvalidSettings
	}
	s.RoomName = TruncateString(s.RoomName, MaxRoomNameLen)
	s.MapID = TruncateString(s.MapID, MaxMapIDLen)
	return nil
}

// PlayerSlot is one addressable roster position. Slot identity is the index;
// removal clears in place and never compacts.
type PlayerSlot struct {
	SlotIndex    int          `json:"slot_index"`
	PlayerID     PlayerID     `json:"player_id"`
	PlayerName   string       `json:"player_name"`
	IsAI         bool         `json:"is_ai"`
	AIDifficulty AIDifficulty `json:"ai_difficulty,omitempty"`
	IsReady      bool         `json:"is_ready"`
	TeamIndex    int          `json:"team_index"` // -1 = unassigned
	PresetName   string       `json:"customization_preset_name,omitempty"`
}

func (s PlayerSlot) Occupied() bool { return !s.PlayerID.IsEmpty() }

// TruncateString cuts s to at most max bytes without splitting a rune.
func TruncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
