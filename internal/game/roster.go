package game

import "fmt"

// Roster is the fixed-size slot table for one room. All mutation goes
// through the methods below; the room actor is the only writer.
type Roster struct {
	Slots []PlayerSlot `json:"slots"`

	// nextCPUSeq is the count of CPU players ever added, so synthetic
	// ids keep decreasing and never recycle within a room's lifetime.
	nextCPUSeq uint64
}

// NewRoster allocates size empty slots. Size must already be validated
// against MinRoomPlayers/MaxRoomPlayers.
func NewRoster(size int) *Roster {
	r := &Roster{Slots: make([]PlayerSlot, size)}
	for i := range r.Slots {
		r.Slots[i] = emptySlot(i)
	}
	return r
}

func emptySlot(index int) PlayerSlot {
	return PlayerSlot{SlotIndex: index, PlayerID: EmptyPlayerID, TeamIndex: -1}
}

func (r *Roster) Size() int { return len(r.Slots) }

// OccupiedCount returns the number of non-empty slots.
func (r *Roster) OccupiedCount() int {
	n := 0
	for i := range r.Slots {
		if r.Slots[i].Occupied() {
			n++
		}
	}
	return n
}

// HumanCount returns the number of human-occupied slots.
func (r *Roster) HumanCount() int {
	n := 0
	for i := range r.Slots {
		if r.Slots[i].PlayerID.IsHuman() {
			n++
		}
	}
	return n
}

// Find returns the slot holding id, or nil.
func (r *Roster) Find(id PlayerID) *PlayerSlot {
	if id.IsEmpty() {
		return nil
	}
	for i := range r.Slots {
		if r.Slots[i].PlayerID == id {
			return &r.Slots[i]
		}
	}
	return nil
}

func (r *Roster) firstEmpty() int {
	for i := range r.Slots {
		if !r.Slots[i].Occupied() {
			return i
		}
	}
	return -1
}

// teamFor balances the two teams: the side with fewer members gets the new
// occupant, ties go to team 0.
func (r *Roster) teamFor(mode GameMode) int {
	if !mode.HasTeams() {
		return -1
	}
	counts := [2]int{}
	for i := range r.Slots {
		if t := r.Slots[i].TeamIndex; r.Slots[i].Occupied() && (t == 0 || t == 1) {
			counts[t]++
		}
	}
	if counts[1] < counts[0] {
		return 1
	}
	return 0
}

// AddHuman seats a human player in the first empty slot by ascending index.
// Humans join not-ready.
func (r *Roster) AddHuman(id PlayerID, name, preset string, mode GameMode) (*PlayerSlot, error) {
	if !id.IsHuman() {
		return nil, ErrUnknownPlayer
	}
	if r.Find(id) != nil {
		return nil, ErrUnknownPlayer
	}
	i := r.firstEmpty()
	if i < 0 {
		return nil, ErrRoomFull
	}
	r.Slots[i] = PlayerSlot{
		SlotIndex:  i,
		PlayerID:   id,
		PlayerName: TruncateString(name, MaxPlayerNameLen),
		TeamIndex:  r.teamFor(mode),
		PresetName: TruncateString(preset, MaxPresetLen),
	}
	return &r.Slots[i], nil
}

// AddCPU seats a CPU player. slotIndex -1 means first empty slot. CPU slots
// are always ready.
func (r *Roster) AddCPU(difficulty AIDifficulty, slotIndex int, mode GameMode) (*PlayerSlot, error) {
	i := slotIndex
	if i == -1 {
		i = r.firstEmpty()
		if i < 0 {
			return nil, ErrRoomFull
		}
	} else {
		if i < 0 || i >= len(r.Slots) {
			return nil, ErrInvalidSlotIndex
		}
		if r.Slots[i].Occupied() {
			return nil, ErrInvalidSlotIndex
		}
	}
	id := CPUPlayerID(r.nextCPUSeq)
	r.nextCPUSeq++
	r.Slots[i] = PlayerSlot{
		SlotIndex:    i,
		PlayerID:     id,
		PlayerName:   cpuName(difficulty, r.nextCPUSeq),
		IsAI:         true,
		AIDifficulty: difficulty,
		IsReady:      true,
		TeamIndex:    r.teamFor(mode),
	}
	return &r.Slots[i], nil
}

func cpuName(d AIDifficulty, seq uint64) string {
	return TruncateString(fmt.Sprintf("CPU %d (%s)", seq, d), MaxPlayerNameLen)
}

// Remove clears the slot holding id in place; other slots keep their
// indices. Removing an absent id is a no-op.
func (r *Roster) Remove(id PlayerID) bool {
	s := r.Find(id)
	if s == nil {
		return false
	}
	r.Slots[s.SlotIndex] = emptySlot(s.SlotIndex)
	return true
}

// RemoveCPUAt clears a CPU slot by index. Human slots are protected: humans
// leave or get kicked by id, never removed positionally.
func (r *Roster) RemoveCPUAt(slotIndex int) error {
	if slotIndex < 0 || slotIndex >= len(r.Slots) {
		return ErrInvalidSlotIndex
	}
	if !r.Slots[slotIndex].IsAI {
		return ErrInvalidSlotIndex
	}
	r.Slots[slotIndex] = emptySlot(slotIndex)
	return nil
}

// SetCPUDifficulty retunes a seated CPU.
func (r *Roster) SetCPUDifficulty(slotIndex int, difficulty AIDifficulty) error {
	if slotIndex < 0 || slotIndex >= len(r.Slots) {
		return ErrInvalidSlotIndex
	}
	if !r.Slots[slotIndex].IsAI {
		return ErrInvalidSlotIndex
	}
	r.Slots[slotIndex].AIDifficulty = difficulty
	return nil
}

// SetReady flips a player's own readiness. CPU slots stay ready.
func (r *Roster) SetReady(id PlayerID, ready bool) error {
	s := r.Find(id)
	if s == nil {
		return ErrUnknownPlayer
	}
	if s.IsAI {
		return nil
	}
	s.IsReady = ready
	return nil
}

// Resize grows or shrinks the slot table to size. Shrinking fails with
// ErrWouldDisplacePlayers if any slot at or beyond the new size is occupied,
// or if more players are seated than would fit; the roster is untouched on
// failure.
func (r *Roster) Resize(size int) error {
	if size == len(r.Slots) {
		return nil
	}
	if size > len(r.Slots) {
		for i := len(r.Slots); i < size; i++ {
			r.Slots = append(r.Slots, emptySlot(i))
		}
		return nil
	}
	if r.OccupiedCount() > size {
		return ErrWouldDisplacePlayers
	}
	for i := size; i < len(r.Slots); i++ {
		if r.Slots[i].Occupied() {
			return ErrWouldDisplacePlayers
		}
	}
	r.Slots = r.Slots[:size]
	return nil
}

// CanStart is the readiness gate: at least two occupied slots and every
// occupied slot ready.
func (r *Roster) CanStart() bool {
	occupied := 0
	for i := range r.Slots {
		if !r.Slots[i].Occupied() {
			continue
		}
		occupied++
		if !r.Slots[i].IsReady {
			return false
		}
	}
	return occupied >= MinRoomPlayers
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r *Roster) Clone() *Roster {
	c := &Roster{Slots: make([]PlayerSlot, len(r.Slots)), nextCPUSeq: r.nextCPUSeq}
	copy(c.Slots, r.Slots)
	return c
}
