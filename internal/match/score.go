package match

import (
	"sort"
	"sync"
	"time"

	"github.com/kkingfung/CavalryFight-sub004/internal/game"
)

// PlayerScore is one player's running totals. Mutated only by the
// Scoreboard; accuracy is derived, never stored.
type PlayerScore struct {
	PlayerID  game.PlayerID `json:"player_id"`
	Name      string        `json:"name"`
	Score     int           `json:"score"`
	Ammo      int           `json:"ammo"` // -1 = unlimited
	HitCount  int           `json:"hit_count"`
	ShotCount int           `json:"shot_count"`
	TeamIndex int           `json:"team_index"`
}

func (p PlayerScore) Accuracy() float64 {
	if p.ShotCount == 0 {
		return 0
	}
	return float64(p.HitCount) / float64(p.ShotCount)
}

// Scoreboard aggregates per-shot results into the authoritative standings
// and detects match end. Safe for concurrent shooters: the board lock only
// guards the map, each entry serializes its own mutation.
type Scoreboard struct {
	mu      sync.RWMutex
	entries map[game.PlayerID]*scoreEntry
	frozen  bool

	scoring ScoringConfig
	mode    game.GameMode
	goal    int
	limit   time.Duration
}

type scoreEntry struct {
	mu    sync.Mutex
	score PlayerScore
}

func NewScoreboard(scoring ScoringConfig, mode game.GameMode, scoreGoal int, timeLimit time.Duration) *Scoreboard {
	return &Scoreboard{
		entries: make(map[game.PlayerID]*scoreEntry),
		scoring: scoring,
		mode:    mode,
		goal:    scoreGoal,
		limit:   timeLimit,
	}
}

// AddPlayer seats a participant with startingAmmo arrows (-1 = unlimited).
func (b *Scoreboard) AddPlayer(id game.PlayerID, name string, team, startingAmmo int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[id]; ok {
		return
	}
	b.entries[id] = &scoreEntry{score: PlayerScore{
		PlayerID:  id,
		Name:      name,
		Ammo:      startingAmmo,
		TeamIndex: team,
	}}
}

// Alive reports whether id is on the board.
func (b *Scoreboard) Alive(id game.PlayerID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[id]
	return ok
}

// ConsumeArrow decrements the shooter's ammo and reports whether an arrow
// was available. Every shot, valid or not, costs an arrow.
func (b *Scoreboard) ConsumeArrow(id game.PlayerID) bool {
	e := b.entry(id)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.score.Ammo == 0 {
		return false
	}
	if e.score.Ammo > 0 {
		e.score.Ammo--
	}
	return true
}

// Record applies one adjudicated result: shot count always moves, hit count
// and score only on a valid hit. It returns the shooter's updated totals and
// whether the result ended the match.
func (b *Scoreboard) Record(res HitResult, elapsed time.Duration) (PlayerScore, bool) {
	e := b.entry(res.ShooterID)
	if e == nil {
		return PlayerScore{}, false
	}

	e.mu.Lock()
	e.score.ShotCount++
	if res.IsValidHit {
		e.score.HitCount++
		e.score.Score += res.ScoreAwarded
	}
	updated := e.score
	e.mu.Unlock()

	return updated, b.checkEnd(updated, elapsed)
}

func (b *Scoreboard) entry(id game.PlayerID) *scoreEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.frozen {
		return nil
	}
	return b.entries[id]
}

// goalReached is the per-mode score-goal predicate. Deathmatch counts kills
// (landed hits); PvE has no score goal at all; everything else races to
// points.
func goalReached(mode game.GameMode, s PlayerScore, goal int) bool {
	if goal <= 0 {
		return false
	}
	switch mode {
	case game.ModeDeathmatch:
		return s.HitCount >= goal
	case game.ModePvE:
		return false
	case game.ModeArena, game.ModeScoreMatch, game.ModeTeamFight:
		return s.Score >= goal
	}
	return s.Score >= goal
}

func (b *Scoreboard) checkEnd(s PlayerScore, elapsed time.Duration) bool {
	if b.limit > 0 && elapsed >= b.limit {
		return true
	}
	return goalReached(b.mode, s, b.goal)
}

// TimeExpired reports whether the configured limit has elapsed.
func (b *Scoreboard) TimeExpired(elapsed time.Duration) bool {
	return b.limit > 0 && elapsed >= b.limit
}

// Freeze stops all further mutation. Called once when the match ends.
func (b *Scoreboard) Freeze() {
	b.mu.Lock()
	b.frozen = true
	b.mu.Unlock()
}

// Standings returns a snapshot sorted by score descending, ties by id so
// the order is stable across broadcasts.
func (b *Scoreboard) Standings() []PlayerScore {
	b.mu.RLock()
	out := make([]PlayerScore, 0, len(b.entries))
	for _, e := range b.entries {
		e.mu.Lock()
		out = append(out, e.score)
		e.mu.Unlock()
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out
}
