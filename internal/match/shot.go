package match

import (
	"math"
	"time"

	"github.com/kkingfung/CavalryFight-sub004/internal/game"
)

// Default plausibility knobs. Tunable through config; these match the
// recommendations the netcode was balanced against.
const (
	DefaultMaxLatencyTolerance = 300 * time.Millisecond
	DefaultMaxOriginDrift      = 8.0
	DirectionTolerance         = 1e-3
)

// ArrowShotData is a client-reported shot. Ephemeral: consumed by Validate,
// never stored. The resolved target/location ride along from the engine-side
// geometry collaborator and are re-checked for liveness, not trusted for
// scoring semantics.
type ArrowShotData struct {
	Origin    Vec3          `json:"origin"`
	Direction Vec3          `json:"direction"`
	Speed     float64       `json:"speed"`
	FiredAt   time.Duration `json:"fired_at_ms"` // on the shared match clock
	ShooterID game.PlayerID `json:"shooter_id"`

	// Resolved outcome as reported; zero TargetID means nothing was hit.
	TargetID    game.PlayerID `json:"target_id"`
	Location    HitLocation   `json:"location"`
	HitPosition Vec3          `json:"hit_position"`
	HitNormal   Vec3          `json:"hit_normal"`
}

// HitResult is the adjudicated outcome of one shot, broadcast once and then
// discarded; only the scoreboard it fed persists.
type HitResult struct {
	ShooterID    game.PlayerID `json:"shooter_id"`
	TargetID     game.PlayerID `json:"target_id"`
	Location     HitLocation   `json:"location"`
	ScoreAwarded int           `json:"score_awarded"`
	HitPosition  Vec3          `json:"hit_position"`
	HitNormal    Vec3          `json:"hit_normal"`
	IsValidHit   bool          `json:"is_valid_hit"`
}

// CreateMiss builds the degraded result used for every rejected shot:
// observers still see a miss, nobody scores.
func CreateMiss(shooter game.PlayerID) HitResult {
	return HitResult{ShooterID: shooter, Location: HitMiss}
}

// Context is the authority-held truth a shot is validated against.
type Context struct {
	Arena               AABB
	MaxLatencyTolerance time.Duration
	MaxOriginDrift      float64

	// LastPosition yields the shooter's last authoritative position.
	// Second return is false if no sample exists yet (a fresh player is
	// given the benefit of the doubt on origin).
	LastPosition func(game.PlayerID) (Vec3, bool)

	// Alive reports whether id is a live participant of this match.
	Alive func(game.PlayerID) bool

	// Clock returns elapsed time on the shared match clock.
	Clock func() time.Duration
}

// Validate runs the anti-cheat checks in order, short-circuiting on the
// first failure. A nil error means shot may be scored; otherwise the error
// is one of the game.Err* shot sentinels and the caller broadcasts a miss.
func Validate(ctx *Context, shot *ArrowShotData) error {
	if !ctx.Alive(shot.ShooterID) {
		return game.ErrUnknownShooter
	}

	now := ctx.Clock()
	if shot.FiredAt > now || shot.FiredAt < now-ctx.MaxLatencyTolerance {
		return game.ErrStaleOrFutureShot
	}

	if !ctx.Arena.Contains(shot.Origin) {
		return game.ErrImplausibleOrigin
	}
	if pos, ok := ctx.LastPosition(shot.ShooterID); ok {
		if shot.Origin.DistanceTo(pos) > ctx.MaxOriginDrift {
			return game.ErrImplausibleOrigin
		}
	}

	l := shot.Direction.Length()
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return game.ErrMalformedDirection
	}
	if math.Abs(l-1) > DirectionTolerance {
		// Clients round-trip through float32s; renormalize drift instead
		// of rejecting. Only degenerate vectors are malformed.
		shot.Direction = Vec3{shot.Direction.X / l, shot.Direction.Y / l, shot.Direction.Z / l}
	}

	if !shot.TargetID.IsEmpty() && !ctx.Alive(shot.TargetID) {
		// Target left between firing and resolution: degrade to a miss of
		// the valid-shot kind rather than rejecting.
		shot.TargetID = game.EmptyPlayerID
		shot.Location = HitMiss
	}
	return nil
}
